// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store persists configuration packets in a CBOR file so they can
// be replayed at start-up.
//
// The file holds one CBOR map from command to record. Every save rewrites
// the whole file through a temporary file and a rename.
package store

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/packet"
)

// Record is one persisted configuration packet
type Record struct {
	Cmd       uint8  `cbor:"1,keyasint"`
	Src       uint32 `cbor:"2,keyasint"`
	Timestamp uint32 `cbor:"3,keyasint"`
	Payload   []byte `cbor:"4,keyasint"`
}

type document struct {
	Version int              `cbor:"1,keyasint"`
	Records map[uint8]Record `cbor:"2,keyasint"`
}

const formatVersion = 1

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// File is a configuration store backed by one file. It is safe for
// concurrent use.
type File struct {
	mu      sync.Mutex
	path    string
	records map[uint8]Record
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string) (*File, error) {
	f := &File{
		path:    path,
		records: make(map[uint8]Record),
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read config store")
	}

	var doc document
	if err := cbor.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode config store %s", path)
	}
	if doc.Version != formatVersion {
		return nil, errors.Errorf("config store %s: unsupported version %d", path, doc.Version)
	}
	for cmd, r := range doc.Records {
		f.records[cmd] = r
	}

	log.WithFields(log.Fields{
		"path":    path,
		"records": len(f.records),
	}).Debug("store: loaded")
	return f, nil
}

// Path returns the backing file
func (f *File) Path() string {
	return f.path
}

// SaveConfig stores p, replacing the previous packet of the same command
func (f *File) SaveConfig(p *packet.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.records[p.Cmd]
	f.records[p.Cmd] = Record{
		Cmd:       p.Cmd,
		Src:       p.Src,
		Timestamp: p.Timestamp,
		Payload:   append([]byte(nil), p.Payload...),
	}
	if err := f.flush(); err != nil {
		if had {
			f.records[p.Cmd] = prev
		} else {
			delete(f.records, p.Cmd)
		}
		return err
	}

	log.WithFields(log.Fields{
		"command": packet.CommandName(p.Cmd),
		"src":     p.Src,
	}).Info("store: configuration saved")
	return nil
}

func (f *File) flush() error {
	b, err := encMode.Marshal(document{Version: formatVersion, Records: f.records})
	if err != nil {
		return errors.Wrap(err, "encode config store")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create config store directory")
	}
	tmp, err := os.CreateTemp(dir, ".fieldgate-store-*")
	if err != nil {
		return errors.Wrap(err, "create temporary store file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write config store")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close config store")
	}
	return errors.Wrap(os.Rename(tmp.Name(), f.path), "replace config store")
}

// Load returns the stored configuration as loopback packets, ordered by
// command, ready to be replayed through the network parser
func (f *File) Load() []*packet.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*packet.Packet, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, packet.New(packet.AddressLocalhost, packet.AddressLocalhost, r.Cmd, r.Timestamp, append([]byte(nil), r.Payload...)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmd < out[j].Cmd })
	return out
}

// Records returns a copy of the stored records
func (f *File) Records() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmd < out[j].Cmd })
	return out
}
