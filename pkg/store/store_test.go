// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fieldgate/pkg/packet"
)

func TestOpen_MissingFile(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "config.cbor"))
	require.NoError(t, err)
	assert.Empty(t, f.Load())
}

func TestOpen_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.cbor")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0x00, 0x13}, 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestSaveConfig_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "config.cbor")

	f, err := Open(path)
	require.NoError(t, err)

	lora := packet.New(0xC0FFEE, packet.AddressLocalhost, packet.CmdLoRaParamsConf, 7, []byte{0x41, 1, 2, 3})
	net1 := packet.New(0xC0FFEE, packet.AddressLocalhost, packet.CmdNetworkParamsConf, 8, []byte{0x40, 1})
	net2 := packet.New(0xBEEF, packet.AddressLocalhost, packet.CmdNetworkParamsConf, 9, []byte{0x40, 2})
	require.NoError(t, f.SaveConfig(lora))
	require.NoError(t, f.SaveConfig(net1))
	require.NoError(t, f.SaveConfig(net2))

	g, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, []Record{
		{Cmd: packet.CmdNetworkParamsConf, Src: 0xBEEF, Timestamp: 9, Payload: []byte{0x40, 2}},
		{Cmd: packet.CmdLoRaParamsConf, Src: 0xC0FFEE, Timestamp: 7, Payload: []byte{0x41, 1, 2, 3}},
	}, g.Records())

	loaded := g.Load()
	require.Len(t, loaded, 2)
	for _, p := range loaded {
		assert.True(t, p.IsLocal(), "replayed as loopback")
		assert.True(t, p.Verify())
	}
	assert.Equal(t, []byte{0x40, 2}, loaded[0].Payload)
	assert.Equal(t, []byte{0x41, 1, 2, 3}, loaded[1].Payload)
}

func TestSaveConfig_FailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.cbor")

	f, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, f.SaveConfig(packet.NewLocal(packet.CmdNetworkParamsConf, []byte{0x40, 1})))

	// a directory where the file should be makes the rename fail
	f.path = filepath.Join(dir, "blocked")
	require.NoError(t, os.MkdirAll(filepath.Join(f.path, "child"), 0o755))

	err = f.SaveConfig(packet.NewLocal(packet.CmdNetworkParamsConf, []byte{0x40, 2}))
	require.Error(t, err)
	assert.Equal(t, []byte{0x40, 1}, f.Records()[0].Payload)
}
