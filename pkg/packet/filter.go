// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package packet

import (
	"github.com/pkg/errors"
)

// ErrFilteredOut is returned when nothing of a buffer survives filtering
var ErrFilteredOut = errors.New("nothing left after filtering")

// Filter keeps the whitelisted sections of sensor-data packets. Packets
// carrying any other command pass unchanged.
type Filter struct {
	allowed [256]bool
}

// NewFilter returns a filter that keeps the given models
func NewFilter(models ...uint8) *Filter {
	f := &Filter{}
	for _, m := range models {
		f.allowed[m] = true
	}
	return f
}

// Allows reports whether model survives the filter
func (f *Filter) Allows(model uint8) bool {
	return f.allowed[model]
}

// Packet returns a resealed copy of p holding only whitelisted sections, or
// false when none is left
func (f *Filter) Packet(p *Packet) (*Packet, bool) {
	if p.Cmd != CmdSensorData {
		return p, true
	}
	sections, err := ParseSections(p.Payload)
	if err != nil {
		return nil, false
	}
	var payload []byte
	for _, s := range sections {
		if f.allowed[s.Model] {
			payload = AppendSection(payload, s.Model, s.Data)
		}
	}
	if len(payload) == 0 {
		return nil, false
	}
	out := p.Clone()
	out.Payload = payload
	out.Seal()
	return out, true
}

// Apply decodes every packet in data, filters each and returns the
// re-encoded survivors
func (f *Filter) Apply(data []byte) ([]byte, error) {
	pkts, _ := NewDecoder().Decode(data)
	var out []byte
	for _, p := range pkts {
		if fp, ok := f.Packet(p); ok {
			out = AppendEncoded(out, fp)
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrFilteredOut, "%d packets in %d bytes", len(pkts), len(data))
	}
	return out, nil
}
