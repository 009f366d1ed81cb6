// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package packet

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Statistics counts decoded packets and decode errors on one line
type Statistics struct {
	StartTime time.Time

	TotalPackets  uint64
	ValidPackets  uint64
	CRCErrors     uint64
	FramingErrors uint64
	DecodeErrors  uint64

	ByCommand map[uint8]uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
		ByCommand: make(map[uint8]uint64),
	}
}

// Update counts one decoder result. A nil packet with a nil error is a
// byte that did not finish a packet and is ignored.
func (s *Statistics) Update(p *Packet, decodeErr error) {
	if p == nil && decodeErr == nil {
		return
	}
	s.TotalPackets++

	switch {
	case decodeErr == nil:
		s.ValidPackets++
		s.ByCommand[p.Cmd]++
	case errors.Is(decodeErr, ErrCRC):
		s.CRCErrors++
	case errors.Is(decodeErr, ErrFraming):
		s.FramingErrors++
	default:
		s.DecodeErrors++
	}
}

// Errors returns the number of packets lost to decode errors
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.FramingErrors + s.DecodeErrors
}

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalPackets)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	fmt.Fprintf(&b, "Total Packets:   %8d\n", s.TotalPackets)
	fmt.Fprintf(&b, "Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, percent(s.ValidPackets))
	if s.CRCErrors > 0 {
		fmt.Fprintf(&b, "CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, percent(s.CRCErrors))
	}
	if s.FramingErrors > 0 {
		fmt.Fprintf(&b, "Framing Errors:  %8d (%.1f%%)\n", s.FramingErrors, percent(s.FramingErrors))
	}
	if s.DecodeErrors > 0 {
		fmt.Fprintf(&b, "Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}

	cmds := make([]int, 0, len(s.ByCommand))
	for c := range s.ByCommand {
		cmds = append(cmds, int(c))
	}
	sort.Ints(cmds)
	for _, c := range cmds {
		fmt.Fprintf(&b, "  %-18s %5d\n", CommandName(uint8(c))+":", s.ByCommand[uint8(c)])
	}

	fmt.Fprintf(&b, "Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
