// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package packet

import (
	"strings"
	"testing"
)

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	d := NewDecoder()

	good := MustEncode(New(0x10, AddressBroadcast, CmdSensorData, 1, AppendSection(nil, ModelBattery, []byte{1})))
	bad := append([]byte(nil), good...)
	bad[17] ^= 0x01 // data byte

	stream := append(append(append([]byte(nil), good...), bad...), StartByte, 0x00, EndByte)
	stream = append(stream, MustEncode(NewLocal(CmdAck, nil))...)
	for _, b := range stream {
		s.Update(d.DecodeByte(b))
	}

	if s.TotalPackets != 4 {
		t.Errorf("expected 4 packets, got %d", s.TotalPackets)
	}
	if s.ValidPackets != 2 {
		t.Errorf("expected 2 valid packets, got %d", s.ValidPackets)
	}
	if s.CRCErrors != 1 {
		t.Errorf("expected 1 CRC error, got %d", s.CRCErrors)
	}
	if s.FramingErrors != 1 {
		t.Errorf("expected 1 framing error, got %d", s.FramingErrors)
	}
	if s.ByCommand[CmdSensorData] != 1 || s.ByCommand[CmdAck] != 1 {
		t.Errorf("unexpected per-command counts %v", s.ByCommand)
	}
	if s.Errors() != 2 {
		t.Errorf("expected 2 errors, got %d", s.Errors())
	}
}

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	s.Update(NewLocal(CmdAck, nil), nil)

	out := s.String()
	for _, want := range []string{"Total Packets:", "Valid Packets:", "ACK:", "Packet Rate:"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary misses %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "CRC Errors") {
		t.Errorf("summary shows zero CRC errors:\n%s", out)
	}
}

func TestStatistics_Reset(t *testing.T) {
	s := NewStatistics()
	s.Update(NewLocal(CmdAck, nil), nil)
	s.Reset()

	if s.TotalPackets != 0 || len(s.ByCommand) != 0 {
		t.Errorf("reset left counters: %+v", s)
	}
}
