// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package packet

import (
	"encoding/binary"
	"fmt"
)

// Packet is one gateway packet. Length is the declared payload length as
// received; it is kept apart from Payload so a corrupted header stays
// detectable. New and Seal keep both consistent.
type Packet struct {
	Length    uint8
	Src       uint32
	Dst       uint32
	Cmd       uint8
	Timestamp uint32
	Payload   []byte
	CRC       uint16
}

// New builds a sealed packet
func New(src, dst uint32, cmd uint8, ts uint32, payload []byte) *Packet {
	p := &Packet{
		Src:       src,
		Dst:       dst,
		Cmd:       cmd,
		Timestamp: ts,
		Payload:   payload,
	}
	p.Seal()
	return p
}

// NewLocal builds a sealed loopback packet, src and dst both localhost
func NewLocal(cmd uint8, payload []byte) *Packet {
	return New(AddressLocalhost, AddressLocalhost, cmd, 0, payload)
}

// Seal sets Length from the payload and recomputes the CRC
func (p *Packet) Seal() {
	p.Length = uint8(len(p.Payload))
	p.CRC = p.ComputeCRC()
}

// header returns the 14 header bytes using the declared length
func (p *Packet) header() []byte {
	h := make([]byte, HeaderSize)
	h[0] = p.Length
	binary.LittleEndian.PutUint32(h[1:5], p.Src)
	binary.LittleEndian.PutUint32(h[5:9], p.Dst)
	h[9] = p.Cmd
	binary.LittleEndian.PutUint32(h[10:14], p.Timestamp)
	return h
}

// ComputeCRC returns the CRC of the header and payload as they are now
func (p *Packet) ComputeCRC() uint16 {
	return updateCRC(CalculateCRC(p.header()), p.Payload)
}

// Verify reports whether the stored CRC matches header and payload
func (p *Packet) Verify() bool {
	return p.CRC == p.ComputeCRC()
}

// IsLocal reports whether the packet originates on the gateway itself
func (p *Packet) IsLocal() bool {
	return p.Src == AddressLocalhost
}

// Size returns the length of the unstuffed body: header, payload and CRC
func (p *Packet) Size() int {
	return HeaderSize + len(p.Payload) + CRCSize
}

// Body returns the unstuffed header, payload and CRC
func (p *Packet) Body() []byte {
	b := make([]byte, 0, p.Size())
	b = append(b, p.header()...)
	b = append(b, p.Payload...)
	return append(b, byte(p.CRC>>8), byte(p.CRC))
}

// Clone returns a deep copy
func (p *Packet) Clone() *Packet {
	c := *p
	c.Payload = append([]byte(nil), p.Payload...)
	return &c
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s src=%08X dst=%08X ts=%d len=%d crc=%04X",
		CommandName(p.Cmd), p.Src, p.Dst, p.Timestamp, p.Length, p.CRC)
}
