// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package packet

import (
	"github.com/pkg/errors"
)

// Decoder reassembles packets from a byte stream one byte at a time
type Decoder struct {
	state   int
	escaped bool
	field   int // bytes of the current multi-byte field seen so far
	body    []byte
	pkt     *Packet
}

// NewDecoder creates a decoder waiting for a START byte
func NewDecoder() *Decoder {
	return &Decoder{body: make([]byte, 0, MaxPacketSize)}
}

// Reset drops any partial packet
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.escaped = false
	d.field = 0
	d.body = d.body[:0]
	d.pkt = nil
}

// Decode feeds every byte of data and returns the packets completed along
// the way together with the last decode error, if any
func (d *Decoder) Decode(data []byte) ([]*Packet, error) {
	var (
		pkts    []*Packet
		lastErr error
	)
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			lastErr = err
		}
		if p != nil {
			pkts = append(pkts, p)
		}
	}
	return pkts, lastErr
}

// DecodeByte advances the decoder. It returns a packet once its END byte
// arrived and the CRC matched, nil while a packet is incomplete, and an
// error when the current packet had to be dropped.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch b {
	case StartByte:
		d.Reset()
		d.state = stateLength
		return nil, nil
	case EndByte:
		return d.finish()
	}

	if d.escaped {
		b ^= EscXor
		d.escaped = false
	} else if b == EscByte {
		d.escaped = d.state != stateIdle
		return nil, nil
	}

	if d.state == stateIdle {
		return nil, nil
	}
	if len(d.body) >= MaxPacketSize {
		d.Reset()
		return nil, errors.Wrap(ErrFraming, "packet exceeds max size")
	}
	d.body = append(d.body, b)

	switch d.state {
	case stateLength:
		if b > MaxPayloadSize {
			d.Reset()
			return nil, errors.Wrapf(ErrPayloadTooLarge, "declared %d (max %d)", b, MaxPayloadSize)
		}
		d.pkt = &Packet{Length: b, Payload: make([]byte, 0, b)}
		d.next(stateSrc)

	case stateSrc:
		d.pkt.Src |= uint32(b) << (8 * d.field)
		if d.field++; d.field == 4 {
			d.next(stateDst)
		}

	case stateDst:
		d.pkt.Dst |= uint32(b) << (8 * d.field)
		if d.field++; d.field == 4 {
			d.next(stateCmd)
		}

	case stateCmd:
		d.pkt.Cmd = b
		d.next(stateTimestamp)

	case stateTimestamp:
		d.pkt.Timestamp |= uint32(b) << (8 * d.field)
		if d.field++; d.field == 4 {
			if d.pkt.Length == 0 {
				d.next(stateCRC1)
			} else {
				d.next(statePayload)
			}
		}

	case statePayload:
		d.pkt.Payload = append(d.pkt.Payload, b)
		if len(d.pkt.Payload) == int(d.pkt.Length) {
			d.next(stateCRC1)
		}

	case stateCRC1:
		d.pkt.CRC = uint16(b) << 8
		d.next(stateCRC2)

	case stateCRC2:
		d.pkt.CRC |= uint16(b)
		d.next(stateEnd)

	default:
		d.Reset()
		return nil, errors.Wrap(ErrFraming, "data after crc")
	}
	return nil, nil
}

func (d *Decoder) next(state int) {
	d.state = state
	d.field = 0
}

func (d *Decoder) finish() (*Packet, error) {
	if d.state == stateIdle {
		return nil, nil
	}
	p, complete := d.pkt, d.state == stateEnd
	d.Reset()
	if !complete {
		return nil, errors.Wrap(ErrFraming, "unexpected END byte")
	}
	if !p.Verify() {
		return nil, errors.Wrapf(ErrCRC, "got %04X, want %04X", p.CRC, p.ComputeCRC())
	}
	return p, nil
}
