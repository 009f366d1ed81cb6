// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package packet

import (
	"github.com/pkg/errors"
)

// Codec errors
var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrLengthMismatch  = errors.New("declared length does not match payload")
	ErrCRC             = errors.New("crc mismatch")
	ErrFraming         = errors.New("framing error")
)

// Encode returns the wire form of p: START, stuffed body, END. The stored
// CRC is sent as is, so a packet that fails Verify stays detectable
// downstream.
func Encode(p *Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes (max %d)", len(p.Payload), MaxPayloadSize)
	}
	if int(p.Length) != len(p.Payload) {
		return nil, errors.Wrapf(ErrLengthMismatch, "declared %d, have %d", p.Length, len(p.Payload))
	}
	return AppendEncoded(nil, p), nil
}

// MustEncode is Encode for packets built with New. It panics on error.
func MustEncode(p *Packet) []byte {
	b, err := Encode(p)
	if err != nil {
		panic("packet: " + err.Error())
	}
	return b
}

// AppendEncoded appends the wire form of p to dst without validation
func AppendEncoded(dst []byte, p *Packet) []byte {
	dst = append(dst, StartByte)
	dst = Stuff(dst, p.Body())
	return append(dst, EndByte)
}

// EncodedSize returns the number of wire bytes p occupies
func EncodedSize(p *Packet) int {
	n := 2
	for _, b := range p.Body() {
		if needsEscape(b) {
			n++
		}
		n++
	}
	return n
}

func needsEscape(b byte) bool {
	return b == StartByte || b == EndByte || b == EscByte
}

// Stuff appends data to dst, replacing START, END and ESC by ESC + (b ^ 0x20)
func Stuff(dst, data []byte) []byte {
	for _, b := range data {
		if needsEscape(b) {
			dst = append(dst, EscByte, b^EscXor)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// Unstuff reverses Stuff
func Unstuff(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	escaped := false
	for _, b := range data {
		switch {
		case escaped:
			out = append(out, b^EscXor)
			escaped = false
		case b == EscByte:
			escaped = true
		default:
			out = append(out, b)
		}
	}
	if escaped {
		return nil, errors.Wrap(ErrFraming, "dangling escape")
	}
	return out, nil
}
