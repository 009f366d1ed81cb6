// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package packet

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortPayload is returned when a payload ends inside a field
var ErrShortPayload = errors.New("short payload")

// Section is one `model | len | data` block of a sensor-data payload
type Section struct {
	Model uint8
	Data  []byte
}

// ParseSections splits a sensor-data payload into its sections
func ParseSections(payload []byte) ([]Section, error) {
	var out []Section
	for i := 0; i < len(payload); {
		if len(payload)-i < 2 {
			return out, errors.Wrapf(ErrShortPayload, "section header at %d", i)
		}
		model, n := payload[i], int(payload[i+1])
		i += 2
		if len(payload)-i < n {
			return out, errors.Wrapf(ErrShortPayload, "model 0x%02X wants %d bytes, %d left", model, n, len(payload)-i)
		}
		out = append(out, Section{Model: model, Data: payload[i : i+n]})
		i += n
	}
	return out, nil
}

// AppendSection appends one section to dst
func AppendSection(dst []byte, model uint8, data []byte) []byte {
	dst = append(dst, model, uint8(len(data)))
	return append(dst, data...)
}

// Reader reads little-endian fields from a payload. The first short read
// sticks in Err and later reads return zero values.
type Reader struct {
	buf []byte
	off int
	Err error
}

// NewReader returns a Reader over b
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) take(n int) []byte {
	if r.Err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.Err = errors.Wrapf(ErrShortPayload, "need %d bytes at offset %d", n, r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// Uint8 reads one byte
func (r *Reader) Uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

// Uint16 reads a little-endian uint16
func (r *Reader) Uint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

// Uint32 reads a little-endian uint32
func (r *Reader) Uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// Bytes copies the next len(dst) bytes into dst
func (r *Reader) Bytes(dst []byte) {
	if b := r.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Writer builds a little-endian payload
type Writer struct {
	buf []byte
}

// Uint8 appends one byte
func (w *Writer) Uint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// Uint16 appends a little-endian uint16
func (w *Writer) Uint16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

// Uint32 appends a little-endian uint32
func (w *Writer) Uint32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

// Bytes appends b
func (w *Writer) Bytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Fixed appends b zero-padded or truncated to n bytes
func (w *Writer) Fixed(b []byte, n int) *Writer {
	field := make([]byte, n)
	copy(field, b)
	w.buf = append(w.buf, field...)
	return w
}

// Payload returns the built payload
func (w *Writer) Payload() []byte {
	return w.buf
}
