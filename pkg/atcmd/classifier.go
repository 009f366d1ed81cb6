// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package atcmd

import (
	"strings"

	"github.com/Thermoquad/fieldgate/pkg/netif"
)

// Classifier implements the response parser state machine and owns the
// queue of classified events. It is not safe for concurrent use.
type Classifier struct {
	state State
	frame [MaxFrameLen + 1]byte
	n     int

	pending Event
	nibbles []byte

	queue [QueueCapacity]Event
	head  int
	count int

	unknown     [UnknownSlots][MaxFrameLen + 1]byte
	unknownNext int

	dropped int
}

// NewClassifier creates a classifier in the idle state
func NewClassifier() *Classifier {
	return &Classifier{
		nibbles: make([]byte, 0, 2*MaxPayloadLen),
	}
}

// State returns the current parser state
func (c *Classifier) State() State {
	return c.state
}

// Write feeds every byte of p. It never fails.
func (c *Classifier) Write(p []byte) (int, error) {
	for _, b := range p {
		c.Feed(b)
	}
	return len(p), nil
}

// Feed advances the state machine by one byte
func (c *Classifier) Feed(b byte) {
	switch c.state {
	case StateIdle:
		c.n = 0
		if b == FrameMarker {
			c.frame[0] = b
			c.n = 1
			c.state = StateAwaitBody
		}

	case StateAwaitBody:
		if c.n >= MaxFrameLen {
			// Oversized frame, drop it
			c.state = StateIdle
			return
		}
		c.frame[c.n] = b
		c.n++
		if c.n >= 3 && c.frame[c.n-3] == cr && c.frame[c.n-2] == lf && c.frame[c.n-1] == cr {
			c.state = StateAwaitTerminator
		}

	case StateAwaitTerminator:
		if b != lf {
			c.state = StateIdle
			return
		}
		c.frame[c.n] = b
		c.n++
		c.classify()

	case StateCaptureHex:
		v, ok := hexNibble(b)
		if !ok {
			c.state = StateIdle
			return
		}
		c.nibbles = append(c.nibbles, v)
		if len(c.nibbles) >= 2*int(c.pending.Recv.Length) {
			payload := make([]byte, c.pending.Recv.Length)
			for i := range payload {
				payload[i] = c.nibbles[2*i]<<4 | c.nibbles[2*i+1]
			}
			c.pending.Recv.Payload = payload
			c.push(c.pending)
			c.state = StateIdle
		}

	default:
		c.state = StateIdle
	}
}

func (c *Classifier) classify() {
	ev, ok := c.match(string(c.frame[:c.n]))
	if !ok {
		c.state = StateIdle
		return
	}

	if ev.Code == CodeReceivedData {
		switch {
		case ev.Recv.Length == 0:
			ev.Recv.Payload = []byte{}
			c.push(ev)
			c.state = StateIdle
		case int(ev.Recv.Length) > MaxPayloadLen:
			c.state = StateIdle
		default:
			c.pending = ev
			c.nibbles = c.nibbles[:0]
			c.state = StateCaptureHex
		}
		return
	}

	c.push(ev)
	c.state = StateIdle
}

// match classifies a complete frame, terminator included
func (c *Classifier) match(s string) (Event, bool) {
	var ev Event

	switch {
	case strings.Contains(s, prefixFirmware):
		ev.Code = CodeFirmwareVersion
		ev.VersionOK = true
		return ev, true

	case strings.HasPrefix(s, prefixOKWithParams):
		ev.Code = CodeOKWithParams
		return ev, matchParams(&ev, s)

	case strings.HasPrefix(s, prefixOK):
		ev.Code = CodeOK
		return ev, true

	case strings.HasPrefix(s, prefixError):
		ev.Code = CodeError
		v, ok := atoi(value(s))
		if !ok {
			return ev, false
		}
		ev.ErrorCode = v
		return ev, true

	case strings.HasPrefix(s, prefixAck):
		ev.Code = CodeAck
		ev.Ack = true
		return ev, true

	case strings.HasPrefix(s, prefixNoAck):
		ev.Code = CodeNoAck
		ev.Ack = false
		return ev, true

	case strings.HasPrefix(s, prefixEvent):
		ev.Code = CodeConnEvent
		typ, num, ok := pair(value(s))
		if !ok || typ < 0 || typ > 0xFF || num < 0 || num > 0xFF {
			return ev, false
		}
		ev.Conn = ConnEvent{
			Type:   uint8(typ),
			Number: uint8(num),
			Status: connStatus(typ, num),
		}
		return ev, true

	case strings.HasPrefix(s, prefixRecv):
		ev.Code = CodeReceivedData
		port, length, ok := pair(value(s))
		if !ok || port < 0 || port > 0xFF || length < 0 || length > 0xFF {
			return ev, false
		}
		ev.Recv.Port = uint8(port)
		ev.Recv.Length = uint8(length)
		return ev, true
	}

	ev.Code = CodeUnknown
	text := s[:len(s)-terminatorLen]
	slot := &c.unknown[c.unknownNext]
	n := copy(slot[:], text)
	if n < len(slot) {
		slot[n] = 0
	}
	ev.unknown = unknownText{slot: slot, n: len(text)}
	c.unknownNext = (c.unknownNext + 1) % UnknownSlots
	return ev, true
}

// matchParams sub-classifies an ok-with-params frame by its shape
func matchParams(ev *Event, s string) bool {
	v := value(s)

	switch {
	case len(s) > len(prefixOKWithParams) && s[len(prefixOKWithParams)] == '-':
		rssi, snr, ok := pair(v[1:])
		if !ok || rssi < 0 || rssi > 0xFF || snr < 0 || snr > 0xFF {
			return false
		}
		ev.Param = ParamRF
		ev.RSSI = uint8(rssi)
		ev.SNR = uint8(snr)
		return true

	case len(s) == bandFrameLen:
		band, ok := atoi(v)
		if !ok || band < 0 || band > 0xFF {
			return false
		}
		ev.Param = ParamBand
		ev.Band = uint8(band)
		return true

	case len(s) == baudFrameLenMin || len(s) == baudFrameLenMax:
		first, _, _ := strings.Cut(v, ",")
		baud, ok := atoi(first)
		if !ok || baud < minBaudRate || baud > maxBaudRate {
			return false
		}
		ev.Param = ParamBaudRate
		ev.BaudRate = baud
		return true

	case len(s) == euiFrameLen:
		if v == "" {
			return false
		}
		ev.Param = ParamDevEUI
		ev.DevEUI = v
		return true
	}

	return false
}

func connStatus(typ, num int) netif.ConnStatus {
	switch {
	case typ == 1 && num == 1:
		return netif.StatusAttached
	case typ == 2 && num == 1:
		return netif.StatusConnected
	}
	return netif.StatusUnattached
}

// value returns the text between the first '=' and the first '\r'
func value(s string) string {
	_, v, ok := strings.Cut(s, "=")
	if !ok {
		return ""
	}
	v, _, _ = strings.Cut(v, "\r")
	return v
}

// pair parses "<a>,<b>"
func pair(s string) (int, int, bool) {
	first, second, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, false
	}
	a, ok := atoi(first)
	if !ok {
		return 0, 0, false
	}
	b, ok := atoi(second)
	if !ok {
		return 0, 0, false
	}
	return a, b, true
}

// atoi parses an optionally signed run of leading digits. Trailing text is
// ignored, like the module's own firmware does.
func atoi(s string) (int, bool) {
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	v, digits := 0, 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		v = v*10 + int(s[digits]-'0')
		digits++
		if v > 1<<20 {
			return 0, false
		}
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

func hexNibble(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	}
	return 0, false
}

func (c *Classifier) push(ev Event) {
	if c.count == QueueCapacity {
		c.dropped++
		return
	}
	c.queue[(c.head+c.count)%QueueCapacity] = ev
	c.count++
}

// Available returns the number of queued events
func (c *Classifier) Available() int {
	return c.count
}

// Pop removes and returns the oldest queued event
func (c *Classifier) Pop() (Event, bool) {
	if c.count == 0 {
		return Event{}, false
	}
	ev := c.queue[c.head]
	c.queue[c.head] = Event{}
	c.head = (c.head + 1) % QueueCapacity
	c.count--
	return ev, true
}

// Peek returns the i-th queued event without removing it
func (c *Classifier) Peek(i int) (Event, bool) {
	if i < 0 || i >= c.count {
		return Event{}, false
	}
	return c.queue[(c.head+i)%QueueCapacity], true
}

// Dropped returns the number of events lost to a full queue
func (c *Classifier) Dropped() int {
	return c.dropped
}

// Flush abandons any partial frame and returns to idle. Queued events stay.
func (c *Classifier) Flush() {
	c.state = StateIdle
	c.n = 0
	c.nibbles = c.nibbles[:0]
}

// Reset abandons any partial frame and discards all queued events
func (c *Classifier) Reset() {
	c.Flush()
	for c.count > 0 {
		c.Pop()
	}
	c.head = 0
}
