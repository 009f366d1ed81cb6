// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package murata

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const okFrame = "+OK\r\n\r\n"

// fakeModem is a scripted module behind a UART. Responses are only readable
// when the local port runs at the module's speed, otherwise the bytes come
// out as noise without a frame marker.
type fakeModem struct {
	localBaud   int
	moduleBaud  int
	pendingBaud int
	staleErrors int

	// replies maps a command (without AT+) to its queued responses. The
	// last queued response repeats.
	replies  map[string][]string
	fallback string

	rx       []byte
	line     []byte
	hexLeft  int
	hexBuf   []byte
	txCmd    string
	lines    []string
	payloads []string
	flushes  int
}

func newFakeModem() *fakeModem {
	return &fakeModem{
		localBaud:  DefaultBaudRate,
		moduleBaud: DefaultBaudRate,
		replies:    map[string][]string{},
		fallback:   okFrame,
	}
}

func (m *fakeModem) on(cmd string, replies ...string) *fakeModem {
	m.replies[cmd] = replies
	return m
}

func (m *fakeModem) inject(s string) {
	m.rx = append(m.rx, s...)
}

func (m *fakeModem) emit(s string) {
	if m.localBaud != m.moduleBaud {
		m.rx = append(m.rx, bytes.Repeat([]byte{0xF0}, len(s))...)
		return
	}
	m.rx = append(m.rx, s...)
}

func (m *fakeModem) reply(cmd string) {
	q := m.replies[cmd]
	switch {
	case len(q) == 0:
		m.emit(m.fallback)
	case len(q) == 1:
		m.emit(q[0])
	default:
		m.emit(q[0])
		m.replies[cmd] = q[1:]
	}
}

func (m *fakeModem) handle(line string) {
	cmd := strings.TrimPrefix(line, "AT+")

	if strings.HasPrefix(cmd, "UTX ") || strings.HasPrefix(cmd, "CTX ") {
		n, _ := strconv.Atoi(cmd[4:])
		m.txCmd = cmd[:3]
		m.hexLeft = 2 * n
		return
	}

	switch {
	case strings.HasPrefix(cmd, "UART="):
		m.pendingBaud, _ = strconv.Atoi(cmd[5:])
	case cmd == "UART?" && m.replies[cmd] == nil:
		if m.staleErrors > 0 && m.localBaud == m.moduleBaud {
			m.staleErrors--
			m.emit("+ERR=-1\r\n\r\n")
			return
		}
		m.emit(fmt.Sprintf("+OK=%d,8,1,0,0\r\n\r\n", m.moduleBaud))
		return
	case cmd == "REBOOT" && m.replies[cmd] == nil:
		m.emit(okFrame)
		if m.pendingBaud != 0 {
			m.moduleBaud, m.pendingBaud = m.pendingBaud, 0
		}
		m.emit("+EVENT=0,0\r\n\r\n")
		return
	}
	m.reply(cmd)
}

func (m *fakeModem) Write(p []byte) (int, error) {
	for _, b := range p {
		if m.hexLeft > 0 {
			m.hexBuf = append(m.hexBuf, b)
			if m.hexLeft--; m.hexLeft == 0 {
				m.payloads = append(m.payloads, string(m.hexBuf))
				m.hexBuf = nil
				m.reply(m.txCmd)
			}
			continue
		}
		if b != '\r' {
			m.line = append(m.line, b)
			continue
		}
		line := string(m.line)
		m.line = m.line[:0]
		m.lines = append(m.lines, line)
		m.handle(line)
	}
	return len(p), nil
}

func (m *fakeModem) ReadAvailable(p []byte) int {
	n := copy(p, m.rx)
	m.rx = m.rx[n:]
	return n
}

func (m *fakeModem) Flush() {
	m.rx = nil
	m.flushes++
}

func (m *fakeModem) SetBaudRate(baud int) error {
	m.localBaud = baud
	return nil
}

func (m *fakeModem) BaudRate() int {
	return m.localBaud
}

func (m *fakeModem) sent(prefix string) int {
	n := 0
	for _, l := range m.lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

// fakeClock advances only when slept on
type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.slept += d
}
