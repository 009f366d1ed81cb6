// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hal abstracts the hardware the gateway core runs against: UARTs,
// the clock and the watchdog.
package hal

import "time"

// UART is a serial link with a receive FIFO that can be drained without
// blocking.
type UART interface {
	Write(p []byte) (int, error)
	// ReadAvailable copies already received bytes into p and never blocks.
	ReadAvailable(p []byte) int
	// Flush discards everything received so far.
	Flush()
	SetBaudRate(baud int) error
	BaudRate() int
}

// Clock provides time and delays to the polling loops.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Watchdog is kicked on every poll iteration.
type Watchdog interface {
	Reset()
}

// WatchdogFunc adapts a function to the Watchdog interface
type WatchdogFunc func()

func (f WatchdogFunc) Reset() { f() }

// NopWatchdog ignores kicks
var NopWatchdog Watchdog = WatchdogFunc(func() {})

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
