// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"sync"
	"time"
)

// SoftWatchdog calls Expired when Reset has not been called within the
// timeout. Each expiry fires once; the next Reset arms it again.
type SoftWatchdog struct {
	timeout time.Duration
	expired func()

	mu      sync.Mutex
	timer   *time.Timer
	kicks   uint64
	stopped bool
}

// NewSoftWatchdog starts a watchdog. expired runs on its own goroutine.
func NewSoftWatchdog(timeout time.Duration, expired func()) *SoftWatchdog {
	w := &SoftWatchdog{
		timeout: timeout,
		expired: expired,
	}
	w.timer = time.AfterFunc(timeout, w.fire)
	return w
}

func (w *SoftWatchdog) fire() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if !stopped && w.expired != nil {
		w.expired()
	}
}

func (w *SoftWatchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.kicks++
	w.timer.Reset(w.timeout)
}

// Kicks returns how many times the watchdog has been reset
func (w *SoftWatchdog) Kicks() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kicks
}

func (w *SoftWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.timer.Stop()
}
