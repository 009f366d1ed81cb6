// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// RxFIFOSize bounds the bytes kept between two drains
const RxFIFOSize = 512

const serialReadTimeout = 50 * time.Millisecond

// SerialUART is a UART backed by an OS serial port. A reader goroutine moves
// incoming bytes into a bounded FIFO that ReadAvailable drains.
type SerialUART struct {
	name string
	port serial.Port

	mu       sync.Mutex
	fifo     []byte
	overruns int
	baud     int

	done chan struct{}
	wg   sync.WaitGroup
}

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenSerial opens portName at baud, 8N1.
func OpenSerial(portName string, baud int) (*SerialUART, error) {
	port, err := serial.Open(portName, serialMode(baud))
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", portName)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "set read timeout")
	}

	u := &SerialUART{
		name: portName,
		port: port,
		fifo: make([]byte, 0, RxFIFOSize),
		baud: baud,
		done: make(chan struct{}),
	}
	u.wg.Add(1)
	go u.readLoop()
	return u, nil
}

func (u *SerialUART) readLoop() {
	defer u.wg.Done()
	buf := make([]byte, 128)
	for {
		select {
		case <-u.done:
			return
		default:
		}

		n, err := u.port.Read(buf)
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			log.WithError(err).WithField("port", u.name).Error("hal: serial read error")
			time.Sleep(serialReadTimeout)
			continue
		}
		if n == 0 {
			continue
		}

		u.mu.Lock()
		free := RxFIFOSize - len(u.fifo)
		if n > free {
			u.overruns += n - free
			n = free
		}
		u.fifo = append(u.fifo, buf[:n]...)
		u.mu.Unlock()
	}
}

func (u *SerialUART) Write(p []byte) (int, error) {
	return u.port.Write(p)
}

func (u *SerialUART) ReadAvailable(p []byte) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := copy(p, u.fifo)
	u.fifo = append(u.fifo[:0], u.fifo[n:]...)
	return n
}

func (u *SerialUART) Flush() {
	u.mu.Lock()
	u.fifo = u.fifo[:0]
	u.mu.Unlock()
	if err := u.port.ResetInputBuffer(); err != nil {
		log.WithError(err).WithField("port", u.name).Warning("hal: reset input buffer error")
	}
}

// SetBaudRate reconfigures the local port. The peer is not told.
func (u *SerialUART) SetBaudRate(baud int) error {
	if err := u.port.SetMode(serialMode(baud)); err != nil {
		return errors.Wrapf(err, "set baud rate %d", baud)
	}
	u.mu.Lock()
	u.baud = baud
	u.mu.Unlock()
	return nil
}

func (u *SerialUART) BaudRate() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.baud
}

// Overruns returns the number of bytes dropped because the FIFO was full
func (u *SerialUART) Overruns() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.overruns
}

// Read blocks until at least one byte arrives. It lets the UART stand in
// for an io.Reader when no polling loop drives it.
func (u *SerialUART) Read(p []byte) (int, error) {
	for {
		if n := u.ReadAvailable(p); n > 0 {
			return n, nil
		}
		select {
		case <-u.done:
			return 0, errors.New("serial port closed")
		case <-time.After(time.Millisecond):
		}
	}
}

func (u *SerialUART) Close() error {
	close(u.done)
	err := u.port.Close()
	u.wg.Wait()
	return err
}
