// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package murata drives a Murata Type ABZ LoRaWAN module over its AT command
// interface.
//
// Every operation is a single command/response exchange. Waiting is a busy
// poll that pumps the UART into the response classifier, kicks the watchdog
// and sleeps one poll interval per iteration, so a caller never blocks
// longer than the timeout it asked for.
package murata

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/atcmd"
	"github.com/Thermoquad/fieldgate/pkg/hal"
	"github.com/Thermoquad/fieldgate/pkg/netif"
	"github.com/Thermoquad/fieldgate/pkg/packet"
)

// Timeouts
const (
	DefaultTimeout = time.Second
	NetworkTimeout = 10 * time.Second
	PollInterval   = time.Millisecond
)

// DefaultBaudRate is the module's factory UART speed
const DefaultBaudRate = 19200

// Settings are the radio parameters applied by On
type Settings struct {
	Band           uint8 `mapstructure:"band"`
	DataFormat     uint8 `mapstructure:"data_format"` // 1: hex
	DutyCycle      uint8 `mapstructure:"duty_cycle"`
	RFPowerMode    uint8 `mapstructure:"rf_power_mode"`
	RFPowerIndex   uint8 `mapstructure:"rf_power_index"`
	ActivationMode uint8 `mapstructure:"activation_mode"` // 1: OTAA
	DataRate       uint8 `mapstructure:"data_rate"`
}

// DefaultSettings returns the settings the gateway ships with
func DefaultSettings() Settings {
	return Settings{
		Band:           5,
		DataFormat:     1,
		DutyCycle:      0,
		RFPowerMode:    0,
		RFPowerIndex:   1,
		ActivationMode: 1,
		DataRate:       3,
	}
}

// Config holds the controller's collaborators and settings. Zero fields get
// defaults.
type Config struct {
	BaudRate int
	Settings *Settings
	Clock    hal.Clock
	Watchdog hal.Watchdog
	// Models whitelists the sensor sections Send lets through
	Models []uint8
	// OnUnexpected sees every event that arrived while waiting for another
	OnUnexpected func(atcmd.Event)
}

func (cfg *Config) setDefaults() {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Settings == nil {
		s := DefaultSettings()
		cfg.Settings = &s
	}
	if cfg.Clock == nil {
		cfg.Clock = hal.SystemClock{}
	}
	if cfg.Watchdog == nil {
		cfg.Watchdog = hal.NopWatchdog
	}
	if cfg.Models == nil {
		cfg.Models = packet.LoRaModels
	}
}

// Controller is the command/response engine for one module. It owns its
// classifier and is not safe for concurrent use.
type Controller struct {
	uart     hal.UART
	cls      *atcmd.Classifier
	strategy Strategy
	cfg      Config
	filter   *packet.Filter

	appEUI string
	appKey string

	rx [64]byte
}

// NewController creates a controller confirming data with strategy s
func NewController(uart hal.UART, s Strategy, cfg Config) *Controller {
	cfg.setDefaults()
	return &Controller{
		uart:     uart,
		cls:      atcmd.NewClassifier(),
		strategy: s,
		cfg:      cfg,
		filter:   packet.NewFilter(cfg.Models...),
	}
}

// NewUnconfirmed creates a controller that sends unconfirmed uplinks and
// completes receives with the module's downlink data
func NewUnconfirmed(uart hal.UART, cfg Config) *Controller {
	return NewController(uart, Unconfirmed, cfg)
}

// NewAutoAck creates a controller that sends confirmed uplinks and turns
// the module's ack into a loopback ack packet
func NewAutoAck(uart hal.UART, cfg Config) *Controller {
	return NewController(uart, AutoAck, cfg)
}

// Strategy returns the confirmation strategy in use
func (c *Controller) Strategy() Strategy {
	return c.strategy
}

// RunTask pumps everything the UART has received into the classifier
func (c *Controller) RunTask() {
	for {
		n := c.uart.ReadAvailable(c.rx[:])
		if n == 0 {
			return
		}
		c.cls.Write(c.rx[:n])
	}
}

// tick is one poll iteration
func (c *Controller) tick() {
	c.RunTask()
	c.cfg.Watchdog.Reset()
	c.cfg.Clock.Sleep(PollInterval)
}

func ticks(timeout time.Duration) int {
	return int(timeout / PollInterval)
}

// WaitNext returns the next event, or ErrTimeout when none arrives in time
func (c *Controller) WaitNext(timeout time.Duration) (atcmd.Event, error) {
	for n := ticks(timeout); n >= 0; n-- {
		ev, ok := c.cls.Pop()
		c.tick()
		if ok {
			return ev, nil
		}
	}
	return atcmd.Event{}, netif.ErrTimeout
}

// WaitSpecific waits for an event with the given code. Other events go to
// the unexpected-event hook. With ignoreOthers unset the first of them ends
// the wait with ErrComms.
func (c *Controller) WaitSpecific(code atcmd.Code, timeout time.Duration, ignoreOthers bool) (atcmd.Event, error) {
	for n := ticks(timeout); n >= 0; n-- {
		ev, ok := c.cls.Pop()
		c.tick()
		if !ok {
			continue
		}
		if ev.Code == code {
			return ev, nil
		}
		c.handleUnexpected(ev)
		if !ignoreOthers {
			return ev, errors.Wrapf(netif.ErrComms, "waiting for %s, got %s", code, ev.Code)
		}
	}
	return atcmd.Event{}, errors.Wrapf(netif.ErrTimeout, "waiting for %s", code)
}

// drain hands every queued event to the unexpected-event hook and discards
// partial input, so the next response read belongs to the next command
func (c *Controller) drain() {
	c.RunTask()
	for {
		ev, ok := c.cls.Pop()
		if !ok {
			break
		}
		c.handleUnexpected(ev)
	}
	c.uart.Flush()
	c.cls.Flush()
}

func (c *Controller) handleUnexpected(ev atcmd.Event) {
	unexpectedEvent(ev.Code).Inc()
	log.WithField("event", ev.String()).Debug("murata: unexpected event")
	if c.cfg.OnUnexpected != nil {
		c.cfg.OnUnexpected(ev)
	}
}

func (c *Controller) write(s string) error {
	if _, err := c.uart.Write([]byte(s)); err != nil {
		return errors.Wrapf(netif.ErrComms, "uart write: %v", err)
	}
	return nil
}

// expect maps a response onto the controller's result errors
func (c *Controller) expect(ev atcmd.Event, want atcmd.Code) error {
	switch ev.Code {
	case want:
		return nil
	case atcmd.CodeError:
		return &netif.CommandError{Code: ev.ErrorCode}
	case atcmd.CodeUnknown:
		c.handleUnexpected(ev)
		return errors.Wrapf(netif.ErrComms, "unknown response %q", ev.UnknownText())
	}
	return errors.Wrapf(netif.ErrComms, "expected %s, got %s", want, ev.Code)
}

// command drains pending events, writes one AT line and maps the next
// response. name is the command without the AT+ prefix and the terminator.
func (c *Controller) command(want atcmd.Code, name string, args ...interface{}) (atcmd.Event, error) {
	if len(args) > 0 {
		name = fmt.Sprintf(name, args...)
	}

	c.drain()
	log.WithField("cmd", name).Debug("murata: command")
	if err := c.write("AT+" + name + "\r"); err != nil {
		return atcmd.Event{}, err
	}

	ev, err := c.WaitNext(DefaultTimeout)
	if err == nil {
		err = c.expect(ev, want)
	}
	commandResult(verb(name), err).Inc()
	return ev, err
}

// Transact writes a raw line and returns the first response. The console
// and the one-shot CLI use it.
func (c *Controller) Transact(line string, timeout time.Duration) (atcmd.Event, error) {
	c.drain()
	if err := c.write(line + "\r"); err != nil {
		return atcmd.Event{}, err
	}
	return c.WaitNext(timeout)
}

// Poll pumps the UART and returns every queued event
func (c *Controller) Poll() []atcmd.Event {
	c.RunTask()
	var out []atcmd.Event
	for {
		ev, ok := c.cls.Pop()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

// Dropped returns the number of events lost to a full queue
func (c *Controller) Dropped() int {
	return c.cls.Dropped()
}
