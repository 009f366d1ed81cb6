// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package murata

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/atcmd"
	"github.com/Thermoquad/fieldgate/pkg/netif"
)

// Send filters data down to its LoRa sections and transmits it as hex
func (c *Controller) Send(_ netif.ConnID, data []byte) error {
	filtered, err := c.filter.Apply(data)
	if err != nil {
		return errors.Wrapf(netif.ErrComms, "filter: %v", err)
	}

	c.drain()
	cmd := c.strategy.CommandSend(len(filtered))
	log.WithFields(log.Fields{
		"bytes":    len(filtered),
		"strategy": c.strategy.Name,
	}).Debug("murata: send")
	if err := c.write(cmd + strings.ToUpper(hex.EncodeToString(filtered))); err != nil {
		return err
	}

	ev, err := c.WaitNext(DefaultTimeout)
	if err == nil {
		err = c.expect(ev, atcmd.CodeOK)
	}
	commandResult("TX", err).Inc()
	return err
}

// Receive waits for the strategy's completion event and copies its data
// into buf
func (c *Controller) Receive(_ netif.ConnID, buf []byte, timeout time.Duration) (int, error) {
	ev, err := c.strategy.WaitReceive(c, timeout)
	if err != nil {
		return 0, err
	}
	if int(ev.Recv.Length) > len(buf) {
		c.uart.Flush()
		c.cls.Flush()
		return 0, errors.Wrapf(netif.ErrParams, "%d bytes received, room for %d", ev.Recv.Length, len(buf))
	}
	return c.strategy.CopyReceive(ev, buf)
}

// IsDataPending reports whether the oldest queued event is downlink data
// for port id
func (c *Controller) IsDataPending(id netif.ConnID) bool {
	c.RunTask()
	ev, ok := c.cls.Peek(0)
	return ok && ev.Code == atcmd.CodeReceivedData && ev.Recv.Port == uint8(id)
}

// On resets the link and applies the configured settings, each up to three
// times
func (c *Controller) On() {
	c.cls.Reset()
	c.Listen()
	if err := c.uart.SetBaudRate(c.cfg.BaudRate); err != nil {
		log.WithError(err).Warning("murata: set local baud rate error")
	}
	c.uart.Flush()

	s := c.cfg.Settings
	steps := []struct {
		name string
		fn   func() error
	}{
		{"band", func() error { return c.SetBand(s.Band) }},
		{"data format", func() error { return c.SetDataFormat(s.DataFormat) }},
		{"duty cycle", func() error { return c.SetDutyCycle(s.DutyCycle) }},
		{"rf power", func() error { return c.SetRFPower(s.RFPowerMode, s.RFPowerIndex) }},
		{"activation mode", func() error { return c.SetActivationMode(s.ActivationMode) }},
		{"data rate", func() error { return c.SetDataRate(s.DataRate) }},
	}
	for _, step := range steps {
		var err error
		for i := 0; i < 3; i++ {
			if err = step.fn(); err == nil {
				break
			}
		}
		if err != nil {
			log.WithError(err).WithField("setting", step.name).Warning("murata: default not applied")
		}
	}
}

// Off does nothing, the module has no power control
func (c *Controller) Off() {}

// Listen does nothing, the UART reader runs for the life of the port
func (c *Controller) Listen() {}

// CheckAttach runs a link check
func (c *Controller) CheckAttach() error {
	_, err := c.StatusConnection()
	return err
}

// ConnStatus runs a link check and returns the reported status
func (c *Controller) ConnStatus(netif.ConnID) (netif.ConnStatus, error) {
	return c.StatusConnection()
}

// Connect succeeds at once, LoRaWAN has no connections
func (c *Controller) Connect(netif.ConnID, string, uint16, netif.ConnType) error {
	return nil
}

// Disconnect succeeds at once
func (c *Controller) Disconnect(netif.ConnID) error {
	return nil
}

// ID identifies the controller family
func (c *Controller) ID() netif.ControllerID {
	return netif.ControllerMurata93
}

// SetParams applies the application EUI and key
func (c *Controller) SetParams(eui, key string) error {
	errEUI := c.SetAppEUI(eui)
	errKey := c.SetAppKey(key)
	if errEUI != nil || errKey != nil {
		return errors.Wrapf(netif.ErrComms, "appeui: %v, appkey: %v", errEUI, errKey)
	}
	return nil
}

var _ netif.Controller = (*Controller)(nil)
