// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package murata

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/netif"
)

// ProbeBaudRates are tried in order, most common first
var ProbeBaudRates = []int{19200, 4800, 9600, 38400}

// A module that was just addressed at the wrong speed answers +ERR=-1 for a
// few commands before it responds normally
const staleRetries = 4

// checkBaudRate sets the local port to baud and asks the module for its own
func (c *Controller) checkBaudRate(baud int) bool {
	if err := c.uart.SetBaudRate(baud); err != nil {
		log.WithError(err).WithField("baud", baud).Warning("murata: set local baud rate error")
		return false
	}

	got, err := c.BaudRate()
	if errors.Is(err, netif.ErrCommand) {
		for i := 0; err != nil && i < staleRetries; i++ {
			got, err = c.BaudRate()
		}
	}
	return err == nil && got == baud
}

// DetectBaudRate finds the speed the module answers at. The local port is
// left at that speed.
func (c *Controller) DetectBaudRate() (int, bool) {
	for _, baud := range ProbeBaudRates {
		if c.checkBaudRate(baud) {
			return baud, true
		}
	}
	return 0, false
}

// ChangeBaudRate moves the module to target. Nothing is sent when it
// already runs at target.
func (c *Controller) ChangeBaudRate(target int) error {
	if detected, ok := c.DetectBaudRate(); ok && detected == target {
		return nil
	}

	log.WithField("baud", target).Info("murata: changing module baud rate")
	if err := c.SetBaudRate(target); err != nil {
		return errors.Wrap(err, "set baud rate")
	}

	// The new speed only applies after a reboot, whose start-up event is
	// already sent at the new speed, so its result is not meaningful here.
	if err := c.Reboot(); err != nil {
		log.WithError(err).Debug("murata: reboot after baud change")
	}

	if !c.checkBaudRate(target) {
		return errors.Wrapf(netif.ErrComms, "module not answering at %d baud", target)
	}
	return nil
}
