// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package murata

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/Thermoquad/fieldgate/pkg/atcmd"
	"github.com/Thermoquad/fieldgate/pkg/netif"
	"github.com/Thermoquad/fieldgate/pkg/packet"
)

// Strategy is how a controller variant confirms data. It is chosen once,
// at construction.
type Strategy struct {
	Name string
	// CommandSend returns the transmit command line for n payload bytes
	CommandSend func(n int) string
	// WaitReceive waits for the event that completes a receive
	WaitReceive func(c *Controller, timeout time.Duration) (atcmd.Event, error)
	// CopyReceive fills buf from the completing event
	CopyReceive func(ev atcmd.Event, buf []byte) (int, error)
}

// Unconfirmed sends unconfirmed uplinks; the central unit answers with a
// downlink whose bytes are the receive result.
var Unconfirmed = Strategy{
	Name: "unconfirmed",
	CommandSend: func(n int) string {
		return fmt.Sprintf("AT+UTX %d\r", n)
	},
	WaitReceive: func(c *Controller, timeout time.Duration) (atcmd.Event, error) {
		return c.WaitSpecific(atcmd.CodeReceivedData, timeout, true)
	},
	CopyReceive: func(ev atcmd.Event, buf []byte) (int, error) {
		return copy(buf, ev.Recv.Payload), nil
	},
}

// AutoAck sends confirmed uplinks. The network's ack completes a receive,
// which then yields a loopback ack packet instead of module data.
var AutoAck = Strategy{
	Name: "auto-ack",
	CommandSend: func(n int) string {
		return fmt.Sprintf("AT+CTX %d\r", n)
	},
	WaitReceive: func(c *Controller, timeout time.Duration) (atcmd.Event, error) {
		return c.WaitSpecific(atcmd.CodeAck, timeout, true)
	},
	CopyReceive: func(_ atcmd.Event, buf []byte) (int, error) {
		ack := packet.MustEncode(packet.NewLocal(packet.CmdAck, nil))
		if len(buf) < len(ack) {
			return 0, errors.Wrapf(netif.ErrParams, "ack needs %d bytes, have %d", len(ack), len(buf))
		}
		return copy(buf, ack), nil
	},
}
