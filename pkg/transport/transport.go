// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport implements the IP uplink controllers: a WebSocket
// client and an MQTT client. Both carry gateway packets as binary messages
// and satisfy netif.Controller, so the network orchestrator can fail over
// between them and the LoRaWAN radio.
package transport

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/netif"
)

const (
	DefaultDialTimeout = 10 * time.Second
	InboxSize          = 16
)

// inbox buffers inbound messages between the network goroutine of a client
// and Receive
type inbox struct {
	ch      chan []byte
	pending []byte
	name    netif.ControllerID
}

func newInbox(name netif.ControllerID) *inbox {
	return &inbox{ch: make(chan []byte, InboxSize), name: name}
}

// put never blocks, a full inbox drops the message
func (in *inbox) put(msg []byte) {
	select {
	case in.ch <- msg:
	default:
		inboxDropped(in.name).Inc()
		log.WithFields(log.Fields{
			"controller": in.name,
			"bytes":      len(msg),
		}).Warning("transport: inbox full, message dropped")
	}
}

// receive copies the next message into buf. A message larger than buf is
// returned over several calls.
func (in *inbox) receive(buf []byte, timeout time.Duration) (int, error) {
	if len(in.pending) == 0 {
		select {
		case msg := <-in.ch:
			in.pending = msg
		case <-time.After(timeout):
			return 0, errors.Wrapf(netif.ErrTimeout, "%s: nothing received in %s", in.name, timeout)
		}
	}
	n := copy(buf, in.pending)
	in.pending = in.pending[n:]
	return n, nil
}

func (in *inbox) available() bool {
	return len(in.pending) > 0 || len(in.ch) > 0
}

func (in *inbox) reset() {
	in.pending = nil
	for {
		select {
		case <-in.ch:
		default:
			return
		}
	}
}

func notLoRa(id netif.ControllerID) error {
	return errors.Wrapf(netif.ErrParams, "%s does not take LoRaWAN credentials", id)
}
