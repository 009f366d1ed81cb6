// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package network

import (
	"encoding/binary"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/netif"
	"github.com/Thermoquad/fieldgate/pkg/packet"
)

// Deliver hands the network the packet to send next. The router calls it
// with queued packets and with stop-request when it has nothing that fits.
func (n *Network) Deliver(p *packet.Packet) {
	n.current = p
	n.delivered = true
}

// Current returns the packet waiting to be sent, nil when there is none
func (n *Network) Current() *packet.Packet {
	return n.current
}

// Offline returns the contents of the offline buffer
func (n *Network) Offline() []byte {
	return n.offline
}

// Room returns the remaining capacity the router is told about
func (n *Network) Room() int {
	return n.room
}

// SendBuffer sends data on the active controller once it is connected
func (n *Network) SendBuffer(data []byte) error {
	if n.active == nil {
		return errNoController
	}
	if !n.waitConnected() {
		return errors.Wrapf(netif.ErrComms, "%s: not connected, state %s", n.activeID(), n.state)
	}
	return n.active.Send(netif.ConnIDDefault, data)
}

// Send builds the offline buffer and tries every controller in order until
// one takes it. If none does the buffer is dropped.
func (n *Network) Send() error {
	n.BufferBuilder(n)
	n.room = OfflineBufferSize

	for _, c := range n.controllers {
		n.active = c
		err := n.sendVia(c)
		sendResult(c.ID(), err).Inc()
		if err == nil {
			return nil
		}
		log.WithError(err).WithField("controller", c.ID()).Warning("network: send failed, trying next controller")
	}

	if len(n.offline) > 0 {
		bufferDropped.Add(float64(len(n.offline)))
		log.WithField("bytes", len(n.offline)).Error("network: every controller failed, offline buffer dropped")
	}
	n.offline = n.offline[:0]
	return errors.Wrap(netif.ErrComms, "no controller could send")
}

func (n *Network) sendVia(c netif.Controller) error {
	c.Listen()
	if !n.waitConnected() {
		return errors.Wrapf(netif.ErrComms, "%s: not connected, state %s", c.ID(), n.state)
	}
	if err := c.Send(netif.ConnIDDefault, n.offline); err != nil {
		return err
	}
	n.current = nil
	n.offline = n.offline[:0]
	return nil
}

// BuildBuffer is the default BufferBuilder. It saves the current packet and,
// for sensor data with offline batching on, keeps asking the router for more
// packets that fit until it answers stop-request.
func (n *Network) BuildBuffer() {
	n.SavePacket()
	if n.current == nil || n.current.Cmd != packet.CmdSensorData {
		return
	}
	for n.sendOffline && n.router != nil {
		room := make([]byte, 2)
		binary.LittleEndian.PutUint16(room, uint16(n.room))

		n.delivered = false
		n.router.Route(packet.NewLocal(packet.CmdRequestPacket, room))
		if !n.delivered || n.current == nil || n.current.Cmd == packet.CmdStopRequest {
			break
		}
		n.SavePacket()
	}
}

// SavePacket appends the current packet to the offline buffer
func (n *Network) SavePacket() {
	if n.current == nil {
		return
	}
	size := packet.EncodedSize(n.current)
	if len(n.offline)+size > OfflineBufferSize {
		bufferDropped.Add(float64(size))
		log.WithFields(log.Fields{
			"size":     size,
			"buffered": len(n.offline),
		}).Warning("network: offline buffer full, packet dropped")
		return
	}
	n.offline = packet.AppendEncoded(n.offline, n.current)
	if n.room >= size {
		n.room -= size
	}
}

// Receive reads one message from the active controller and routes every
// packet in it. It succeeds when the last packet decoded is an ack.
func (n *Network) Receive() error {
	if n.active == nil {
		return errNoController
	}
	buf := make([]byte, ReceiveBufferSize)
	m, err := n.active.Receive(netif.ConnIDDefault, buf, n.ReceiveTimeout)
	if err != nil {
		return err
	}

	result := errors.Wrap(netif.ErrComms, "no packet received")
	for _, b := range buf[:m] {
		p, derr := n.decoder.DecodeByte(b)
		if derr != nil {
			log.WithError(derr).Debug("network: dropped inbound frame")
			result = errors.Wrap(netif.ErrComms, derr.Error())
			continue
		}
		if p == nil {
			continue
		}
		if n.router != nil {
			n.router.Route(p)
		}
		if p.Cmd == packet.CmdAck {
			result = nil
		} else {
			result = errors.Wrapf(netif.ErrComms, "received %s, want ACK", packet.CommandName(p.Cmd))
		}
	}
	return result
}
