// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package router moves gateway packets between the sensor bus and the
// uplink. Sensor data waits in a bounded queue until the uplink asks for it
// with a request-packet; everything addressed to a sensor goes to the
// outbox.
package router

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/packet"
)

// DefaultCapacity is the number of queued uplink packets kept by default
const DefaultCapacity = 32

// Handler consumes the packets of one command
type Handler func(p *packet.Packet) error

// Router is safe for concurrent use. Handlers and the uplink are called
// without the lock held.
type Router struct {
	mu       sync.Mutex
	queue    []*packet.Packet
	outbox   []*packet.Packet
	capacity int
	dropped  int

	handlers map[uint8]Handler
	uplink   func(p *packet.Packet)
}

// New creates a router that queues at most capacity uplink packets
func New(capacity int) *Router {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Router{
		capacity: capacity,
		handlers: make(map[uint8]Handler),
	}
}

// Handle registers the consumer of one command, replacing any earlier one
func (r *Router) Handle(cmd uint8, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[cmd] = h
}

// SetUplink sets where answers to request-packet go
func (r *Router) SetUplink(fn func(p *packet.Packet)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uplink = fn
}

// Route dispatches one packet:
//
//	request-packet   the next queued packet that fits, or stop-request, to the uplink
//	registered cmd   its handler
//	sensor-data      the uplink queue
//	ack to localhost consumed
//	anything else    the outbox, unless addressed to localhost
func (r *Router) Route(p *packet.Packet) {
	logger := log.WithFields(log.Fields{
		"command": packet.CommandName(p.Cmd),
		"src":     p.Src,
		"dst":     p.Dst,
	})

	if p.Cmd == packet.CmdRequestPacket {
		r.answerRequest(p)
		routed(p.Cmd, "request").Inc()
		return
	}

	r.mu.Lock()
	h, ok := r.handlers[p.Cmd]
	r.mu.Unlock()
	if ok {
		if err := h(p); err != nil {
			logger.WithError(err).Warning("router: handler failed")
			routed(p.Cmd, "rejected").Inc()
			return
		}
		routed(p.Cmd, "handled").Inc()
		return
	}

	switch {
	case p.Cmd == packet.CmdSensorData:
		r.Enqueue(p)
		routed(p.Cmd, "queued").Inc()
	case p.Dst == packet.AddressLocalhost:
		logger.Debug("router: consumed")
		routed(p.Cmd, "consumed").Inc()
	default:
		r.mu.Lock()
		r.outbox = append(r.outbox, p)
		r.mu.Unlock()
		routed(p.Cmd, "outbox").Inc()
	}
}

func (r *Router) answerRequest(req *packet.Packet) {
	room := 0
	if len(req.Payload) >= 2 {
		room = int(binary.LittleEndian.Uint16(req.Payload))
	}

	r.mu.Lock()
	var next *packet.Packet
	for i, p := range r.queue {
		if packet.EncodedSize(p) <= room {
			next = p
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
	uplink := r.uplink
	r.mu.Unlock()

	if next == nil {
		next = packet.NewLocal(packet.CmdStopRequest, nil)
	}
	if uplink != nil {
		uplink(next)
	}
}

// Enqueue adds a packet for the uplink. When the queue is full the oldest
// packet is dropped. It reports whether nothing was dropped.
func (r *Router) Enqueue(p *packet.Packet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok := true
	if len(r.queue) >= r.capacity {
		old := r.queue[0]
		r.queue = r.queue[1:]
		r.dropped++
		dropped.Inc()
		log.WithFields(log.Fields{
			"src":     old.Src,
			"command": packet.CommandName(old.Cmd),
		}).Warning("router: queue full, oldest packet dropped")
		ok = false
	}
	r.queue = append(r.queue, p)
	queued.Set(float64(len(r.queue)))
	return ok
}

// Next pops the oldest queued packet
func (r *Router) Next() (*packet.Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) == 0 {
		return nil, false
	}
	p := r.queue[0]
	r.queue = r.queue[1:]
	queued.Set(float64(len(r.queue)))
	return p, true
}

// Len returns the number of queued uplink packets
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Dropped returns the number of packets lost to a full queue
func (r *Router) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// EchoAck queues an ack back to the sender of p
func (r *Router) EchoAck(p *packet.Packet) {
	ack := packet.New(packet.AddressLocalhost, p.Src, packet.CmdAck, p.Timestamp, nil)
	r.Enqueue(ack)
}

// Outbox removes and returns the packets waiting for the sensor bus
func (r *Router) Outbox() []*packet.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.outbox
	r.outbox = nil
	return out
}

// Feed decodes a sensor bus byte stream and routes every packet in it
func (r *Router) Feed(d *packet.Decoder, data []byte) error {
	var last error
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			last = errors.Wrap(err, "sensor bus")
			continue
		}
		if p != nil {
			r.Route(p)
		}
	}
	return last
}
