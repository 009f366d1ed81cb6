// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package network

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Thermoquad/fieldgate/pkg/netif"
	"github.com/Thermoquad/fieldgate/pkg/packet"
)

// fakeController records every call and answers from its fields
type fakeController struct {
	id     netif.ControllerID
	status netif.ConnStatus

	joinErr   error
	attachErr error
	sendErr   error
	paramsErr error
	recvErr   error

	inbound []byte

	calls    []string
	connects []string
	sent     [][]byte
	params   [][2]string
}

func (f *fakeController) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeController) On()      { f.record("on") }
func (f *fakeController) Off()     { f.record("off") }
func (f *fakeController) RunTask() { f.record("run") }
func (f *fakeController) Listen()  { f.record("listen") }

func (f *fakeController) Join() error {
	f.record("join")
	return f.joinErr
}

func (f *fakeController) CheckAttach() error {
	f.record("attach")
	return f.attachErr
}

func (f *fakeController) ConnStatus(netif.ConnID) (netif.ConnStatus, error) {
	f.record("status")
	return f.status, nil
}

func (f *fakeController) Connect(_ netif.ConnID, ip string, port uint16, typ netif.ConnType) error {
	f.record("connect")
	f.connects = append(f.connects, fmt.Sprintf("%s:%d/%s", ip, port, typ))
	return nil
}

func (f *fakeController) Disconnect(netif.ConnID) error {
	f.record("disconnect")
	return nil
}

func (f *fakeController) Send(_ netif.ConnID, data []byte) error {
	f.record("send")
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeController) Receive(_ netif.ConnID, buf []byte, _ time.Duration) (int, error) {
	f.record("receive")
	if f.recvErr != nil {
		return 0, f.recvErr
	}
	n := copy(buf, f.inbound)
	f.inbound = f.inbound[n:]
	return n, nil
}

func (f *fakeController) ID() netif.ControllerID { return f.id }

func (f *fakeController) SetParams(a, b string) error {
	f.record("params")
	f.params = append(f.params, [2]string{a, b})
	return f.paramsErr
}

func (f *fakeController) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

// stepClock advances by step on every Now so deadline loops terminate
type stepClock struct {
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Unix(1700000000, 0), step: 100 * time.Millisecond}
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *stepClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// fakeRouter answers request-packet with the first queued packet that fits
type fakeRouter struct {
	net    *Network
	queue  []*packet.Packet
	routed []*packet.Packet
	rooms  []uint16
	acks   []*packet.Packet
}

func (r *fakeRouter) Route(p *packet.Packet) {
	r.routed = append(r.routed, p)
	if p.Cmd != packet.CmdRequestPacket {
		return
	}
	room := binary.LittleEndian.Uint16(p.Payload)
	r.rooms = append(r.rooms, room)
	for i, q := range r.queue {
		if packet.EncodedSize(q) <= int(room) {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			r.net.Deliver(q)
			return
		}
	}
	r.net.Deliver(packet.NewLocal(packet.CmdStopRequest, nil))
}

func (r *fakeRouter) EchoAck(p *packet.Packet) {
	r.acks = append(r.acks, p)
}

type fakeStore struct {
	saved []*packet.Packet
	err   error
}

func (s *fakeStore) SaveConfig(p *packet.Packet) error {
	s.saved = append(s.saved, p.Clone())
	return s.err
}

type harness struct {
	net    *Network
	clock  *stepClock
	router *fakeRouter
	store  *fakeStore
}

func newHarness(controllers ...*fakeController) *harness {
	h := &harness{
		clock:  newStepClock(),
		router: &fakeRouter{},
		store:  &fakeStore{},
	}
	h.net = New(h.clock, h.router, h.store)
	h.router.net = h.net
	for _, c := range controllers {
		if err := h.net.Add(c); err != nil {
			panic(err)
		}
	}
	return h
}

func sensorPacket(src uint32, data ...byte) *packet.Packet {
	payload := packet.AppendSection(nil, packet.ModelBattery, data)
	return packet.New(src, packet.AddressBroadcast, packet.CmdSensorData, 1000, payload)
}
