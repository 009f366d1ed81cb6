// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fieldgate/pkg/netif"
	"github.com/Thermoquad/fieldgate/pkg/packet"
)

// ============================================================
// Registration
// ============================================================

func TestAdd(t *testing.T) {
	assert := assert.New(t)

	a := &fakeController{id: netif.ControllerWebSocket}
	b := &fakeController{id: netif.ControllerMQTT}
	h := newHarness(a, b)

	assert.Equal(netif.Controller(a), h.net.Active())
	assert.Len(h.net.Controllers(), 2)
	assert.True(h.net.SendOffline())
}

func TestAdd_Limit(t *testing.T) {
	h := newHarness(
		&fakeController{id: netif.ControllerWebSocket},
		&fakeController{id: netif.ControllerMQTT},
		&fakeController{id: netif.ControllerPseudo},
	)

	err := h.net.Add(&fakeController{id: netif.ControllerSIM8xx})
	require.ErrorIs(t, err, ErrTooManyControllers)
	assert.Len(t, h.net.Controllers(), MaxControllers)
}

func TestAdd_LoRaDisablesOfflineBatching(t *testing.T) {
	h := newHarness(&fakeController{id: netif.ControllerWebSocket})
	require.True(t, h.net.SendOffline())

	require.NoError(t, h.net.Add(&fakeController{id: netif.ControllerMurata93}))
	assert.False(t, h.net.SendOffline())
}

func TestNoController(t *testing.T) {
	h := newHarness()

	assert.ErrorIs(t, h.net.Connect("10.0.0.1", 8080, netif.ConnTCP), netif.ErrComms)
	assert.ErrorIs(t, h.net.Disconnect(), netif.ErrComms)
	assert.ErrorIs(t, h.net.SendBuffer([]byte("payload")), netif.ErrComms)
	assert.ErrorIs(t, h.net.Receive(), netif.ErrComms)
	assert.ErrorIs(t, h.net.Send(), netif.ErrComms)

	h.net.Step()
	h.net.RunTask()
	assert.Equal(t, StateIdle, h.net.State())
}

// ============================================================
// State machine
// ============================================================

func TestStep_ReachesConnected(t *testing.T) {
	c := &fakeController{id: netif.ControllerWebSocket, status: netif.StatusConnected}
	h := newHarness(c)
	require.NoError(t, h.net.Connect("10.0.0.1", 8080, netif.ConnTCP))

	want := []State{StateAttaching, StateAttached, StateConnecting, StateConnected, StateConnected}
	for i, s := range want {
		h.net.Step()
		assert.Equal(t, s, h.net.State(), "step %d", i+1)
	}
	assert.Equal(t, []string{"10.0.0.1:8080/tcp", "10.0.0.1:8080/tcp"}, c.connects)
}

func TestStep_Failures(t *testing.T) {
	tests := []struct {
		name  string
		ctrl  fakeController
		steps int
		want  State
	}{
		{"join rejected", fakeController{joinErr: netif.ErrCommand}, 2, StateIdle},
		{"not attached", fakeController{attachErr: netif.ErrComms}, 3, StateIdle},
		{"still connecting", fakeController{status: netif.StatusConnecting}, 4, StateConnecting},
		{"connection closed", fakeController{status: netif.StatusClosed}, 4, StateAttached},
		{"unattached", fakeController{status: netif.StatusUnattached}, 4, StateIdle},
		{"initial", fakeController{status: netif.StatusInitial}, 4, StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.ctrl
			c.id = netif.ControllerWebSocket
			h := newHarness(&c)
			for i := 0; i < tt.steps; i++ {
				h.net.Step()
			}
			assert.Equal(t, tt.want, h.net.State())
		})
	}
}

func TestConnect_KeepsServerUntilPortOrTypeChanges(t *testing.T) {
	c := &fakeController{id: netif.ControllerWebSocket}
	h := newHarness(c)

	require.NoError(t, h.net.Connect("a.example", 1883, netif.ConnTCP))
	require.NoError(t, h.net.Connect("b.example", 1883, netif.ConnTCP))
	require.NoError(t, h.net.Connect("b.example", 1884, netif.ConnTCP))
	require.NoError(t, h.net.Connect("c.example", 1884, netif.ConnUDP))

	assert.Equal(t, []string{
		"a.example:1883/tcp",
		"a.example:1883/tcp",
		"b.example:1884/tcp",
		"c.example:1884/udp",
	}, c.connects)
}

func TestFanOut(t *testing.T) {
	a := &fakeController{id: netif.ControllerWebSocket}
	b := &fakeController{id: netif.ControllerMQTT}
	h := newHarness(a, b)

	h.net.On()
	h.net.RunTask()
	h.net.Off()
	require.NoError(t, h.net.Disconnect())

	assert.Equal(t, []string{"on", "listen", "run", "off", "disconnect"}, a.calls)
	assert.Equal(t, []string{"on", "off"}, b.calls)
}

// ============================================================
// Sending
// ============================================================

func TestSendBuffer_Connected(t *testing.T) {
	c := &fakeController{id: netif.ControllerWebSocket, status: netif.StatusConnected}
	h := newHarness(c)

	require.NoError(t, h.net.SendBuffer([]byte("payload")))
	assert.Equal(t, [][]byte{[]byte("payload")}, c.sent)
	assert.Equal(t, 0, c.count("join"))
}

func TestSendBuffer_NeverConnects(t *testing.T) {
	c := &fakeController{id: netif.ControllerWebSocket, status: netif.StatusUnattached, joinErr: netif.ErrTimeout}
	h := newHarness(c)

	err := h.net.SendBuffer([]byte("payload"))
	require.ErrorIs(t, err, netif.ErrComms)
	assert.Empty(t, c.sent)
	assert.Greater(t, c.count("join"), 1, "kept trying until the deadline")
}

func TestSend_FailsOver(t *testing.T) {
	assert := assert.New(t)

	first := &fakeController{id: netif.ControllerWebSocket, status: netif.StatusUnattached, joinErr: netif.ErrComms}
	second := &fakeController{id: netif.ControllerMQTT, status: netif.StatusConnected}
	h := newHarness(first, second)

	p := sensorPacket(7, 0x0C)
	h.net.Deliver(p)
	require.NoError(t, h.net.Send())

	assert.Equal(1, first.count("listen"))
	assert.Positive(first.count("join"))
	assert.Empty(first.sent)

	require.Len(t, second.sent, 1)
	assert.Equal(packet.MustEncode(p), second.sent[0])
	assert.Equal(netif.Controller(second), h.net.Active())
	assert.Empty(h.net.Offline())
	assert.Nil(h.net.Current())
	assert.Equal(OfflineBufferSize, h.net.Room())
}

func TestSend_FailsOverOnSendError(t *testing.T) {
	first := &fakeController{id: netif.ControllerWebSocket, status: netif.StatusConnected, sendErr: netif.ErrTimeout}
	second := &fakeController{id: netif.ControllerMQTT, status: netif.StatusConnected}
	h := newHarness(first, second)

	h.net.Deliver(sensorPacket(7, 0x0C))
	require.NoError(t, h.net.Send())
	assert.Equal(t, 1, first.count("send"))
	assert.Len(t, second.sent, 1)
}

func TestSend_EveryControllerFails(t *testing.T) {
	first := &fakeController{id: netif.ControllerWebSocket, status: netif.StatusUnattached, joinErr: netif.ErrComms}
	second := &fakeController{id: netif.ControllerMQTT, status: netif.StatusConnected, sendErr: netif.ErrComms}
	h := newHarness(first, second)

	h.net.Deliver(sensorPacket(7, 0x0C))
	err := h.net.Send()
	require.ErrorIs(t, err, netif.ErrComms)
	assert.Empty(t, h.net.Offline(), "buffer dropped")
	assert.Equal(t, OfflineBufferSize, h.net.Room())
}

// ============================================================
// Offline buffer
// ============================================================

func TestBuildBuffer_BatchesQueuedPackets(t *testing.T) {
	assert := assert.New(t)

	h := newHarness(&fakeController{id: netif.ControllerWebSocket})
	p1, p2, p3 := sensorPacket(2, 1), sensorPacket(3, 2, 2), sensorPacket(4, 3, 3, 3)
	h.router.queue = []*packet.Packet{p2, p3}

	h.net.Deliver(p1)
	h.net.BuildBuffer()

	var want []byte
	want = packet.AppendEncoded(want, p1)
	want = packet.AppendEncoded(want, p2)
	want = packet.AppendEncoded(want, p3)
	assert.Equal(want, h.net.Offline())

	s1, s2, s3 := packet.EncodedSize(p1), packet.EncodedSize(p2), packet.EncodedSize(p3)
	assert.Equal([]uint16{
		uint16(OfflineBufferSize - s1),
		uint16(OfflineBufferSize - s1 - s2),
		uint16(OfflineBufferSize - s1 - s2 - s3),
	}, h.router.rooms)
	assert.Equal(uint8(packet.CmdStopRequest), h.net.Current().Cmd)

	for _, p := range h.router.routed {
		assert.Equal(uint32(packet.AddressLocalhost), p.Src)
		assert.Equal(uint32(packet.AddressLocalhost), p.Dst)
	}
}

func TestBuildBuffer_StopsWhenNothingFits(t *testing.T) {
	h := newHarness(&fakeController{id: netif.ControllerWebSocket})

	big := make([]byte, 198)
	for i := 0; i < 6; i++ {
		h.router.queue = append(h.router.queue, sensorPacket(uint32(10+i), big...))
	}
	h.net.Deliver(sensorPacket(2, 1))
	h.net.BuildBuffer()

	require.NotEmpty(t, h.router.queue)
	assert.LessOrEqual(t, len(h.net.Offline()), OfflineBufferSize)
	last := h.router.rooms[len(h.router.rooms)-1]
	assert.Less(t, int(last), packet.EncodedSize(h.router.queue[0]))
}

func TestBuildBuffer_OnlySensorDataIsBatched(t *testing.T) {
	h := newHarness(&fakeController{id: netif.ControllerWebSocket})
	h.router.queue = []*packet.Packet{sensorPacket(3, 2)}

	ack := packet.New(packet.AddressLocalhost, 9, packet.CmdAck, 0, nil)
	h.net.Deliver(ack)
	h.net.BuildBuffer()

	assert.Equal(t, packet.MustEncode(ack), h.net.Offline())
	assert.Empty(t, h.router.routed)
}

func TestBuildBuffer_LoRaSendsOnePacket(t *testing.T) {
	c := &fakeController{id: netif.ControllerMurata93, status: netif.StatusConnected}
	h := newHarness(c)
	h.router.queue = []*packet.Packet{sensorPacket(3, 2)}

	p := sensorPacket(2, 1)
	h.net.Deliver(p)
	require.NoError(t, h.net.Send())

	assert.Empty(t, h.router.routed)
	assert.Equal(t, [][]byte{packet.MustEncode(p)}, c.sent)
}

func TestBufferBuilder_Override(t *testing.T) {
	c := &fakeController{id: netif.ControllerWebSocket, status: netif.StatusConnected}
	h := newHarness(c)

	h.net.BufferBuilder = func(n *Network) {
		n.Deliver(packet.NewLocal(packet.CmdAck, nil))
		n.SavePacket()
	}
	require.NoError(t, h.net.Send())
	assert.Equal(t, [][]byte{packet.MustEncode(packet.NewLocal(packet.CmdAck, nil))}, c.sent)
}

// ============================================================
// Receiving
// ============================================================

func TestReceive(t *testing.T) {
	ack := packet.MustEncode(packet.New(100, packet.AddressLocalhost, packet.CmdAck, 5, nil))
	data := packet.MustEncode(sensorPacket(100, 1))

	tests := []struct {
		name    string
		inbound []byte
		routed  int
		wantErr bool
	}{
		{"ack", ack, 1, false},
		{"sensor data", data, 1, true},
		{"data then ack", append(append([]byte{}, data...), ack...), 2, false},
		{"ack then data", append(append([]byte{}, ack...), data...), 2, true},
		{"garbage", []byte{0x01, 0x02, 0x03}, 0, true},
		{"nothing", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeController{id: netif.ControllerWebSocket, inbound: tt.inbound}
			h := newHarness(c)

			err := h.net.Receive()
			if tt.wantErr {
				assert.ErrorIs(t, err, netif.ErrComms)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, h.router.routed, tt.routed)
		})
	}
}

func TestReceive_CorruptedAck(t *testing.T) {
	frame := packet.MustEncode(packet.New(100, packet.AddressLocalhost, packet.CmdAck, 5, nil))
	frame[len(frame)-2] ^= 0x01

	c := &fakeController{id: netif.ControllerWebSocket, inbound: frame}
	h := newHarness(c)

	require.ErrorIs(t, h.net.Receive(), netif.ErrComms)
	assert.Empty(t, h.router.routed)
}

func TestReceive_ControllerError(t *testing.T) {
	c := &fakeController{id: netif.ControllerWebSocket, recvErr: netif.ErrTimeout}
	h := newHarness(c)

	require.ErrorIs(t, h.net.Receive(), netif.ErrTimeout)
}
