// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fieldgate/pkg/netif"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient is a broker-less mqtt.Client
type fakeClient struct {
	mqtt.Client

	opts       *mqtt.ClientOptions
	connectErr error
	open       bool
	reconnect  bool

	published  []published
	subscribed map[string]mqtt.MessageHandler
	quiesce    []uint
}

func (c *fakeClient) IsConnected() bool      { return c.open || c.reconnect }
func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Connect() mqtt.Token {
	if c.connectErr != nil {
		return &fakeToken{err: c.connectErr}
	}
	c.open = true
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.open = false
	c.quiesce = append(c.quiesce, quiesce)
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, published{topic, qos, payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	if c.subscribed == nil {
		c.subscribed = make(map[string]mqtt.MessageHandler)
	}
	c.subscribed[topic] = cb
	return &fakeToken{}
}

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

func newFakeMQTT(cfg MQTTConfig, client *fakeClient) *MQTT {
	m := NewMQTT(cfg)
	m.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		client.opts = opts
		return client
	}
	return m
}

func TestMQTT_Defaults(t *testing.T) {
	m := NewMQTT(MQTTConfig{ClientID: "gw-7"})
	assert.Equal(t, "fieldgate/gw-7/up", m.cfg.UplinkTopic)
	assert.Equal(t, "fieldgate/gw-7/down", m.cfg.DownlinkTopic)
	assert.Equal(t, netif.ControllerMQTT, m.ID())
}

func TestMQTT_ConnectPublishReceive(t *testing.T) {
	client := &fakeClient{}
	m := newFakeMQTT(MQTTConfig{ClientID: "gw", QoS: 1, Username: "user", Password: "pw"}, client)

	require.NoError(t, m.Connect(netif.ConnIDDefault, "broker.local", 1883, netif.ConnTCP))
	require.Len(t, client.opts.Servers, 1)
	assert.Equal(t, "tcp://broker.local:1883", client.opts.Servers[0].String())
	assert.Equal(t, "user", client.opts.Username)

	status, _ := m.ConnStatus(netif.ConnIDDefault)
	assert.Equal(t, netif.StatusConnected, status)

	require.NoError(t, m.Send(netif.ConnIDDefault, []byte{0x7E, 0x7F}))
	assert.Equal(t, []published{{"fieldgate/gw/up", 1, []byte{0x7E, 0x7F}}}, client.published)

	cb, ok := client.subscribed["fieldgate/gw/down"]
	require.True(t, ok)
	cb(client, fakeMessage{payload: []byte{1, 2, 3}})

	buf := make([]byte, 8)
	n, err := m.Receive(netif.ConnIDDefault, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])
}

func TestMQTT_ConnStatus(t *testing.T) {
	client := &fakeClient{}
	m := newFakeMQTT(MQTTConfig{Broker: "tcp://fixed:1883"}, client)

	status, _ := m.ConnStatus(netif.ConnIDDefault)
	assert.Equal(t, netif.StatusInitial, status)

	require.NoError(t, m.Connect(netif.ConnIDDefault, "ignored", 1, netif.ConnUDP))
	assert.Equal(t, "tcp://fixed:1883", client.opts.Servers[0].String())

	client.open, client.reconnect = false, true
	status, _ = m.ConnStatus(netif.ConnIDDefault)
	assert.Equal(t, netif.StatusConnecting, status)
	assert.ErrorIs(t, m.Send(netif.ConnIDDefault, []byte{1}), netif.ErrComms)

	require.NoError(t, m.Disconnect(netif.ConnIDDefault))
	status, _ = m.ConnStatus(netif.ConnIDDefault)
	assert.Equal(t, netif.StatusClosed, status)
	assert.Len(t, client.quiesce, 1)
}

func TestMQTT_ConnectFails(t *testing.T) {
	client := &fakeClient{connectErr: errors.New("connection refused")}
	m := newFakeMQTT(MQTTConfig{}, client)

	err := m.Connect(netif.ConnIDDefault, "broker.local", 1883, netif.ConnTCP)
	require.ErrorIs(t, err, netif.ErrComms)
	status, _ := m.ConnStatus(netif.ConnIDDefault)
	assert.Equal(t, netif.StatusClosed, status)

	assert.ErrorIs(t, m.Connect(netif.ConnIDDefault, "broker.local", 1883, netif.ConnUDP), netif.ErrParams)
}

func TestMQTT_ConnectTimesOut(t *testing.T) {
	client := &fakeClient{}
	m := newFakeMQTT(MQTTConfig{}, client)
	m.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		return &slowClient{fakeClient: client}
	}

	err := m.Connect(netif.ConnIDDefault, "broker.local", 1883, netif.ConnTCP)
	require.ErrorIs(t, err, netif.ErrTimeout)
}

type slowClient struct {
	*fakeClient
}

func (c *slowClient) Connect() mqtt.Token { return &fakeToken{timeout: true} }
