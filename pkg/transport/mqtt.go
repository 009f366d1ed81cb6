// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/netif"
)

// MQTTConfig configures the MQTT uplink
type MQTTConfig struct {
	// Broker overrides the address the orchestrator connects to,
	// e.g. tcp://broker:1883
	Broker        string        `mapstructure:"broker"`
	ClientID      string        `mapstructure:"client_id"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	UplinkTopic   string        `mapstructure:"uplink_topic"`
	DownlinkTopic string        `mapstructure:"downlink_topic"`
	QoS           uint8         `mapstructure:"qos"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// MQTT publishes gateway packets to the uplink topic and receives the
// downlink topic
type MQTT struct {
	cfg   MQTTConfig
	inbox *inbox

	mu     sync.Mutex
	client mqtt.Client
	lost   bool

	// newClient is replaced in tests
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewMQTT creates an unconnected MQTT controller
func NewMQTT(cfg MQTTConfig) *MQTT {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultDialTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "fieldgate"
	}
	if cfg.UplinkTopic == "" {
		cfg.UplinkTopic = fmt.Sprintf("fieldgate/%s/up", cfg.ClientID)
	}
	if cfg.DownlinkTopic == "" {
		cfg.DownlinkTopic = fmt.Sprintf("fieldgate/%s/down", cfg.ClientID)
	}
	return &MQTT{
		cfg:       cfg,
		inbox:     newInbox(netif.ControllerMQTT),
		newClient: mqtt.NewClient,
	}
}

func (m *MQTT) On()      {}
func (m *MQTT) Off()     { _ = m.Disconnect(netif.ConnIDDefault) }
func (m *MQTT) RunTask() {}
func (m *MQTT) Listen()  {}

func (m *MQTT) Join() error        { return nil }
func (m *MQTT) CheckAttach() error { return nil }

// ConnStatus maps the client state. A client that lost its connection and
// is reconnecting on its own reports connecting.
func (m *MQTT) ConnStatus(netif.ConnID) (netif.ConnStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.client == nil:
		if m.lost {
			return netif.StatusClosed, nil
		}
		return netif.StatusInitial, nil
	case m.client.IsConnectionOpen():
		return netif.StatusConnected, nil
	case m.client.IsConnected():
		return netif.StatusConnecting, nil
	}
	return netif.StatusClosed, nil
}

func (m *MQTT) broker(ip string, port uint16, typ netif.ConnType) (string, error) {
	if m.cfg.Broker != "" {
		return m.cfg.Broker, nil
	}
	if typ != netif.ConnTCP {
		return "", errors.Wrapf(netif.ErrParams, "mqtt over %s", typ)
	}
	return fmt.Sprintf("tcp://%s:%d", ip, port), nil
}

// Connect connects to the broker and subscribes to the downlink topic
func (m *MQTT) Connect(_ netif.ConnID, ip string, port uint16, typ netif.ConnType) error {
	broker, err := m.broker(ip, port, typ)
	if err != nil {
		return err
	}
	_ = m.Disconnect(netif.ConnIDDefault)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(m.cfg.ClientID)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetConnectTimeout(m.cfg.Timeout)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).WithField("broker", broker).Warning("transport: mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.WithFields(log.Fields{
			"broker": broker,
			"topic":  m.cfg.DownlinkTopic,
		}).Info("transport: mqtt connected, subscribing")
		if token := c.Subscribe(m.cfg.DownlinkTopic, m.cfg.QoS, m.onMessage); token.WaitTimeout(m.cfg.Timeout) && token.Error() != nil {
			log.WithError(token.Error()).Error("transport: mqtt subscribe failed")
		}
	})

	client := m.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(m.cfg.Timeout) {
		client.Disconnect(0)
		m.markLost()
		return errors.Wrapf(netif.ErrTimeout, "mqtt connect %s", broker)
	}
	if err := token.Error(); err != nil {
		m.markLost()
		return errors.Wrapf(netif.ErrComms, "mqtt connect %s: %s", broker, err)
	}

	m.mu.Lock()
	m.client = client
	m.lost = false
	m.mu.Unlock()
	m.inbox.reset()
	return nil
}

func (m *MQTT) markLost() {
	m.mu.Lock()
	m.lost = true
	m.mu.Unlock()
}

func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.inbox.put(append([]byte(nil), msg.Payload()...))
}

// Disconnect closes the client
func (m *MQTT) Disconnect(netif.ConnID) error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	if client != nil {
		m.lost = true
	}
	m.mu.Unlock()

	if client != nil {
		client.Disconnect(uint(m.cfg.Timeout / time.Millisecond))
	}
	return nil
}

// Send publishes data to the uplink topic
func (m *MQTT) Send(_ netif.ConnID, data []byte) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		sent(netif.ControllerMQTT, false).Inc()
		return errors.Wrap(netif.ErrComms, "mqtt not connected")
	}

	token := client.Publish(m.cfg.UplinkTopic, m.cfg.QoS, false, data)
	if !token.WaitTimeout(m.cfg.Timeout) {
		sent(netif.ControllerMQTT, false).Inc()
		return errors.Wrapf(netif.ErrTimeout, "mqtt publish %s", m.cfg.UplinkTopic)
	}
	if err := token.Error(); err != nil {
		sent(netif.ControllerMQTT, false).Inc()
		return errors.Wrapf(netif.ErrComms, "mqtt publish %s: %s", m.cfg.UplinkTopic, err)
	}
	sent(netif.ControllerMQTT, true).Inc()
	return nil
}

// Receive waits up to timeout for a downlink message
func (m *MQTT) Receive(_ netif.ConnID, buf []byte, timeout time.Duration) (int, error) {
	return m.inbox.receive(buf, timeout)
}

func (m *MQTT) ID() netif.ControllerID { return netif.ControllerMQTT }

func (m *MQTT) SetParams(string, string) error {
	return notLoRa(netif.ControllerMQTT)
}

var _ netif.Controller = (*MQTT)(nil)
