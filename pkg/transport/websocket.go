// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/netif"
)

// WebSocketConfig configures the WebSocket uplink
type WebSocketConfig struct {
	// URL overrides the address the orchestrator connects to
	URL  string `mapstructure:"url"`
	Path string `mapstructure:"path"`

	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	SkipSSLVerify bool          `mapstructure:"skip_ssl_verify"`
	TLS           bool          `mapstructure:"tls"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

// WebSocket sends gateway packets as binary WebSocket messages
type WebSocket struct {
	cfg   WebSocketConfig
	inbox *inbox

	mu     sync.Mutex
	conn   *websocket.Conn
	status netif.ConnStatus
}

// NewWebSocket creates an unconnected WebSocket controller
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &WebSocket{
		cfg:    cfg,
		inbox:  newInbox(netif.ControllerWebSocket),
		status: netif.StatusInitial,
	}
}

func (w *WebSocket) On()      {}
func (w *WebSocket) Off()     { _ = w.Disconnect(netif.ConnIDDefault) }
func (w *WebSocket) RunTask() {}
func (w *WebSocket) Listen()  {}

// Join always succeeds, the host network is managed by the OS
func (w *WebSocket) Join() error        { return nil }
func (w *WebSocket) CheckAttach() error { return nil }

func (w *WebSocket) ConnStatus(netif.ConnID) (netif.ConnStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, nil
}

func (w *WebSocket) url(ip string, port uint16) (string, error) {
	raw := w.cfg.URL
	if raw == "" {
		scheme := "ws"
		if w.cfg.TLS {
			scheme = "wss"
		}
		raw = fmt.Sprintf("%s://%s:%d%s", scheme, ip, port, w.cfg.Path)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(netif.ErrParams, "invalid url %q: %s", raw, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", errors.Wrapf(netif.ErrParams, "unsupported url scheme %q (use ws:// or wss://)", u.Scheme)
	}
	return raw, nil
}

// Connect dials the server. Only TCP is supported.
func (w *WebSocket) Connect(_ netif.ConnID, ip string, port uint16, typ netif.ConnType) error {
	if typ != netif.ConnTCP {
		return errors.Wrapf(netif.ErrParams, "websocket over %s", typ)
	}
	target, err := w.url(ip, port)
	if err != nil {
		return err
	}

	_ = w.Disconnect(netif.ConnIDDefault)

	dialer := websocket.Dialer{
		HandshakeTimeout: w.cfg.DialTimeout,
	}
	if w.cfg.SkipSSLVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	headers := http.Header{}
	if w.cfg.Username != "" && w.cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(w.cfg.Username + ":" + w.cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	w.setStatus(netif.StatusConnecting)
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, target, headers)
	if err != nil {
		w.setStatus(netif.StatusClosed)
		if resp != nil {
			return errors.Wrapf(netif.ErrComms, "websocket %s: http %d: %s", target, resp.StatusCode, err)
		}
		return errors.Wrapf(netif.ErrComms, "websocket %s: %s", target, err)
	}

	w.mu.Lock()
	w.conn = conn
	w.status = netif.StatusConnected
	w.mu.Unlock()
	w.inbox.reset()

	go w.readLoop(conn)

	log.WithField("url", target).Info("transport: websocket connected")
	return nil
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if w.conn == conn {
				w.conn = nil
				w.status = netif.StatusClosed
				log.WithError(err).Warning("transport: websocket closed")
			}
			w.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.inbox.put(data)
	}
}

func (w *WebSocket) setStatus(s netif.ConnStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// Disconnect closes the connection
func (w *WebSocket) Disconnect(netif.ConnID) error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	if conn != nil {
		w.status = netif.StatusClosed
	}
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return errors.Wrap(conn.Close(), "websocket close")
}

// Send writes data as one binary message
func (w *WebSocket) Send(_ netif.ConnID, data []byte) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		sent(netif.ControllerWebSocket, false).Inc()
		return errors.Wrap(netif.ErrComms, "websocket not connected")
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		sent(netif.ControllerWebSocket, false).Inc()
		return errors.Wrapf(netif.ErrComms, "websocket write: %s", err)
	}
	sent(netif.ControllerWebSocket, true).Inc()
	return nil
}

// Receive waits up to timeout for inbound data
func (w *WebSocket) Receive(_ netif.ConnID, buf []byte, timeout time.Duration) (int, error) {
	return w.inbox.receive(buf, timeout)
}

// Pending reports whether inbound data is waiting
func (w *WebSocket) Pending() bool {
	return w.inbox.available()
}

func (w *WebSocket) ID() netif.ControllerID { return netif.ControllerWebSocket }

func (w *WebSocket) SetParams(string, string) error {
	return notLoRa(netif.ControllerWebSocket)
}

var _ netif.Controller = (*WebSocket)(nil)
