// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package network drives the gateway uplink. It walks the registered
// transport controllers through join, attach and connect, fails over between
// them when sending, buffers outgoing packets while offline and applies the
// configuration packets that come back.
package network

import (
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/hal"
	"github.com/Thermoquad/fieldgate/pkg/netif"
	"github.com/Thermoquad/fieldgate/pkg/packet"
)

const (
	MaxControllers    = 3
	OfflineBufferSize = 1024
	ReceiveBufferSize = 128

	DefaultConnectTimeout = 15 * time.Second
	DefaultReceiveTimeout = 200 * time.Millisecond
)

// ErrTooManyControllers is returned by Add once MaxControllers are registered
var ErrTooManyControllers = errors.New("too many controllers")

// errNoController is returned when no controller has been added
var errNoController = errors.Wrap(netif.ErrComms, "no controller")

// State is the connection state of the active controller
type State int

const (
	StateIdle State = iota
	StateAttaching
	StateAttached
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Router takes the packets the network decodes or asks for
type Router interface {
	Route(p *packet.Packet)
	EchoAck(p *packet.Packet)
}

// Store persists configuration packets
type Store interface {
	SaveConfig(p *packet.Packet) error
}

type server struct {
	ip   string
	port uint16
	typ  netif.ConnType
	set  bool
}

// Network is the uplink orchestrator. It is not safe for concurrent use:
// the router calls Deliver and Parse from the goroutine that calls Send.
type Network struct {
	clock  hal.Clock
	router Router
	store  Store

	controllers []netif.Controller
	active      netif.Controller
	state       State
	server      server

	networkParams NetworkParams
	loraParams    LoRaParams

	sendOffline bool
	offline     []byte
	room        int

	current   *packet.Packet
	delivered bool
	decoder   *packet.Decoder

	handlers map[uint8]func(*packet.Packet) error

	// BufferBuilder fills the offline buffer before Send tries the
	// controllers. It defaults to (*Network).BuildBuffer.
	BufferBuilder func(n *Network)

	ConnectTimeout time.Duration
	ReceiveTimeout time.Duration
}

// New creates an orchestrator with no controllers. The router and store
// may be nil when nothing routes or persists.
func New(clock hal.Clock, router Router, store Store) *Network {
	if clock == nil {
		clock = hal.SystemClock{}
	}
	n := &Network{
		clock:          clock,
		router:         router,
		store:          store,
		sendOffline:    true,
		offline:        make([]byte, 0, OfflineBufferSize),
		room:           OfflineBufferSize,
		decoder:        packet.NewDecoder(),
		ConnectTimeout: DefaultConnectTimeout,
		ReceiveTimeout: DefaultReceiveTimeout,
	}
	n.BufferBuilder = (*Network).BuildBuffer
	n.handlers = map[uint8]func(*packet.Packet) error{
		packet.CmdNetworkParamsConf: n.setNetworkParams,
		packet.CmdLoRaParamsConf:    n.setLoRaParams,
	}
	return n
}

// Add registers a controller. The first one becomes active. A LoRa-class
// controller turns offline batching off for good since its frames are too
// small to carry more than one packet.
func (n *Network) Add(c netif.Controller) error {
	if len(n.controllers) >= MaxControllers {
		return errors.Wrapf(ErrTooManyControllers, "cannot add %s", c.ID())
	}
	if c.ID().IsLoRa() {
		n.sendOffline = false
	}
	n.controllers = append(n.controllers, c)
	n.active = n.controllers[0]

	log.WithFields(log.Fields{
		"controller": c.ID(),
		"index":      len(n.controllers) - 1,
	}).Debug("network: controller added")
	return nil
}

// Controllers returns the registered controllers in failover order
func (n *Network) Controllers() []netif.Controller {
	return n.controllers
}

// Active returns the controller in use, nil before Add
func (n *Network) Active() netif.Controller {
	return n.active
}

// State returns the connection state
func (n *Network) State() State {
	return n.state
}

// SendOffline reports whether offline batching is on
func (n *Network) SendOffline() bool {
	return n.sendOffline
}

// Setup sets the server and the LoRaWAN credentials. Nothing is sent to the
// controllers until the next connect or LoRa configuration packet.
func (n *Network) Setup(ip string, port uint16, eui lorawan.EUI64, key lorawan.AES128Key) {
	if len(ip) > MaxAddressLen {
		ip = ip[:MaxAddressLen]
	}
	n.networkParams = NetworkParams{Address: ip, Port: port}
	n.loraParams = LoRaParams{AppEUI: eui, AppKey: key}
	n.setServer(ip, port, n.server.typ)
}

// NetworkParams returns the server configuration
func (n *Network) NetworkParams() NetworkParams {
	return n.networkParams
}

// LoRaParams returns the LoRaWAN credentials
func (n *Network) LoRaParams() LoRaParams {
	return n.loraParams
}

// On powers every controller up
func (n *Network) On() {
	for _, c := range n.controllers {
		c.On()
	}
}

// Off powers every controller down
func (n *Network) Off() {
	for _, c := range n.controllers {
		c.Off()
	}
}

// RunTask gives the active controller time to process its input
func (n *Network) RunTask() {
	if n.active == nil {
		return
	}
	n.active.Listen()
	n.active.RunTask()
}

// Step advances the connection state machine by one transition. Without
// a controller it does nothing.
func (n *Network) Step() {
	if n.active == nil {
		return
	}
	prev := n.state

	switch n.state {
	case StateIdle:
		n.state = StateAttaching
	case StateAttaching:
		n.join()
	case StateAttached:
		n.checkAttach()
	case StateConnecting:
		n.checkConnect()
	case StateConnected:
	}

	if n.state != prev {
		stateTransition(n.state).Inc()
		log.WithFields(log.Fields{
			"controller": n.activeID(),
			"from":       prev,
			"to":         n.state,
		}).Debug("network: state changed")
	}
}

func (n *Network) join() {
	if err := n.active.Join(); err != nil {
		log.WithError(err).WithField("controller", n.activeID()).Debug("network: join failed")
		n.state = StateIdle
		return
	}
	n.state = StateAttached
}

func (n *Network) checkAttach() {
	if err := n.active.CheckAttach(); err != nil {
		n.state = StateIdle
		return
	}
	if err := n.active.Connect(netif.ConnIDDefault, n.server.ip, n.server.port, n.server.typ); err != nil {
		log.WithError(err).WithField("controller", n.activeID()).Warning("network: connect failed")
	}
	n.state = StateConnecting
}

func (n *Network) checkConnect() {
	status, _ := n.active.ConnStatus(netif.ConnIDDefault)
	switch status {
	case netif.StatusConnected:
		n.state = StateConnected
	case netif.StatusConnecting:
		n.state = StateConnecting
	case netif.StatusClosed:
		n.state = StateAttached
	default:
		n.state = StateIdle
	}
}

// Connect remembers the server, replacing it when the port or type
// changed, and opens the default connection on the active controller
func (n *Network) Connect(ip string, port uint16, typ netif.ConnType) error {
	if !n.server.set || n.server.port != port || n.server.typ != typ {
		n.setServer(ip, port, typ)
	}
	if n.active == nil {
		return errNoController
	}
	return n.active.Connect(netif.ConnIDDefault, n.server.ip, n.server.port, n.server.typ)
}

func (n *Network) setServer(ip string, port uint16, typ netif.ConnType) {
	n.server = server{ip: ip, port: port, typ: typ, set: true}
}

// Disconnect closes the default connection on the active controller
func (n *Network) Disconnect() error {
	if n.active == nil {
		return errNoController
	}
	return n.active.Disconnect(netif.ConnIDDefault)
}

// waitConnected steps until connected or the connect timeout passes
func (n *Network) waitConnected() bool {
	if n.active == nil {
		return false
	}
	n.checkConnect()
	deadline := n.clock.Now().Add(n.ConnectTimeout)
	for n.state != StateConnected && n.clock.Now().Before(deadline) {
		n.Step()
	}
	return n.state == StateConnected
}

func (n *Network) activeID() netif.ControllerID {
	if n.active == nil {
		return netif.ControllerPseudo
	}
	return n.active.ID()
}
