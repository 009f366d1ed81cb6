// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package netif defines the contract shared by every transport controller
// the gateway can drive: LoRaWAN radios, cellular and satellite modems, and
// IP uplinks.
package netif

import "time"

// ConnID identifies a logical connection on a controller. LoRaWAN radios
// map it onto the application port.
type ConnID uint8

// ConnIDDefault is the connection used by the orchestrator.
const ConnIDDefault ConnID = 1

// ConnType selects the transport protocol of an IP connection
type ConnType uint8

const (
	ConnTCP ConnType = iota
	ConnUDP
)

func (t ConnType) String() string {
	if t == ConnUDP {
		return "udp"
	}
	return "tcp"
}

// ConnStatus is the link status reported by a controller. Values follow the
// CIPSTATUS numbering used by the cellular modems.
type ConnStatus uint8

const (
	StatusInitial ConnStatus = iota
	StatusAttaching
	StatusAttached
	StatusConnecting
	StatusConnected
	StatusRemoteClosing
	StatusClosing
	StatusClosed
	StatusUnattached
)

var statusNames = map[ConnStatus]string{
	StatusInitial:       "initial",
	StatusAttaching:     "attaching",
	StatusAttached:      "attached",
	StatusConnecting:    "connecting",
	StatusConnected:     "connected",
	StatusRemoteClosing: "remote-closing",
	StatusClosing:       "closing",
	StatusClosed:        "closed",
	StatusUnattached:    "unattached",
}

func (s ConnStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ControllerID is the identity tag a controller reports
type ControllerID uint8

const (
	ControllerPseudo ControllerID = iota
	ControllerSIM8xx
	ControllerOrbcomm
	ControllerMurata93
	ControllerIMxx
	ControllerRHF76
	ControllerWebSocket
	ControllerMQTT
)

var controllerNames = map[ControllerID]string{
	ControllerPseudo:    "pseudo",
	ControllerSIM8xx:    "sim8xx",
	ControllerOrbcomm:   "orbcomm",
	ControllerMurata93:  "murata93",
	ControllerIMxx:      "imxx",
	ControllerRHF76:     "rhf76",
	ControllerWebSocket: "websocket",
	ControllerMQTT:      "mqtt",
}

func (id ControllerID) String() string {
	if name, ok := controllerNames[id]; ok {
		return name
	}
	return "unknown"
}

// IsLoRa reports whether the controller drives a LoRa-class radio.
func (id ControllerID) IsLoRa() bool {
	switch id {
	case ControllerMurata93, ControllerIMxx, ControllerRHF76:
		return true
	}
	return false
}

// Controller is implemented by every transport the orchestrator can use.
//
// All methods are called from a single goroutine. Blocking methods are bounded
// by their own timeouts.
type Controller interface {
	On()
	Off()
	RunTask()
	Listen()

	CheckAttach() error
	Join() error
	ConnStatus(id ConnID) (ConnStatus, error)

	Connect(id ConnID, ip string, port uint16, typ ConnType) error
	Disconnect(id ConnID) error

	Send(id ConnID, data []byte) error
	// Receive copies at most len(buf) bytes of the next inbound message.
	Receive(id ConnID, buf []byte, timeout time.Duration) (int, error)

	ID() ControllerID
	SetParams(a, b string) error
}
