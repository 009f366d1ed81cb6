// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package atcmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Thermoquad/fieldgate/pkg/netif"
)

// Param tells which value an ok-with-params event carries
type Param int

const (
	ParamNone Param = iota
	ParamBand
	ParamBaudRate
	ParamRF
	ParamDevEUI
)

// ConnEvent is the payload of a +EVENT=<type>,<number> frame.
//
//	type 0 number 0: module rebooted
//	type 1 number 0/1: join rejected/accepted
//	type 2 number 0/1/2: link lost/connected/no ack
type ConnEvent struct {
	Type   uint8
	Number uint8
	Status netif.ConnStatus
}

// ReceivedData is the payload of a +RECV=<port>,<length> frame
type ReceivedData struct {
	Port    uint8
	Length  uint8
	Payload []byte
}

// unknownText points into the classifier's ring of unknown frame texts
type unknownText struct {
	slot *[MaxFrameLen + 1]byte
	n    int
}

// Event is one classified response. Only the fields matching Code are set.
type Event struct {
	Code  Code
	Param Param

	Band      uint8
	BaudRate  int
	RSSI      uint8 // magnitude, the module reports it negative
	SNR       uint8
	DevEUI    string
	ErrorCode int
	Ack       bool
	VersionOK bool

	Conn ConnEvent
	Recv ReceivedData

	unknown unknownText
}

// UnknownText returns the raw text of an unknown frame without its
// terminator. The text lives in a 3-slot ring shared by all unknown events
// of a classifier: once three newer unknown frames have been classified the
// slot has been reused and this returns the newer text in full.
func (e Event) UnknownText() string {
	if e.Code != CodeUnknown || e.unknown.slot == nil {
		return ""
	}
	text := e.unknown.slot[:]
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	return string(text)
}

// UnknownLen returns the length the unknown frame had when classified
func (e Event) UnknownLen() int {
	return e.unknown.n
}

// String formats the event for logs and the console
func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Code.String())

	switch e.Code {
	case CodeOKWithParams:
		switch e.Param {
		case ParamBand:
			fmt.Fprintf(&b, " band=%d", e.Band)
		case ParamBaudRate:
			fmt.Fprintf(&b, " baud=%d", e.BaudRate)
		case ParamRF:
			fmt.Fprintf(&b, " rssi=-%d snr=%d", e.RSSI, e.SNR)
		case ParamDevEUI:
			fmt.Fprintf(&b, " deveui=%s", e.DevEUI)
		}
	case CodeError:
		fmt.Fprintf(&b, " code=%d (%s)", e.ErrorCode, netif.ModuleErrorName(e.ErrorCode))
	case CodeFirmwareVersion:
		fmt.Fprintf(&b, " version_ok=%t", e.VersionOK)
	case CodeConnEvent:
		fmt.Fprintf(&b, " type=%d number=%d status=%s", e.Conn.Type, e.Conn.Number, e.Conn.Status)
	case CodeReceivedData:
		fmt.Fprintf(&b, " port=%d len=%d data=% X", e.Recv.Port, e.Recv.Length, e.Recv.Payload)
	case CodeUnknown:
		fmt.Fprintf(&b, " %q", e.UnknownText())
	}
	return b.String()
}
