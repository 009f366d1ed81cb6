// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package atcmd classifies the responses of a Murata LoRaWAN module.
//
// The module answers AT commands with text frames that start with '+' and end
// with "\r\n\r\n". Received downlink data follows its +RECV header as a run
// of ASCII hex digits. The Classifier turns that byte stream into typed
// events, one byte at a time.
package atcmd

// Framing
const (
	FrameMarker = '+'
	cr          = '\r'
	lf          = '\n'

	terminatorLen = 4
)

// Size limits
const (
	MaxFrameLen   = 110
	MaxPayloadLen = MaxFrameLen / 2
	QueueCapacity = 10
	UnknownSlots  = 3
)

// Response prefixes
const (
	prefixFirmware     = "+OK=1.1.03"
	prefixOKWithParams = "+OK="
	prefixOK           = "+OK"
	prefixError        = "+ERR"
	prefixAck          = "+ACK"
	prefixNoAck        = "+NOACK"
	prefixEvent        = "+EVENT"
	prefixRecv         = "+RECV"
)

// FirmwareVersion is the module firmware the gateway is qualified against
const FirmwareVersion = "1.1.03"

// Lengths of the ok-with-params frames, terminator included
const (
	bandFrameLen    = 9  // +OK=5\r\n\r\n
	baudFrameLenMin = 20 // +OK=4800,8,1,0,0\r\n\r\n
	baudFrameLenMax = 21 // +OK=19200,8,1,0,0\r\n\r\n
	euiFrameLen     = 24 // +OK=01020304AABBCCDD\r\n\r\n

	minBaudRate = 4800
	maxBaudRate = 38400
)

// State is the classifier's parser state
type State int

const (
	StateIdle State = iota
	StateAwaitBody
	StateAwaitTerminator
	StateCaptureHex
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitBody:
		return "awaiting-prefix-body"
	case StateAwaitTerminator:
		return "awaiting-terminator"
	case StateCaptureHex:
		return "capturing-hex-payload"
	}
	return "invalid"
}

// Code identifies the kind of a classified response
type Code int

const (
	CodeOK Code = iota
	CodeOKWithParams
	CodeError
	CodeAck
	CodeNoAck
	CodeFirmwareVersion
	CodeConnEvent
	CodeReceivedData
	CodeUnknown
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeOKWithParams:
		return "OK_WITH_PARAMS"
	case CodeError:
		return "ERROR"
	case CodeAck:
		return "ACK"
	case CodeNoAck:
		return "NOACK"
	case CodeFirmwareVersion:
		return "FW_VERSION"
	case CodeConnEvent:
		return "EVENT"
	case CodeReceivedData:
		return "RECV"
	case CodeUnknown:
		return "UNKNOWN"
	}
	return "INVALID"
}
