// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package packet implements the gateway packet format exchanged between the
// sensors, the gateway and the central unit.
//
// A packet on the wire is a START byte, the byte-stuffed body and an END
// byte. The body is a 14-byte little-endian header, the payload and a
// big-endian CRC-16-CCITT computed over header and payload.
package packet

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Size limits
const (
	HeaderSize     = 14 // len + src + dst + cmd + ts
	CRCSize        = 2
	MaxPayloadSize = 200
	MaxPacketSize  = HeaderSize + MaxPayloadSize + CRCSize
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Addresses
const (
	AddressBroadcast = 0x00000000
	AddressLocalhost = 0x00000001
)

// Commands
const (
	CmdAck               = 0x01
	CmdSensorData        = 0x10
	CmdRequestPacket     = 0x20
	CmdStopRequest       = 0x21
	CmdNetworkParamsConf = 0x30
	CmdLoRaParamsConf    = 0x31
)

// Payload model ids. Sensor sections use the low range, configuration
// structures the 0x40 range.
const (
	ModelMP4000        = 0x01
	ModelPowered       = 0x02
	ModelBattery       = 0x03
	ModelLocation      = 0x04
	ModelNetworkParams = 0x40
	ModelLoRaParams    = 0x41
)

// LoRaModels are the sensor sections small enough to travel over LoRaWAN
var LoRaModels = []uint8{ModelMP4000, ModelPowered, ModelBattery, ModelLocation}

// decoder states
const (
	stateIdle = iota
	stateLength
	stateSrc
	stateDst
	stateCmd
	stateTimestamp
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
