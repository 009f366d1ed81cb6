// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package network

import (
	"bytes"
	"strings"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"

	"github.com/Thermoquad/fieldgate/pkg/packet"
)

// Configuration payload sizes, model byte included
const (
	MaxAddressLen     = 32
	NetworkParamsSize = 1 + 2 + MaxAddressLen
	LoRaParamsSize    = 1 + 8 + 16
)

// ErrModel is returned when a configuration payload carries another model
var ErrModel = errors.New("wrong configuration model")

// NetworkParams is the server the IP controllers connect to.
//
//	[0x40] [port u16 LE] [address, 32 bytes, zero padded]
type NetworkParams struct {
	Address string
	Port    uint16
}

// MarshalPayload encodes the parameters as a configuration payload
func (p NetworkParams) MarshalPayload() []byte {
	var w packet.Writer
	return w.Uint8(packet.ModelNetworkParams).
		Uint16(p.Port).
		Fixed([]byte(p.Address), MaxAddressLen).
		Payload()
}

// UnmarshalPayload decodes a configuration payload
func (p *NetworkParams) UnmarshalPayload(b []byte) error {
	r := packet.NewReader(b)
	if model := r.Uint8(); r.Err == nil && model != packet.ModelNetworkParams {
		return errors.Wrapf(ErrModel, "got 0x%02X", model)
	}
	port := r.Uint16()
	var addr [MaxAddressLen]byte
	r.Bytes(addr[:])
	if r.Err != nil {
		return r.Err
	}

	if i := bytes.IndexByte(addr[:], 0); i >= 0 {
		p.Address = string(addr[:i])
	} else {
		p.Address = string(addr[:])
	}
	p.Port = port
	return nil
}

// LoRaParams are the LoRaWAN OTAA credentials.
//
//	[0x41] [AppEUI, 8 bytes] [AppKey, 16 bytes]
type LoRaParams struct {
	AppEUI lorawan.EUI64
	AppKey lorawan.AES128Key
}

// MarshalPayload encodes the credentials as a configuration payload
func (p LoRaParams) MarshalPayload() []byte {
	var w packet.Writer
	return w.Uint8(packet.ModelLoRaParams).
		Bytes(p.AppEUI[:]).
		Bytes(p.AppKey[:]).
		Payload()
}

// UnmarshalPayload decodes a configuration payload
func (p *LoRaParams) UnmarshalPayload(b []byte) error {
	r := packet.NewReader(b)
	if model := r.Uint8(); r.Err == nil && model != packet.ModelLoRaParams {
		return errors.Wrapf(ErrModel, "got 0x%02X", model)
	}
	var eui lorawan.EUI64
	var key lorawan.AES128Key
	r.Bytes(eui[:])
	r.Bytes(key[:])
	if r.Err != nil {
		return r.Err
	}
	p.AppEUI = eui
	p.AppKey = key
	return nil
}

// AppEUIHex returns the AppEUI the way the radios take it, uppercase hex
func (p LoRaParams) AppEUIHex() string {
	return strings.ToUpper(p.AppEUI.String())
}

// AppKeyHex returns the AppKey as uppercase hex
func (p LoRaParams) AppKeyHex() string {
	return strings.ToUpper(p.AppKey.String())
}
