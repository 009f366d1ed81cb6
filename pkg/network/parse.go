// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package network

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/fieldgate/pkg/packet"
)

// Configuration packet rejections
var (
	ErrUnhandledCommand = errors.New("unhandled command")
	ErrConfigLength     = errors.New("configuration length mismatch")
	ErrConfigCRC        = errors.New("configuration crc mismatch")
)

// Parse applies a configuration packet. Packets from anywhere but localhost
// are persisted and acknowledged once applied.
func (n *Network) Parse(p *packet.Packet) error {
	handler, ok := n.handlers[p.Cmd]
	if !ok {
		return errors.Wrapf(ErrUnhandledCommand, "%s", packet.CommandName(p.Cmd))
	}
	err := handler(p)
	configResult(p.Cmd, err).Inc()
	return err
}

// checkConfig validates the declared length and the CRC of a configuration
// packet once its model byte matched
func checkConfig(p *packet.Packet, size int) error {
	if int(p.Length) != size || len(p.Payload) != size {
		return errors.Wrapf(ErrConfigLength, "%s: length %d, want %d", packet.CommandName(p.Cmd), p.Length, size)
	}
	if !p.Verify() {
		return errors.Wrapf(ErrConfigCRC, "%s: crc 0x%04X, want 0x%04X", packet.CommandName(p.Cmd), p.CRC, p.ComputeCRC())
	}
	return nil
}

func modelOf(p *packet.Packet) (uint8, bool) {
	if len(p.Payload) == 0 {
		return 0, false
	}
	return p.Payload[0], true
}

func (n *Network) setNetworkParams(p *packet.Packet) error {
	if model, ok := modelOf(p); !ok || model != packet.ModelNetworkParams {
		return errors.Wrapf(ErrModel, "%s", packet.CommandName(p.Cmd))
	}
	if err := checkConfig(p, NetworkParamsSize); err != nil {
		return err
	}

	var params NetworkParams
	if err := params.UnmarshalPayload(p.Payload); err != nil {
		return err
	}
	n.networkParams = params
	n.setServer(params.Address, params.Port, n.server.typ)

	log.WithFields(log.Fields{
		"address": params.Address,
		"port":    params.Port,
	}).Info("network: server configured")

	return n.generateAck(p)
}

func (n *Network) setLoRaParams(p *packet.Packet) error {
	if model, ok := modelOf(p); !ok || model != packet.ModelLoRaParams {
		return errors.Wrapf(ErrModel, "%s", packet.CommandName(p.Cmd))
	}
	if err := checkConfig(p, LoRaParamsSize); err != nil {
		return err
	}

	var params LoRaParams
	if err := params.UnmarshalPayload(p.Payload); err != nil {
		return err
	}
	n.loraParams = params

	eui, key := params.AppEUIHex(), params.AppKeyHex()
	for _, c := range n.controllers {
		if !c.ID().IsLoRa() {
			continue
		}
		logger := log.WithFields(log.Fields{
			"controller": c.ID(),
			"app_eui":    params.AppEUI,
		})
		if err := c.SetParams(eui, key); err != nil {
			logger.WithError(err).Error("network: setting lora credentials failed")
			continue
		}
		logger.Info("network: lora credentials configured")
	}

	return n.generateAck(p)
}

// generateAck persists a remote configuration packet and acknowledges it
func (n *Network) generateAck(p *packet.Packet) error {
	if p.Src == packet.AddressLocalhost {
		return nil
	}
	if n.store != nil {
		if err := n.store.SaveConfig(p); err != nil {
			log.WithError(err).WithField("command", packet.CommandName(p.Cmd)).Error("network: saving configuration failed")
		}
	}
	if n.router != nil {
		n.router.EchoAck(p)
	}
	return nil
}

// SaveNetworkParams persists the server configuration as a loopback packet
func (n *Network) SaveNetworkParams() error {
	return n.saveConfig(packet.NewLocal(packet.CmdNetworkParamsConf, n.networkParams.MarshalPayload()))
}

// SaveLoRaParams persists the LoRaWAN credentials as a loopback packet
func (n *Network) SaveLoRaParams() error {
	return n.saveConfig(packet.NewLocal(packet.CmdLoRaParamsConf, n.loraParams.MarshalPayload()))
}

func (n *Network) saveConfig(p *packet.Packet) error {
	if n.store == nil {
		return nil
	}
	return errors.Wrapf(n.store.SaveConfig(p), "save %s", packet.CommandName(p.Cmd))
}
