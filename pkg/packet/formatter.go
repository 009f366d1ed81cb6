// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package packet

import (
	"fmt"
	"strings"
)

// CommandName returns the human-readable name of a command
func CommandName(cmd uint8) string {
	switch cmd {
	case CmdAck:
		return "ACK"
	case CmdSensorData:
		return "SENSOR_DATA"
	case CmdRequestPacket:
		return "REQUEST_PKT"
	case CmdStopRequest:
		return "STOP_REQUEST"
	case CmdNetworkParamsConf:
		return "NETWORK_PARAMS_CONF"
	case CmdLoRaParamsConf:
		return "LORA_PARAMS_CONF"
	}
	return fmt.Sprintf("UNKNOWN_0x%02X", cmd)
}

// ModelName returns the human-readable name of a payload model
func ModelName(model uint8) string {
	switch model {
	case ModelMP4000:
		return "mp4000"
	case ModelPowered:
		return "powered"
	case ModelBattery:
		return "battery"
	case ModelLocation:
		return "location"
	case ModelNetworkParams:
		return "network_params"
	case ModelLoRaParams:
		return "lora_params"
	}
	return fmt.Sprintf("model_0x%02X", model)
}

// FormatPacket renders a packet and its payload for the sniffer and logs
func FormatPacket(p *Packet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (0x%02X) src=%08X dst=%08X ts=%d len=%d",
		CommandName(p.Cmd), p.Cmd, p.Src, p.Dst, p.Timestamp, p.Length)
	if !p.Verify() {
		b.WriteString(" CRC_MISMATCH")
	}
	b.WriteString("\n")

	switch p.Cmd {
	case CmdSensorData:
		sections, err := ParseSections(p.Payload)
		for _, s := range sections {
			fmt.Fprintf(&b, "  %s: % X\n", ModelName(s.Model), s.Data)
		}
		if err != nil {
			fmt.Fprintf(&b, "  (%v)\n", err)
		}
	case CmdRequestPacket:
		if r := NewReader(p.Payload); r.Remaining() >= 2 {
			fmt.Fprintf(&b, "  room: %d bytes\n", r.Uint16())
		}
	default:
		if len(p.Payload) > 0 {
			fmt.Fprintf(&b, "  payload: % X\n", p.Payload)
		}
	}
	return b.String()
}
