// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fieldgate/pkg/packet"
)

func TestSniff(t *testing.T) {
	good := packet.MustEncode(sensorData(1, 2))
	bad := packet.MustEncode(sensorData(3, 4))
	bad[17] = 0x33 // first data byte, the CRC no longer matches

	var in bytes.Buffer
	in.Write(good)
	in.Write(bad)
	in.Write(good)

	var out bytes.Buffer
	stats := packet.NewStatistics()
	require.NoError(t, sniff(&in, &out, stats))

	assert.Equal(t, uint64(2), stats.ValidPackets)
	assert.Equal(t, uint64(1), stats.CRCErrors)
	assert.Equal(t, 2, strings.Count(out.String(), "SENSOR_DATA"))
	assert.Contains(t, out.String(), "[ERROR]")
}

func TestATLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+VER?", "AT+VER?"},
		{"AT+BAND?", "AT+BAND?"},
		{"at+band=5", "at+band=5"},
		{"  +JOIN\n", "AT+JOIN"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, atLine(tt.in))
		})
	}
}
