// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brocaar/lorawan"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fieldgate/pkg/murata"
	"github.com/Thermoquad/fieldgate/pkg/netif"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	assert := assert.New(t)

	c, err := Load(newViper(), "")
	require.NoError(t, err)

	assert.Equal(4, c.General.LogLevel)
	assert.Equal(murata.DefaultBaudRate, c.Radio.BaudRate)
	assert.Equal(murata.DefaultSettings(), c.Radio.Settings)
	assert.Equal([]uint8{1, 2, 3, 4}, c.Radio.WhitelistedModels)
	assert.Equal([]string{ControllerMurata}, c.Network.Controllers)
	assert.Equal(15*time.Second, c.Network.ConnectTimeout)
	assert.Equal(200*time.Millisecond, c.Network.ReceiveTimeout)
	assert.Equal(netif.ConnTCP, c.ConnType())
	assert.Equal(lorawan.EUI64{}, c.Network.AppEUI)
}

func TestLoad_File(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "fieldgate.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[general]
log_level=5

[radio]
port="/dev/ttyAMA0"
strategy="auto_ack"

  [radio.settings]
  band=2
  data_rate=5

[network]
controllers=["websocket", "murata"]
server="uplink.example.net"
port=8443
udp=true
app_eui="70B3D57ED0000001"
app_key="2B7E151628AED2A6ABF7158809CF4F3C"
connect_timeout="30s"

[websocket]
path="/gw"
`), 0o644))

	c, err := Load(newViper(), path)
	require.NoError(t, err)

	assert.Equal(5, c.General.LogLevel)
	assert.Equal("/dev/ttyAMA0", c.Radio.Port)
	assert.Equal(StrategyAutoAck, c.Radio.Strategy)
	assert.Equal(uint8(2), c.Radio.Settings.Band)
	assert.Equal(uint8(5), c.Radio.Settings.DataRate)
	assert.Equal(murata.DefaultSettings().DataFormat, c.Radio.Settings.DataFormat)
	assert.Equal([]string{ControllerWebSocket, ControllerMurata}, c.Network.Controllers)
	assert.Equal(uint16(8443), c.Network.Port)
	assert.Equal(netif.ConnUDP, c.ConnType())
	assert.Equal(lorawan.EUI64{0x70, 0xb3, 0xd5, 0x7e, 0xd0, 0x00, 0x00, 0x01}, c.Network.AppEUI)
	assert.Equal(byte(0x2b), c.Network.AppKey[0])
	assert.Equal(30*time.Second, c.Network.ConnectTimeout)
	assert.Equal("/gw", c.WebSocket.Path)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FIELDGATE_RADIO__PORT", "/dev/ttyUSB3")
	t.Setenv("FIELDGATE_NETWORK__CONTROLLERS", "mqtt,pseudo")
	t.Setenv("FIELDGATE_MQTT__BROKER", "tcp://broker:1883")
	t.Setenv("FIELDGATE_RADIO__SETTINGS__BAND", "7")

	c, err := Load(newViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB3", c.Radio.Port)
	assert.Equal(t, []string{ControllerMQTT, ControllerPseudo}, c.Network.Controllers)
	assert.Equal(t, "tcp://broker:1883", c.MQTT.Broker)
	assert.Equal(t, uint8(7), c.Radio.Settings.Band)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown controller", map[string]string{"FIELDGATE_NETWORK__CONTROLLERS": "carrier-pigeon"}},
		{"too many controllers", map[string]string{"FIELDGATE_NETWORK__CONTROLLERS": "murata,websocket,mqtt,pseudo"}},
		{"duplicate controller", map[string]string{"FIELDGATE_NETWORK__CONTROLLERS": "mqtt,mqtt"}},
		{"unknown strategy", map[string]string{"FIELDGATE_RADIO__STRATEGY": "maybe"}},
		{"unknown log format", map[string]string{"FIELDGATE_GENERAL__LOG_FORMAT": "xml"}},
		{"bad eui", map[string]string{"FIELDGATE_NETWORK__APP_EUI": "not-hex"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(newViper(), "")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(newViper(), filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
