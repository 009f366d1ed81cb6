// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds the gateway configuration. It is read from a TOML or
// YAML file and FIELDGATE_* environment variables through viper.
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/brocaar/lorawan"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Thermoquad/fieldgate/pkg/murata"
	"github.com/Thermoquad/fieldgate/pkg/netif"
	"github.com/Thermoquad/fieldgate/pkg/network"
	"github.com/Thermoquad/fieldgate/pkg/transport"
)

// EnvPrefix prefixes every environment variable, nested keys are joined
// with a double underscore: FIELDGATE_RADIO__PORT
const EnvPrefix = "FIELDGATE"

// Controller names accepted in network.controllers
const (
	ControllerMurata    = "murata"
	ControllerWebSocket = "websocket"
	ControllerMQTT      = "mqtt"
	ControllerPseudo    = "pseudo"
)

// Radio confirmation strategies
const (
	StrategyUnconfirmed = "unconfirmed"
	StrategyAutoAck     = "auto_ack"
)

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel  int    `mapstructure:"log_level"`
		LogFormat string `mapstructure:"log_format"`

		LogFile struct {
			Path       string `mapstructure:"path"`
			MaxSizeMB  int    `mapstructure:"max_size_mb"`
			MaxBackups int    `mapstructure:"max_backups"`
			MaxAgeDays int    `mapstructure:"max_age_days"`
			Compress   bool   `mapstructure:"compress"`
		} `mapstructure:"log_file"`
	} `mapstructure:"general"`

	Radio struct {
		Port              string          `mapstructure:"port"`
		BaudRate          int             `mapstructure:"baud_rate"`
		Strategy          string          `mapstructure:"strategy"`
		WatchdogTimeout   time.Duration   `mapstructure:"watchdog_timeout"`
		Settings          murata.Settings `mapstructure:"settings"`
		WhitelistedModels []uint8         `mapstructure:"whitelisted_models"`
	} `mapstructure:"radio"`

	SensorBus struct {
		Port     string `mapstructure:"port"`
		BaudRate int    `mapstructure:"baud_rate"`
	} `mapstructure:"sensor_bus"`

	Network struct {
		Controllers    []string          `mapstructure:"controllers"`
		Server         string            `mapstructure:"server"`
		Port           uint16            `mapstructure:"port"`
		UDP            bool              `mapstructure:"udp"`
		AppEUI         lorawan.EUI64     `mapstructure:"app_eui"`
		AppKey         lorawan.AES128Key `mapstructure:"app_key"`
		ConnectTimeout time.Duration     `mapstructure:"connect_timeout"`
		ReceiveTimeout time.Duration     `mapstructure:"receive_timeout"`
		SendInterval   time.Duration     `mapstructure:"send_interval"`
	} `mapstructure:"network"`

	WebSocket transport.WebSocketConfig `mapstructure:"websocket"`
	MQTT      transport.MQTTConfig      `mapstructure:"mqtt"`

	Router struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"router"`

	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`

	Metrics struct {
		Bind string `mapstructure:"bind"`
	} `mapstructure:"metrics"`

	Factory struct {
		BaudRate int    `mapstructure:"baud_rate"`
		DeviceID uint32 `mapstructure:"device_id"`
	} `mapstructure:"factory"`
}

// C holds the loaded configuration
var C Config

// ConnType returns the transport protocol of the server connection
func (c *Config) ConnType() netif.ConnType {
	if c.Network.UDP {
		return netif.ConnUDP
	}
	return netif.ConnTCP
}

// SetDefaults registers the default of every key
func SetDefaults(v *viper.Viper) {
	s := murata.DefaultSettings()

	v.SetDefault("general.log_level", 4)
	v.SetDefault("general.log_format", "text")
	v.SetDefault("general.log_file.path", "")
	v.SetDefault("general.log_file.max_size_mb", 10)
	v.SetDefault("general.log_file.max_backups", 5)
	v.SetDefault("general.log_file.max_age_days", 30)
	v.SetDefault("general.log_file.compress", true)

	v.SetDefault("radio.port", "")
	v.SetDefault("radio.baud_rate", murata.DefaultBaudRate)
	v.SetDefault("radio.strategy", StrategyUnconfirmed)
	v.SetDefault("radio.watchdog_timeout", 30*time.Second)
	v.SetDefault("radio.settings.band", s.Band)
	v.SetDefault("radio.settings.data_format", s.DataFormat)
	v.SetDefault("radio.settings.duty_cycle", s.DutyCycle)
	v.SetDefault("radio.settings.rf_power_mode", s.RFPowerMode)
	v.SetDefault("radio.settings.rf_power_index", s.RFPowerIndex)
	v.SetDefault("radio.settings.activation_mode", s.ActivationMode)
	v.SetDefault("radio.settings.data_rate", s.DataRate)
	v.SetDefault("radio.whitelisted_models", []int{1, 2, 3, 4})

	v.SetDefault("sensor_bus.port", "")
	v.SetDefault("sensor_bus.baud_rate", 115200)

	v.SetDefault("network.controllers", []string{ControllerMurata})
	v.SetDefault("network.server", "")
	v.SetDefault("network.port", 0)
	v.SetDefault("network.udp", false)
	v.SetDefault("network.app_eui", "0000000000000000")
	v.SetDefault("network.app_key", "00000000000000000000000000000000")
	v.SetDefault("network.connect_timeout", network.DefaultConnectTimeout)
	v.SetDefault("network.receive_timeout", network.DefaultReceiveTimeout)
	v.SetDefault("network.send_interval", time.Minute)

	v.SetDefault("websocket.url", "")
	v.SetDefault("websocket.path", "/")
	v.SetDefault("websocket.username", "")
	v.SetDefault("websocket.password", "")
	v.SetDefault("websocket.skip_ssl_verify", false)
	v.SetDefault("websocket.tls", false)
	v.SetDefault("websocket.dial_timeout", transport.DefaultDialTimeout)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "fieldgate")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.uplink_topic", "")
	v.SetDefault("mqtt.downlink_topic", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.timeout", transport.DefaultDialTimeout)

	v.SetDefault("router.capacity", 32)
	v.SetDefault("store.path", "/var/lib/fieldgate/config.cbor")
	v.SetDefault("metrics.bind", "")

	v.SetDefault("factory.baud_rate", murata.DefaultBaudRate)
	v.SetDefault("factory.device_id", 0)
}

// Load reads file, when given, and the environment into a Config
func Load(v *viper.Viper, file string) (Config, error) {
	var c Config

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return c, errors.Wrapf(err, "read config file %s", file)
		}
	}

	BindEnvs(v, c)

	hooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	if err := v.Unmarshal(&c, viper.DecodeHook(hooks)); err != nil {
		return c, errors.Wrap(err, "unmarshal config")
	}
	return c, c.Validate()
}

// BindEnvs binds every key of iface to its FIELDGATE_ variable. Nested
// keys use a double underscore since shells do not allow dots.
func BindEnvs(v *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		fv := ifv.Field(i)
		ft := ift.Field(i)
		tv, ok := ft.Tag.Lookup("mapstructure")
		if !ok {
			tv = strings.ToLower(ft.Name)
		}
		if tv == "-" {
			continue
		}

		if fv.Kind() == reflect.Struct && !isLeaf(ft.Type) {
			BindEnvs(v, fv.Interface(), append(parts, tv)...)
			continue
		}
		key := strings.Join(append(parts, tv), ".")
		env := EnvPrefix + "_" + strings.ToUpper(strings.Join(append(parts, tv), "__"))
		_ = v.BindEnv(key, env)
	}
}

// isLeaf reports whether a struct type is decoded from a single value
func isLeaf(t reflect.Type) bool {
	return t == reflect.TypeOf(time.Time{})
}

// Validate checks the values that cannot be checked by type alone
func (c *Config) Validate() error {
	if len(c.Network.Controllers) == 0 {
		return errors.New("network.controllers: at least one controller is required")
	}
	if len(c.Network.Controllers) > network.MaxControllers {
		return errors.Errorf("network.controllers: at most %d controllers, got %d", network.MaxControllers, len(c.Network.Controllers))
	}
	seen := make(map[string]bool)
	for _, name := range c.Network.Controllers {
		switch name {
		case ControllerMurata, ControllerWebSocket, ControllerMQTT, ControllerPseudo:
		default:
			return errors.Errorf("network.controllers: unknown controller %q", name)
		}
		if seen[name] {
			return errors.Errorf("network.controllers: %q listed twice", name)
		}
		seen[name] = true
	}

	switch c.Radio.Strategy {
	case StrategyUnconfirmed, StrategyAutoAck:
	default:
		return errors.Errorf("radio.strategy: unknown strategy %q", c.Radio.Strategy)
	}

	switch c.General.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("general.log_format: unknown format %q", c.General.LogFormat)
	}
	return nil
}
