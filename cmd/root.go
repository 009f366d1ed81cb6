// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Thermoquad/fieldgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fieldgate",
	Short: "LoRaWAN and IP uplink gateway for field sensors",
	Long: `Fieldgate - forwards sensor packets from a local serial bus to a server.

The gateway drives a Murata LoRaWAN module over its AT command interface and
can fail over to WebSocket or MQTT uplinks. Sensor packets are batched into
an offline buffer and sent through the first controller that connects.

Configuration is read from the file given with --config and from FIELDGATE_*
environment variables. Nested keys use a double underscore, for example
FIELDGATE_RADIO__PORT=/dev/ttyUSB0.

Passwords for the WebSocket and MQTT uplinks are read from the
FIELDGATE_PASSWORD environment variable, or prompted interactively when a
username is configured without one.`,
	Version:      "0.3.0",
	SilenceUsage:  true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().Int("log-level", 4, "debug=5, info=4, warning=3, error=2, fatal=1, panic=0")
	rootCmd.PersistentFlags().StringP("port", "p", "", "serial port of the LoRaWAN module")
	rootCmd.PersistentFlags().IntP("baud", "b", 0, "baud rate of the LoRaWAN module")

	_ = viper.BindPFlag("general.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("radio.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("radio.baud_rate", rootCmd.PersistentFlags().Lookup("baud"))

	config.SetDefaults(viper.GetViper())
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	c, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	config.C = c

	setLogging(&config.C)
}

func setLogging(c *config.Config) {
	log.SetLevel(log.Level(uint8(c.General.LogLevel)))

	if c.General.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	lf := c.General.LogFile
	if lf.Path == "" {
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   lf.Path,
		MaxSize:    lf.MaxSizeMB,
		MaxBackups: lf.MaxBackups,
		MaxAge:     lf.MaxAgeDays,
		Compress:   lf.Compress,
	}))
}
