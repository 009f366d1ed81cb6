// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/Thermoquad/fieldgate/internal/config"
	"github.com/Thermoquad/fieldgate/pkg/hal"
	"github.com/Thermoquad/fieldgate/pkg/murata"
	"github.com/Thermoquad/fieldgate/pkg/netif"
	"github.com/Thermoquad/fieldgate/pkg/transport"
)

// PasswordEnv holds the uplink password when it is not in the config
const PasswordEnv = "FIELDGATE_PASSWORD"

// openRadio opens the LoRaWAN module's serial port
func openRadio(c *config.Config) (*hal.SerialUART, error) {
	if c.Radio.Port == "" {
		return nil, errors.New("radio.port (--port) must be set")
	}
	uart, err := hal.OpenSerial(c.Radio.Port, c.Radio.BaudRate)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"port": c.Radio.Port,
		"baud": c.Radio.BaudRate,
	}).Info("radio serial port opened")
	return uart, nil
}

// newRadio builds the module controller with the configured strategy
func newRadio(c *config.Config, uart hal.UART, wd hal.Watchdog) *murata.Controller {
	settings := c.Radio.Settings
	cfg := murata.Config{
		BaudRate: c.Radio.BaudRate,
		Settings: &settings,
		Watchdog: wd,
		Models:   c.Radio.WhitelistedModels,
	}
	if c.Radio.Strategy == config.StrategyAutoAck {
		return murata.NewAutoAck(uart, cfg)
	}
	return murata.NewUnconfirmed(uart, cfg)
}

// getPassword retrieves the password from the environment or prompts for it
func getPassword(what string) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprintf(os.Stderr, "%s password: ", what)

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a plain line
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", errors.Wrap(err, "read password")
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// uplinkControllers builds the controllers listed in network.controllers,
// in order. The radio is only opened when the list names it.
func uplinkControllers(c *config.Config, radio func() (*murata.Controller, error)) ([]netif.Controller, error) {
	var out []netif.Controller
	for _, name := range c.Network.Controllers {
		switch name {
		case config.ControllerMurata:
			r, err := radio()
			if err != nil {
				return nil, err
			}
			out = append(out, r)

		case config.ControllerWebSocket:
			wc := c.WebSocket
			if wc.Username != "" && wc.Password == "" {
				pw, err := getPassword("websocket")
				if err != nil {
					return nil, err
				}
				wc.Password = pw
			}
			out = append(out, transport.NewWebSocket(wc))

		case config.ControllerMQTT:
			mc := c.MQTT
			if mc.Username != "" && mc.Password == "" {
				pw, err := getPassword("mqtt")
				if err != nil {
					return nil, err
				}
				mc.Password = pw
			}
			out = append(out, transport.NewMQTT(mc))

		case config.ControllerPseudo:
			out = append(out, &netif.Pseudo{})

		default:
			return nil, errors.Errorf("unknown controller %q", name)
		}
	}
	return out, nil
}
