// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/fieldgate/internal/config"
	"github.com/Thermoquad/fieldgate/pkg/factory"
	"github.com/Thermoquad/fieldgate/pkg/hal"
)

var setupDeviceID uint32

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Factory setup of the LoRaWAN module",
	Long: `Run the factory setup of a freshly assembled gateway.

The module is switched to factory.baud_rate, its firmware version is checked
and its device EUI is derived from the device id. Each stage is retried a
few times; the first stage that keeps failing stops the setup.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().Uint32Var(&setupDeviceID, "device-id", 0, "device id the EUI is derived from (overrides factory.device_id)")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	c := &config.C
	uart, err := openRadio(c)
	if err != nil {
		return err
	}
	defer uart.Close()

	fc := factory.Config{
		BaudRate: c.Factory.BaudRate,
		DeviceID: c.Factory.DeviceID,
	}
	if cmd.Flags().Changed("device-id") {
		fc.DeviceID = setupDeviceID
	}

	radio := newRadio(c, uart, hal.NopWatchdog)
	if err := factory.Run(radio, fc); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"baud":      fc.BaudRate,
		"device_id": fc.DeviceID,
	}).Info("factory setup complete")
	fmt.Printf("Setup complete: %d baud, device id %d\n", uart.BaudRate(), fc.DeviceID)
	return nil
}
