// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fieldgate/internal/config"
	"github.com/Thermoquad/fieldgate/pkg/hal"
	"github.com/Thermoquad/fieldgate/pkg/murata"
)

var atTimeout time.Duration

var atCmd = &cobra.Command{
	Use:   "at <command>",
	Short: "Send one AT command to the LoRaWAN module",
	Long: `Send one AT command and print the classified response.

The AT prefix is optional:

  fieldgate at +VER?
  fieldgate at AT+BAND?`,
	Args: cobra.ExactArgs(1),
	RunE: runAT,
}

func init() {
	atCmd.Flags().DurationVarP(&atTimeout, "timeout", "t", murata.DefaultTimeout, "time to wait for the response")
	rootCmd.AddCommand(atCmd)
}

// atLine prefixes line with AT unless it already has it
func atLine(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(strings.ToUpper(line), "AT") {
		return line
	}
	return "AT" + line
}

func runAT(cmd *cobra.Command, args []string) error {
	uart, err := openRadio(&config.C)
	if err != nil {
		return err
	}
	defer uart.Close()

	radio := newRadio(&config.C, uart, hal.NopWatchdog)
	ev, err := radio.Transact(atLine(args[0]), atTimeout)
	if err != nil {
		return err
	}
	fmt.Println(ev)
	return nil
}
