// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Fieldgate - sensor uplink gateway
//
// Forwards packets from a local sensor bus to a server over a LoRaWAN module
// or an IP uplink.

package main

import (
	"os"

	"github.com/Thermoquad/fieldgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
