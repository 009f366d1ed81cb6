// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/fieldgate/internal/config"
	"github.com/Thermoquad/fieldgate/pkg/hal"
	"github.com/Thermoquad/fieldgate/pkg/packet"
)

var sniffCmd = &cobra.Command{
	Use:   "sniff [port]",
	Short: "Decode gateway packets on a serial line",
	Long: `Continuously decode and display gateway packets as they arrive.

The port defaults to sensor_bus.port. Each packet is printed with its
header and decoded payload; framing and CRC errors are printed as they
happen. A statistics summary is shown on exit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
}

func runSniff(cmd *cobra.Command, args []string) error {
	port, baud := config.C.SensorBus.Port, config.C.SensorBus.BaudRate
	if len(args) == 1 {
		port = args[0]
	}
	if port == "" {
		return fmt.Errorf("no port given and sensor_bus.port is not set")
	}

	uart, err := hal.OpenSerial(port, baud)
	if err != nil {
		return err
	}

	fmt.Printf("Fieldgate - Packet Sniffer\n")
	fmt.Printf("Connection: Serial: %s @ %d baud\n", port, baud)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		uart.Close()
	}()

	stats := packet.NewStatistics()
	err = sniff(uart, os.Stdout, stats)
	fmt.Printf("\n%s", stats)
	return err
}

// sniff decodes r until it fails and prints every packet and error to w
func sniff(r io.Reader, w io.Writer, stats *packet.Statistics) error {
	decoder := packet.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := r.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Debug("sniff: read stopped")
			}
			return nil
		}

		for i := 0; i < n; i++ {
			p, err := decoder.DecodeByte(buf[i])
			stats.Update(p, err)
			if err != nil {
				fmt.Fprintf(w, "[%s] [ERROR] %v\n", time.Now().Format("15:04:05.000"), err)
				continue
			}
			if p != nil {
				fmt.Fprintf(w, "[%s] %s", time.Now().Format("15:04:05.000"), packet.FormatPacket(p))
			}
		}
	}
}
