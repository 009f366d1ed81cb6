// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/fieldgate/internal/config"
	"github.com/Thermoquad/fieldgate/pkg/hal"
	"github.com/Thermoquad/fieldgate/pkg/murata"
	"github.com/Thermoquad/fieldgate/pkg/network"
	"github.com/Thermoquad/fieldgate/pkg/packet"
	"github.com/Thermoquad/fieldgate/pkg/router"
	"github.com/Thermoquad/fieldgate/pkg/store"
)

// pollInterval is how often the main loop services the active controller
const pollInterval = 100 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway",
	Long: `Run the gateway loop.

Sensor packets read from the sensor bus are queued and sent once per
network.send_interval through the first configured controller that connects.
Downlink packets are routed back to the sensor bus, network and LoRaWAN
configuration packets are applied, persisted and acknowledged.

Prometheus metrics are served on metrics.bind when it is set.`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// gateway wires the router, the store and the network orchestrator. Every
// method but readBus runs on the main loop goroutine.
type gateway struct {
	cfg *config.Config

	router   *router.Router
	store    *store.File
	network  *network.Network
	decoder  *packet.Decoder
	watchdog hal.Watchdog

	bus     io.ReadWriter
	closers []io.Closer
	metrics *http.Server
}

func runGateway(cmd *cobra.Command, args []string) error {
	g := &gateway{cfg: &config.C}
	defer g.close()

	tasks := []func() error{
		g.printStartMessage,
		g.openStore,
		g.setupNetwork,
		g.openSensorBus,
		g.powerOn,
		g.replayConfig,
		g.startMetrics,
	}
	for _, t := range tasks {
		if err := t(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := g.loop(ctx)
	log.Warning("stopping fieldgate")
	return err
}

func (g *gateway) printStartMessage() error {
	log.WithFields(log.Fields{
		"version":     rootCmd.Version,
		"controllers": g.cfg.Network.Controllers,
		"server":      g.cfg.Network.Server,
		"port":        g.cfg.Network.Port,
	}).Info("starting fieldgate")
	return nil
}

func (g *gateway) openStore() error {
	st, err := store.Open(g.cfg.Store.Path)
	if err != nil {
		return errors.Wrap(err, "open config store")
	}
	g.store = st
	return nil
}

func (g *gateway) setupNetwork() error {
	g.router = router.New(g.cfg.Router.Capacity)
	g.decoder = packet.NewDecoder()

	g.watchdog = hal.NopWatchdog
	if timeout := g.cfg.Radio.WatchdogTimeout; timeout > 0 {
		wd := hal.NewSoftWatchdog(timeout, func() {
			log.WithField("timeout", timeout).Fatal("watchdog expired, main loop stalled")
		})
		g.closers = append(g.closers, closerFunc(func() error {
			wd.Stop()
			return nil
		}))
		g.watchdog = wd
	}

	controllers, err := uplinkControllers(g.cfg, func() (*murata.Controller, error) {
		uart, err := openRadio(g.cfg)
		if err != nil {
			return nil, err
		}
		g.closers = append(g.closers, uart)
		return newRadio(g.cfg, uart, g.watchdog), nil
	})
	if err != nil {
		return err
	}

	n := network.New(hal.SystemClock{}, g.router, g.store)
	n.ConnectTimeout = g.cfg.Network.ConnectTimeout
	n.ReceiveTimeout = g.cfg.Network.ReceiveTimeout
	for _, c := range controllers {
		if err := n.Add(c); err != nil {
			return err
		}
	}
	n.Setup(g.cfg.Network.Server, g.cfg.Network.Port, g.cfg.Network.AppEUI, g.cfg.Network.AppKey)
	g.network = n

	g.router.Handle(packet.CmdNetworkParamsConf, n.Parse)
	g.router.Handle(packet.CmdLoRaParamsConf, n.Parse)
	g.router.SetUplink(n.Deliver)
	return nil
}

func (g *gateway) openSensorBus() error {
	sb := g.cfg.SensorBus
	if sb.Port == "" {
		return errors.New("sensor_bus.port must be set")
	}
	uart, err := hal.OpenSerial(sb.Port, sb.BaudRate)
	if err != nil {
		return err
	}
	g.closers = append(g.closers, uart)
	g.bus = uart
	log.WithFields(log.Fields{
		"port": sb.Port,
		"baud": sb.BaudRate,
	}).Info("sensor bus opened")
	return nil
}

// powerOn brings the controllers up and hands the configured LoRaWAN
// credentials to the radios. Stored credentials replayed after it win.
func (g *gateway) powerOn() error {
	g.network.On()
	lp := g.network.LoRaParams()
	if err := g.network.Parse(packet.NewLocal(packet.CmdLoRaParamsConf, lp.MarshalPayload())); err != nil {
		return errors.Wrap(err, "apply lora params")
	}
	return nil
}

// replayConfig applies the persisted configuration. Stored packets come
// from localhost so they are neither acked nor saved again.
func (g *gateway) replayConfig() error {
	for _, p := range g.store.Load() {
		if err := g.network.Parse(p); err != nil {
			log.WithError(err).WithField("command", packet.CommandName(p.Cmd)).Warning("stored config rejected")
		}
	}
	return nil
}

func (g *gateway) startMetrics() error {
	if g.cfg.Metrics.Bind == "" {
		return nil
	}

	log.WithField("bind", g.cfg.Metrics.Bind).Info("metrics: starting prometheus metrics server")
	g.metrics = &http.Server{
		Handler:           promhttp.Handler(),
		Addr:              g.cfg.Metrics.Bind,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		err := g.metrics.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics: prometheus metrics server error")
		}
	}()
	return nil
}

func (g *gateway) loop(ctx context.Context) error {
	np := g.network.NetworkParams()
	if err := g.network.Connect(np.Address, np.Port, g.cfg.ConnType()); err != nil {
		log.WithError(err).Warning("initial connect failed, retrying on send")
	}

	busData := make(chan []byte, 16)
	go readBus(ctx, g.bus, busData)

	interval := g.cfg.Network.SendInterval
	if interval <= 0 {
		interval = time.Minute
	}
	send := time.NewTicker(interval)
	defer send.Stop()
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-busData:
			g.feed(data)
		case <-send.C:
			g.uplink()
		case <-poll.C:
			g.network.RunTask()
			g.watchdog.Reset()
		}
	}
}

// feed routes sensor bus bytes and answers the sensors right away
func (g *gateway) feed(data []byte) {
	if err := g.router.Feed(g.decoder, data); err != nil {
		log.WithError(err).Warning("gateway: sensor bus decode error")
	}
	g.flushOutbox()
}

// uplink sends the oldest queued packet, batched with whatever else fits,
// then waits for the server's answer
func (g *gateway) uplink() {
	p, ok := g.router.Next()
	if !ok {
		return
	}
	g.network.Deliver(p)
	if err := g.network.Send(); err != nil {
		log.WithError(err).Warning("gateway: uplink failed")
		return
	}
	if err := g.network.Receive(); err != nil {
		log.WithError(err).Debug("gateway: no acknowledgement")
	}
	g.flushOutbox()
}

func (g *gateway) flushOutbox() {
	for _, p := range g.router.Outbox() {
		data, err := packet.Encode(p)
		if err != nil {
			log.WithError(err).WithField("dst", p.Dst).Warning("gateway: downlink packet dropped")
			continue
		}
		if _, err := g.bus.Write(data); err != nil {
			log.WithError(err).WithField("dst", p.Dst).Warning("gateway: sensor bus write failed")
		}
	}
}

func (g *gateway) close() {
	if g.network != nil {
		g.network.Off()
	}
	if g.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = g.metrics.Shutdown(ctx)
	}
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i].Close(); err != nil {
			log.WithError(err).Warning("close failed")
		}
	}
}

// readBus moves sensor bus bytes to the main loop until ctx ends or the
// port fails
func readBus(ctx context.Context, r io.Reader, out chan<- []byte) {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Error("gateway: sensor bus read failed")
			}
			return
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
