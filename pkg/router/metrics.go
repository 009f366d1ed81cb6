// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Thermoquad/fieldgate/pkg/packet"
)

var (
	rc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_packet_count",
		Help: "The number of packets routed (per command and destination).",
	}, []string{"command", "destination"})
	queued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "router_queue_length",
		Help: "The number of packets waiting for the uplink.",
	})
	dropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "router_dropped_count",
		Help: "The number of queued packets dropped because the queue was full.",
	})
)

func routed(cmd uint8, destination string) prometheus.Counter {
	return rc.With(prometheus.Labels{"command": packet.CommandName(cmd), "destination": destination})
}
