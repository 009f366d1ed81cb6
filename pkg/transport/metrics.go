// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Thermoquad/fieldgate/pkg/netif"
)

var (
	tc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transport_send_count",
		Help: "The number of messages sent (per controller and result).",
	}, []string{"controller", "result"})
	ic = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transport_inbox_dropped_count",
		Help: "The number of inbound messages dropped because the inbox was full (per controller).",
	}, []string{"controller"})
)

func sent(id netif.ControllerID, ok bool) prometheus.Counter {
	result := "error"
	if ok {
		result = "ok"
	}
	return tc.With(prometheus.Labels{"controller": id.String(), "result": result})
}

func inboxDropped(id netif.ControllerID) prometheus.Counter {
	return ic.With(prometheus.Labels{"controller": id.String()})
}
