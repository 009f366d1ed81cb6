// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package network

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Thermoquad/fieldgate/pkg/netif"
	"github.com/Thermoquad/fieldgate/pkg/packet"
)

var (
	sc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "network_send_count",
		Help: "The number of offline buffer sends attempted (per controller and result).",
	}, []string{"controller", "result"})
	st = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "network_state_transition_count",
		Help: "The number of connection state transitions (per target state).",
	}, []string{"state"})
	pc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "network_config_count",
		Help: "The number of configuration packets parsed (per command and result).",
	}, []string{"command", "result"})
	bufferDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "network_offline_dropped_bytes",
		Help: "The number of buffered bytes dropped because no controller could send them.",
	})
)

func sendResult(id netif.ControllerID, err error) prometheus.Counter {
	return sc.With(prometheus.Labels{"controller": id.String(), "result": okLabel(err)})
}

func stateTransition(s State) prometheus.Counter {
	return st.With(prometheus.Labels{"state": s.String()})
}

func configResult(cmd uint8, err error) prometheus.Counter {
	return pc.With(prometheus.Labels{"command": packet.CommandName(cmd), "result": okLabel(err)})
}

func okLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
