// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package murata

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Thermoquad/fieldgate/pkg/atcmd"
	"github.com/Thermoquad/fieldgate/pkg/netif"
)

var (
	cc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murata_command_count",
		Help: "The number of AT commands sent (per command and result).",
	}, []string{"command", "result"})
	ue = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murata_unexpected_event_count",
		Help: "The number of events received while waiting for another (per event code).",
	}, []string{"code"})
)

func commandResult(command string, err error) prometheus.Counter {
	return cc.With(prometheus.Labels{"command": command, "result": resultLabel(err)})
}

func unexpectedEvent(code atcmd.Code) prometheus.Counter {
	return ue.With(prometheus.Labels{"code": code.String()})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, netif.ErrCommand):
		return "rejected"
	case errors.Is(err, netif.ErrTimeout):
		return "timeout"
	case errors.Is(err, netif.ErrParams):
		return "params"
	}
	return "comms"
}

// verb strips the arguments off a command, "BAND=5" gives "BAND"
func verb(cmd string) string {
	if i := strings.IndexAny(cmd, "=? "); i >= 0 {
		return cmd[:i]
	}
	return cmd
}
