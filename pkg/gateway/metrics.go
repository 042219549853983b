// Copyright 2024-2026 Aiku AI

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ircd_remote_events_total",
		Help: "Remote events received by the reactor, by outcome.",
	}, []string{"result"})

	outboundMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ircd_outbound_messages_total",
		Help: "IRC messages written to clients, by command.",
	}, []string{"command"})

	pollCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ircd_poll_cycles_total",
		Help: "Completed poll cycles, by outcome.",
	}, []string{"result"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ircd_sessions_active",
		Help: "IRC client sessions currently connected.",
	})
)
