// Package obs registers the Prometheus metrics the core updates during
// operation. They are served at /metrics by the API server.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookUpdates counts book updates by venue and result
	// (applied|stale|invalid).
	BookUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbot_book_updates_total",
			Help: "Order book updates by venue and result",
		},
		[]string{"venue", "result"},
	)

	// OpportunitiesDetected counts qualifying opportunities per instrument.
	OpportunitiesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbot_opportunities_detected_total",
			Help: "Qualifying spatial opportunities by instrument",
		},
		[]string{"instrument"},
	)

	// PlansBuilt counts execution plans by coverage (full|partial).
	PlansBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbot_plans_built_total",
			Help: "Execution plans built by coverage",
		},
		[]string{"coverage"},
	)

	// TradesRecorded counts trade records by result (win|loss|flat).
	TradesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbot_trades_recorded_total",
			Help: "Trade records ingested by result",
		},
		[]string{"result"},
	)

	// RealizedPnL is the cumulative realized profit and loss in quote units.
	RealizedPnL = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbot_realized_pnl",
			Help: "Cumulative realized PnL across all recorded trades",
		},
	)
)
