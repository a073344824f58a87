package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Detection pipeline counters, exported on /metrics
var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_signals_cycles_total",
		Help: "Detection cycles by outcome (completed, skipped, failed)",
	}, []string{"status"})

	MovesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_signals_moves_recorded_total",
		Help: "Quote move events written by the move ledger",
	})

	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_signals_signals_emitted_total",
		Help: "Signals emitted by type",
	}, []string{"type"})

	PropagationEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_signals_propagation_events_total",
		Help: "Propagation events written",
	})

	RegimeSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_signals_regime_snapshots_total",
		Help: "Regime snapshots written",
	})

	ClvRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_signals_clv_records_total",
		Help: "CLV settlement records written",
	})
)
