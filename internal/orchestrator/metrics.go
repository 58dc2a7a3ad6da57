package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linepay_lifecycle_poll_attempts_total",
		Help: "Status checks made while awaiting customer authorization.",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linepay_lifecycle_runs_total",
		Help: "Completed lifecycle runs by outcome.",
	}, []string{"outcome"})
)

// GetPollAttemptsTotal exposes the poll counter for tests.
func GetPollAttemptsTotal() prometheus.Counter { return pollAttemptsTotal }

// GetRunsTotal exposes the run outcome counter for tests.
func GetRunsTotal() *prometheus.CounterVec { return runsTotal }
