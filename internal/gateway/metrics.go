package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call outcomes used as metric label values.
const (
	outcomeOK             = "ok"
	outcomeProviderError  = "provider_error"
	outcomeTransportError = "transport_error"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linepay_gateway_calls_total",
		Help: "Calls made to the payment provider, by operation and outcome.",
	}, []string{"operation", "outcome"})

	callDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linepay_gateway_call_duration_seconds",
		Help:    "Latency of calls made to the payment provider.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// GetCallsTotal exposes the calls counter for tests.
func GetCallsTotal() *prometheus.CounterVec { return callsTotal }

// GetCallDurationSeconds exposes the latency histogram for tests.
func GetCallDurationSeconds() *prometheus.HistogramVec { return callDurationSeconds }
