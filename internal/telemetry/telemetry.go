// Package telemetry wires the structured logger and the Prometheus metrics
// the engine and dispatcher report into.
package telemetry

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. level accepts zerolog level names;
// console switches from JSON to human-readable output.
func NewLogger(level string, console bool) zerolog.Logger {
	var w io.Writer = os.Stderr
	if console {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

type Metrics struct {
	GovernedTransactions prometheus.Counter
	LedgerRetries        prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		GovernedTransactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slipway",
			Name:      "governed_transactions_total",
			Help:      "Governed transactions committed with a ledger entry",
		}),
		LedgerRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slipway",
			Name:      "ledger_retries_total",
			Help:      "Governed transactions retried after a sequence race",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slipway",
			Name:      "notifications_dispatched_total",
			Help:      "Notification records written by the dispatcher",
		}),
		NotificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slipway",
			Name:      "notification_failures_total",
			Help:      "Dispatch attempts that failed and were left for retry",
		}),
	}
	registry.MustRegister(m.GovernedTransactions, m.LedgerRetries, m.NotificationsSent, m.NotificationFailures)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
