// Package metrics provides Prometheus metrics for focusbot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	CommandsTotal      *prometheus.CounterVec
	QuotaRefusalsTotal prometheus.Counter
	ReclaimsTotal      *prometheus.CounterVec
	ResetRunsTotal     *prometheus.CounterVec
	ResetErrorsTotal   prometheus.Counter
	ResetDuration      prometheus.Histogram
	ActiveSessions     prometheus.Gauge
	GraceSessions      prometheus.Gauge
	CacheInvalidations prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "focusbot_commands_total",
				Help: "Total slash commands handled, by command and status.",
			},
			[]string{"command", "status"},
		),
		QuotaRefusalsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "focusbot_quota_refusals_total",
				Help: "Task actions refused because the daily limit was reached.",
			},
		),
		ReclaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "focusbot_slot_reclaims_total",
				Help: "Slot reclamation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		ResetRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "focusbot_reset_runs_total",
				Help: "Midnight reset runs by trigger (scheduled or forced).",
			},
			[]string{"trigger"},
		),
		ResetErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "focusbot_reset_errors_total",
				Help: "Per-user failures inside midnight reset runs.",
			},
		),
		ResetDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "focusbot_reset_duration_seconds",
				Help:    "Wall time of a full midnight reset run.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "focusbot_active_sessions",
				Help: "Users currently in a tracked focus session.",
			},
		),
		GraceSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "focusbot_grace_sessions",
				Help: "Users currently inside the disconnect grace window.",
			},
		),
		CacheInvalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "focusbot_cache_invalidations_total",
				Help: "Cache entries dropped after mutations.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.CommandsTotal,
		m.QuotaRefusalsTotal,
		m.ReclaimsTotal,
		m.ResetRunsTotal,
		m.ResetErrorsTotal,
		m.ResetDuration,
		m.ActiveSessions,
		m.GraceSessions,
		m.CacheInvalidations,
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCommand increments the command counter.
func (m *Metrics) RecordCommand(command, status string) {
	m.CommandsTotal.WithLabelValues(command, status).Inc()
}

// RecordReclaim increments the reclamation counter.
func (m *Metrics) RecordReclaim(outcome string) {
	m.ReclaimsTotal.WithLabelValues(outcome).Inc()
}

// RecordResetRun increments the reset run counter.
func (m *Metrics) RecordResetRun(trigger string) {
	m.ResetRunsTotal.WithLabelValues(trigger).Inc()
}

// SetSessionGauges updates the session gauges.
func (m *Metrics) SetSessionGauges(active, grace int) {
	m.ActiveSessions.Set(float64(active))
	m.GraceSessions.Set(float64(grace))
}
