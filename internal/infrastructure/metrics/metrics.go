// Package metrics expone los contadores Prometheus del validador.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── Alícuotas de la reforma ──

var (
	// ReformLookups resoluciones por nivel que respondió: memory, disk, remote, fallback.
	ReformLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_reform_rate_lookups_total",
		Help: "Reform rate resolutions by answering tier",
	}, []string{"tier"})

	// ReformRemoteAttempts intentos HTTP por resultado: ok, not_found, retry, error.
	ReformRemoteAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_reform_remote_attempts_total",
		Help: "Remote reform rate service attempts by outcome",
	}, []string{"outcome"})
)

// ── Pipeline ──

var (
	// StageDuration duración de cada etapa del pipeline.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiscal_pipeline_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms a ~4min
	}, []string{"stage", "status"})

	// ItemsProcessed ítems con valor positivo procesados por el calculador.
	ItemsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiscal_items_processed_total",
		Help: "Invoice items processed by the legacy tax calculator",
	})

	// DivergencesFound divergencias por tributo.
	DivergencesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_divergences_total",
		Help: "Declared vs computed divergences by tax type",
	}, []string{"tax"})

	// Runs ejecuciones del pipeline por estado final.
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_pipeline_runs_total",
		Help: "Pipeline runs by final status",
	}, []string{"status"})
)
