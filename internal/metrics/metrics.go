package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sameday_loads_total",
			Help: "Total dataset loads by outcome",
		},
		[]string{"outcome"},
	)

	LoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sameday_load_duration_seconds",
			Help:    "Time spent decoding and cleaning a source file",
			Buckets: prometheus.DefBuckets,
		},
	)

	RowsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sameday_rows_loaded",
			Help: "Rows in the most recently loaded table",
		},
	)

	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sameday_rows_dropped_total",
			Help: "Rows dropped while cleaning, by reason",
		},
		[]string{"reason"},
	)

	DatasetCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sameday_dataset_cache_total",
			Help: "Dataset cache lookups by result",
		},
		[]string{"result"},
	)

	ComparisonsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sameday_comparisons_total",
			Help: "Comparisons computed, by outcome",
		},
		[]string{"outcome"},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sameday_fetches_total",
			Help: "Source file downloads by scheme and status",
		},
		[]string{"scheme", "status"},
	)
)
