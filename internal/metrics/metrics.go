package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts incremental runs by source and final status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "Total number of incremental ingestion runs",
		},
		[]string{"source", "status"},
	)

	// RunDuration tracks incremental run time
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Incremental run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"source"},
	)

	// RecordsAdded counts records inserted per source
	RecordsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_added_total",
			Help: "Total number of new records ingested",
		},
		[]string{"source"},
	)

	// WindowsScraped counts windows fetched per source and outcome
	WindowsScraped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_windows_scraped_total",
			Help: "Total number of windows fetched",
		},
		[]string{"source", "outcome"},
	)

	// ItemsSkipped counts upstream items dropped by the extractor
	ItemsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_items_skipped_total",
			Help: "Total number of upstream items skipped during extraction",
		},
		[]string{"source", "reason"},
	)

	// SubResourcesProvisioned counts auto-created sub-resources (cameras)
	SubResourcesProvisioned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_sub_resources_provisioned_total",
			Help: "Total number of sub-resources created on first sight",
		},
		[]string{"source"},
	)

	// LastWatermark tracks the persisted watermark per source
	LastWatermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_last_watermark",
			Help: "Last successfully ingested window per source",
		},
		[]string{"source"},
	)

	// FetchRequests counts upstream HTTP attempts by outcome
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_requests_total",
			Help: "Total number of upstream fetch attempts",
		},
		[]string{"outcome"},
	)

	// FetchRetries counts retry attempts after transient failures
	FetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "Total number of upstream fetch retries",
		},
	)

	// CircuitState tracks the breaker state per source (0 closed, 1 half-open, 2 open)
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fetch_circuit_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"source"},
	)

	// RateLimitDecisions counts limiter decisions by tier and outcome
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"tier", "outcome"},
	)

	// RateLimitRejected counts rejected requests by the window that was exhausted
	RateLimitRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_rejected_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"tier", "window"},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
