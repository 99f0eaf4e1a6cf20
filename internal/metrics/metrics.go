package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermoguard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thermoguard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Input path metrics
	ReadingsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermoguard_readings_received_total",
			Help: "Total number of readings received per input path",
		},
		[]string{"path", "status"}, // status: accepted, rejected
	)

	SourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermoguard_source_fetch_total",
			Help: "Total number of latest-reading fetches from the data source",
		},
		[]string{"path", "status"}, // status: success, empty, failed
	)

	LastTemperature = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thermoguard_last_temperature_celsius",
			Help: "Temperature of the most recently evaluated reading",
		},
	)

	// Evaluator metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermoguard_evaluations_total",
			Help: "Total number of readings evaluated per input path",
		},
		[]string{"path"},
	)

	AlertOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermoguard_alert_outcomes_total",
			Help: "Alert decisions by key and outcome",
		},
		[]string{"key", "outcome"}, // outcome: dispatched, suppressed, failed
	)

	CooldownStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermoguard_cooldown_store_errors_total",
			Help: "Cooldown store failures by operation",
		},
		[]string{"op"}, // op: get, set
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thermoguard_dispatch_duration_seconds",
			Help:    "Time taken by the notification dispatcher",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thermoguard_worker_queue_size",
			Help: "Current size of the worker queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thermoguard_worker_queue_capacity",
			Help: "Capacity of the worker queue",
		},
	)

	// Notification sink metrics
	SinkDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermoguard_sink_deliveries_total",
			Help: "Notification deliveries per sink",
		},
		[]string{"sink", "status"}, // status: success, failed
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thermoguard_kafka_publish_retries_total",
			Help: "Total number of Kafka alert publish retries",
		},
	)

	// Background task metrics
	BackgroundRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermoguard_background_runs_total",
			Help: "Background fetch runs by result",
		},
		[]string{"result"}, // result: new_data, no_data, failed
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermoguard_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
