package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drainwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drainwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingestion metrics
	IngestMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drainwatch_ingest_messages_total",
			Help: "Total number of telemetry messages processed",
		},
		[]string{"result"}, // result: committed, validation_error, device_not_found, storage_fault
	)

	DecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drainwatch_decode_errors_total",
			Help: "Total number of broker messages rejected as undecodable",
		},
	)

	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drainwatch_commit_duration_seconds",
			Help:    "Time taken to commit one reading's atomic write group",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	AlertsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drainwatch_alerts_generated_total",
			Help: "Total number of alerts generated by threshold evaluation",
		},
		[]string{"type", "severity"},
	)

	DeviceStatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drainwatch_device_status_transitions_total",
			Help: "Total number of device status writes by resulting status",
		},
		[]string{"status"},
	)

	// Pipeline queue metrics
	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drainwatch_pipeline_queue_size",
			Help: "Current number of decoded readings awaiting ingestion",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drainwatch_pipeline_queue_capacity",
			Help: "Capacity of the decoded readings queue",
		},
	)

	// Broker metrics
	BrokerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drainwatch_broker_reconnects_total",
			Help: "Total number of broker reconnect attempts",
		},
	)

	BrokerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drainwatch_broker_connected",
			Help: "Whether the broker subscription is currently live (1/0)",
		},
	)

	// Realtime fan-out metrics
	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drainwatch_realtime_subscribers",
			Help: "Current number of connected realtime subscribers",
		},
	)

	RealtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drainwatch_realtime_events_total",
			Help: "Total number of realtime events pushed",
		},
		[]string{"kind"}, // kind: reading, snapshot
	)

	RealtimeDroppedSubscribers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drainwatch_realtime_dropped_subscribers_total",
			Help: "Subscribers disconnected because their send buffer filled",
		},
	)

	// Recent-readings cache
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drainwatch_cache_size",
			Help: "Current number of readings in the recent-readings cache",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drainwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
