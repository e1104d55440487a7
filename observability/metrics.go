package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_channels_active",
			Help: "Number of broker channels with at least one subscriber",
		},
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_delivery_failures_total",
			Help: "Events a subscriber failed to accept",
		},
		[]string{"event_type"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Connected websocket sessions",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted and published",
		},
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_send_duration_seconds",
			Help:    "Time from send request to publication",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
	)

	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_operation_errors_total",
			Help: "Rejected client operations by error code",
		},
		[]string{"operation", "code"},
	)

	TypingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_typing_states_active",
			Help: "Typing states waiting for stop or expiry",
		},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_frames_received_total",
			Help: "Websocket frames received",
		},
		[]string{"type"},
	)

	StoreBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_store_breaker_state",
			Help: "Message store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	IndexedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_indexed_messages_total",
			Help: "Messages written to the search index",
		},
	)

	ProcessRSS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_process_rss_bytes",
			Help: "Resident memory of the server process",
		},
	)

	ProcessCPU = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_process_cpu_percent",
			Help: "CPU usage of the server process",
		},
	)
)
