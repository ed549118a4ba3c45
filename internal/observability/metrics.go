package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerpc",
			Subsystem: "admin_http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgerpc",
			Subsystem: "admin_http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	serverMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerpc",
			Subsystem: "server",
			Name:      "messages_total",
			Help:      "Inbound top-level values by classification.",
		},
		[]string{"transport", "kind"},
	)
	serverReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerpc",
			Subsystem: "server",
			Name:      "replies_total",
			Help:      "Replies written through the request reply contract.",
		},
		[]string{"kind"},
	)
	serverConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgerpc",
			Subsystem: "server",
			Name:      "connections",
			Help:      "Open server connections.",
		},
		[]string{"transport"},
	)
	clientCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgerpc",
			Subsystem: "client",
			Name:      "calls_total",
			Help:      "Client requests by final outcome.",
		},
		[]string{"outcome"},
	)
	clientCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgerpc",
			Subsystem: "client",
			Name:      "call_duration_seconds",
			Help:      "Time from send to resolution of a client request.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	clientPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edgerpc",
			Subsystem: "client",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response.",
		},
	)
)

// Server message kinds.
const (
	KindRequest        = "request"
	KindNotification   = "notification"
	KindInvalidRequest = "invalid_request"
	KindBatchRejected  = "batch_rejected"
	KindParseError     = "parse_error"
)

// Client call outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeRPCError        = "rpc_error"
	OutcomeInvalidResponse = "invalid_response"
	OutcomeTimeout         = "timeout"
	OutcomeCanceled        = "canceled"
	OutcomeSendError       = "send_error"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			serverMessages,
			serverReplies,
			serverConnections,
			clientCalls,
			clientCallDuration,
			clientPending,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordServerMessage(transport, kind string) {
	RegisterMetrics()
	serverMessages.WithLabelValues(transport, kind).Inc()
}

func RecordServerReply(kind string) {
	RegisterMetrics()
	serverReplies.WithLabelValues(kind).Inc()
}

func ServerConnOpened(transport string) {
	RegisterMetrics()
	serverConnections.WithLabelValues(transport).Inc()
}

func ServerConnClosed(transport string) {
	RegisterMetrics()
	serverConnections.WithLabelValues(transport).Dec()
}

func RecordClientCall(outcome string, duration time.Duration) {
	RegisterMetrics()
	clientCalls.WithLabelValues(outcome).Inc()
	clientCallDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// AddClientPending moves the pending gauge by delta.
func AddClientPending(delta int) {
	RegisterMetrics()
	clientPending.Add(float64(delta))
}
