// Package metrics exposes Prometheus collectors for RPC traffic, trade
// execution and the HTTP API.
package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

const namespace = "curvebot"

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "JSON-RPC calls made to the chain endpoint.",
		},
		[]string{"method", "status"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Latency of JSON-RPC calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"method"},
	)

	trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "operations_total",
			Help:      "Buy, sell and approve operations by outcome.",
		},
		[]string{"operation", "status"},
	)

	historyLogs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "logs_scanned",
			Help:      "Event logs decoded per history rebuild.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "pattern", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "pattern"},
	)
)

func init() {
	Registry.MustRegister(
		rpcCalls,
		rpcDuration,
		trades,
		historyLogs,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRPC records one chain round-trip started at start.
func ObserveRPC(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	rpcCalls.WithLabelValues(method, status).Inc()
	rpcDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// RecordTrade counts a finished trade operation by its error class.
func RecordTrade(operation string, err error) {
	trades.WithLabelValues(operation, tradeStatus(err)).Inc()
}

// ObserveHistoryScan records how many logs a history rebuild decoded.
func ObserveHistoryScan(logs int) {
	historyLogs.Observe(float64(logs))
}

func tradeStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrPhase):
		return "finalized"
	case errors.Is(err, domain.ErrTransactionReverted):
		return "reverted"
	case errors.Is(err, domain.ErrRPCFailure):
		return "rpc_failure"
	case errors.Is(err, domain.ErrInvalidCredential),
		errors.Is(err, domain.ErrInvalidSlippage),
		errors.Is(err, domain.ErrPrecision),
		errors.Is(err, domain.ErrInsufficientInput):
		return "rejected"
	default:
		return "error"
	}
}

// InstrumentHandler wraps next with request count and latency collection.
// Routes are labelled by their ServeMux pattern.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack keeps WebSocket upgrades working behind the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
	}
	return h.Hijack()
}
