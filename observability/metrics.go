package observability

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	cdperrors "cdpvault/core/errors"
	"cdpvault/native/cdp/fixed"
)

// CDPMetrics tracks engine operations, liquidation activity, ledger totals
// and the daemon's HTTP traffic.
type CDPMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	events       *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	takes        *prometheus.CounterVec
	ledger       *prometheus.GaugeVec

	requests  *prometheus.CounterVec
	reqTime   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	cdpMetricsOnce sync.Once
	cdpRegistry    *CDPMetrics
)

// CDP returns the lazily-initialised metrics registered with the default
// prometheus registerer.
func CDP() *CDPMetrics {
	cdpMetricsOnce.Do(func() {
		cdpRegistry = NewCDPMetrics(prometheus.DefaultRegisterer)
	})
	return cdpRegistry
}

// NewCDPMetrics builds the collectors and registers them with reg.
func NewCDPMetrics(reg prometheus.Registerer) *CDPMetrics {
	m := &CDPMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdp",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations segmented by operation and result code.",
		}, []string{"op", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cdp",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution for engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdp",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Committed engine events segmented by type.",
		}, []string{"type"}),
		liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdp",
			Subsystem: "liquidation",
			Name:      "barks_total",
			Help:      "Positions sent to auction segmented by collateral type.",
		}, []string{"ilk"}),
		takes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdp",
			Subsystem: "auction",
			Name:      "takes_total",
			Help:      "Auction purchases segmented by collateral type.",
		}, []string{"ilk"}),
		ledger: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cdp",
			Subsystem: "ledger",
			Name:      "amount",
			Help:      "Ledger totals in stablecoin units (debt, vice, surplus, deficit, queued).",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests segmented by route, method and status.",
		}, []string{"route", "method", "status"}),
		reqTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cdp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for HTTP handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdp",
			Subsystem: "http",
			Name:      "throttles_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.operations, m.latency, m.events, m.liquidations, m.takes, m.ledger,
			m.requests, m.reqTime, m.throttles,
		)
	}
	return m
}

// ObserveOperation records the outcome of one engine operation.
func (m *CDPMetrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, cdperrors.Code(err)).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetLedger publishes a ledger total [rad] under kind.
func (m *CDPMetrics) SetLedger(kind string, value *uint256.Int) {
	if m == nil || value == nil {
		return
	}
	m.ledger.WithLabelValues(kind).Set(radFloat(value))
}

// ObserveRequest records an HTTP request. The status should be the code that
// was written to the response writer.
func (m *CDPMetrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	m.reqTime.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle counts a request rejected for reason.
func (m *CDPMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

func radFloat(value *uint256.Int) float64 {
	f, err := strconv.ParseFloat(fixed.Format(value, fixed.RadDecimals), 64)
	if err != nil {
		return 0
	}
	return f
}
