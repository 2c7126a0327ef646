package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/turtacn/keytrust/internal/domain/service"
)

var _ service.Metrics = (*Metrics)(nil)

// Metrics manages the Prometheus metrics and implements service.Metrics.
type Metrics struct {
	TokenIssueRequests *prometheus.CounterVec
	TokenIssueLatency  prometheus.Histogram
	TokenVerifications *prometheus.CounterVec
	TokenVerifyLatency prometheus.Histogram
	TokenRevocations   prometheus.Counter
	KeySetLookups      *prometheus.CounterVec
	KidFallbacks       *prometheus.CounterVec
	KeyRotations       *prometheus.CounterVec
	ActiveKeyRemaining prometheus.Gauge
	KeysPurged         prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokenIssueRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keytrust_token_issue_requests_total",
				Help: "Total number of token issue requests.",
			},
			[]string{"result"},
		),
		TokenIssueLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keytrust_token_issue_latency_seconds",
				Help:    "Latency of token signing.",
				Buckets: prometheus.DefBuckets,
			},
		),
		TokenVerifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keytrust_token_verifications_total",
				Help: "Token verifications by result.",
			},
			[]string{"result"},
		),
		TokenVerifyLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keytrust_token_verify_latency_seconds",
				Help:    "Latency of token verification.",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
			},
		),
		TokenRevocations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "keytrust_token_revocations_total",
				Help: "Total number of token revocations.",
			},
		),
		KeySetLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keytrust_keyset_lookups_total",
				Help: "Verification key set lookups by cache result.",
			},
			[]string{"result"},
		),
		KidFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keytrust_kid_fallback_total",
				Help: "Verifications that tried every trusted key.",
			},
			[]string{"reason"},
		),
		KeyRotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keytrust_key_rotations_total",
				Help: "Key rotation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		ActiveKeyRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "keytrust_active_key_remaining_seconds",
				Help: "Remaining validity of the active signing key.",
			},
		),
		KeysPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "keytrust_keys_purged_total",
				Help: "Expired signing keys deleted from the store.",
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keytrust_http_requests_total",
				Help: "HTTP requests by route, method and status.",
			},
			[]string{"path", "method", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keytrust_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}
}

func (m *Metrics) RecordTokenIssue(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.TokenIssueRequests.WithLabelValues(result).Inc()
	m.TokenIssueLatency.Observe(duration.Seconds())
}

func (m *Metrics) RecordTokenVerify(result string, duration time.Duration) {
	m.TokenVerifications.WithLabelValues(result).Inc()
	m.TokenVerifyLatency.Observe(duration.Seconds())
}

func (m *Metrics) RecordTokenRevoke() {
	m.TokenRevocations.Inc()
}

func (m *Metrics) RecordKeySetLookup(result string) {
	m.KeySetLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordKidFallback(reason string) {
	m.KidFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordKeyRotation(outcome string) {
	m.KeyRotations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordActiveKeyExpiry(remaining time.Duration) {
	m.ActiveKeyRemaining.Set(remaining.Seconds())
}

func (m *Metrics) RecordKeysPurged(count int64) {
	m.KeysPurged.Add(float64(count))
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(path, method string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

//Personal.AI order the ending
