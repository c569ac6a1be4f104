package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the protection subsystem
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Token metrics
	TokensIssuedTotal       *prometheus.CounterVec
	TokenVerificationsTotal *prometheus.CounterVec

	// Gate metrics
	RateLimitExceededTotal *prometheus.CounterVec
	AbuseDetectedTotal     *prometheus.CounterVec
	ScopeDeniedTotal       *prometheus.CounterVec

	// Cipher metrics
	ChunksServedTotal       prometheus.Counter
	DecryptionFailuresTotal prometheus.Counter

	// Event sink metrics
	SecurityEventsDropped prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the metrics singleton, registering on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "soundvault_http_requests_total",
					Help: "Total HTTP requests by method, path and status",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "soundvault_http_request_duration_seconds",
					Help:    "HTTP request latency",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path", "status"},
			),
			TokensIssuedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "soundvault_tokens_issued_total",
					Help: "Access tokens issued, by outcome",
				},
				[]string{"outcome"},
			),
			TokenVerificationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "soundvault_token_verifications_total",
					Help: "Token verifications, by outcome",
				},
				[]string{"outcome"},
			),
			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "soundvault_rate_limit_exceeded_total",
					Help: "Requests denied by the rate limiter, by route class",
				},
				[]string{"route_class"},
			),
			AbuseDetectedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "soundvault_abuse_detected_total",
					Help: "Requests flagged by the abuse detector, by reason",
				},
				[]string{"reason"},
			),
			ScopeDeniedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "soundvault_scope_denied_total",
					Help: "Requests denied by the capability gate, by endpoint",
				},
				[]string{"endpoint"},
			),
			ChunksServedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "soundvault_chunks_served_total",
					Help: "Decrypted chunks served",
				},
			),
			DecryptionFailuresTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "soundvault_decryption_failures_total",
					Help: "Chunk decryption failures",
				},
			),
			SecurityEventsDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "soundvault_security_events_dropped_total",
					Help: "Security events dropped under sink backpressure",
				},
			),
		}
	})
	return instance
}
