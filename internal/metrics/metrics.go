package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts inbound HTTP requests per service.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediabridge",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediabridge",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 30, 120},
		},
		[]string{"service", "method"},
	)

	// UpstreamCallsTotal counts outbound backend calls by operation and result.
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediabridge",
			Name:      "upstream_calls_total",
			Help:      "Total outbound backend calls",
		},
		[]string{"backend", "operation", "status"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediabridge",
			Name:      "upstream_duration_seconds",
			Help:      "Outbound backend call duration in seconds (time to response headers)",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"backend", "operation"},
	)

	LeaseAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediabridge",
			Subsystem: "media",
			Name:      "lease_acquisitions_total",
			Help:      "Authorization handshakes performed against the object store",
		},
		[]string{"status"},
	)

	StreamedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediabridge",
			Subsystem: "media",
			Name:      "streamed_bytes_total",
			Help:      "Bytes streamed to callers",
		},
		[]string{"bucket"},
	)

	// SubWritesTotal counts individual store writes made by record updates.
	SubWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediabridge",
			Subsystem: "records",
			Name:      "sub_writes_total",
			Help:      "Record-store and payload-store writes by outcome",
		},
		[]string{"store", "outcome"},
	)
)

// RecordRequest records an inbound HTTP request.
func RecordRequest(service, method, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(service, method, status).Inc()
	RequestDuration.WithLabelValues(service, method).Observe(durationSec)
}

// RecordUpstream records an outbound backend call.
func RecordUpstream(backend, operation, status string, durationSec float64) {
	UpstreamCallsTotal.WithLabelValues(backend, operation, status).Inc()
	UpstreamDuration.WithLabelValues(backend, operation).Observe(durationSec)
}

// RecordLeaseAcquisition records an authorization handshake.
func RecordLeaseAcquisition(status string) {
	LeaseAcquisitionsTotal.WithLabelValues(status).Inc()
}

// RecordStreamedBytes records bytes written to a caller.
func RecordStreamedBytes(bucket string, n int64) {
	if n > 0 {
		StreamedBytesTotal.WithLabelValues(bucket).Add(float64(n))
	}
}

// RecordSubWrite records the outcome of one store write.
func RecordSubWrite(store, outcome string) {
	SubWritesTotal.WithLabelValues(store, outcome).Inc()
}
