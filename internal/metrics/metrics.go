// Package metrics provides Prometheus metrics for tmconn.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tmconn"
)

// Metrics contains all Prometheus metrics for a node.
type Metrics struct {
	// Handshake metrics
	HandshakesTotal   *prometheus.CounterVec
	HandshakeDuration prometheus.Histogram

	// Connection metrics
	PeersConnected  prometheus.Gauge
	PeerDisconnects *prometheus.CounterVec

	// Data transfer metrics
	BytesSent      *prometheus.CounterVec
	BytesReceived  *prometheus.CounterVec
	FramesSealed   prometheus.Counter
	FramesOpened   prometheus.Counter
	CryptoFailures prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HandshakesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Total secret connection handshakes by protocol version and result",
		}, []string{"version", "result"}),
		HandshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Secret connection handshake latency",
			Buckets:   prometheus.DefBuckets,
		}),

		PeersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_connected",
			Help:      "Number of currently connected peers",
		}),
		PeerDisconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_disconnects_total",
			Help:      "Total peer disconnections by reason",
		}, []string{"reason"}),

		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total plaintext bytes written by transport type",
		}, []string{"transport"}),
		BytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total plaintext bytes read by transport type",
		}, []string{"transport"}),
		FramesSealed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sealed_total",
			Help:      "Total sealed frames written",
		}),
		FramesOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_opened_total",
			Help:      "Total sealed frames opened",
		}),
		CryptoFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crypto_failures_total",
			Help:      "Total frame authentication and signature verification failures",
		}),
	}
}
