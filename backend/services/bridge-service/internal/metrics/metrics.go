package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments of the ingestion pipeline.
type Metrics struct {
	SessionActive      prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	LinesRead          prometheus.Counter
	FramesSkipped      *prometheus.CounterVec
	ReadErrors         prometheus.Counter
	ReadingsDispatched prometheus.Counter
	UploadQueueDropped prometheus.Counter
	Uploads            *prometheus.CounterVec
	UploadLatency      prometheus.Histogram
	NotifyClients      prometheus.Gauge
}

// New registers the instruments on reg under namespace.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a measurement session is active.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle transitions by event.",
		}, []string{"event"}),
		LinesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Complete lines read from the device during sessions.",
		}),
		FramesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Device lines that did not yield a reading, by reason.",
		}, []string{"reason"}),
		ReadErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Transient serial read failures.",
		}),
		ReadingsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_dispatched_total",
			Help:      "Readings handed to the upload queue.",
		}),
		UploadQueueDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_queue_dropped_total",
			Help:      "Readings superseded in the upload queue before they were sent.",
		}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by result.",
		}, []string{"result"}),
		UploadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_latency_seconds",
			Help:      "Time spent writing one reading to the remote store.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		NotifyClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notify_clients",
			Help:      "Connected notification websocket clients.",
		}),
	}
}

// NewUnregistered builds a Metrics on a private registry, for tests and tools.
func NewUnregistered() *Metrics {
	return New("test", prometheus.NewRegistry())
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
