package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the scan pipeline and its HTTP surface
var (
	DecodesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_decodes_total",
			Help: "Total number of raw decodes received from scanners",
		},
	)

	DuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_duplicates_total",
			Help: "Total number of decodes dropped by the dedup cooldown",
		},
	)

	AcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_events_accepted_total",
			Help: "Total number of scan events created",
		},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_deliveries_total",
			Help: "Total number of completed delivery attempts by final status",
		},
		[]string{"status"},
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_delivery_duration_seconds",
			Help:    "Duration of delivery attempts",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeliveriesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_deliveries_in_flight",
			Help: "Number of delivery attempts currently awaiting a response",
		},
	)

	// Standard HTTP metrics, recorded by Instrument
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
)

// Register registers all metrics with the given registerer
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		DecodesTotal,
		DuplicatesTotal,
		AcceptedTotal,
		DeliveriesTotal,
		DeliveryDuration,
		DeliveriesInFlight,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Instrument wraps an HTTP handler with request count and latency recording
func Instrument(handlerName string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(wrapped, r)

		duration := time.Since(startTime).Seconds()
		HTTPRequestDuration.WithLabelValues(handlerName, r.Method).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(handlerName, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
