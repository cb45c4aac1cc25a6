// Package metrics exposes Prometheus instrumentation for the daemon:
// stream fan-out throughput, subscriber population, booking decisions,
// and the HTTP surface.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesBroadcast = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telescoped_frames_broadcast_total",
			Help: "Spectrum frames delivered to subscriber queues.",
		},
		[]string{"telescope"},
	)

	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telescoped_frames_dropped_total",
			Help: "Frames dropped from slow subscriber queues (drop-oldest policy).",
		},
		[]string{"telescope"},
	)

	subscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "telescoped_stream_subscribers",
			Help: "Currently connected spectrum stream subscribers.",
		},
		[]string{"telescope"},
	)

	bookingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telescoped_booking_decisions_total",
			Help: "Booking requests by outcome (accepted, overlap).",
		},
		[]string{"outcome"},
	)

	commandRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telescoped_command_rejections_total",
			Help: "Control commands rejected by reason (not_owner, busy).",
		},
		[]string{"reason"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telescoped_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telescoped_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(framesBroadcast)
	prometheus.MustRegister(framesDropped)
	prometheus.MustRegister(subscribers)
	prometheus.MustRegister(bookingDecisions)
	prometheus.MustRegister(commandRejections)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
}

// FrameBroadcast records one frame queued for a subscriber of telescope.
func FrameBroadcast(telescope string) { framesBroadcast.WithLabelValues(telescope).Inc() }

// FrameDropped records one frame discarded from a slow subscriber queue.
func FrameDropped(telescope string) { framesDropped.WithLabelValues(telescope).Inc() }

// SubscriberDelta adjusts the live subscriber gauge for telescope.
func SubscriberDelta(telescope string, d int) {
	subscribers.WithLabelValues(telescope).Add(float64(d))
}

// BookingDecision records a booking request outcome.
func BookingDecision(outcome string) { bookingDecisions.WithLabelValues(outcome).Inc() }

// CommandRejected records a control command rejection.
func CommandRejected(reason string) { commandRejections.WithLabelValues(reason).Inc() }

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to WebSocket upgrades; the embedded
// interface alone would hide the underlying writer's Hijacker.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(duration)
	})
}
