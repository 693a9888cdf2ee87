// Package metrics exposes Prometheus collectors for the feed, chat and
// persistence paths.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	pagesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metaphor",
			Subsystem: "source",
			Name:      "pages_total",
			Help:      "Story pages requested from the content API.",
		},
		[]string{"success"},
	)

	likesToggled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metaphor",
			Subsystem: "feed",
			Name:      "likes_toggled_total",
			Help:      "Like toggles applied, by resulting state.",
		},
		[]string{"liked"},
	)

	chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metaphor",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns completed, by outcome.",
		},
		[]string{"outcome"},
	)

	chatDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "metaphor",
			Subsystem: "chat",
			Name:      "responder_duration_seconds",
			Help:      "Time spent waiting for the chat responder.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	persistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "metaphor",
			Name:      "persist_failures_total",
			Help:      "Liked-set writes abandoned after all retries.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metaphor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	Registry.MustRegister(
		pagesFetched,
		likesToggled,
		chatTurns,
		chatDuration,
		persistFailures,
		httpRequests,
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func PageFetched(success bool) {
	pagesFetched.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func LikeToggled(liked bool) {
	likesToggled.WithLabelValues(strconv.FormatBool(liked)).Inc()
}

func ChatTurn(outcome string, took time.Duration) {
	chatTurns.WithLabelValues(outcome).Inc()
	chatDuration.Observe(took.Seconds())
}

func PersistFailed() {
	persistFailures.Inc()
}

// Middleware counts requests by route template so ids don't explode the
// label space.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
