package services

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/krshsl/nora/interview"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nora",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nora",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	modelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nora",
		Name:      "model_calls_total",
		Help:      "Model calls by operation and outcome",
	}, []string{"op", "outcome"})

	modelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nora",
		Name:      "model_call_duration_seconds",
		Help:      "Duration of model calls in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"op"})

	feedbackJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nora",
		Name:      "feedback_jobs_total",
		Help:      "Background feedback jobs by outcome",
	}, []string{"outcome"})

	feedbackFitScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nora",
		Name:      "feedback_fit_score",
		Help:      "Distribution of extracted fit scores",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	sweptInterviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nora",
		Name:      "sweeper_actions_total",
		Help:      "Interviews ended or re-queued by the sweeper",
	}, []string{"action"})
)

// MetricsMiddleware records request metrics labelled by chi route pattern
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// MetricsHandler exposes the default Prometheus registry
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func observeModelCall(op string, started time.Time, err error) {
	modelLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var me *interview.ModelCallError
		if errors.As(err, &me) {
			outcome = string(me.Kind)
		}
	}
	modelCalls.WithLabelValues(op, outcome).Inc()
}

// RecordFeedbackEvent is a feedback listener that updates job metrics
func RecordFeedbackEvent(ev interview.FeedbackEvent) {
	if ev.Err != nil {
		feedbackJobs.WithLabelValues("failed").Inc()
		return
	}
	feedbackJobs.WithLabelValues("generated").Inc()
	if ev.Feedback != nil {
		feedbackFitScore.Observe(float64(ev.Feedback.FitScore))
	}
}
