package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goldfish-inc/discoeval"
	"github.com/goldfish-inc/discoeval/sink"
)

// Metrics holds Prometheus metrics
type Metrics struct {
	examplesRead *prometheus.CounterVec
	readErrors   *prometheus.CounterVec
	readDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

func initMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		examplesRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoeval_examples_read_total",
				Help: "Total number of examples parsed from split files",
			},
			[]string{"task", "split"},
		),
		readErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoeval_read_errors_total",
				Help: "Split reads that failed, by error kind",
			},
			[]string{"task", "split", "kind"},
		),
		readDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discoeval_split_read_duration_seconds",
				Help:    "Time taken to read and write one split",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"task"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoeval_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"path", "status"},
		),
	}

	reg.MustRegister(
		m.examplesRead,
		m.readErrors,
		m.readDuration,
		m.httpRequests,
	)

	return m
}

// observeSplit records the outcome of one split read.
func (m *Metrics) observeSplit(task string, split discoeval.Split, n int, elapsed time.Duration, err error) {
	m.examplesRead.WithLabelValues(task, string(split)).Add(float64(n))
	m.readDuration.WithLabelValues(task).Observe(elapsed.Seconds())
	if err != nil {
		m.readErrors.WithLabelValues(task, string(split), errorKind(err)).Inc()
	}
}

// observeOpenError records a split that failed before any record was read.
func (m *Metrics) observeOpenError(task string, split discoeval.Split, err error) {
	m.readErrors.WithLabelValues(task, string(split), errorKind(err)).Inc()
}

func (m *Metrics) observeRequest(path string, status int) {
	m.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, discoeval.ErrConfiguration):
		return "configuration"
	case errors.Is(err, discoeval.ErrSourceNotFound):
		return "not_found"
	case errors.Is(err, discoeval.ErrMalformedRecord):
		return "malformed"
	case errors.Is(err, discoeval.ErrEncoding):
		return "encoding"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready.
const statusClientClosedRequest = 499

// statusFor maps read errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, discoeval.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, discoeval.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, discoeval.ErrMalformedRecord), errors.Is(err, discoeval.ErrEncoding):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// instrumented wraps a loader with split metrics.
type instrumented struct {
	next    sink.Loader
	metrics *Metrics
}

func (i instrumented) Load(ctx context.Context, r *discoeval.Reader, split discoeval.Split) (int, error) {
	start := time.Now()
	n, err := i.next.Load(ctx, r, split)
	i.metrics.observeSplit(r.Task().Name, split, n, time.Since(start), err)
	return n, err
}

func (i instrumented) OpenFailed(task *discoeval.Task, split discoeval.Split, err error) {
	i.metrics.observeOpenError(task.Name, split, err)
}
