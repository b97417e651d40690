package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation names used as metric labels.
const (
	OpIndex          = "index"
	OpSearchAndIndex = "search_and_index"
	OpInfer          = "infer"
	OpReindex        = "reindex"
)

// Telemetry records agent activity as prometheus metrics. A nil *Telemetry
// is valid and records nothing.
type Telemetry struct {
	messages   *prometheus.CounterVec
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	folders    *prometheus.CounterVec
}

// New registers the researcher metrics on reg.
func New(reg prometheus.Registerer) (*Telemetry, error) {
	t := &Telemetry{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "researcher_messages_total",
			Help: "Protocol messages handled, by action and outcome.",
		}, []string{"action", "outcome"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "researcher_operations_total",
			Help: "Pipeline operations, by operation and status.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "researcher_operation_duration_seconds",
			Help:    "Pipeline operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation"}),
		folders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "researcher_indexed_folders_total",
			Help: "Research folders submitted to the knowledge store, by status.",
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{t.messages, t.operations, t.durations, t.folders} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return t, nil
}

// RecordMessage counts one handled message. outcome is "reply", "terminate" or "error".
func (t *Telemetry) RecordMessage(action, outcome string) {
	if t == nil {
		return
	}
	t.messages.WithLabelValues(action, outcome).Inc()
}

// Track starts timing op; call the returned func with the operation's error.
func (t *Telemetry) Track(op string) func(error) {
	if t == nil {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		t.durations.WithLabelValues(op).Observe(time.Since(start).Seconds())
		t.operations.WithLabelValues(op, status(err)).Inc()
	}
}

// RecordFolder counts one folder indexing attempt.
func (t *Telemetry) RecordFolder(err error) {
	if t == nil {
		return
	}
	t.folders.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Serve exposes gatherer on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
