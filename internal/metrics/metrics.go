// Package metrics records transfer and reconciliation counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bucketsync"

// Transfer outcomes used as the status label.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Recorder owns a private registry. A nil *Recorder discards everything.
type Recorder struct {
	registry     *prometheus.Registry
	files        *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	diffEntries  *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	checksTotal  prometheus.Counter
	lastDiverged prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		files: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed by sync operations",
		}, []string{"op", "status"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes transferred by sync operations",
		}, []string{"op"}),
		diffEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_entries_total",
			Help:      "Entries reported by reconciliation, by category",
		}, []string{"category"}),
		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of repository operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		checksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Reconciliation passes run",
		}),
		lastDiverged: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_check_entries",
			Help:      "Entries found by the most recent reconciliation pass",
		}),
	}
}

func (r *Recorder) File(op, status string, bytes int64) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(op, status).Inc()
	if bytes > 0 {
		r.bytes.WithLabelValues(op).Add(float64(bytes))
	}
}

// Check records one reconciliation pass and its per-category sizes.
func (r *Recorder) Check(newFiles, modified, deleted int) {
	if r == nil {
		return
	}
	r.checksTotal.Inc()
	r.diffEntries.WithLabelValues("new").Add(float64(newFiles))
	r.diffEntries.WithLabelValues("modified").Add(float64(modified))
	r.diffEntries.WithLabelValues("deleted").Add(float64(deleted))
	r.lastDiverged.Set(float64(newFiles + modified + deleted))
}

// Observe records how long op took since start.
func (r *Recorder) Observe(op string, start time.Time) {
	if r == nil {
		return
	}
	r.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server start", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
