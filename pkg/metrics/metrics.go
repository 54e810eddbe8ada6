// Package metrics exposes training-loop metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "netanomaly"

// Cycle results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds the training-loop collectors.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	loss          prometheus.Gauge
	accuracy      prometheus.Gauge
	rows          prometheus.Gauge
	artifactBytes prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves them
// unregistered, which is useful in tests and one-shot runs.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trainer",
			Name:      "cycles_total",
			Help:      "Training cycles by result.",
		}, []string{"result", "kind"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trainer",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a training cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		loss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "loss",
			Help:      "Binary cross-entropy of the final epoch of the last cycle.",
		}),
		accuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "accuracy",
			Help:      "Training accuracy of the final epoch of the last cycle.",
		}),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "training_rows",
			Help:      "Rows in the last training batch.",
		}),
		artifactBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "artifact_size_bytes",
			Help:      "Size of the persisted model artifact.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trainer",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.cycles, m.cycleDuration, m.loss, m.accuracy, m.rows, m.artifactBytes, m.lastSuccess)
	}
	return m
}

// Success records a completed cycle.
func (m *Metrics) Success(d time.Duration, rows int, loss, accuracy float64, artifactBytes int64) {
	m.cycles.WithLabelValues(ResultSuccess, "").Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.loss.Set(loss)
	m.accuracy.Set(accuracy)
	m.rows.Set(float64(rows))
	m.artifactBytes.Set(float64(artifactBytes))
	m.lastSuccess.SetToCurrentTime()
}

// Failure records a failed cycle with its error kind.
func (m *Metrics) Failure(d time.Duration, kind string) {
	m.cycles.WithLabelValues(ResultError, kind).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// Handler returns an HTTP handler exposing /metrics and /health.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"netanomaly"}`))
	})
	return mux
}

// Serve runs the metrics server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("metrics server listening", zap.String("addr", addr))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
