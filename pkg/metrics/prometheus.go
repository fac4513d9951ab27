package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry            *prometheus.Registry
	advancesProcessed   prometheus.Counter
	advancesFailed      prometheus.Counter
	advancesSkipped     prometheus.Counter
	processingDuration  prometheus.Histogram
	obligationsByStatus *prometheus.GaugeVec
	dueBacklog          *prometheus.GaugeVec
	mu                  sync.RWMutex
	logger              *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &MetricsCollector{
		registry: registry,
		advancesProcessed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "obligation_advances_total",
			Help: "Total number of obligation occurrences materialized and advanced",
		}),
		advancesFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "obligation_advances_failed_total",
			Help: "Total number of advances that failed and were left due for retry",
		}),
		advancesSkipped: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "obligation_advances_skipped_total",
			Help: "Total number of advances skipped because another process won the race",
		}),
		processingDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "obligation_processing_duration_seconds",
			Help:    "Time taken by a single processing run",
			Buckets: prometheus.DefBuckets,
		}),
		obligationsByStatus: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "obligations_by_status",
			Help: "Number of obligations per lifecycle status",
		}, []string{"workspace_id", "status"}),
		dueBacklog: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "obligation_due_backlog",
			Help: "Obligations due at the start of the last processing run",
		}, []string{"workspace_id"}),
		logger: logger,
	}

	return collector
}

func (m *MetricsCollector) RecordProcessingRun(duration time.Duration, processed, failed, skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.advancesProcessed.Add(float64(processed))
	m.advancesFailed.Add(float64(failed))
	m.advancesSkipped.Add(float64(skipped))
	m.processingDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) SetDueBacklog(workspaceID string, backlog int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dueBacklog.WithLabelValues(workspaceID).Set(float64(backlog))
}

func (m *MetricsCollector) SetObligationsByStatus(workspaceID, status string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obligationsByStatus.WithLabelValues(workspaceID, status).Set(float64(count))
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
