// Package metrics exposes import progress as Prometheus metrics. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triplegraph"

// Metrics holds the importer's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	entitiesProduced *prometheus.CounterVec
	entitiesConsumed *prometheus.CounterVec
	commits          *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
	phaseSeconds     *prometheus.GaugeVec
	verticesCreated  prometheus.Counter
	edgesCreated     *prometheus.CounterVec
	edgesUpdated     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entitiesProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_produced_total",
			Help:      "Entities pushed onto the work queue.",
		}, []string{"phase"}),
		entitiesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_consumed_total",
			Help:      "Entities processed by workers.",
		}, []string{"phase"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Store commits issued by workers.",
		}, []string{"phase"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Entities waiting in the work queue.",
		}, []string{"phase"}),
		phaseSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of the last completed run of each phase.",
		}, []string{"phase"}),
		verticesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vertices_created_total",
			Help:      "Vertices created for topic entities.",
		}),
		edgesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_created_total",
			Help:      "Edges created, by label.",
		}, []string{"label"}),
		edgesUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_updated_total",
			Help:      "Existing edges re-weighted, by label.",
		}, []string{"label"}),
	}
	m.registry.MustRegister(
		m.entitiesProduced, m.entitiesConsumed, m.commits, m.queueDepth,
		m.phaseSeconds, m.verticesCreated, m.edgesCreated, m.edgesUpdated,
	)
	return m
}

// Registry returns the registry holding the importer's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EntityProduced(phase string) {
	if m == nil {
		return
	}
	m.entitiesProduced.WithLabelValues(phase).Inc()
}

func (m *Metrics) EntityConsumed(phase string) {
	if m == nil {
		return
	}
	m.entitiesConsumed.WithLabelValues(phase).Inc()
}

func (m *Metrics) Committed(phase string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(phase).Inc()
}

func (m *Metrics) QueueDepth(phase string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(phase).Set(float64(n))
}

func (m *Metrics) PhaseDone(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseSeconds.WithLabelValues(phase).Set(d.Seconds())
}

func (m *Metrics) VertexCreated() {
	if m == nil {
		return
	}
	m.verticesCreated.Inc()
}

func (m *Metrics) EdgeCreated(label string) {
	if m == nil {
		return
	}
	m.edgesCreated.WithLabelValues(label).Inc()
}

func (m *Metrics) EdgeUpdated(label string) {
	if m == nil {
		return
	}
	m.edgesUpdated.WithLabelValues(label).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics: serving", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
