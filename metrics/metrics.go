// Package metrics exposes Prometheus instrumentation for the orchestrator and a
// small HTTP server for the /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruteri/npa-publisher-orchestrator/common"
)

var (
	// ReconcileRuns counts reconcile invocations by trigger ("api", "periodic", "cli").
	ReconcileRuns *prometheus.CounterVec

	// UnitOutcomes counts terminal per-unit pipeline outcomes by result
	// ("connected", "failed", "destroyed") and the step at which failures occurred.
	UnitOutcomes *prometheus.CounterVec

	// PollAttempts counts individual poll observations by poller ("heartbeat", "command").
	PollAttempts *prometheus.CounterVec

	// ReconcileDuration observes wall-clock duration of whole reconcile runs.
	ReconcileDuration prometheus.Histogram
)

func init() {
	registerCollectors(common.PackageName)
}

func registerCollectors(namespace string) {
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_runs_total",
		Help:      "Number of reconcile runs by trigger.",
	}, []string{"trigger"})

	UnitOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unit_outcomes_total",
		Help:      "Terminal publisher unit outcomes by result and step.",
	}, []string{"result", "step"})

	PollAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_attempts_total",
		Help:      "Poll observations against AWS by poller type.",
	}, []string{"poller"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconcile runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
}

// MetricsServer serves the Prometheus /metrics endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr.
func New(namespace, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
