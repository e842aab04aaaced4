package metrics

import (
	"context"

	"github.com/maltedev/mercadona-scraper/internal/crawl"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for crawl runs.
type Metrics struct {
	Registry        *prometheus.Registry
	AttemptsTotal   *prometheus.CounterVec
	LeavesTotal     *prometheus.CounterVec
	ProductsTotal   prometheus.Counter
	DroppedTotal    prometheus.Counter
	BackoffSeconds  prometheus.Histogram
	RunsTotal       prometheus.Counter
	LastRunRows     prometheus.Gauge
	LastRunMissing  prometheus.Gauge
	LastRunDuration prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercadona_leaf_attempts_total",
			Help: "Leaf extraction attempts by outcome.",
		},
		[]string{"outcome"},
	)
	leaves := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercadona_leaves_total",
			Help: "Leaves that reached a final state, by state.",
		},
		[]string{"state"},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mercadona_products_scraped_total",
			Help: "Product rows committed to the accumulator.",
		},
	)
	dropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mercadona_products_dropped_total",
			Help: "Products skipped because their URL had no product code.",
		},
	)
	backoff := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mercadona_backoff_seconds",
			Help:    "Waits scheduled between attempts.",
			Buckets: []float64{15, 20, 25, 30, 60, 120, 180, 240, 300},
		},
	)
	runs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mercadona_runs_total",
			Help: "Finished crawl runs.",
		},
	)
	lastRows := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mercadona_last_run_rows",
		Help: "Product rows in the last finished run.",
	})
	lastMissing := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mercadona_last_run_missing_leaves",
		Help: "Missing leaves in the last finished run.",
	})
	lastDuration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mercadona_last_run_duration_seconds",
		Help: "Wall time of the last finished run.",
	})

	registry.MustRegister(attempts, leaves, products, dropped, backoff, runs, lastRows, lastMissing, lastDuration)

	return &Metrics{
		Registry:        registry,
		AttemptsTotal:   attempts,
		LeavesTotal:     leaves,
		ProductsTotal:   products,
		DroppedTotal:    dropped,
		BackoffSeconds:  backoff,
		RunsTotal:       runs,
		LastRunRows:     lastRows,
		LastRunMissing:  lastMissing,
		LastRunDuration: lastDuration,
	}
}

var _ crawl.Reporter = (*Metrics)(nil)

func (m *Metrics) RunStarted(context.Context, string, int) {}

// LeafSucceeded counts the attempt and its committed rows.
func (m *Metrics) LeafSucceeded(_ context.Context, ev crawl.LeafEvent) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(ev.Outcome.String()).Inc()
	m.LeavesTotal.WithLabelValues("succeeded").Inc()
	m.ProductsTotal.Add(float64(ev.Rows))
	m.DroppedTotal.Add(float64(ev.Dropped))
	m.BackoffSeconds.Observe(ev.Wait.Seconds())
}

// LeafFailed counts a failed attempt, the last one of an exhausted leaf
// included.
func (m *Metrics) LeafFailed(_ context.Context, ev crawl.LeafEvent) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(ev.Outcome.String()).Inc()
	m.BackoffSeconds.Observe(ev.Wait.Seconds())
}

// LeafMissing follows the LeafFailed of the same attempt, so only the leaf
// is counted here.
func (m *Metrics) LeafMissing(_ context.Context, _ crawl.LeafEvent) {
	if m == nil {
		return
	}
	m.LeavesTotal.WithLabelValues("missing").Inc()
}

func (m *Metrics) RunFinished(_ context.Context, summary models.RunSummary) {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
	m.LastRunRows.Set(float64(summary.Rows))
	m.LastRunMissing.Set(float64(summary.Missing))
	m.LastRunDuration.Set(summary.Duration.Seconds())
}
