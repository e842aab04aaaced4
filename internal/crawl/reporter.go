package crawl

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/catalog"
	"github.com/maltedev/mercadona-scraper/internal/models"
)

// LeafEvent describes one finished attempt at a leaf.
type LeafEvent struct {
	RunID        string
	Leaf         models.CategoryLeaf
	Attempt      int
	AttemptsLeft int
	Outcome      catalog.Outcome
	Rows         int
	Dropped      int
	TotalRows    int
	Wait         time.Duration
	Err          error
}

// Reporter observes a crawl run. Implementations must not block the run for
// long and cannot fail it.
type Reporter interface {
	RunStarted(ctx context.Context, runID string, leaves int)
	LeafSucceeded(ctx context.Context, ev LeafEvent)
	LeafFailed(ctx context.Context, ev LeafEvent)
	LeafMissing(ctx context.Context, ev LeafEvent)
	RunFinished(ctx context.Context, summary models.RunSummary)
}

// MultiReporter fans every call out to each reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) RunStarted(ctx context.Context, runID string, leaves int) {
	for _, r := range m {
		r.RunStarted(ctx, runID, leaves)
	}
}

func (m MultiReporter) LeafSucceeded(ctx context.Context, ev LeafEvent) {
	for _, r := range m {
		r.LeafSucceeded(ctx, ev)
	}
}

func (m MultiReporter) LeafFailed(ctx context.Context, ev LeafEvent) {
	for _, r := range m {
		r.LeafFailed(ctx, ev)
	}
}

func (m MultiReporter) LeafMissing(ctx context.Context, ev LeafEvent) {
	for _, r := range m {
		r.LeafMissing(ctx, ev)
	}
}

func (m MultiReporter) RunFinished(ctx context.Context, summary models.RunSummary) {
	for _, r := range m {
		r.RunFinished(ctx, summary)
	}
}

type NopReporter struct{}

func (NopReporter) RunStarted(context.Context, string, int)        {}
func (NopReporter) LeafSucceeded(context.Context, LeafEvent)       {}
func (NopReporter) LeafFailed(context.Context, LeafEvent)          {}
func (NopReporter) LeafMissing(context.Context, LeafEvent)         {}
func (NopReporter) RunFinished(context.Context, models.RunSummary) {}

// LogReporter writes run progress to a slog.Logger.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With("component", "crawl_progress")}
}

func (r *LogReporter) RunStarted(_ context.Context, runID string, leaves int) {
	r.logger.Info("crawl started", "run_id", runID, "leaves", leaves)
}

func (r *LogReporter) LeafSucceeded(_ context.Context, ev LeafEvent) {
	r.logger.Info("subcategory finished",
		"leaf", ev.Leaf.String(),
		"attempt", ev.Attempt,
		"products", ev.Rows,
		"dropped", ev.Dropped,
		"total_rows", ev.TotalRows,
		"wait", ev.Wait.Round(time.Second).String())
}

func (r *LogReporter) LeafFailed(_ context.Context, ev LeafEvent) {
	r.logger.Warn("subcategory attempt failed",
		"leaf", ev.Leaf.String(),
		"attempt", ev.Attempt,
		"attempts_left", ev.AttemptsLeft,
		"outcome", ev.Outcome.String(),
		"wait", ev.Wait.Round(time.Second).String(),
		"error", ev.Err)
}

func (r *LogReporter) LeafMissing(_ context.Context, ev LeafEvent) {
	r.logger.Error("subcategory added to missing list",
		"leaf", ev.Leaf.String(),
		"attempts", ev.Attempt,
		"error", ev.Err)
}

func (r *LogReporter) RunFinished(_ context.Context, s models.RunSummary) {
	r.logger.Info("crawl finished",
		"run_id", s.RunID,
		"leaves", s.Leaves,
		"succeeded", s.Succeeded,
		"missing", s.Missing,
		"rows", s.Rows,
		"dropped", s.Dropped,
		"errors", s.Errors,
		"duration", s.Duration.Round(time.Second).String())
}
