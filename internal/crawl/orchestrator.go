package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/mercadona-scraper/internal/catalog"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/maltedev/mercadona-scraper/internal/ratelimit"
)

// DefaultAttempts is the number of attempts each leaf gets per run.
const DefaultAttempts = 4

var ErrCheckpoint = errors.New("checkpoint write failed")

// CheckpointSink receives the full accumulated table after every successful
// leaf and must replace whatever it stored before. It must not keep rows.
type CheckpointSink interface {
	WriteSnapshot(rows []models.ProductRecord) error
}

type Backoff interface {
	NormalWait() time.Duration
	ErrorWait(errorsSoFar int) time.Duration
	RateLimitWait(errorsSoFar int) time.Duration
}

type Config struct {
	Extractor catalog.LeafExtractor
	Sink      CheckpointSink
	Backoff   Backoff
	Sleeper   ratelimit.Sleeper
	Reporter  Reporter
	// Attempts is the total number of tries per leaf, the first included.
	Attempts int
}

// Result is everything a run produced. On cancellation it holds the state
// reached so far, and Pending lists the leaves that were neither committed
// nor given up, in input order.
type Result struct {
	Rows    []models.ProductRecord
	Missing []models.MissingLeaf
	Pending []models.MissingLeaf
	Summary models.RunSummary
}

// Unfinished is every leaf a follow-up run has to visit: the exhausted ones
// first, then those the run never settled.
func (r *Result) Unfinished() []models.MissingLeaf {
	return append(append([]models.MissingLeaf(nil), r.Missing...), r.Pending...)
}

// Orchestrator visits leaves strictly in order, retrying failed ones with
// backoff and demoting exhausted ones to the missing list.
type Orchestrator struct {
	extractor catalog.LeafExtractor
	sink      CheckpointSink
	backoff   Backoff
	sleeper   ratelimit.Sleeper
	reporter  Reporter
	attempts  int
	logger    *slog.Logger
	now       func() time.Time
	newRunID  func() string
}

func New(cfg Config, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		extractor: cfg.Extractor,
		sink:      cfg.Sink,
		backoff:   cfg.Backoff,
		sleeper:   cfg.Sleeper,
		reporter:  cfg.Reporter,
		attempts:  cfg.Attempts,
		logger:    logger.With("component", "crawl_orchestrator"),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	if o.sleeper == nil {
		o.sleeper = ratelimit.TimerSleeper{}
	}
	if o.reporter == nil {
		o.reporter = NopReporter{}
	}
	if o.attempts <= 0 {
		o.attempts = DefaultAttempts
	}
	return o
}

// run is the state owned by one call to Run.
type run struct {
	id      string
	rows    []models.ProductRecord
	missing []models.MissingLeaf
	errors  int
	done    int
	dropped int
	// settled counts leaves that reached success or missing.
	settled int
	started time.Time
}

// Run crawls leaves in order. It returns an error only when the context ends
// or a checkpoint cannot be written; a failing leaf never aborts the run.
func (o *Orchestrator) Run(ctx context.Context, leaves []models.CategoryLeaf) (*Result, error) {
	r := &run{
		id:      o.newRunID(),
		rows:    []models.ProductRecord{},
		missing: []models.MissingLeaf{},
		started: o.now(),
	}
	o.reporter.RunStarted(ctx, r.id, len(leaves))

	for _, leaf := range leaves {
		if err := o.crawlLeaf(ctx, r, leaf); err != nil {
			result := o.finish(ctx, r, len(leaves))
			for _, pending := range leaves[r.settled:] {
				result.Pending = append(result.Pending, models.MissingLeaf{Category: pending.Category, Subcategory: pending.Subcategory})
			}
			return result, err
		}
	}

	return o.finish(ctx, r, len(leaves)), nil
}

func (o *Orchestrator) crawlLeaf(ctx context.Context, r *run, leaf models.CategoryLeaf) error {
	state := NewLeafState(o.attempts)

	for !state.Phase.Terminal() {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempt := o.attempts - state.AttemptsLeft + 1
		state.Phase = PhaseAttempting
		o.logger.Debug("attempting subcategory", "leaf", leaf.String(), "attempt", attempt)

		result := o.extractor.ExtractLeaf(ctx, leaf)
		// an attempt cut short by cancellation says nothing about the leaf
		if err := ctx.Err(); err != nil {
			return err
		}

		var action Action
		state, action = Transition(state, result.Outcome)

		ev := LeafEvent{
			RunID:        r.id,
			Leaf:         leaf,
			Attempt:      attempt,
			AttemptsLeft: state.AttemptsLeft,
			Outcome:      result.Outcome,
			Err:          result.Err,
		}

		var wait time.Duration
		switch action {
		case ActionCommit:
			rows := append(r.rows, result.Rows...)
			if err := o.sink.WriteSnapshot(rows); err != nil {
				return fmt.Errorf("%w after %s: %w", ErrCheckpoint, leaf, err)
			}
			r.rows = rows
			r.done++
			r.settled++
			r.dropped += result.Dropped

			wait = o.backoff.NormalWait()
			ev.Rows = result.Count
			ev.Dropped = result.Dropped
			ev.TotalRows = len(r.rows)
			ev.Wait = wait
			o.reporter.LeafSucceeded(ctx, ev)

		case ActionRetry, ActionGiveUp:
			if result.Outcome == catalog.OutcomeRateLimited {
				wait = o.backoff.RateLimitWait(r.errors)
			} else {
				wait = o.backoff.ErrorWait(r.errors)
			}
			r.errors++

			ev.TotalRows = len(r.rows)
			ev.Wait = wait
			o.reporter.LeafFailed(ctx, ev)

			if action == ActionGiveUp {
				r.missing = append(r.missing, models.MissingLeaf{Category: leaf.Category, Subcategory: leaf.Subcategory})
				r.settled++
				o.reporter.LeafMissing(ctx, ev)
			}

		default:
			return fmt.Errorf("unexpected transition for %s from outcome %s", leaf, result.Outcome)
		}

		if err := o.sleeper.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) finish(ctx context.Context, r *run, leaves int) *Result {
	finished := o.now()
	summary := models.RunSummary{
		RunID:      r.id,
		StartedAt:  r.started,
		FinishedAt: finished,
		Leaves:     leaves,
		Succeeded:  r.done,
		Missing:    len(r.missing),
		Rows:       len(r.rows),
		Dropped:    r.dropped,
		Errors:     r.errors,
		Duration:   finished.Sub(r.started),
	}
	o.reporter.RunFinished(context.WithoutCancel(ctx), summary)

	return &Result{
		Rows:    r.rows,
		Missing: r.missing,
		Summary: summary,
	}
}
