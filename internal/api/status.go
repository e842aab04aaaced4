package api

import (
	"context"
	"sync"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/crawl"
	"github.com/maltedev/mercadona-scraper/internal/models"
)

type RunState string

const (
	RunStateIdle     RunState = "idle"
	RunStateRunning  RunState = "running"
	RunStateFinished RunState = "finished"
)

// RunStatus is the view of the current or last crawl run.
type RunStatus struct {
	RunID       string               `json:"run_id,omitempty"`
	State       RunState             `json:"state"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	Leaves      int                  `json:"leaves"`
	Done        int                  `json:"done"`
	Succeeded   int                  `json:"succeeded"`
	Attempts    int                  `json:"attempts"`
	Rows        int                  `json:"rows"`
	LastLeaf    string               `json:"last_leaf,omitempty"`
	LastOutcome string               `json:"last_outcome,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
	Missing     []models.MissingLeaf `json:"missing"`
	Summary     *models.RunSummary   `json:"summary,omitempty"`
}

// Tracker keeps the latest RunStatus up to date from crawl events.
type Tracker struct {
	mu     sync.RWMutex
	status RunStatus
	now    func() time.Time
}

var _ crawl.Reporter = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{
		status: RunStatus{State: RunStateIdle, Missing: []models.MissingLeaf{}},
		now:    time.Now,
	}
}

// Status returns a copy safe to hand to other goroutines.
func (t *Tracker) Status() RunStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	s.Missing = append([]models.MissingLeaf{}, t.status.Missing...)
	if t.status.Summary != nil {
		summary := *t.status.Summary
		s.Summary = &summary
	}
	return s
}

func (t *Tracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.State == RunStateRunning
}

func (t *Tracker) RunStarted(_ context.Context, runID string, leaves int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	started := t.now()
	t.status = RunStatus{
		RunID:     runID,
		State:     RunStateRunning,
		StartedAt: &started,
		Leaves:    leaves,
		Missing:   []models.MissingLeaf{},
	}
}

func (t *Tracker) LeafSucceeded(_ context.Context, ev crawl.LeafEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.attempt(ev)
	t.status.Done++
	t.status.Succeeded++
	t.status.Rows = ev.TotalRows
}

func (t *Tracker) LeafFailed(_ context.Context, ev crawl.LeafEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.attempt(ev)
}

// LeafMissing follows the LeafFailed of the same attempt.
func (t *Tracker) LeafMissing(_ context.Context, ev crawl.LeafEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Done++
	t.status.Missing = append(t.status.Missing, models.MissingLeaf{
		Category:    ev.Leaf.Category,
		Subcategory: ev.Leaf.Subcategory,
	})
}

func (t *Tracker) RunFinished(_ context.Context, summary models.RunSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.State = RunStateFinished
	t.status.Rows = summary.Rows
	t.status.Summary = &summary
}

// attempt must be called with mu held.
func (t *Tracker) attempt(ev crawl.LeafEvent) {
	t.status.Attempts++
	t.status.LastLeaf = ev.Leaf.String()
	t.status.LastOutcome = ev.Outcome.String()
	t.status.LastError = ""
	if ev.Err != nil {
		t.status.LastError = ev.Err.Error()
	}
}
