package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/mercadona-scraper/internal/crawl"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultStream receives crawl progress events.
const DefaultStream = "stream:mercadona_crawl"

// EventType represents the type of event
type EventType string

const (
	EventTypeRunStarted    EventType = "run_started"
	EventTypeLeafSucceeded EventType = "leaf_succeeded"
	EventTypeLeafFailed    EventType = "leaf_failed"
	EventTypeLeafMissing   EventType = "leaf_missing"
	EventTypeRunFinished   EventType = "run_finished"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type Config struct {
	Stream string
	// MaxLen trims the stream approximately; zero keeps everything.
	MaxLen int64
}

// LeafPayload is the payload of the leaf_* events.
type LeafPayload struct {
	Category     string `json:"category"`
	Subcategory  string `json:"subcategory"`
	Attempt      int    `json:"attempt"`
	AttemptsLeft int    `json:"attempts_left"`
	Outcome      string `json:"outcome"`
	Products     int    `json:"products,omitempty"`
	Dropped      int    `json:"dropped,omitempty"`
	TotalRows    int    `json:"total_rows"`
	WaitSeconds  int64  `json:"wait_seconds"`
	Error        string `json:"error,omitempty"`
}

type RunStartedPayload struct {
	Leaves int `json:"leaves"`
}

// Event is the envelope written to the data field of every stream entry.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	RunID     string          `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Source    string          `json:"source"`
}

// Publisher writes crawl progress to a Redis stream. It implements
// crawl.Reporter; publish failures are logged and never reach the crawl.
type Publisher struct {
	redis  RedisClient
	stream string
	maxLen int64
	logger *slog.Logger
	now    func() time.Time
}

var _ crawl.Reporter = (*Publisher)(nil)

func NewPublisher(client RedisClient, cfg Config, logger *slog.Logger) *Publisher {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	return &Publisher{
		redis:  client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

func (p *Publisher) RunStarted(ctx context.Context, runID string, leaves int) {
	p.publish(ctx, EventTypeRunStarted, runID, RunStartedPayload{Leaves: leaves})
}

func (p *Publisher) LeafSucceeded(ctx context.Context, ev crawl.LeafEvent) {
	p.publish(ctx, EventTypeLeafSucceeded, ev.RunID, leafPayload(ev))
}

func (p *Publisher) LeafFailed(ctx context.Context, ev crawl.LeafEvent) {
	p.publish(ctx, EventTypeLeafFailed, ev.RunID, leafPayload(ev))
}

func (p *Publisher) LeafMissing(ctx context.Context, ev crawl.LeafEvent) {
	p.publish(ctx, EventTypeLeafMissing, ev.RunID, leafPayload(ev))
}

func (p *Publisher) RunFinished(ctx context.Context, summary models.RunSummary) {
	p.publish(ctx, EventTypeRunFinished, summary.RunID, summary)
}

func leafPayload(ev crawl.LeafEvent) LeafPayload {
	payload := LeafPayload{
		Category:     ev.Leaf.Category,
		Subcategory:  ev.Leaf.Subcategory,
		Attempt:      ev.Attempt,
		AttemptsLeft: ev.AttemptsLeft,
		Outcome:      ev.Outcome.String(),
		Products:     ev.Rows,
		Dropped:      ev.Dropped,
		TotalRows:    ev.TotalRows,
		WaitSeconds:  int64(ev.Wait / time.Second),
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	return payload
}

func (p *Publisher) publish(ctx context.Context, eventType EventType, runID string, payload any) {
	if err := p.Publish(ctx, eventType, runID, payload); err != nil {
		p.logger.Error("failed to publish event", "type", eventType, "run_id", runID, "error", err)
	}
}

// Publish adds one event to the stream.
func (p *Publisher) Publish(ctx context.Context, eventType EventType, runID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: p.now(),
		Payload:   raw,
		Source:    "mercadona-scraper",
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"type":      string(eventType),
			"run_id":    runID,
			"event_id":  event.ID,
			"timestamp": fmt.Sprintf("%d", event.Timestamp.UnixNano()),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published", "type", eventType, "run_id", runID, "event_id", event.ID)
	return nil
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}
