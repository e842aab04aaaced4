package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var ErrInvalidPolicy = errors.New("invalid backoff policy")

// Policy holds the wait bounds used between leaves. Error waits grow by
// ErrorStep for every error already seen in the run.
type Policy struct {
	MinWait          time.Duration
	MaxWait          time.Duration
	ErrorMinWait     time.Duration
	ErrorMaxWait     time.Duration
	ErrorStep        time.Duration
	RateLimitPenalty time.Duration
	Ceiling          time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MinWait:          18 * time.Second,
		MaxWait:          30 * time.Second,
		ErrorMinWait:     3 * time.Minute,
		ErrorMaxWait:     5 * time.Minute,
		ErrorStep:        10 * time.Second,
		RateLimitPenalty: time.Minute,
		Ceiling:          5 * time.Minute,
	}
}

func (p Policy) Validate() error {
	if p.MinWait < 0 || p.ErrorMinWait < 0 || p.ErrorStep < 0 || p.RateLimitPenalty < 0 {
		return fmt.Errorf("%w: waits must not be negative", ErrInvalidPolicy)
	}
	if p.MinWait > p.MaxWait {
		return fmt.Errorf("%w: min wait %s exceeds max wait %s", ErrInvalidPolicy, p.MinWait, p.MaxWait)
	}
	if p.ErrorMinWait > p.ErrorMaxWait {
		return fmt.Errorf("%w: error min wait %s exceeds error max wait %s", ErrInvalidPolicy, p.ErrorMinWait, p.ErrorMaxWait)
	}
	if p.Ceiling <= 0 {
		return fmt.Errorf("%w: ceiling must be positive", ErrInvalidPolicy)
	}
	return nil
}

// Backoff samples jittered waits from a Policy. It is safe for concurrent use.
type Backoff struct {
	policy Policy
	mu     sync.Mutex
	rng    *rand.Rand
}

func NewBackoff(policy Policy) *Backoff {
	return NewBackoffWithSource(policy, rand.NewSource(time.Now().UnixNano()))
}

// NewBackoffWithSource makes the samples reproducible for a given source.
func NewBackoffWithSource(policy Policy, src rand.Source) *Backoff {
	return &Backoff{
		policy: policy,
		rng:    rand.New(src),
	}
}

func (b *Backoff) Policy() Policy {
	return b.policy
}

// NormalWait is the pause after a leaf succeeded.
func (b *Backoff) NormalWait() time.Duration {
	return b.clamp(b.sample(b.policy.MinWait, b.policy.MaxWait))
}

// ErrorWait is the pause after a failed attempt, where errorsSoFar counts the
// errors of the run before this one.
func (b *Backoff) ErrorWait(errorsSoFar int) time.Duration {
	return b.clamp(b.errorSample(errorsSoFar))
}

// RateLimitWait is ErrorWait plus the rate-limit penalty, still bounded by
// the ceiling.
func (b *Backoff) RateLimitWait(errorsSoFar int) time.Duration {
	return b.clamp(b.errorSample(errorsSoFar) + b.policy.RateLimitPenalty)
}

func (b *Backoff) errorSample(errorsSoFar int) time.Duration {
	if errorsSoFar < 0 {
		errorsSoFar = 0
	}
	shift := time.Duration(errorsSoFar) * b.policy.ErrorStep
	return b.sample(b.policy.ErrorMinWait+shift, b.policy.ErrorMaxWait+shift)
}

// sample returns a uniform duration in [min, max].
func (b *Backoff) sample(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delta := max - min
	jitter := time.Duration(b.rng.Int63n(int64(delta) + 1))
	return min + jitter
}

func (b *Backoff) clamp(d time.Duration) time.Duration {
	if b.policy.Ceiling > 0 && d > b.policy.Ceiling {
		return b.policy.Ceiling
	}
	return d
}

// Sleeper blocks for a duration unless the context ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on the wall clock.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
