package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/cwhealth/policy-qa/internal/core/domain"
)

// Classification tells the breaker how to treat a failed call: whether
// the call may be retried in place, and whether it counts toward
// tripping the circuit. Caller mistakes (bad input, cancelled context)
// must not open a breaker that guards a healthy dependency.
type Classification struct {
	Retryable     bool
	RecordFailure bool
}

type Classifier func(err error) Classification

func defaultClassifier(error) Classification {
	return Classification{Retryable: false, RecordFailure: true}
}

// Breaker guards one external dependency with a consecutive-failure
// circuit breaker plus bounded in-place retries. Each dependency gets
// its own instance so a retrieval outage never blocks generation.
type Breaker struct {
	name       string
	cfg        Config
	classifier Classifier
	cb         *gobreaker.CircuitBreaker[any]

	mu       sync.Mutex
	openedAt time.Time
}

func NewBreaker(name string, cfg Config, classifier Classifier) *Breaker {
	if classifier == nil {
		classifier = defaultClassifier
	}
	b := &Breaker{
		name:       name,
		cfg:        cfg.normalize(),
		classifier: classifier,
	}

	settings := gobreaker.Settings{
		Name: name,
		// One probe call decides recovery.
		MaxRequests: 1,
		Timeout:     b.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !b.classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.mu.Lock()
			if to == gobreaker.StateOpen {
				b.openedAt = time.Now()
			}
			b.mu.Unlock()
			slog.Warn("circuit_breaker_state_change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}
	b.cb = gobreaker.NewCircuitBreaker[any](settings)
	return b
}

// Execute runs fn behind the circuit. An open circuit rejects the call
// without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.executeWithRetry(ctx, fn)
	})
	return err
}

func (b *Breaker) executeWithRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := b.cfg.RetryInitialBackoff

	var err error
	for attempt := 1; attempt <= b.cfg.RetryMaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !b.classifier(err).Retryable || attempt == b.cfg.RetryMaxAttempts {
			return err
		}

		wait := backoff
		if wait > b.cfg.RetryMaxBackoff {
			wait = b.cfg.RetryMaxBackoff
		}
		slog.Warn("retry_attempt",
			"breaker", b.name,
			"attempt", attempt,
			"max_attempts", b.cfg.RetryMaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
		backoff = time.Duration(float64(backoff) * b.cfg.RetryMultiplier)
	}
	return err
}

func (b *Breaker) Name() string { return b.name }

// CooldownRemaining reports how long an open circuit keeps rejecting
// calls. Zero when the circuit is not open.
func (b *Breaker) CooldownRemaining() time.Duration {
	if b.cb.State() != gobreaker.StateOpen {
		return 0
	}
	b.mu.Lock()
	openedAt := b.openedAt
	b.mu.Unlock()

	remaining := b.cfg.Cooldown - time.Since(openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *Breaker) Snapshot() domain.BreakerSnapshot {
	return domain.BreakerSnapshot{
		Name:                b.name,
		State:               mapState(b.cb.State()),
		ConsecutiveFailures: b.cb.Counts().ConsecutiveFailures,
		FailureThreshold:    b.cfg.FailureThreshold,
		CooldownRemaining:   b.CooldownRemaining(),
	}
}

func mapState(state gobreaker.State) domain.BreakerState {
	switch state {
	case gobreaker.StateOpen:
		return domain.BreakerOpen
	case gobreaker.StateHalfOpen:
		return domain.BreakerHalfOpen
	default:
		return domain.BreakerClosed
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Registry collects the process-wide breakers for the diagnostics
// endpoint. Registration happens once at wiring time.
type Registry struct {
	mu       sync.RWMutex
	breakers []*Breaker
}

func NewRegistry(breakers ...*Breaker) *Registry {
	return &Registry{breakers: breakers}
}

func (r *Registry) Register(b *Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = append(r.breakers, b)
}

func (r *Registry) Snapshots() []domain.BreakerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.BreakerSnapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
