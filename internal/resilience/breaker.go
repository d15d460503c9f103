package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"showroom_bot/internal/entities"
)

type BreakerSettings struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold uint32
	// Recovery is how long the circuit stays open before one probe is let through.
	Recovery time.Duration
}

// Breaker guards one external dependency.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]

	mu       sync.Mutex
	openedAt time.Time
}

func NewBreaker(name string, s BreakerSettings) *Breaker {
	threshold := s.Threshold
	if threshold == 0 {
		threshold = 5
	}
	recovery := s.Recovery
	if recovery <= 0 {
		recovery = 30 * time.Second
	}

	b := &Breaker{name: name}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     recovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.mu.Lock()
			switch to {
			case gobreaker.StateOpen:
				b.openedAt = time.Now()
			case gobreaker.StateClosed:
				b.openedAt = time.Time{}
			}
			b.mu.Unlock()

			log.Warn().
				Str("dependency", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
		IsSuccessful: breakerNeutral,
	})
	return b
}

// breakerNeutral treats answers the dependency gave on purpose as successes.
func breakerNeutral(err error) bool {
	return err == nil ||
		errors.Is(err, entities.ErrNotFound) ||
		errors.Is(err, context.Canceled)
}

// Execute runs fn through the breaker. An open circuit fails fast without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &entities.DependencyError{Dependency: b.name, Kind: entities.KindUnavailable, Err: err}
	}
	return err
}

func (b *Breaker) Name() string { return b.name }

// State returns a snapshot. gobreaker is queried before taking b.mu since
// OnStateChange runs under gobreaker's own lock.
func (b *Breaker) State() entities.CircuitState {
	st := b.cb.State()
	counts := b.cb.Counts()

	b.mu.Lock()
	openedAt := b.openedAt
	b.mu.Unlock()

	return entities.CircuitState{
		Dependency:          b.name,
		State:               st.String(),
		ConsecutiveFailures: counts.ConsecutiveFailures,
		OpenedAt:            openedAt,
	}
}
