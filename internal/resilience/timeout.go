package resilience

import (
	"context"
	"fmt"
	"time"

	"showroom_bot/internal/entities"
)

// Class selects the deadline, breaker and retry policy of a call.
type Class string

const (
	ClassPersistence Class = "persistence"
	ClassReasoning   Class = "reasoning"
	ClassMessaging   Class = "messaging"
	ClassBulk        Class = "bulk"
	ClassWebhook     Class = "webhook"
)

// Dependency names, one breaker each.
const (
	DepReasoning   = "reasoningProvider"
	DepMessaging   = "messagingGateway"
	DepPersistence = "persistence"
)

// WithTimeout runs fn with a deadline of d. When the deadline passes first the call
// returns a timeout DependencyError immediately; fn keeps running until it observes ctx.
func WithTimeout(ctx context.Context, d time.Duration, dependency string, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%s: panic: %v", dependency, r)
			}
		}()
		done <- fn(cctx)
	}()

	select {
	case err := <-done:
		if err != nil && cctx.Err() != nil {
			return &entities.DependencyError{Dependency: dependency, Kind: entities.KindTimeout, Err: err}
		}
		return err
	case <-cctx.Done():
		return &entities.DependencyError{Dependency: dependency, Kind: entities.KindTimeout, Err: cctx.Err()}
	}
}
