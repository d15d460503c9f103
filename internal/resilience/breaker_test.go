package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showroom_bot/internal/entities"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(DepReasoning, BreakerSettings{Threshold: 3, Recovery: time.Minute})
	var calls int32
	failing := func() error {
		atomic.AddInt32(&calls, 1)
		return errors.New("provider error")
	}

	for i := 0; i < 3; i++ {
		err := b.Execute(failing)
		require.Error(t, err)
		assert.False(t, errors.Is(err, entities.ErrDependencyUnavailable))
	}

	err := b.Execute(failing)
	assert.ErrorIs(t, err, entities.ErrDependencyUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "open circuit must not call the dependency")

	st := b.State()
	assert.Equal(t, "open", st.State)
	assert.False(t, st.OpenedAt.IsZero())
}

func TestBreakerHalfOpenAllowsSingleProbe(t *testing.T) {
	b := NewBreaker(DepMessaging, BreakerSettings{Threshold: 1, Recovery: 30 * time.Millisecond})
	require.Error(t, b.Execute(func() error { return errors.New("down") }))
	require.ErrorIs(t, b.Execute(func() error { return nil }), entities.ErrDependencyUnavailable)

	time.Sleep(50 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	probeDone := make(chan error, 1)
	go func() {
		probeDone <- b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var second int32
	err := b.Execute(func() error {
		atomic.AddInt32(&second, 1)
		return nil
	})
	assert.ErrorIs(t, err, entities.ErrDependencyUnavailable)
	assert.Zero(t, atomic.LoadInt32(&second))

	close(release)
	require.NoError(t, <-probeDone)
	assert.Equal(t, "closed", b.State().State)
	assert.Zero(t, b.State().ConsecutiveFailures)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker(DepPersistence, BreakerSettings{Threshold: 1, Recovery: 20 * time.Millisecond})
	require.Error(t, b.Execute(func() error { return errors.New("down") }))

	time.Sleep(40 * time.Millisecond)
	require.Error(t, b.Execute(func() error { return errors.New("still down") }))

	assert.Equal(t, "open", b.State().State)
	assert.ErrorIs(t, b.Execute(func() error { return nil }), entities.ErrDependencyUnavailable)
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	b := NewBreaker(DepPersistence, BreakerSettings{Threshold: 1, Recovery: time.Minute})

	err := b.Execute(func() error { return entities.ErrNotFound })
	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.Equal(t, "closed", b.State().State)
}

func TestRegistryDoAppliesTimeoutAndBreaker(t *testing.T) {
	r := NewRegistry(
		map[string]BreakerSettings{DepReasoning: {Threshold: 2, Recovery: time.Minute}},
		map[Class]Policy{ClassReasoning: {Dependency: DepReasoning, Timeout: 20 * time.Millisecond, Retry: NoRetry()}},
	)
	slow := func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}

	for i := 0; i < 2; i++ {
		err := r.Do(context.Background(), ClassReasoning, slow)
		assert.ErrorIs(t, err, entities.ErrDependencyTimeout)
	}

	err := r.Do(context.Background(), ClassReasoning, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, entities.ErrDependencyUnavailable)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, DepReasoning, snap[0].Dependency)
	assert.Equal(t, "open", snap[0].State)
}

func TestCallReturnsValue(t *testing.T) {
	r := NewRegistry(nil, nil)

	v, err := Call(context.Background(), r, ClassPersistence, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
