package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showroom_bot/internal/entities"
)

func TestKeyedLockerSerializesSameKey(t *testing.T) {
	l := NewKeyedLocker(50 * time.Millisecond)

	unlock, err := l.Lock(context.Background(), "t1|628")
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), "t1|628")
	assert.ErrorIs(t, err, entities.ErrBusy)

	other, err := l.Lock(context.Background(), "t1|629")
	require.NoError(t, err, "different keys never block each other")
	other()

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(context.Background(), "t1|628")
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, l.Held())
}

func TestKeyedLockerWaiterGetsLockAfterRelease(t *testing.T) {
	l := NewKeyedLocker(time.Second)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var waiterErr error
	go func() {
		defer wg.Done()
		release, err := l.Lock(context.Background(), "k")
		waiterErr = err
		if err == nil {
			release()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	unlock()
	wg.Wait()

	assert.NoError(t, waiterErr)
	assert.Equal(t, 0, l.Held())
}

func TestKeyedLockerHonorsContext(t *testing.T) {
	l := NewKeyedLocker(time.Second)
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
