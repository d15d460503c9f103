package infrastructure

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showroom_bot/internal/entities"
)

func TestStateStorePutGetReturnsCopy(t *testing.T) {
	s := NewMemoryStateStore(time.Minute)
	st := &entities.ConversationState{
		CurrentCommand:  "blog",
		Step:            1,
		CollectedFields: map[string]string{"prompt": "mobil keluarga"},
		ExpiresAt:       time.Now().Add(time.Minute),
	}
	s.Put("t1|628", st)

	got, ok := s.Get("t1|628")
	require.True(t, ok)
	got.CollectedFields["tone"] = "santai"

	again, _ := s.Get("t1|628")
	assert.NotContains(t, again.CollectedFields, "tone")
	assert.Equal(t, 1, s.ActiveStates())
}

func TestStateStoreExpiredStateIsGone(t *testing.T) {
	s := NewMemoryStateStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put("k", &entities.ConversationState{CurrentCommand: "blog", ExpiresAt: now.Add(time.Minute)})

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestStateStoreSweepRemovesExpired(t *testing.T) {
	s := NewMemoryStateStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put("old", &entities.ConversationState{ExpiresAt: now.Add(time.Second)})
	s.Put("new", &entities.ConversationState{ExpiresAt: now.Add(time.Hour)})

	s.now = func() time.Time { return now.Add(time.Minute) }
	assert.Equal(t, 1, s.SweepExpired())
	assert.Equal(t, 1, s.ActiveStates())
}

func TestStateStoreClaimHasOneWinner(t *testing.T) {
	s := NewMemoryStateStore(time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim("msg|ABC", time.Minute) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	s.Release("msg|ABC")
	assert.True(t, s.Claim("msg|ABC", time.Minute))
}
