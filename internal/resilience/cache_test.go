package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrLoadCachesSuccess(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	var loads int32
	load := func(context.Context) ([]string, error) {
		atomic.AddInt32(&loads, 1)
		return []string{"a", "b"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := GetOrLoad(context.Background(), c, "k", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("boom")
		}
		return 7, nil
	}

	_, err := GetOrLoad(context.Background(), c, "k", time.Minute, load)
	require.Error(t, err)

	v, err := GetOrLoad(context.Background(), c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGetOrLoadCollapsesConcurrentLoads(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	var loads int32
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := GetOrLoad(context.Background(), c, "same", time.Minute, load)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	c.Set("k", "v", 10*time.Millisecond)

	_, ok := c.Get("k")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMessagePrefix(t *testing.T) {
	assert.Equal(t, "ada foto avanza", MessagePrefix("  Ada FOTO   Avanza??", 64))
	assert.Equal(t, MessagePrefix("ada foto avanza", 64), MessagePrefix("Ada foto, Avanza!", 64))
	assert.Equal(t, "harga", MessagePrefix("harga innova 2020", 5))
	assert.Equal(t, "t1|42|halo", Key("t1", "42", "halo"))
}
