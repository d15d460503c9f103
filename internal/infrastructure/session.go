package infrastructure

import (
	"context"
	"sync"
	"time"

	"showroom_bot/internal/entities"
)

// keyLock is one per-key slot. refs counts holders and waiters so idle slots can be dropped.
type keyLock struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker serializes work per key (tenant+phone) with a bounded wait.
type KeyedLocker struct {
	locks map[string]*keyLock
	mu    sync.Mutex
	wait  time.Duration
}

func NewKeyedLocker(wait time.Duration) *KeyedLocker {
	return &KeyedLocker{
		locks: make(map[string]*keyLock),
		wait:  wait,
	}
}

func (l *KeyedLocker) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, exists := l.locks[key]
	if !exists {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *KeyedLocker) dropRef(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Lock waits up to the configured bound for key. It returns ErrBusy when the
// wait runs out, and the caller must not proceed. On success the returned func
// releases the key.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	kl := l.acquireRef(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case kl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.sem
				l.dropRef(key, kl)
			})
		}, nil
	case <-timer.C:
		l.dropRef(key, kl)
		return nil, entities.ErrBusy
	case <-ctx.Done():
		l.dropRef(key, kl)
		return nil, ctx.Err()
	}
}

// Held returns the number of keys currently locked or waited on.
func (l *KeyedLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
