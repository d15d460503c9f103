package infrastructure

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"showroom_bot/internal/entities"
)

// MemoryStateStore keeps operator conversation state and claim records in one
// expiring in-process map.
type MemoryStateStore struct {
	items *gocache.Cache
	now   func() time.Time
}

func NewMemoryStateStore(cleanupInterval time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		items: gocache.New(gocache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

func stateKey(key string) string { return "state|" + key }
func claimKey(key string) string { return "claim|" + key }

// Get returns a copy of the state. Expired states are removed and reported missing.
func (s *MemoryStateStore) Get(key string) (*entities.ConversationState, bool) {
	v, ok := s.items.Get(stateKey(key))
	if !ok {
		return nil, false
	}
	st := v.(entities.ConversationState)
	if st.Expired(s.now()) {
		s.items.Delete(stateKey(key))
		return nil, false
	}
	fields := make(map[string]string, len(st.CollectedFields))
	for k, val := range st.CollectedFields {
		fields[k] = val
	}
	st.CollectedFields = fields
	return &st, true
}

func (s *MemoryStateStore) Put(key string, st *entities.ConversationState) {
	ttl := st.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		s.items.Delete(stateKey(key))
		return
	}
	s.items.Set(stateKey(key), *st, ttl)
}

func (s *MemoryStateStore) Delete(key string) {
	s.items.Delete(stateKey(key))
}

// Claim is atomic: concurrent claims for the same key see exactly one winner.
func (s *MemoryStateStore) Claim(key string, ttl time.Duration) bool {
	return s.items.Add(claimKey(key), s.now(), ttl) == nil
}

func (s *MemoryStateStore) Release(key string) {
	s.items.Delete(claimKey(key))
}

// SweepExpired drops expired entries and states whose ExpiresAt has passed.
// It returns the number of conversation states removed.
func (s *MemoryStateStore) SweepExpired() int {
	s.items.DeleteExpired()

	removed := 0
	now := s.now()
	for k, item := range s.items.Items() {
		st, ok := item.Object.(entities.ConversationState)
		if ok && st.Expired(now) {
			s.items.Delete(k)
			removed++
		}
	}
	return removed
}

// ActiveStates counts live operator flows.
func (s *MemoryStateStore) ActiveStates() int {
	n := 0
	now := s.now()
	for _, item := range s.items.Items() {
		if st, ok := item.Object.(entities.ConversationState); ok && !st.Expired(now) {
			n++
		}
	}
	return n
}
