package resilience

import (
	"context"
	"strings"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cache is a short-TTL read-through cache. Concurrent loads of the same key share one call.
type Cache struct {
	items *gocache.Cache
	group singleflight.Group
}

func NewCache(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{items: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *Cache) Get(key string) (any, bool) {
	return c.items.Get(key)
}

func (c *Cache) Set(key string, v any, ttl time.Duration) {
	c.items.Set(key, v, ttl)
}

func (c *Cache) Delete(key string) {
	c.items.Delete(key)
}

func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// GetOrLoad returns the cached value for key, or calls load and caches a successful result.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.items.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.items.Set(key, res, ttl)
		return res, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Key joins parts into a stable composite key.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// MessagePrefix lowercases text, drops punctuation, collapses whitespace and keeps the first n runes.
func MessagePrefix(text string, n int) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	runes := []rune(strings.Join(words, " "))
	if len(runes) > n {
		runes = runes[:n]
	}
	return strings.TrimSpace(string(runes))
}
