package usecases

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"showroom_bot/internal/infrastructure"
	"showroom_bot/internal/interfaces"
	"showroom_bot/internal/resilience"
)

// ErrDuplicateSend means the same body already went to the same phone while
// handling the same inbound message.
var ErrDuplicateSend = errors.New("duplicate send suppressed")

const sendDedupeTTL = 2 * time.Minute

type sendScopeKey struct{}

// WithSendScope ties sends made under ctx to one inbound message. Sends
// without a scope are never deduplicated.
func WithSendScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, sendScopeKey{}, scope)
}

func sendScope(ctx context.Context) string {
	s, _ := ctx.Value(sendScopeKey{}).(string)
	return s
}

// Outbound is the send surface handlers and tools depend on.
type Outbound interface {
	SendText(ctx context.Context, tenantID, phone, text string) error
	SendMediaBatch(ctx context.Context, tenantID, phone string, items []MediaItem) []error
	MarkRead(ctx context.Context, tenantID, phone string, messageIDs []string) error
}

// Dispatcher executes outbound actions through the messaging breaker.
// Sends get at most one retry and are deduplicated per send scope, phone and body.
type Dispatcher struct {
	gateway  interfaces.Gateway
	registry *resilience.Registry
	claims   interfaces.StateStore
	limiter  *infrastructure.MessageRateLimiter
	usage    interfaces.UsageRecorder
}

// NewDispatcher wires the gateway. limiter and usage may be nil.
func NewDispatcher(gw interfaces.Gateway, reg *resilience.Registry, claims interfaces.StateStore, limiter *infrastructure.MessageRateLimiter, usage interfaces.UsageRecorder) *Dispatcher {
	return &Dispatcher{gateway: gw, registry: reg, claims: claims, limiter: limiter, usage: usage}
}

type MediaItem struct {
	URL     string
	Caption string
}

func (d *Dispatcher) SendText(ctx context.Context, tenantID, phone, text string) error {
	return d.send(ctx, tenantID, phone, text, func(ctx context.Context) error {
		return d.gateway.SendText(ctx, tenantID, phone, text)
	})
}

func (d *Dispatcher) SendMedia(ctx context.Context, tenantID, phone, url, caption string) error {
	return d.send(ctx, tenantID, phone, url, func(ctx context.Context) error {
		return d.gateway.SendMedia(ctx, tenantID, phone, url, caption)
	})
}

// SendMediaBatch sends every item independently. errs[i] belongs to items[i].
func (d *Dispatcher) SendMediaBatch(ctx context.Context, tenantID, phone string, items []MediaItem) []error {
	errs := make([]error, len(items))
	for i, it := range items {
		errs[i] = d.SendMedia(ctx, tenantID, phone, it.URL, it.Caption)
	}
	return errs
}

// MarkRead is idempotent, so it uses the full retry policy.
func (d *Dispatcher) MarkRead(ctx context.Context, tenantID, phone string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return resilience.Retry(ctx, resilience.DefaultRetryPolicy(), func(ctx context.Context) error {
		return d.registry.Do(ctx, resilience.ClassMessaging, func(ctx context.Context) error {
			return d.gateway.MarkRead(ctx, tenantID, phone, messageIDs)
		})
	})
}

func (d *Dispatcher) send(ctx context.Context, tenantID, phone, body string, fn func(ctx context.Context) error) error {
	var key string
	if scope := sendScope(ctx); scope != "" && d.claims != nil {
		key = sendKey(tenantID, phone, scope, body)
		if !d.claims.Claim(key, sendDedupeTTL) {
			log.Info().Str("tenant", tenantID).Str("phone", phone).Str("scope", scope).Msg("Duplicate send suppressed")
			return ErrDuplicateSend
		}
	}

	correlation := uuid.NewString()
	logger := log.With().Str("tenant", tenantID).Str("phone", phone).Str("correlation", correlation).Logger()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, resilience.Key(tenantID, phone)); err != nil {
			d.release(key)
			return err
		}
	}

	err := d.registry.DoRetry(ctx, resilience.ClassMessaging, fn)
	if err != nil {
		d.release(key)
		logger.Error().Err(err).Msg("Outbound send failed")
		return err
	}
	logger.Debug().Msg("Outbound send delivered")

	if d.usage != nil {
		if err := d.usage.IncrementSent(ctx, tenantID); err != nil {
			logger.Warn().Err(err).Msg("Failed to record sent usage")
		}
	}
	return nil
}

func (d *Dispatcher) release(key string) {
	if key != "" && d.claims != nil {
		d.claims.Release(key)
	}
}

func sendKey(tenantID, phone, scope, body string) string {
	sum := sha1.Sum([]byte(body))
	return resilience.Key("send", tenantID, phone, scope, hex.EncodeToString(sum[:]))
}
