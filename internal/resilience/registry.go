package resilience

import (
	"context"
	"sort"
	"time"

	"showroom_bot/internal/config"
	"showroom_bot/internal/entities"
)

// Policy binds a call class to its dependency breaker, deadline and retry policy.
type Policy struct {
	Dependency string
	Timeout    time.Duration
	Retry      RetryPolicy
}

// Registry owns the process-wide breakers. Construct one at startup and pass it down.
type Registry struct {
	breakers map[string]*Breaker
	policies map[Class]Policy
}

func NewRegistry(breakers map[string]BreakerSettings, policies map[Class]Policy) *Registry {
	r := &Registry{
		breakers: make(map[string]*Breaker, len(breakers)),
		policies: policies,
	}
	for name, s := range breakers {
		r.breakers[name] = NewBreaker(name, s)
	}
	return r
}

// NewRegistryFromConfig builds the standard dependency set.
func NewRegistryFromConfig(cfg *config.Config) *Registry {
	recovery := cfg.Breakers.Recovery
	return NewRegistry(
		map[string]BreakerSettings{
			DepReasoning:   {Threshold: cfg.Breakers.ReasoningThreshold, Recovery: recovery},
			DepMessaging:   {Threshold: cfg.Breakers.MessagingThreshold, Recovery: recovery},
			DepPersistence: {Threshold: cfg.Breakers.PersistenceThreshold, Recovery: recovery},
		},
		map[Class]Policy{
			ClassPersistence: {Dependency: DepPersistence, Timeout: cfg.Timeouts.Persistence, Retry: DefaultRetryPolicy()},
			ClassReasoning:   {Dependency: DepReasoning, Timeout: cfg.Timeouts.Reasoning, Retry: NoRetry()},
			ClassMessaging:   {Dependency: DepMessaging, Timeout: cfg.Timeouts.Messaging, Retry: SendRetryPolicy()},
			ClassBulk:        {Dependency: DepPersistence, Timeout: cfg.Timeouts.Bulk, Retry: NoRetry()},
			ClassWebhook:     {Dependency: "webhook", Timeout: cfg.Timeouts.Webhook, Retry: NoRetry()},
		},
	)
}

func (r *Registry) Policy(class Class) Policy {
	if p, ok := r.policies[class]; ok {
		return p
	}
	return Policy{Dependency: string(class), Retry: NoRetry()}
}

func (r *Registry) Breaker(dependency string) *Breaker {
	return r.breakers[dependency]
}

// Do runs fn once under the class deadline and its dependency breaker.
func (r *Registry) Do(ctx context.Context, class Class, fn func(ctx context.Context) error) error {
	p := r.Policy(class)
	run := func() error {
		return WithTimeout(ctx, p.Timeout, p.Dependency, fn)
	}
	if b := r.breakers[p.Dependency]; b != nil {
		return b.Execute(run)
	}
	return run()
}

// DoRetry is Do with the class retry policy. Only use it for idempotent calls.
func (r *Registry) DoRetry(ctx context.Context, class Class, fn func(ctx context.Context) error) error {
	return Retry(ctx, r.Policy(class).Retry, func(ctx context.Context) error {
		return r.Do(ctx, class, fn)
	})
}

// Call is Do for functions returning a value. A result produced after the
// deadline is discarded.
func Call[T any](ctx context.Context, r *Registry, class Class, fn func(ctx context.Context) (T, error)) (T, error) {
	result := make(chan T, 1)
	err := r.Do(ctx, class, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result <- v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return <-result, nil
}

// CallRetry is DoRetry for functions returning a value.
func CallRetry[T any](ctx context.Context, r *Registry, class Class, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Retry(ctx, r.Policy(class).Retry, func(ctx context.Context) error {
		v, err := Call(ctx, r, class, fn)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

// Snapshot lists every breaker state, sorted by dependency.
func (r *Registry) Snapshot() []entities.CircuitState {
	states := make([]entities.CircuitState, 0, len(r.breakers))
	for _, b := range r.breakers {
		states = append(states, b.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Dependency < states[j].Dependency })
	return states
}
