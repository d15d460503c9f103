package usecases

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/infrastructure"
	"showroom_bot/internal/interfaces"
	"showroom_bot/internal/resilience"
)

const (
	MaxIterations    = 3
	responseCacheTTL = 45 * time.Second
	cachePrefixRunes = 64
)

// Fallback tags recorded in turn metadata.
const (
	FallbackTemplate  = "template"
	FallbackApology   = "apology"
	FallbackCap       = "iteration_cap"
	FallbackIntegrity = "integrity"
)

var errEmptyCompletion = errors.New("reasoning provider returned an empty answer")

// CustomerEngine answers customer messages through the bounded tool-calling loop.
type CustomerEngine struct {
	reasoning interfaces.ReasoningProvider
	tools     *ToolRegistry
	contexts  *ContextBuilder
	intents   *IntentExtractor
	integrity *IntegrityChecker
	templates *TemplateResponder
	responses *resilience.Cache
}

type CustomerEngineDeps struct {
	Reasoning interfaces.ReasoningProvider
	Tools     *ToolRegistry
	Context   *ContextBuilder
	Patterns  *Patterns
	Templates *TemplateResponder
}

func NewCustomerEngine(d CustomerEngineDeps) *CustomerEngine {
	p := d.Patterns
	if p == nil {
		p = DefaultPatterns()
	}
	return &CustomerEngine{
		reasoning: d.Reasoning,
		tools:     d.Tools,
		contexts:  d.Context,
		intents:   NewIntentExtractor(p),
		integrity: NewIntegrityChecker(p),
		templates: d.Templates,
		responses: resilience.NewCache(responseCacheTTL, time.Minute),
	}
}

type cachedReply struct {
	Text     string
	Metadata entities.TurnMetadata
}

// loopRun is the outcome of one bounded loop run.
type loopRun struct {
	text        string
	final       bool
	err         error
	failedAt    int
	iterations  int
	tools       []string
	toolOutputs []string
	messages    []entities.ChatMessage
}

// Respond produces the reply for one customer message. It always returns a
// deliverable reply; failures become fallback text with Degraded set.
func (e *CustomerEngine) Respond(ctx context.Context, env ToolEnv, text string) entities.Reply {
	ctx, span := infrastructure.StartSpan(ctx, "engine.respond", attribute.String("tenant", env.Tenant.ID))
	defer span.End()

	intent := e.intents.Extract(text)
	meta := entities.TurnMetadata{Intent: intent.Name, Confidence: intent.Confidence}
	logger := log.With().Str("tenant", env.Tenant.ID).Int64("lead", int64(env.LeadID)).Str("intent", intent.Name).Logger()

	if IsPureGreeting(intent) {
		return entities.Reply{Text: e.templates.Greeting(env.Tenant), Metadata: meta}
	}

	cacheKey := resilience.Key(env.Tenant.ID, strconv.FormatInt(int64(env.LeadID), 10), resilience.MessagePrefix(text, cachePrefixRunes))
	if v, ok := e.responses.Get(cacheKey); ok {
		if c, ok := v.(cachedReply); ok {
			c.Metadata.Cached = true
			logger.Debug().Msg("Response cache hit")
			return entities.Reply{Text: c.Text, Metadata: c.Metadata}
		}
	}

	msgs := e.contexts.Build(ctx, env.Tenant, env.LeadID, intent, text)
	first := e.run(ctx, env, msgs)
	meta.Iterations = first.iterations
	meta.ToolsUsed = uniqueNames(first.tools)

	if reply, done := e.failure(ctx, env, intent, first, true, meta); done {
		logger.Warn().Err(first.err).Int("iterations", first.iterations).Str("fallback", reply.Metadata.Fallback).Msg("Reasoning loop degraded")
		return reply
	}

	answer := first.text
	photoInvoked := contains(first.tools, ToolSendPhotos)
	if v := e.integrity.Check(text, answer, photoInvoked, first.toolOutputs); v != nil {
		logger.Warn().Str("rule", v.Rule).Str("excerpt", v.Excerpt).Msg("Integrity violation, forcing corrective retry")

		retryMsgs := append(first.messages,
			entities.ChatMessage{Role: entities.ChatAssistant, Content: answer},
			entities.ChatMessage{Role: entities.ChatSystem, Content: CorrectiveInstruction(v)},
		)
		second := e.run(ctx, env, retryMsgs)
		meta.Iterations += second.iterations
		meta.ToolsUsed = uniqueNames(append(first.tools, second.tools...))

		if reply, done := e.failure(ctx, env, intent, second, false, meta); done {
			logger.Warn().Err(second.err).Str("fallback", reply.Metadata.Fallback).Msg("Corrective retry failed")
			return reply
		}

		photoInvoked = photoInvoked || contains(second.tools, ToolSendPhotos)
		outputs := append(append([]string(nil), first.toolOutputs...), second.toolOutputs...)
		if v2 := e.integrity.Check(text, second.text, photoInvoked, outputs); v2 != nil {
			logger.Error().Str("rule", v2.Rule).Str("excerpt", v2.Excerpt).Msg("Integrity violation after retry, using human fallback")
			meta.Fallback = FallbackIntegrity
			return entities.Reply{Text: HumanFallback(env.Tenant), Degraded: true, Metadata: meta}
		}
		answer = second.text
	}

	reply := entities.Reply{Text: strings.TrimSpace(answer), Metadata: meta}
	if !e.usedSideEffects(meta.ToolsUsed) {
		e.responses.Set(cacheKey, cachedReply{Text: reply.Text, Metadata: meta}, responseCacheTTL)
	}
	logger.Info().Int("iterations", meta.Iterations).Strs("tools", meta.ToolsUsed).Msg("Customer reply generated")
	return reply
}

// failure maps a run that produced no final answer to a fallback reply.
func (e *CustomerEngine) failure(ctx context.Context, env ToolEnv, intent Intent, r loopRun, firstRun bool, meta entities.TurnMetadata) (entities.Reply, bool) {
	switch {
	case r.err != nil && firstRun && r.failedAt == 1:
		meta.Fallback = FallbackTemplate
		return entities.Reply{Text: e.templates.Respond(ctx, env.Tenant, intent), Degraded: true, Metadata: meta}, true
	case r.err != nil:
		meta.Fallback = FallbackApology
		return entities.Reply{Text: Apology(env.Tenant), Degraded: true, Metadata: meta}, true
	case !r.final:
		meta.Fallback = FallbackCap
		return entities.Reply{Text: Apology(env.Tenant), Degraded: true, Metadata: meta}, true
	}
	return entities.Reply{}, false
}

// run executes at most MaxIterations provider calls. Tool calls requested in
// one iteration run concurrently and are joined before the next call.
func (e *CustomerEngine) run(ctx context.Context, env ToolEnv, msgs []entities.ChatMessage) loopRun {
	var out loopRun
	msgs = append([]entities.ChatMessage(nil), msgs...)
	schemas := e.tools.Schemas()

	for i := 1; i <= MaxIterations; i++ {
		out.iterations = i
		ictx, span := infrastructure.StartSpan(ctx, "engine.iteration", attribute.Int("iteration", i))
		comp, err := e.reasoning.Complete(ictx, entities.CompletionRequest{Messages: msgs, Tools: schemas})
		if err == nil && !comp.WantsTools() && (comp == nil || strings.TrimSpace(comp.Text) == "") {
			err = errEmptyCompletion
		}
		if err != nil {
			infrastructure.EndSpan(span, err)
			out.err, out.failedAt = err, i
			break
		}

		if !comp.WantsTools() {
			infrastructure.EndSpan(span, nil)
			out.text, out.final = comp.Text, true
			break
		}

		msgs = append(msgs, entities.ChatMessage{Role: entities.ChatAssistant, Content: comp.Text, ToolCalls: comp.ToolCalls})
		results, executed := e.tools.ExecuteAll(ictx, env, comp.ToolCalls)
		infrastructure.EndSpan(span, nil)

		out.tools = append(out.tools, executed...)
		for _, r := range results {
			msgs = append(msgs, entities.ChatMessage{Role: entities.ChatTool, Content: r.Content, ToolCallID: r.ToolCallID, Name: r.Name})
			out.toolOutputs = append(out.toolOutputs, r.Content)
		}
	}

	out.messages = msgs
	return out
}

func (e *CustomerEngine) usedSideEffects(names []string) bool {
	for _, n := range names {
		if e.tools.HasSideEffects(n) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func uniqueNames(names []string) []string {
	var out []string
	for _, n := range names {
		if !contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
