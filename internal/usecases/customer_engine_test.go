package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/infrastructure"
)

type engineFixture struct {
	engine    *CustomerEngine
	reasoning *scriptedReasoning
	gateway   *fakeGateway
	store     *fakePersistence
	env       ToolEnv
}

func newEngineFixture(t *testing.T, steps ...func(entities.CompletionRequest) (*entities.Completion, error)) *engineFixture {
	t.Helper()
	f := &engineFixture{
		reasoning: &scriptedReasoning{steps: steps},
		gateway:   &fakeGateway{},
		store:     &fakePersistence{tenant: testTenant()},
		env:       ToolEnv{Tenant: testTenant(), LeadID: 13, Phone: "6281234567890"},
	}
	inv := &fakeInventory{cars: []entities.Car{avanza(), brio()}}
	reg := mustTools(t, CustomerToolDeps{
		Inventory:  inv,
		Scheduling: &fakeScheduling{},
		Outbound:   NewDispatcher(f.gateway, testRegistry(), infrastructure.NewMemoryStateStore(time.Minute), nil, nil),
	})
	f.engine = NewCustomerEngine(CustomerEngineDeps{
		Reasoning: f.reasoning,
		Tools:     reg,
		Context:   NewContextBuilder(f.store, reg),
		Templates: NewTemplateResponder(inv),
	})
	return f
}

func TestEngine_PureGreetingSkipsReasoning(t *testing.T) {
	f := newEngineFixture(t, answer("should not be used"))

	reply := f.engine.Respond(context.Background(), f.env, "Halo min")
	assert.Contains(t, reply.Text, "Selamat datang di Maju Motor")
	assert.Contains(t, reply.Text, "081200001111")
	assert.Equal(t, IntentGreeting, reply.Metadata.Intent)
	assert.False(t, reply.Degraded)
	assert.Zero(t, f.reasoning.calls())
}

func TestEngine_ToolLoopThenAnswer(t *testing.T) {
	f := newEngineFixture(t,
		callTool("c1", ToolSearchInventory, map[string]any{"model": "avanza"}),
		answer("Ada kak, unit AV01 Toyota Avanza 2020 ready."),
	)
	f.store.history = []entities.ConversationTurn{
		{Role: entities.TurnCustomer, Text: "sore"},
		{Role: entities.TurnBot, Text: "Sore kak, ada yang bisa dibantu?"},
	}

	reply := f.engine.Respond(context.Background(), f.env, "ada avanza matic?")
	assert.Equal(t, "Ada kak, unit AV01 Toyota Avanza 2020 ready.", reply.Text)
	assert.False(t, reply.Degraded)
	assert.Equal(t, 2, reply.Metadata.Iterations)
	assert.Equal(t, []string{ToolSearchInventory}, reply.Metadata.ToolsUsed)
	require.Equal(t, 2, f.reasoning.calls())

	first := f.reasoning.requests[0]
	require.Len(t, first.Messages, 4)
	assert.Equal(t, entities.ChatSystem, first.Messages[0].Role)
	assert.Equal(t, entities.ChatUser, first.Messages[1].Role)
	assert.Equal(t, entities.ChatAssistant, first.Messages[2].Role)
	assert.Equal(t, "ada avanza matic?", first.Messages[3].Content)
	assert.Len(t, first.Tools, 6)

	second := f.reasoning.requests[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, entities.ChatTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Contains(t, last.Content, "[AV01]")
}

func TestEngine_RepeatedQuestionIsCached(t *testing.T) {
	f := newEngineFixture(t, answer("Brio tahun 2019 harganya 135 juta kak."))
	ctx := context.Background()

	first := f.engine.Respond(ctx, f.env, "harga brio berapa?")
	require.False(t, first.Metadata.Cached)

	second := f.engine.Respond(ctx, f.env, "harga brio berapa?")
	assert.True(t, second.Metadata.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, f.reasoning.calls())

	other := f.env
	other.LeadID = 14
	f.engine.Respond(ctx, other, "harga brio berapa?")
	assert.Equal(t, 2, f.reasoning.calls())
}

func TestEngine_IterationCap(t *testing.T) {
	f := newEngineFixture(t, callTool("c1", ToolSearchInventory, map[string]any{"brand": "honda"}))

	reply := f.engine.Respond(context.Background(), f.env, "cari mobil keluarga irit")
	assert.True(t, reply.Degraded)
	assert.Equal(t, FallbackCap, reply.Metadata.Fallback)
	assert.Equal(t, Apology(f.env.Tenant), reply.Text)
	assert.Equal(t, MaxIterations, f.reasoning.calls())
	assert.Equal(t, MaxIterations, reply.Metadata.Iterations)
}

func TestEngine_FirstCallFailureUsesTemplate(t *testing.T) {
	f := newEngineFixture(t, fail(errors.New("provider down")))

	reply := f.engine.Respond(context.Background(), f.env, "harga avanza berapa?")
	assert.True(t, reply.Degraded)
	assert.Equal(t, FallbackTemplate, reply.Metadata.Fallback)
	assert.Contains(t, reply.Text, "[AV01] Toyota Avanza")
	assert.NotContains(t, reply.Text, "BR02")
	assert.Equal(t, 1, f.reasoning.calls())
}

func TestEngine_EmptyAnswerCountsAsFailure(t *testing.T) {
	f := newEngineFixture(t, answer("   "))

	reply := f.engine.Respond(context.Background(), f.env, "alamat showroom dimana?")
	assert.True(t, reply.Degraded)
	assert.Equal(t, FallbackTemplate, reply.Metadata.Fallback)
	assert.Contains(t, reply.Text, "Maju Motor")
}

func TestEngine_LaterFailureApologizes(t *testing.T) {
	f := newEngineFixture(t,
		callTool("c1", ToolSearchInventory, map[string]any{}),
		fail(&entities.DependencyError{Dependency: "reasoning", Kind: entities.KindTimeout}),
	)

	reply := f.engine.Respond(context.Background(), f.env, "ada unit matic?")
	assert.True(t, reply.Degraded)
	assert.Equal(t, FallbackApology, reply.Metadata.Fallback)
	assert.Equal(t, Apology(f.env.Tenant), reply.Text)
}

func TestEngine_PhotoClaimForcesCorrectiveRetry(t *testing.T) {
	f := newEngineFixture(t,
		answer("Fotonya sudah saya kirim ya kak."),
		callTool("c2", ToolSendPhotos, map[string]any{"code": "AV01"}),
		answer("Sudah saya kirimkan 2 foto unit AV01 ya kak."),
	)

	reply := f.engine.Respond(context.Background(), f.env, "ada foto Avanza?")
	assert.False(t, reply.Degraded)
	assert.Equal(t, "Sudah saya kirimkan 2 foto unit AV01 ya kak.", reply.Text)
	assert.Equal(t, []string{ToolSendPhotos}, reply.Metadata.ToolsUsed)
	assert.Equal(t, 3, reply.Metadata.Iterations)

	retry := f.reasoning.requests[1]
	last := retry.Messages[len(retry.Messages)-1]
	assert.Equal(t, entities.ChatSystem, last.Role)
	assert.Contains(t, last.Content, ToolSendPhotos)
	assert.Equal(t, "Fotonya sudah saya kirim ya kak.", retry.Messages[len(retry.Messages)-2].Content)

	sent := f.gateway.messages()
	require.Len(t, sent, 2)
	assert.NotEmpty(t, sent[0].MediaURL)
}

func TestEngine_RepeatedViolationHandsOffToHuman(t *testing.T) {
	f := newEngineFixture(t, answer("Fotonya sudah saya kirim ya kak."))

	reply := f.engine.Respond(context.Background(), f.env, "ada foto Avanza?")
	assert.True(t, reply.Degraded)
	assert.Equal(t, FallbackIntegrity, reply.Metadata.Fallback)
	assert.Equal(t, HumanFallback(f.env.Tenant), reply.Text)
	assert.Equal(t, 2, f.reasoning.calls())
	assert.Empty(t, f.gateway.messages())
}
