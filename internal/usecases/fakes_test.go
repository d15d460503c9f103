package usecases

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/resilience"
)

func testRegistry() *resilience.Registry {
	return resilience.NewRegistry(nil, nil)
}

func testTenant() *entities.Tenant {
	return &entities.Tenant{ID: "showroom-a", DisplayName: "Maju Motor", ContactPhone: "081200001111"}
}

type fakePersistence struct {
	mu      sync.Mutex
	tenant  *entities.Tenant
	staff   map[string]*entities.StaffRecord // phone suffix -> record
	leadErr error
	turns   []entities.ConversationTurn
	history []entities.ConversationTurn
}

func (f *fakePersistence) FindOrCreateLead(_ context.Context, _, phone string) (entities.LeadID, error) {
	if f.leadErr != nil {
		return 0, f.leadErr
	}
	return entities.LeadID(len(phone)), nil
}

func (f *fakePersistence) AppendTurn(_ context.Context, _ string, _ entities.LeadID, turn entities.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakePersistence) RecentTurns(context.Context, string, entities.LeadID, int) ([]entities.ConversationTurn, error) {
	return f.history, nil
}

func (f *fakePersistence) FindStaffByPhone(_ context.Context, _, suffix string) (*entities.StaffRecord, error) {
	return f.staff[suffix], nil
}

func (f *fakePersistence) TenantProfile(context.Context, string) (*entities.Tenant, error) {
	if f.tenant == nil {
		return nil, entities.ErrNotFound
	}
	return f.tenant, nil
}

func (f *fakePersistence) recorded() []entities.ConversationTurn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.ConversationTurn(nil), f.turns...)
}

type fakeInventory struct {
	cars      []entities.Car
	searchErr error
	imported  string
}

func (f *fakeInventory) SearchCars(_ context.Context, _ string, q entities.CarQuery) ([]entities.Car, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []entities.Car
	for _, c := range f.cars {
		if q.Brand != "" && !strings.EqualFold(c.Brand, q.Brand) {
			continue
		}
		if q.Model != "" && !strings.EqualFold(c.Model, q.Model) {
			continue
		}
		if q.MaxPrice > 0 && c.Price > q.MaxPrice {
			continue
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeInventory) CarByCode(_ context.Context, _, code string) (*entities.Car, error) {
	for _, c := range f.cars {
		if c.Code == code {
			car := c
			return &car, nil
		}
	}
	return nil, entities.ErrNotFound
}

func (f *fakeInventory) ImportCars(_ context.Context, _ string, r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.imported = string(raw)
	return strings.Count(strings.TrimSpace(f.imported), "\n"), nil
}

func (f *fakeInventory) CountAvailable(context.Context, string) (int, error) {
	return len(f.cars), nil
}

type fakeScheduling struct {
	booked []*entities.TestDrive
}

func (f *fakeScheduling) BookTestDrive(_ context.Context, td *entities.TestDrive) error {
	td.ID = int64(len(f.booked) + 1)
	f.booked = append(f.booked, td)
	return nil
}

func (f *fakeScheduling) UpcomingTestDrives(context.Context, string, time.Time, time.Time) ([]entities.TestDrive, error) {
	var out []entities.TestDrive
	for _, td := range f.booked {
		out = append(out, *td)
	}
	return out, nil
}

type fakeContent struct {
	drafts []*entities.Article
}

func (f *fakeContent) SaveDraft(_ context.Context, a *entities.Article) error {
	a.ID = int64(len(f.drafts) + 1)
	f.drafts = append(f.drafts, a)
	return nil
}

func (f *fakeContent) RecentDrafts(context.Context, string, int) ([]entities.Article, error) {
	out := make([]entities.Article, 0, len(f.drafts))
	for i := len(f.drafts) - 1; i >= 0; i-- {
		out = append(out, *f.drafts[i])
	}
	return out, nil
}

// scriptedReasoning returns its steps in order and repeats the last one.
type scriptedReasoning struct {
	mu       sync.Mutex
	steps    []func(req entities.CompletionRequest) (*entities.Completion, error)
	requests []entities.CompletionRequest
}

func (s *scriptedReasoning) Complete(_ context.Context, req entities.CompletionRequest) (*entities.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i](req)
}

func (s *scriptedReasoning) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func answer(text string) func(entities.CompletionRequest) (*entities.Completion, error) {
	return func(entities.CompletionRequest) (*entities.Completion, error) {
		return &entities.Completion{Text: text, FinishReason: "stop"}, nil
	}
}

func callTool(id, name string, args any) func(entities.CompletionRequest) (*entities.Completion, error) {
	raw, _ := json.Marshal(args)
	return func(entities.CompletionRequest) (*entities.Completion, error) {
		return &entities.Completion{ToolCalls: []entities.ToolCall{{ID: id, Name: name, Arguments: raw}}, FinishReason: "tool_calls"}, nil
	}
}

func fail(err error) func(entities.CompletionRequest) (*entities.Completion, error) {
	return func(entities.CompletionRequest) (*entities.Completion, error) {
		return nil, err
	}
}

type sentMessage struct {
	TenantID, Phone, Text, MediaURL, Caption string
}

// fakeGateway records every outbound action. sendErr, when set, fails text sends.
type fakeGateway struct {
	mu      sync.Mutex
	sent    []sentMessage
	read    []string
	sendErr error
}

func (g *fakeGateway) SendText(_ context.Context, tenantID, phone, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, sentMessage{TenantID: tenantID, Phone: phone, Text: text})
	return nil
}

func (g *fakeGateway) SendMedia(_ context.Context, tenantID, phone, mediaURL, caption string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{TenantID: tenantID, Phone: phone, MediaURL: mediaURL, Caption: caption})
	return nil
}

func (g *fakeGateway) MarkRead(_ context.Context, _, _ string, ids []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.read = append(g.read, ids...)
	return nil
}

func (g *fakeGateway) messages() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMessage(nil), g.sent...)
}

type fakeUsage struct {
	mu             sync.Mutex
	sent, received int
}

func (u *fakeUsage) IncrementSent(context.Context, string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sent++
	return nil
}

func (u *fakeUsage) IncrementReceived(context.Context, string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.received++
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []entities.OutcomeEvent
}

func (p *fakePublisher) Publish(_ context.Context, evt entities.OutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func avanza() entities.Car {
	return entities.Car{
		Code: "AV01", Brand: "Toyota", Model: "Avanza", Variant: "1.5 G", Year: 2020,
		Price: 185_000_000, Transmission: "AT", MileageKm: 45000, Status: "available",
		Photos: []string{"https://cdn.example.com/av01-1.jpg", "https://cdn.example.com/av01-2.jpg"},
	}
}

func brio() entities.Car {
	return entities.Car{Code: "BR02", Brand: "Honda", Model: "Brio", Year: 2019, Price: 135_000_000, Status: "available"}
}

func mustTools(t *testing.T, d CustomerToolDeps) *ToolRegistry {
	t.Helper()
	reg := NewToolRegistry()
	require.NoError(t, RegisterCustomerTools(reg, d))
	return reg
}
