package usecases

import (
	"context"
	"io"
	"time"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/interfaces"
	"showroom_bot/internal/resilience"
)

// The guarded adapters bind every collaborator call to its class deadline and
// dependency breaker. Reads are retried; writes run once.

const tenantProfileTTL = 5 * time.Minute

type GuardedPersistence struct {
	inner    interfaces.Persistence
	registry *resilience.Registry
	profiles *resilience.Cache
}

func NewGuardedPersistence(inner interfaces.Persistence, reg *resilience.Registry) *GuardedPersistence {
	return &GuardedPersistence{inner: inner, registry: reg, profiles: resilience.NewCache(tenantProfileTTL, 10*time.Minute)}
}

// FindOrCreateLead is an upsert, safe to retry.
func (g *GuardedPersistence) FindOrCreateLead(ctx context.Context, tenantID, phone string) (entities.LeadID, error) {
	return resilience.CallRetry(ctx, g.registry, resilience.ClassPersistence, func(ctx context.Context) (entities.LeadID, error) {
		return g.inner.FindOrCreateLead(ctx, tenantID, phone)
	})
}

func (g *GuardedPersistence) AppendTurn(ctx context.Context, tenantID string, leadID entities.LeadID, turn entities.ConversationTurn) error {
	return g.registry.Do(ctx, resilience.ClassPersistence, func(ctx context.Context) error {
		return g.inner.AppendTurn(ctx, tenantID, leadID, turn)
	})
}

func (g *GuardedPersistence) RecentTurns(ctx context.Context, tenantID string, leadID entities.LeadID, limit int) ([]entities.ConversationTurn, error) {
	return resilience.CallRetry(ctx, g.registry, resilience.ClassPersistence, func(ctx context.Context) ([]entities.ConversationTurn, error) {
		return g.inner.RecentTurns(ctx, tenantID, leadID, limit)
	})
}

func (g *GuardedPersistence) FindStaffByPhone(ctx context.Context, tenantID, phoneSuffix string) (*entities.StaffRecord, error) {
	return resilience.CallRetry(ctx, g.registry, resilience.ClassPersistence, func(ctx context.Context) (*entities.StaffRecord, error) {
		return g.inner.FindStaffByPhone(ctx, tenantID, phoneSuffix)
	})
}

// TenantProfile is cached for a few minutes; profiles change rarely.
func (g *GuardedPersistence) TenantProfile(ctx context.Context, tenantID string) (*entities.Tenant, error) {
	return resilience.GetOrLoad(ctx, g.profiles, resilience.Key("tenant", tenantID), tenantProfileTTL, func(ctx context.Context) (*entities.Tenant, error) {
		return resilience.CallRetry(ctx, g.registry, resilience.ClassPersistence, func(ctx context.Context) (*entities.Tenant, error) {
			return g.inner.TenantProfile(ctx, tenantID)
		})
	})
}

// InvalidateTenant drops the cached profile after an admin change.
func (g *GuardedPersistence) InvalidateTenant(tenantID string) {
	g.profiles.Delete(resilience.Key("tenant", tenantID))
}

type GuardedReasoning struct {
	inner    interfaces.ReasoningProvider
	registry *resilience.Registry
}

func NewGuardedReasoning(inner interfaces.ReasoningProvider, reg *resilience.Registry) *GuardedReasoning {
	return &GuardedReasoning{inner: inner, registry: reg}
}

func (g *GuardedReasoning) Complete(ctx context.Context, req entities.CompletionRequest) (*entities.Completion, error) {
	return resilience.Call(ctx, g.registry, resilience.ClassReasoning, func(ctx context.Context) (*entities.Completion, error) {
		return g.inner.Complete(ctx, req)
	})
}

type GuardedInventory struct {
	inner    interfaces.Inventory
	registry *resilience.Registry
}

func NewGuardedInventory(inner interfaces.Inventory, reg *resilience.Registry) *GuardedInventory {
	return &GuardedInventory{inner: inner, registry: reg}
}

func (g *GuardedInventory) SearchCars(ctx context.Context, tenantID string, q entities.CarQuery) ([]entities.Car, error) {
	return resilience.CallRetry(ctx, g.registry, resilience.ClassPersistence, func(ctx context.Context) ([]entities.Car, error) {
		return g.inner.SearchCars(ctx, tenantID, q)
	})
}

func (g *GuardedInventory) CarByCode(ctx context.Context, tenantID, code string) (*entities.Car, error) {
	return resilience.CallRetry(ctx, g.registry, resilience.ClassPersistence, func(ctx context.Context) (*entities.Car, error) {
		return g.inner.CarByCode(ctx, tenantID, code)
	})
}

// ImportCars consumes r, so it cannot be retried.
func (g *GuardedInventory) ImportCars(ctx context.Context, tenantID string, r io.Reader) (int, error) {
	return resilience.Call(ctx, g.registry, resilience.ClassBulk, func(ctx context.Context) (int, error) {
		return g.inner.ImportCars(ctx, tenantID, r)
	})
}

func (g *GuardedInventory) CountAvailable(ctx context.Context, tenantID string) (int, error) {
	return resilience.CallRetry(ctx, g.registry, resilience.ClassPersistence, func(ctx context.Context) (int, error) {
		return g.inner.CountAvailable(ctx, tenantID)
	})
}

type GuardedScheduling struct {
	inner    interfaces.Scheduling
	registry *resilience.Registry
}

func NewGuardedScheduling(inner interfaces.Scheduling, reg *resilience.Registry) *GuardedScheduling {
	return &GuardedScheduling{inner: inner, registry: reg}
}

func (g *GuardedScheduling) BookTestDrive(ctx context.Context, td *entities.TestDrive) error {
	return g.registry.Do(ctx, resilience.ClassPersistence, func(ctx context.Context) error {
		return g.inner.BookTestDrive(ctx, td)
	})
}

func (g *GuardedScheduling) UpcomingTestDrives(ctx context.Context, tenantID string, from, to time.Time) ([]entities.TestDrive, error) {
	return resilience.CallRetry(ctx, g.registry, resilience.ClassPersistence, func(ctx context.Context) ([]entities.TestDrive, error) {
		return g.inner.UpcomingTestDrives(ctx, tenantID, from, to)
	})
}

type GuardedContent struct {
	inner    interfaces.ContentStore
	registry *resilience.Registry
}

func NewGuardedContent(inner interfaces.ContentStore, reg *resilience.Registry) *GuardedContent {
	return &GuardedContent{inner: inner, registry: reg}
}

func (g *GuardedContent) SaveDraft(ctx context.Context, a *entities.Article) error {
	return g.registry.Do(ctx, resilience.ClassPersistence, func(ctx context.Context) error {
		return g.inner.SaveDraft(ctx, a)
	})
}

func (g *GuardedContent) RecentDrafts(ctx context.Context, tenantID string, limit int) ([]entities.Article, error) {
	return resilience.CallRetry(ctx, g.registry, resilience.ClassPersistence, func(ctx context.Context) ([]entities.Article, error) {
		return g.inner.RecentDrafts(ctx, tenantID, limit)
	})
}

type GuardedUsage struct {
	inner    interfaces.UsageRecorder
	registry *resilience.Registry
}

func NewGuardedUsage(inner interfaces.UsageRecorder, reg *resilience.Registry) *GuardedUsage {
	return &GuardedUsage{inner: inner, registry: reg}
}

func (g *GuardedUsage) IncrementSent(ctx context.Context, tenantID string) error {
	return g.registry.Do(ctx, resilience.ClassPersistence, func(ctx context.Context) error {
		return g.inner.IncrementSent(ctx, tenantID)
	})
}

func (g *GuardedUsage) IncrementReceived(ctx context.Context, tenantID string) error {
	return g.registry.Do(ctx, resilience.ClassPersistence, func(ctx context.Context) error {
		return g.inner.IncrementReceived(ctx, tenantID)
	})
}
