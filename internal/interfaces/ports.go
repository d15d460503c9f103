package interfaces

import (
	"context"
	"io"
	"time"

	"showroom_bot/internal/entities"
)

// Persistence is the lead/turn/staff store the engine writes through.
type Persistence interface {
	FindOrCreateLead(ctx context.Context, tenantID, phone string) (entities.LeadID, error)
	AppendTurn(ctx context.Context, tenantID string, leadID entities.LeadID, turn entities.ConversationTurn) error
	RecentTurns(ctx context.Context, tenantID string, leadID entities.LeadID, limit int) ([]entities.ConversationTurn, error)
	// FindStaffByPhone returns nil, nil when nobody matches.
	FindStaffByPhone(ctx context.Context, tenantID, phoneSuffix string) (*entities.StaffRecord, error)
	TenantProfile(ctx context.Context, tenantID string) (*entities.Tenant, error)
}

type Inventory interface {
	SearchCars(ctx context.Context, tenantID string, q entities.CarQuery) ([]entities.Car, error)
	CarByCode(ctx context.Context, tenantID, code string) (*entities.Car, error)
	ImportCars(ctx context.Context, tenantID string, r io.Reader) (int, error)
	CountAvailable(ctx context.Context, tenantID string) (int, error)
}

type Scheduling interface {
	BookTestDrive(ctx context.Context, td *entities.TestDrive) error
	UpcomingTestDrives(ctx context.Context, tenantID string, from, to time.Time) ([]entities.TestDrive, error)
}

type ContentStore interface {
	SaveDraft(ctx context.Context, a *entities.Article) error
	RecentDrafts(ctx context.Context, tenantID string, limit int) ([]entities.Article, error)
}

type ReasoningProvider interface {
	Complete(ctx context.Context, req entities.CompletionRequest) (*entities.Completion, error)
}

// Gateway is the outbound messaging transport.
type Gateway interface {
	SendText(ctx context.Context, tenantID, phone, text string) error
	SendMedia(ctx context.Context, tenantID, phone, mediaURL, caption string) error
	MarkRead(ctx context.Context, tenantID, phone string, messageIDs []string) error
}

type MediaResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

type OutcomePublisher interface {
	Publish(ctx context.Context, evt entities.OutcomeEvent) error
}

type UsageRecorder interface {
	IncrementSent(ctx context.Context, tenantID string) error
	IncrementReceived(ctx context.Context, tenantID string) error
}

// StateStore keeps operator conversation state and short-lived claim records.
type StateStore interface {
	Get(key string) (*entities.ConversationState, bool)
	Put(key string, st *entities.ConversationState)
	Delete(key string)
	// Claim records key for ttl and reports false if it was already claimed.
	Claim(key string, ttl time.Duration) bool
	Release(key string)
}
