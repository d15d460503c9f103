package entities

import "time"

type SenderRole string

const (
	RoleCustomer SenderRole = "customer"
	RoleStaff    SenderRole = "staff"
	RoleOperator SenderRole = "operator"
)

// CanOperate reports whether the role is routed to the command interpreter.
func (r SenderRole) CanOperate() bool {
	return r == RoleStaff || r == RoleOperator
}

type TurnRole string

const (
	TurnCustomer TurnRole = "customer"
	TurnBot      TurnRole = "bot"
	TurnOperator TurnRole = "operator"
)

type TurnMetadata struct {
	Intent     string   `json:"intent,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Iterations int      `json:"iterations,omitempty"`
	ToolsUsed  []string `json:"tools_used,omitempty"`
	Command    string   `json:"command,omitempty"`
	Fallback   string   `json:"fallback,omitempty"`
	MediaRef   string   `json:"media_ref,omitempty"`
	Cached     bool     `json:"cached,omitempty"`
	// Delivery is empty for a delivered reply.
	Delivery string `json:"delivery,omitempty"`
}

const DeliveryFailed = "failed"

type ConversationTurn struct {
	Role      TurnRole     `json:"role"`
	Text      string       `json:"text"`
	Metadata  TurnMetadata `json:"metadata"`
	CreatedAt time.Time    `json:"created_at"`
}

// ConversationState is the operator wizard record scoped to one tenant and phone.
type ConversationState struct {
	TenantID        string            `json:"tenant_id"`
	Phone           string            `json:"phone"`
	CurrentCommand  string            `json:"current_command"`
	Step            int               `json:"step"`
	CollectedFields map[string]string `json:"collected_fields"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

func (s *ConversationState) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

type LeadID int64

type Lead struct {
	ID        LeadID    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
