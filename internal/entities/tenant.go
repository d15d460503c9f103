package entities

import "time"

// Tenant holds the persona fields used in replies. Treated as immutable while a message is processed.
type Tenant struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	ContactPhone string `json:"contact_phone"`
	Address      string `json:"address"`
	// NotifyPhone receives booking notifications; falls back to ContactPhone.
	NotifyPhone    string `json:"notify_phone"`
	WelcomeMessage string `json:"welcome_message,omitempty"`
}

func (t *Tenant) NotificationTarget() string {
	if t.NotifyPhone != "" {
		return t.NotifyPhone
	}
	return t.ContactPhone
}

type StaffStatus string

const (
	StaffActive   StaffStatus = "active"
	StaffInactive StaffStatus = "inactive"
)

type StaffRecord struct {
	ID       int64       `json:"id"`
	TenantID string      `json:"tenant_id"`
	Name     string      `json:"name"`
	Phone    string      `json:"phone"`
	AltPhone string      `json:"alt_phone"`
	Role     string      `json:"role"` // owner, admin, sales, ...
	Status   StaffStatus `json:"status"`
}

type Car struct {
	Code         string   `json:"code"`
	TenantID     string   `json:"tenant_id"`
	Brand        string   `json:"brand"`
	Model        string   `json:"model"`
	Variant      string   `json:"variant"`
	Year         int      `json:"year"`
	Price        int64    `json:"price"`
	Transmission string   `json:"transmission"`
	MileageKm    int      `json:"mileage_km"`
	Color        string   `json:"color"`
	Status       string   `json:"status"` // available, booked, sold
	Description  string   `json:"description"`
	Photos       []string `json:"photos"`
}

func (c Car) Title() string {
	title := c.Brand + " " + c.Model
	if c.Variant != "" {
		title += " " + c.Variant
	}
	return title
}

type CarQuery struct {
	Brand        string
	Model        string
	MaxPrice     int64
	MinYear      int
	Transmission string
	Limit        int
}

type TestDrive struct {
	ID           int64     `json:"id"`
	TenantID     string    `json:"tenant_id"`
	LeadID       LeadID    `json:"lead_id"`
	CarCode      string    `json:"car_code"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	ScheduledAt  time.Time `json:"scheduled_at"`
}

type Article struct {
	ID        int64     `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tone      string    `json:"tone"`
	Category  string    `json:"category"`
	Reference string    `json:"reference"`
	Keywords  []string  `json:"keywords"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// OutcomeEvent is published once per processed inbound message.
type OutcomeEvent struct {
	TenantID   string     `json:"tenant_id"`
	LeadID     LeadID     `json:"lead_id"`
	Phone      string     `json:"phone"`
	Role       SenderRole `json:"role"`
	Status     string     `json:"status"`
	Intent     string     `json:"intent,omitempty"`
	Iterations int        `json:"iterations,omitempty"`
	ToolsUsed  []string   `json:"tools_used,omitempty"`
	MessageID  string     `json:"message_id,omitempty"`
	At         time.Time  `json:"at"`
}
