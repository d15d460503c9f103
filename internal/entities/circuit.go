package entities

import "time"

// CircuitState is a point-in-time view of one dependency breaker.
type CircuitState struct {
	Dependency          string    `json:"dependency"`
	State               string    `json:"state"` // closed, open, half-open
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}
