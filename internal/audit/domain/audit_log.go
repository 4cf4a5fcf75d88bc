package domain

import "time"

// Outcomes recorded on audit entries.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditLog represents an audit event raised by a portal action.
type AuditLog struct {
	ID       string `json:"id"`
	Actor    string `json:"actor"`
	Role     string `json:"role"`
	Action   string `json:"action"`
	DeviceID string `json:"deviceId,omitempty"`
	Outcome  string `json:"outcome"`
	IP       string `json:"ip"`
	// Metadata is a JSON object string; empty when the event carries none.
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
