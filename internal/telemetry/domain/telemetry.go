package domain

import "time"

// Source tags every event produced by the portal.
const Source = "genieacs-portal"

// Event is a portal activity event (login, OTP, device action, settings change).
// It is serialized as JSON on the Kafka topic and pushed to Loki by the worker.
type Event struct {
	ID        string            `json:"id"`
	EventType string            `json:"eventType"`
	Source    string            `json:"source"`
	Actor     string            `json:"actor,omitempty"`
	Role      string            `json:"role,omitempty"`
	DeviceID  string            `json:"deviceId,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
