package service

import (
	"context"

	"genieacs-portal/internal/audit"
	auditdomain "genieacs-portal/internal/audit/domain"
	"genieacs-portal/internal/telemetry"
	telemetrydomain "genieacs-portal/internal/telemetry/domain"
)

// Event types recorded by the portal flows, in addition to the authorization actions.
const (
	EventCustomerLogin = "customer.login"
	EventOTPIssued     = "customer.otp_issued"
	EventOTPVerify     = "customer.otp_verify"
	EventAdminLogin    = "admin.login"
)

// Recorder writes each portal event to the audit log and the telemetry stream. Both sinks are
// best-effort and optional; a nil *Recorder drops everything.
type Recorder struct {
	audit  audit.AuditLogger
	events *telemetry.Async
}

// NewRecorder returns a Recorder. Either sink may be nil.
func NewRecorder(auditLogger audit.AuditLogger, events *telemetry.Async) *Recorder {
	return &Recorder{audit: auditLogger, events: events}
}

// Record logs one event.
func (r *Recorder) Record(ctx context.Context, e audit.Event) {
	if r == nil {
		return
	}
	if e.Outcome == "" {
		e.Outcome = auditdomain.OutcomeSuccess
	}
	if r.audit != nil {
		r.audit.LogEvent(ctx, e)
	}
	r.events.Emit(&telemetrydomain.Event{
		EventType: e.Action,
		Actor:     e.Actor,
		Role:      e.Role,
		DeviceID:  e.DeviceID,
		Outcome:   e.Outcome,
		Metadata:  e.Metadata,
	})
}

func outcome(err error) string {
	if err != nil {
		return auditdomain.OutcomeFailure
	}
	return auditdomain.OutcomeSuccess
}
