package telemetry

import (
	"context"
	"errors"

	"genieacs-portal/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// Multi fans an event out to every non-nil emitter and joins their errors.
type Multi []EventEmitter

// Emit implements EventEmitter.
func (m Multi) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
