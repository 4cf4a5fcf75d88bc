package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"genieacs-portal/internal/telemetry"
	"genieacs-portal/internal/telemetry/domain"
)

// scopeName is the instrumentation scope of portal event log records.
const scopeName = "genieacs-portal.events"

// recordEmitter is the subset of otellog.Logger used by the adapter.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(scopeName)}
}

// NewEventEmitterWithLogger builds the emitter over an arbitrary record sink.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record. Metadata becomes the JSON body.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if len(event.Metadata) > 0 {
		body, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		rec.SetBody(otellog.BytesValue(body))
	}
	if event.Outcome == "failure" {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	for _, kv := range []struct{ key, val string }{
		{"event_id", event.ID},
		{"event_type", event.EventType},
		{"source", event.Source},
		{"actor", event.Actor},
		{"role", event.Role},
		{"device_id", event.DeviceID},
		{"outcome", event.Outcome},
	} {
		if kv.val != "" {
			rec.AddAttributes(otellog.String(kv.key, kv.val))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
