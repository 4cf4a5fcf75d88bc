package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"genieacs-portal/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by Async and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration bounds how long Drain waits for in-flight emits before the providers shut down.
const ShutdownDrainDuration = emitTimeout

// Async runs Emit in a goroutine with a short timeout so request handlers are not blocked.
// A nil *Async is valid and drops every event.
type Async struct {
	emitter EventEmitter
	logger  *zap.Logger
	nowF    func() time.Time
	wg      sync.WaitGroup
}

// NewAsync wraps emitter for fire-and-forget use. emitter may be nil; then Emit is a no-op.
func NewAsync(emitter EventEmitter, logger *zap.Logger) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Async{emitter: emitter, logger: logger, nowF: time.Now}
}

// Emit fills ID, Source, and CreatedAt when unset and emits in the background.
// The goroutine uses context.Background() with emitTimeout so request cancellation does not abort in-flight emit.
func (a *Async) Emit(event *domain.Event) {
	if a == nil || a.emitter == nil || event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Source == "" {
		event.Source = domain.Source
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = a.nowF().UTC()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := a.emitter.Emit(emitCtx, event); err != nil {
			a.logger.Warn("telemetry: async emit failed", zap.String("event_type", event.EventType), zap.Error(err))
		}
	}()
}

// Drain waits for in-flight emits or until ctx is done.
func (a *Async) Drain(ctx context.Context) {
	if a == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
