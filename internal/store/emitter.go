package store

import (
	"context"

	"github.com/yungbote/metagraph-backend/internal/domain"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
)

// Emitter receives change events after the originating transaction has
// committed. Delivery is at-least-once; emit failures are logged by the
// store and never fail the already-committed write.
type Emitter interface {
	Emit(ctx context.Context, event domain.ChangeEvent) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, event domain.ChangeEvent) error

func (f EmitterFunc) Emit(ctx context.Context, event domain.ChangeEvent) error {
	return f(ctx, event)
}

// MultiEmitter fans an event out to every registered emitter. A failing
// emitter does not stop the others.
type MultiEmitter struct {
	emitters []Emitter
	log      *logger.Logger
}

func NewMultiEmitter(log *logger.Logger, emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters, log: log.With("service", "MultiEmitter")}
}

func (m *MultiEmitter) Emit(ctx context.Context, event domain.ChangeEvent) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, event); err != nil {
			m.log.Error("Change event emitter failed", "urn", event.Urn.String(), "aspect", event.AspectName, "error", err)
		}
	}
	return nil
}

// LogEmitter writes change events to the structured log. The default sink
// when no eventing layer is wired.
type LogEmitter struct {
	log *logger.Logger
}

func NewLogEmitter(baseLog *logger.Logger) *LogEmitter {
	return &LogEmitter{log: baseLog.With("service", "LogEmitter")}
}

func (l *LogEmitter) Emit(ctx context.Context, event domain.ChangeEvent) error {
	l.log.Info("Aspect changed",
		"urn", event.Urn.String(),
		"aspect", event.AspectName,
		"operation", string(event.Operation),
		"actor", event.Audit.Actor,
	)
	return nil
}
