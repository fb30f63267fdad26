// Package emitter publishes reconciliation cycle results to outputs.
package emitter

import (
	"context"

	"github.com/yairfalse/vigil/orchestrator"
)

// Emitter outputs cycle results to a backend.
type Emitter interface {
	// Emit sends one cycle result to the backend.
	Emit(ctx context.Context, result *orchestrator.CycleResult) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, result *orchestrator.CycleResult) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}
