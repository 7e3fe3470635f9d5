// Package recovery runs CareCircle's startup recovery: work that was in flight when the process
// last stopped is put back in a runnable state before the background workers start.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Recoverable is a component that can repair its persisted state at startup.
type Recoverable interface {
	Name() string
	RecoverState(ctx context.Context) error
}

type recoverableFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (r recoverableFunc) Name() string                           { return r.name }
func (r recoverableFunc) RecoverState(ctx context.Context) error { return r.fn(ctx) }

// Func adapts a plain function to Recoverable.
func Func(name string, fn func(ctx context.Context) error) Recoverable {
	return recoverableFunc{name: name, fn: fn}
}

// Manager orchestrates recovery of all registered components.
type Manager struct {
	recoverables []Recoverable
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a component. Components recover in registration order.
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
}

// Len returns the number of registered components.
func (m *Manager) Len() int {
	return len(m.recoverables)
}

// RecoverAll recovers every component. A failing component is logged and skipped so the others
// still run; the returned error counts the failures.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Starting startup recovery", "components", len(m.recoverables))

	recovered, failed := 0, 0
	for _, r := range m.recoverables {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("recovery interrupted: %w", err)
		}
		if err := r.RecoverState(ctx); err != nil {
			slog.Error("Manager.RecoverAll: component recovery failed", "component", r.Name(), "error", err)
			failed++
			continue
		}
		slog.Debug("Manager.RecoverAll: component recovered", "component", r.Name())
		recovered++
	}

	slog.Info("Startup recovery completed", "recovered", recovered, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", failed, len(m.recoverables))
	}
	return nil
}
