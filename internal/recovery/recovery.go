// Package recovery restores work left unfinished by a failure or a restart.
//
// Components register as Recoverable. The manager runs them once at startup
// and again on every sweep.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Recoverable is a component that can finish its own interrupted work.
type Recoverable interface {
	RecoverState(ctx context.Context) error
}

// RecoverableFunc adapts a function to Recoverable.
type RecoverableFunc func(ctx context.Context) error

// RecoverState calls f.
func (f RecoverableFunc) RecoverState(ctx context.Context) error {
	return f(ctx)
}

type registration struct {
	name        string
	recoverable Recoverable
}

// Manager runs the registered components. Sweeps never overlap.
type Manager struct {
	mu           sync.Mutex
	recoverables []registration
	running      sync.Mutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a component under a name used in logs.
func (m *Manager) Register(name string, r Recoverable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoverables = append(m.recoverables, registration{name: name, recoverable: r})
}

// RecoverAll runs every component, continuing past failures. The error
// counts the components that failed.
func (m *Manager) RecoverAll(ctx context.Context) error {
	m.running.Lock()
	defer m.running.Unlock()

	m.mu.Lock()
	regs := append([]registration(nil), m.recoverables...)
	m.mu.Unlock()

	slog.Info("Recovery RecoverAll starting", "components", len(regs))
	failed := 0
	for _, reg := range regs {
		if err := reg.recoverable.RecoverState(ctx); err != nil {
			slog.Error("Recovery RecoverAll component failed", "error", err, "component", reg.name)
			failed++
		}
	}
	slog.Info("Recovery RecoverAll completed", "recovered", len(regs)-failed, "errors", failed)

	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", failed, len(regs))
	}
	return nil
}
