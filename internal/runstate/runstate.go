// Package runstate tracks the state machine of an extract or load run and
// instruments connector calls with metrics and spans.
package runstate

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stageflow/pkg/metrics"
	"github.com/ajitpratap0/stageflow/pkg/observability"
)

// State of a run.
type State string

// Machine records the current state and logs every transition.
type Machine struct {
	mu      sync.RWMutex
	state   State
	history []State
	logger  *zap.Logger
}

// NewMachine starts a machine in initial.
func NewMachine(initial State, log *zap.Logger) *Machine {
	return &Machine{state: initial, history: []State{initial}, logger: log}
}

// Transition moves to next, logging it and adding a span event.
func (m *Machine) Transition(ctx context.Context, next State, fields ...zap.Field) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.history = append(m.history, next)
	m.mu.Unlock()

	m.logger.Info("state transition",
		append([]zap.Field{zap.String("state", string(next)), zap.String("from", string(prev))}, fields...)...)
	observability.Event(ctx, "state", observability.AttrPhase.String(string(next)))
}

// Current returns the state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// History returns every state entered, in order, starting with the initial
// one.
func (m *Machine) History() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]State(nil), m.history...)
}

// Call runs fn as one connector operation: it is timed into collector and
// wrapped in a client span.
func Call(ctx context.Context, collector *metrics.Collector, connector, operation string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartCall(ctx, connector, operation)
	timer := metrics.NewTimer()
	err := fn(ctx)
	collector.ObserveCall(connector, operation, timer.Stop(), err)
	observability.End(span, err)
	return err
}
