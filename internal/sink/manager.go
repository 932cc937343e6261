package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"yqhp/mpi-simulator/pkg/types"
)

// Manager delivers one run's results to several sinks.
type Manager struct {
	registry *Registry
	sinks    []Sink
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewManager creates a new sink manager.
func NewManager(registry *Registry, logger *zap.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry: registry,
		sinks:    make([]Sink, 0),
		logger:   logger,
	}
}

// Add adds a sink to the manager.
func (m *Manager) Add(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// AddFromConfig creates and adds a sink from configuration. Disabled
// entries are skipped.
func (m *Manager) AddFromConfig(config Config) error {
	if !config.Enabled {
		return nil
	}

	s, err := m.registry.Create(config.Type, config.Config)
	if err != nil {
		return fmt.Errorf("创建输出器 %s 失败: %w", config.Type, err)
	}

	m.Add(s)
	return nil
}

// Sinks returns the configured sinks in delivery order.
func (m *Manager) Sinks() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sink, len(m.sinks))
	copy(out, m.sinks)
	return out
}

// Deliver runs Init, Write and Close on every sink in order. A failing sink
// does not stop the others; all errors are joined.
func (m *Manager) Deliver(ctx context.Context, run RunInfo, rows []types.Row) error {
	var errs []error
	for _, s := range m.Sinks() {
		if err := m.deliverOne(ctx, s, run, rows); err != nil {
			m.logger.Error("sink failed", zap.String("sink", s.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
			continue
		}
		m.logger.Debug("sink written", zap.String("sink", s.Name()), zap.Int("rows", len(rows)))
	}
	return errors.Join(errs...)
}

func (m *Manager) deliverOne(ctx context.Context, s Sink, run RunInfo, rows []types.Row) error {
	if err := s.Init(ctx, run); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := s.Write(ctx, rows); err != nil {
		_ = s.Close(ctx)
		return fmt.Errorf("write: %w", err)
	}
	if err := s.Close(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
