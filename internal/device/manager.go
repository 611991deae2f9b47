package device

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager owns backend selection and the process-wide runtime lifecycle:
// initialize before the first executor runs, cleanup after the last one.
// Executors reach the device only through the Backend the manager hands out.
type Manager struct {
	mu      sync.RWMutex
	backend Backend
	logger  *zap.Logger
}

// NewManager selects and initializes the named backend. An empty name selects
// the simulator.
func NewManager(name string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{logger: logger}

	var backend Backend
	switch name {
	case "", "sim":
		backend = NewSimBackend(logger.Named("sim"))
	default:
		return nil, fmt.Errorf("unknown device backend %q", name)
	}

	if !backend.IsAvailable() {
		return nil, fmt.Errorf("device backend %q is not available", backend.Name())
	}
	if err := backend.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize %q backend: %w", backend.Name(), err)
	}
	m.backend = backend
	logger.Info("device backend selected",
		zap.String("backend", backend.Name()),
		zap.String("device", backend.DeviceInfo().Name))
	return m, nil
}

// Backend returns the active backend.
func (m *Manager) Backend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// DeviceInfo reports the active device.
func (m *Manager) DeviceInfo() Info {
	b := m.Backend()
	if b == nil {
		return Info{Name: "no backend"}
	}
	return b.DeviceInfo()
}

// Cleanup tears the runtime down. No executor may touch the device afterwards.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend == nil {
		return nil
	}
	err := m.backend.Cleanup()
	m.backend = nil
	return err
}
