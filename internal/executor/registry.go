package executor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/accelmark/opcheck/internal/device"
	"github.com/accelmark/opcheck/internal/tensor"
	"go.uber.org/zap"
)

// CaseInput is the operator-neutral payload a test-case source hands to the
// registry: scalar parameters plus the named input tensors, already resident
// in host buffers.
type CaseInput struct {
	Params  map[string]int64
	Tensors map[string]*tensor.HostBuffer
}

// Param fetches a required scalar parameter.
func (in CaseInput) Param(name string) (int64, error) {
	v, ok := in.Params[name]
	if !ok {
		return 0, &InvalidParameterError{Param: name, Reason: "missing"}
	}
	return v, nil
}

// Tensor fetches a required named tensor.
func (in CaseInput) Tensor(name string) (*tensor.HostBuffer, error) {
	t, ok := in.Tensors[name]
	if !ok {
		return nil, &InvalidShapeError{Tensor: name, Reason: "missing from test case"}
	}
	return t, nil
}

// Factory builds one executor instance for one test case.
type Factory func(backend device.Backend, in CaseInput, log *zap.Logger) (Executor, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs an operator factory under its operator name. Operator
// packages call this from init; duplicate names are a programming error.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("executor: operator %q registered twice", name))
	}
	registry[name] = f
}

// New constructs the executor registered for the named operator.
func New(name string, backend device.Backend, in CaseInput, log *zap.Logger) (Executor, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", name)
	}
	return f(backend, in, log)
}

// Names returns the registered operator names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
