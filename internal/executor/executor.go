// Package executor is the shared test-execution pipeline for operator
// kernels: every operator supplies parameter validation, a device launch and
// an independent host reference computation, and the pipeline drives the four
// phases, owns the paired host/device buffers and enforces their lifecycle.
package executor

import (
	"context"
	"fmt"

	"github.com/accelmark/opcheck/internal/device"
	"github.com/accelmark/opcheck/internal/tensor"
	"go.uber.org/zap"
)

// Executor is the capability contract every operator under test implements.
//
// Phases are strictly sequential: ValidateParameters, ComputeOnDevice,
// ComputeOnHost. Calling a phase before its predecessor completed is a
// contract violation and panics; it is not a recoverable error. The one
// relaxation is ComputeOnHost, which may be re-run and must then reproduce
// its output byte for byte.
type Executor interface {
	// Name returns the operator name the executor was registered under.
	Name() string

	// ValidateParameters checks the operator parameters and all bound
	// descriptors for internal consistency. It must not touch any buffer;
	// it runs before anything is allocated on the device.
	ValidateParameters() error

	// ComputeOnDevice allocates device buffers, uploads the declared
	// inputs, launches the kernel under test and downloads the outputs
	// into the device-result host buffers. Blocking; failures are fatal
	// to the test case.
	ComputeOnDevice(ctx context.Context) error

	// ComputeOnHost recomputes the operation on the host from the same
	// uploaded input values, writing the reference-result host buffers.
	// It never reads anything the device produced.
	ComputeOnHost() error

	// TheoryOps returns the theoretical scalar-operation count implied by
	// the operator parameters. Pure; cannot fail.
	TheoryOps() int64

	// Close releases the executor's device buffers. Safe to call on every
	// exit path, including after a failed phase.
	Close() error

	// Bindings exposes the tensor bindings for the external comparison
	// step.
	Bindings() []*Binding
}

// Role says whether a tensor is consumed or produced by the kernel.
type Role int

// Tensor roles.
const (
	RoleInput Role = iota
	RoleOutput
)

// State is the executor phase-machine state.
type State int

// Executor states, in order.
const (
	StateCreated State = iota
	StateValidated
	StateDeviceComputed
	StateHostComputed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateValidated:
		return "validated"
	case StateDeviceComputed:
		return "device-computed"
	case StateHostComputed:
		return "host-computed"
	default:
		return "unknown"
	}
}

// Binding ties one tensor argument together: its descriptor, its host
// buffer(s) and, between ComputeOnDevice and Close, its device buffer.
//
// Inputs carry the uploaded values in Host. Outputs carry the downloaded
// kernel result in DeviceResult and the host recomputation in Reference;
// the two are what the comparison service consumes.
type Binding struct {
	Desc         *tensor.Descriptor
	Role         Role
	Host         *tensor.HostBuffer
	DeviceResult *tensor.HostBuffer
	Reference    *tensor.HostBuffer

	dev device.Buffer
}

// Base implements the buffer/descriptor lifecycle and the phase machine that
// all concrete executors share. A concrete executor embeds Base, binds its
// tensors at construction time and implements the four contract operations
// on top of the helpers here.
type Base struct {
	name    string
	backend device.Backend
	log     *zap.Logger
	state   State

	bindings []*Binding
	byName   map[string]*Binding
	closed   bool
}

// NewBase prepares the shared pipeline state for one test case.
func NewBase(name string, backend device.Backend, log *zap.Logger) *Base {
	if log == nil {
		log = zap.NewNop()
	}
	return &Base{
		name:    name,
		backend: backend,
		log:     log.Named(name),
		byName:  make(map[string]*Binding),
	}
}

// Name returns the operator name.
func (b *Base) Name() string { return b.name }

// State returns the current phase-machine state.
func (b *Base) State() State { return b.state }

// Log returns the executor's named logger.
func (b *Base) Log() *zap.Logger { return b.log }

// Bindings returns all tensor bindings in bind order, which is also the
// kernel argument order.
func (b *Base) Bindings() []*Binding { return b.bindings }

// BindInput attaches an input tensor with its uploaded values.
func (b *Base) BindInput(desc *tensor.Descriptor, host *tensor.HostBuffer) *Binding {
	return b.bind(&Binding{Desc: desc, Role: RoleInput, Host: host})
}

// BindOutput attaches an output tensor. Two zeroed host buffers are created
// for it: one to receive the device result, one for the host reference.
func (b *Base) BindOutput(desc *tensor.Descriptor) *Binding {
	return b.bind(&Binding{
		Desc:         desc,
		Role:         RoleOutput,
		DeviceResult: tensor.NewHostBuffer(desc),
		Reference:    tensor.NewHostBuffer(desc),
	})
}

func (b *Base) bind(bd *Binding) *Binding {
	if b.state != StateCreated {
		panic(fmt.Sprintf("executor %s: tensor bound in state %s", b.name, b.state))
	}
	if _, dup := b.byName[bd.Desc.Name]; dup {
		panic(fmt.Sprintf("executor %s: tensor %q bound twice", b.name, bd.Desc.Name))
	}
	b.bindings = append(b.bindings, bd)
	b.byName[bd.Desc.Name] = bd
	return bd
}

// Binding looks a bound tensor up by name.
func (b *Base) Binding(name string) *Binding {
	bd, ok := b.byName[name]
	if !ok {
		panic(fmt.Sprintf("executor %s: no tensor %q bound", b.name, name))
	}
	return bd
}

// FinishValidate moves the executor into the validated state. Concrete
// executors call it after all parameter and shape checks passed.
func (b *Base) FinishValidate() {
	b.mustBeIn("ValidateParameters", StateCreated)
	b.state = StateValidated
}

// RunDevice performs the device phase: allocate per descriptor, upload the
// declared inputs, launch, download the outputs. Buffers stay allocated until
// Close so a failed case still releases everything on one path.
func (b *Base) RunDevice(ctx context.Context, kernel string, params any) error {
	b.mustBeIn("ComputeOnDevice", StateValidated)

	for _, bd := range b.bindings {
		buf, err := b.backend.Malloc(bd.Desc.ByteSize())
		if err != nil {
			return &device.ExecutionError{Phase: device.PhaseAllocate, Tensor: bd.Desc.Name, Err: err}
		}
		bd.dev = buf
	}

	for _, bd := range b.bindings {
		if bd.Role != RoleInput {
			continue
		}
		if err := b.backend.MemcpyH2D(bd.dev, bd.Host.Bytes()); err != nil {
			return &device.ExecutionError{Phase: device.PhaseUpload, Tensor: bd.Desc.Name, Err: err}
		}
	}

	args := make([]device.Buffer, len(b.bindings))
	for i, bd := range b.bindings {
		args[i] = bd.dev
	}
	if err := b.backend.Launch(ctx, kernel, params, args); err != nil {
		return &device.ExecutionError{Phase: device.PhaseLaunch, Err: err}
	}

	for _, bd := range b.bindings {
		if bd.Role != RoleOutput {
			continue
		}
		if err := b.backend.MemcpyD2H(bd.DeviceResult.Bytes(), bd.dev); err != nil {
			return &device.ExecutionError{Phase: device.PhaseDownload, Tensor: bd.Desc.Name, Err: err}
		}
	}

	b.state = StateDeviceComputed
	return nil
}

// RunHost wraps the host reference phase. The reference buffers are zeroed
// first so re-running the phase reproduces identical output. fn must read
// input Host buffers only, never a DeviceResult.
func (b *Base) RunHost(fn func() error) error {
	if b.state != StateDeviceComputed && b.state != StateHostComputed {
		panic(fmt.Sprintf("executor %s: ComputeOnHost called in state %s", b.name, b.state))
	}
	for _, bd := range b.bindings {
		if bd.Role == RoleOutput {
			bd.Reference.Zero()
		}
	}
	if err := fn(); err != nil {
		return err
	}
	b.state = StateHostComputed
	return nil
}

// Close releases every device buffer the executor still holds. Idempotent.
func (b *Base) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	var firstErr error
	for _, bd := range b.bindings {
		if bd.dev == nil {
			continue
		}
		if err := b.backend.Free(bd.dev); err != nil && firstErr == nil {
			firstErr = &device.ExecutionError{Phase: device.PhaseFree, Tensor: bd.Desc.Name, Err: err}
		}
		bd.dev = nil
	}
	return firstErr
}

func (b *Base) mustBeIn(phase string, want State) {
	if b.state != want {
		panic(fmt.Sprintf("executor %s: %s called in state %s", b.name, phase, b.state))
	}
}
