package device

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// simBuffer is device memory held by the simulator: a plain byte slab.
type simBuffer struct {
	data  []byte
	freed bool
}

func (b *simBuffer) Size() int { return len(b.data) }

// SimBackend is an in-process accelerator simulator. Device memory is host
// memory behind the Buffer handle and kernels are Go functions looked up in
// the process-wide kernel table. It exists so the executor pipeline can be
// exercised end to end without vendor hardware; real runtimes plug in behind
// the same Backend interface.
type SimBackend struct {
	logger      *zap.Logger
	mu          sync.Mutex
	initialized bool
	allocated   int64
}

// NewSimBackend creates a simulator backend.
func NewSimBackend(logger *zap.Logger) *SimBackend {
	return &SimBackend{logger: logger}
}

// Name identifies the backend.
func (s *SimBackend) Name() string { return "sim" }

// IsAvailable always holds for the simulator.
func (s *SimBackend) IsAvailable() bool { return true }

// Initialize marks the simulator ready.
func (s *SimBackend) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	s.initialized = true
	s.logger.Info("simulator backend initialized")
	return nil
}

// Cleanup resets the simulator. Buffers handed out earlier become invalid.
func (s *SimBackend) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.allocated = 0
	return nil
}

// DeviceInfo reports the simulated device.
func (s *SimBackend) DeviceInfo() Info {
	s.mu.Lock()
	allocated := s.allocated
	s.mu.Unlock()
	return Info{
		Name:            fmt.Sprintf("Simulator (%s)", runtime.GOARCH),
		TotalMemory:     simTotalMemory,
		AvailableMemory: simTotalMemory - allocated,
		RuntimeVersion:  runtime.Version(),
	}
}

// The simulator advertises a fixed memory budget and enforces it so that
// allocation-failure paths are reachable in tests.
const simTotalMemory = 4 * 1024 * 1024 * 1024

// Malloc allocates zero-filled device memory.
func (s *SimBackend) Malloc(n int) (Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, fmt.Errorf("simulator backend not initialized")
	}
	if n <= 0 {
		return nil, fmt.Errorf("allocation size %d must be > 0", n)
	}
	if s.allocated+int64(n) > simTotalMemory {
		return nil, fmt.Errorf("out of device memory: %d bytes requested, %d available", n, simTotalMemory-s.allocated)
	}
	s.allocated += int64(n)
	return &simBuffer{data: make([]byte, n)}, nil
}

// MemcpyH2D uploads host bytes into device memory.
func (s *SimBackend) MemcpyH2D(dst Buffer, src []byte) error {
	b, err := s.slab(dst)
	if err != nil {
		return err
	}
	if len(src) != len(b.data) {
		return fmt.Errorf("upload size mismatch: %d host bytes into %d device bytes", len(src), len(b.data))
	}
	copy(b.data, src)
	return nil
}

// MemcpyD2H downloads device memory into host bytes.
func (s *SimBackend) MemcpyD2H(dst []byte, src Buffer) error {
	b, err := s.slab(src)
	if err != nil {
		return err
	}
	if len(dst) != len(b.data) {
		return fmt.Errorf("download size mismatch: %d device bytes into %d host bytes", len(b.data), len(dst))
	}
	copy(dst, b.data)
	return nil
}

// Launch runs the named kernel to completion on the calling goroutine.
func (s *SimBackend) Launch(ctx context.Context, kernel string, params any, args []Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn, ok := lookupKernel(kernel)
	if !ok {
		return fmt.Errorf("kernel %q not present on device", kernel)
	}
	slabs := make([][]byte, len(args))
	for i, arg := range args {
		b, err := s.slab(arg)
		if err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
		slabs[i] = b.data
	}
	s.logger.Debug("launching kernel", zap.String("kernel", kernel), zap.Int("args", len(args)))
	return fn(params, slabs)
}

// Free releases one device buffer.
func (s *SimBackend) Free(buf Buffer) error {
	b, err := s.slab(buf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b.freed = true
	s.allocated -= int64(len(b.data))
	return nil
}

func (s *SimBackend) slab(buf Buffer) (*simBuffer, error) {
	b, ok := buf.(*simBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer does not belong to the simulator backend")
	}
	if b.freed {
		return nil, fmt.Errorf("buffer already freed")
	}
	return b, nil
}
