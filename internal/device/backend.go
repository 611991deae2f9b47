// Package device is the opaque accelerator boundary: allocate, upload,
// launch, download, free. Executors own the buffers they allocate through it
// and never touch runtime state directly.
package device

import "context"

// Info describes the selected device.
type Info struct {
	Name            string `json:"name"`
	TotalMemory     int64  `json:"totalMemory"`     // in bytes
	AvailableMemory int64  `json:"availableMemory"` // in bytes
	RuntimeVersion  string `json:"runtimeVersion"`
}

// Buffer is an opaque handle to device-resident memory. Its size is always
// exactly the byte size implied by the tensor descriptor it was allocated
// for; the executor maintains that pairing.
type Buffer interface {
	// Size returns the byte size of the allocation.
	Size() int
}

// Backend is the accelerator runtime boundary. A backend hides the vendor
// calling convention behind five memory/launch primitives plus lifecycle.
//
// Implementation notes:
//   - Backends must be safe for use from concurrent test-case workers.
//   - Initialize is called once before first use, Cleanup after last use.
//   - Launch blocks until kernel completion; there is no per-launch timeout,
//     a hang is handled by the surrounding driver.
type Backend interface {
	// Name identifies the backend ("sim", "cuda", ...).
	Name() string

	// IsAvailable performs a quick availability check without heavy
	// initialization. Used by the Manager to select a backend.
	IsAvailable() bool

	// Initialize prepares the runtime (contexts, kernel tables).
	Initialize() error

	// Cleanup releases all runtime resources. Outstanding buffers are
	// invalid afterwards.
	Cleanup() error

	// DeviceInfo reports the device identity and memory figures.
	DeviceInfo() Info

	// Malloc allocates n bytes of device memory. The simulator zero-fills
	// allocations; callers must not rely on that for other runtimes.
	Malloc(n int) (Buffer, error)

	// MemcpyH2D uploads host bytes into a device buffer. len(src) must
	// equal the buffer size.
	MemcpyH2D(dst Buffer, src []byte) error

	// MemcpyD2H downloads a device buffer into host bytes. len(dst) must
	// equal the buffer size.
	MemcpyD2H(dst []byte, src Buffer) error

	// Launch invokes the named kernel with the given parameter block and
	// buffer arguments, waiting for completion.
	Launch(ctx context.Context, kernel string, params any, args []Buffer) error

	// Free releases one device buffer. Freeing twice is an error.
	Free(b Buffer) error
}
