package device

import (
	"fmt"
	"sync"
)

// KernelFunc is a simulator-resident kernel. It receives the operator's
// parameter block and one byte slab per buffer argument, in the order the
// executor bound its tensors. The slabs alias device memory: writes are
// visible to a subsequent download.
type KernelFunc func(params any, args [][]byte) error

var (
	kernelMu    sync.RWMutex
	kernelTable = make(map[string]KernelFunc)
)

// RegisterKernel installs a simulator kernel under its launch name. Kernel
// packages call this from init; duplicate names are a programming error.
func RegisterKernel(name string, fn KernelFunc) {
	kernelMu.Lock()
	defer kernelMu.Unlock()
	if _, dup := kernelTable[name]; dup {
		panic(fmt.Sprintf("device: kernel %q registered twice", name))
	}
	kernelTable[name] = fn
}

func lookupKernel(name string) (KernelFunc, bool) {
	kernelMu.RLock()
	defer kernelMu.RUnlock()
	fn, ok := kernelTable[name]
	return fn, ok
}
