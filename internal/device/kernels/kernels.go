// Package kernels holds the device-resident operator kernels of the
// simulator backend. These are the implementations under test; the host
// reference computations live with their executors and must not share code
// with anything here.
package kernels

import (
	"fmt"
	"unsafe"
)

func f32(slab []byte) []float32 {
	if len(slab) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&slab[0])), len(slab)/4)
}

func i32(slab []byte) []int32 {
	if len(slab) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&slab[0])), len(slab)/4)
}

func wantArgs(name string, args [][]byte, n int) error {
	if len(args) != n {
		return fmt.Errorf("kernel %s: want %d buffer args, got %d", name, n, len(args))
	}
	return nil
}
