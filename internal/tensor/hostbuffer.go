package tensor

import (
	"bytes"
	"fmt"
	"unsafe"
)

// HostBuffer is host memory paired with a descriptor. Executors keep one
// HostBuffer per input tensor (the values uploaded to the device) and two per
// output tensor (the device result and the independently computed reference).
type HostBuffer struct {
	desc *Descriptor
	data []byte
}

// NewHostBuffer allocates a zeroed host buffer sized exactly for desc.
func NewHostBuffer(desc *Descriptor) *HostBuffer {
	return &HostBuffer{
		desc: desc,
		data: make([]byte, desc.ByteSize()),
	}
}

// Descriptor returns the descriptor this buffer was allocated for.
func (b *HostBuffer) Descriptor() *Descriptor { return b.desc }

// Bytes returns the raw backing storage. The length is always exactly the
// descriptor's byte size.
func (b *HostBuffer) Bytes() []byte { return b.data }

// Float32s returns a writable float32 view over the backing storage.
// Panics if the descriptor's element type is not float32.
func (b *HostBuffer) Float32s() []float32 {
	b.mustBe(Float32)
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.data[0])), b.desc.NumElements())
}

// Float64s returns a writable float64 view over the backing storage.
func (b *HostBuffer) Float64s() []float64 {
	b.mustBe(Float64)
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b.data[0])), b.desc.NumElements())
}

// Int32s returns a writable int32 view over the backing storage.
func (b *HostBuffer) Int32s() []int32 {
	b.mustBe(Int32)
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b.data[0])), b.desc.NumElements())
}

// Int64s returns a writable int64 view over the backing storage.
func (b *HostBuffer) Int64s() []int64 {
	b.mustBe(Int64)
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&b.data[0])), b.desc.NumElements())
}

// SetBytes copies src into the buffer. src must match the buffer size.
func (b *HostBuffer) SetBytes(src []byte) error {
	if len(src) != len(b.data) {
		return fmt.Errorf("tensor %q: have %d bytes, buffer holds %d", b.desc.Name, len(src), len(b.data))
	}
	copy(b.data, src)
	return nil
}

// Zero resets every element to zero.
func (b *HostBuffer) Zero() {
	for i := range b.data {
		b.data[i] = 0
	}
}

// Clone returns an independent copy sharing no memory with the original.
func (b *HostBuffer) Clone() *HostBuffer {
	c := NewHostBuffer(b.desc)
	copy(c.data, b.data)
	return c
}

// Equal reports byte equality of two buffers over the same descriptor shape.
func (b *HostBuffer) Equal(other *HostBuffer) bool {
	return bytes.Equal(b.data, other.data)
}

func (b *HostBuffer) mustBe(dt DataType) {
	if b.desc.DType != dt {
		panic(fmt.Sprintf("tensor %q is %s, requested %s view", b.desc.Name, b.desc.DType, dt))
	}
}
