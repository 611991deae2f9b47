package tensor

import "fmt"

// Layout describes the memory layout of a tensor. Only dense row-major
// storage is used by the operators in this harness; the field exists because
// the device boundary requires an explicit layout for every tensor argument.
type Layout int

// Supported layouts.
const (
	LayoutRowMajor Layout = iota
)

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case LayoutRowMajor:
		return "row-major"
	default:
		return "unknown"
	}
}

// Descriptor describes one tensor argument of an operator: its name within
// the operator signature, element type, shape and layout. Descriptors are
// created during executor setup and are immutable once bound.
type Descriptor struct {
	Name   string
	DType  DataType
	Shape  Shape
	Layout Layout
}

// NewDescriptor builds a descriptor, rejecting invalid shapes up front.
func NewDescriptor(name string, dtype DataType, shape Shape) (*Descriptor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	return &Descriptor{
		Name:   name,
		DType:  dtype,
		Shape:  shape.Clone(),
		Layout: LayoutRowMajor,
	}, nil
}

// NumElements returns the element count implied by the shape.
func (d *Descriptor) NumElements() int {
	return d.Shape.NumElements()
}

// ByteSize returns the exact byte size a buffer for this descriptor must
// have. Device buffer sizes are always derived from this value.
func (d *Descriptor) ByteSize() int {
	return d.NumElements() * d.DType.Size()
}

// String renders the descriptor for error messages and logs.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %s%s", d.Name, d.DType, d.Shape)
}
