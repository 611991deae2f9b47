// Package compare checks a device-produced output buffer against the
// independently computed host reference, within a tolerance policy.
package compare

import (
	"fmt"

	"github.com/accelmark/opcheck/internal/tensor"
	"gonum.org/v1/gonum/floats/scalar"
)

// Policy is the tolerance applied per element. Two values agree when they are
// within AbsTol of each other or within RelTol relative error, matching
// gonum's EqualWithinAbsOrRel semantics. Integer tensors are compared
// exactly regardless of policy.
type Policy struct {
	AbsTol float64 `yaml:"absTol" json:"absTol"`
	RelTol float64 `yaml:"relTol" json:"relTol"`
}

// DefaultPolicy suits float32 outputs of scatter/reduce kernels.
var DefaultPolicy = Policy{AbsTol: 1e-6, RelTol: 1e-5}

// Report summarizes one tensor comparison.
type Report struct {
	Tensor     string  `json:"tensor"`
	Elements   int     `json:"elements"`
	Mismatches int     `json:"mismatches"`
	MaxAbsErr  float64 `json:"maxAbsErr"`
	MaxRelErr  float64 `json:"maxRelErr"`
	WorstIndex int     `json:"worstIndex"`
}

// MismatchError is raised when the device result disagrees with the host
// reference beyond tolerance. The reference computation is deterministic, so
// a mismatch is attributable to the kernel under test.
type MismatchError struct {
	Report Report
}

func (e *MismatchError) Error() string {
	r := e.Report
	return fmt.Sprintf("tensor %q: %d of %d elements exceed tolerance (max abs err %g, max rel err %g at index %d)",
		r.Tensor, r.Mismatches, r.Elements, r.MaxAbsErr, r.MaxRelErr, r.WorstIndex)
}

// Buffers compares the device result against the reference for one tensor.
// Both buffers share a descriptor by construction; a nil error means every
// element is within tolerance.
func Buffers(deviceResult, reference *tensor.HostBuffer, p Policy) (Report, error) {
	desc := reference.Descriptor()
	rep := Report{Tensor: desc.Name, Elements: desc.NumElements()}

	switch desc.DType {
	case tensor.Float32:
		got, want := deviceResult.Float32s(), reference.Float32s()
		for i := range want {
			accumulate(&rep, i, float64(got[i]), float64(want[i]), p)
		}
	case tensor.Float64:
		got, want := deviceResult.Float64s(), reference.Float64s()
		for i := range want {
			accumulate(&rep, i, got[i], want[i], p)
		}
	case tensor.Int32, tensor.Int64:
		// Exact comparison for index-typed outputs.
		if !deviceResult.Equal(reference) {
			rep.Mismatches = 1
			return rep, &MismatchError{Report: rep}
		}
		return rep, nil
	default:
		return rep, fmt.Errorf("tensor %q: no comparison for element type %s", desc.Name, desc.DType)
	}

	if rep.Mismatches > 0 {
		return rep, &MismatchError{Report: rep}
	}
	return rep, nil
}

func accumulate(rep *Report, i int, got, want float64, p Policy) {
	if scalar.EqualWithinAbsOrRel(got, want, p.AbsTol, p.RelTol) {
		return
	}
	rep.Mismatches++
	absErr := got - want
	if absErr < 0 {
		absErr = -absErr
	}
	relErr := absErr
	if want != 0 {
		relErr = absErr / abs(want)
	}
	if absErr > rep.MaxAbsErr {
		rep.MaxAbsErr = absErr
		rep.WorstIndex = i
	}
	if relErr > rep.MaxRelErr {
		rep.MaxRelErr = relErr
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
