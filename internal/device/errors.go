package device

import "fmt"

// Phases of device execution, recorded on failures so a broken test case can
// name exactly where it died.
const (
	PhaseAllocate = "allocate"
	PhaseUpload   = "upload"
	PhaseLaunch   = "launch"
	PhaseDownload = "download"
	PhaseFree     = "free"
)

// ExecutionError is a fatal device-side failure: allocation, transfer, launch
// or free. It is never retried; it indicates either a kernel defect or an
// environment fault, both of which need human triage.
type ExecutionError struct {
	Phase  string
	Tensor string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Tensor != "" {
		return fmt.Sprintf("device %s failed for tensor %q: %v", e.Phase, e.Tensor, e.Err)
	}
	return fmt.Sprintf("device %s failed: %v", e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
