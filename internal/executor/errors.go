package executor

import "fmt"

// InvalidParameterError marks a malformed operator parameter in the test
// case. The case is invalid, no buffers were touched, and it is not retried.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

// InvalidShapeError marks a tensor whose descriptor violates a cross-tensor
// dimension constraint. Same handling as InvalidParameterError.
type InvalidShapeError struct {
	Tensor string
	Reason string
}

func (e *InvalidShapeError) Error() string {
	return fmt.Sprintf("invalid shape for tensor %s: %s", e.Tensor, e.Reason)
}
