// Package harness drives conformance test cases through the executor
// pipeline and feeds the results to comparison, attestation and metrics.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/accelmark/opcheck/internal/attest"
	"github.com/accelmark/opcheck/internal/cases"
	"github.com/accelmark/opcheck/internal/compare"
	"github.com/accelmark/opcheck/internal/device"
	"github.com/accelmark/opcheck/internal/executor"
	"github.com/accelmark/opcheck/internal/metrics"
	"go.uber.org/zap"
)

// Case outcomes.
const (
	StatusPassed      = "passed"
	StatusInvalid     = "invalid"
	StatusDeviceError = "device_error"
	StatusMismatch    = "mismatch"
	StatusError       = "error"
)

// CaseReport is the result of one conformance case, consumed by the CLI, the
// HTTP surface and the scoring side.
type CaseReport struct {
	Name         string                `json:"name"`
	Operator     string                `json:"operator"`
	Status       string                `json:"status"`
	Error        string                `json:"error,omitempty"`
	TheoryOps    int64                 `json:"theoryOps"`
	DeviceMs     float64               `json:"deviceMs"`
	HostMs       float64               `json:"hostMs"`
	GFLOPS       float64               `json:"gflops"`
	Comparisons  []compare.Report      `json:"comparisons,omitempty"`
	Attestations []*attest.Attestation `json:"attestations,omitempty"`
}

// Passed reports whether the case verified cleanly.
func (r *CaseReport) Passed() bool { return r.Status == StatusPassed }

// Runner executes cases against one device backend. A Runner is safe for
// concurrent use; every case gets its own executor and buffers.
type Runner struct {
	backend device.Backend
	policy  compare.Policy
	signer  *attest.Signer
	log     *zap.Logger
}

// NewRunner builds a runner. signer may be nil when attestation is disabled.
func NewRunner(backend device.Backend, policy compare.Policy, signer *attest.Signer, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{backend: backend, policy: policy, signer: signer, log: log.Named("runner")}
}

// Run drives one case through validate, device compute, host compute,
// compare and attest. Failures are captured in the report; the error return
// is reserved for harness-internal faults.
func (r *Runner) Run(ctx context.Context, c *cases.Case) (rep *CaseReport) {
	rep = &CaseReport{Name: c.Name, Operator: c.Operator}
	log := r.log.With(zap.String("case", c.Name), zap.String("operator", c.Operator))

	defer func() {
		metrics.CasesTotal.WithLabelValues(rep.Operator, rep.Status).Inc()
	}()
	// A panicking executor must not take the batch or the HTTP server down
	// with it; the case is reported as errored instead.
	defer func() {
		if p := recover(); p != nil {
			rep.Status = StatusError
			rep.Error = fmt.Sprintf("case aborted: %v", p)
			log.Error("case aborted by panic", zap.Any("panic", p))
		}
	}()

	in, err := c.Input()
	if err != nil {
		return rep.invalid(log, err)
	}
	exec, err := executor.New(c.Operator, r.backend, in, log)
	if err != nil {
		return rep.invalid(log, err)
	}
	defer func() {
		if err := exec.Close(); err != nil {
			log.Error("failed to release device buffers", zap.Error(err))
		}
	}()

	if err := exec.ValidateParameters(); err != nil {
		return rep.invalid(log, err)
	}

	start := time.Now()
	if err := exec.ComputeOnDevice(ctx); err != nil {
		rep.Status = StatusDeviceError
		rep.Error = err.Error()
		log.Error("device phase failed", zap.Error(err))
		return rep
	}
	rep.DeviceMs = float64(time.Since(start).Microseconds()) / 1000.0
	metrics.DevicePhaseDuration.WithLabelValues(rep.Operator).Observe(rep.DeviceMs)

	start = time.Now()
	if err := exec.ComputeOnHost(); err != nil {
		rep.Status = StatusError
		rep.Error = err.Error()
		log.Error("host reference phase failed", zap.Error(err))
		return rep
	}
	rep.HostMs = float64(time.Since(start).Microseconds()) / 1000.0
	metrics.HostPhaseDuration.WithLabelValues(rep.Operator).Observe(rep.HostMs)

	rep.TheoryOps = exec.TheoryOps()
	if rep.DeviceMs > 0 {
		rep.GFLOPS = float64(rep.TheoryOps) / (rep.DeviceMs * 1e6)
		metrics.TheoryGFLOPS.WithLabelValues(rep.Operator).Set(rep.GFLOPS)
	}
	metrics.DeviceMemoryUsedBytes.Set(float64(r.backend.DeviceInfo().TotalMemory - r.backend.DeviceInfo().AvailableMemory))

	policy := r.policy
	if c.Tolerance != nil {
		policy = *c.Tolerance
	}

	rep.Status = StatusPassed
	for _, bd := range exec.Bindings() {
		if bd.Role != executor.RoleOutput {
			continue
		}
		cmpRep, err := compare.Buffers(bd.DeviceResult, bd.Reference, policy)
		rep.Comparisons = append(rep.Comparisons, cmpRep)
		if err != nil {
			var mismatch *compare.MismatchError
			if errors.As(err, &mismatch) {
				rep.Status = StatusMismatch
				rep.Error = err.Error()
				metrics.CompareMismatches.WithLabelValues(rep.Operator, cmpRep.Tensor).Add(float64(cmpRep.Mismatches))
				log.Warn("device result disagrees with reference", zap.Error(err))
				continue
			}
			rep.Status = StatusError
			rep.Error = err.Error()
			return rep
		}

		if r.signer != nil {
			att, err := r.signer.Attest(bd.DeviceResult, bd.Reference)
			if err != nil {
				log.Error("failed to sign result digests", zap.Error(err))
			} else {
				rep.Attestations = append(rep.Attestations, att)
			}
		}
	}

	if rep.Passed() {
		log.Info("case passed",
			zap.Int64("theoryOps", rep.TheoryOps),
			zap.Float64("deviceMs", rep.DeviceMs),
			zap.Float64("hostMs", rep.HostMs))
	}
	return rep
}

func (rep *CaseReport) invalid(log *zap.Logger, err error) *CaseReport {
	rep.Status = StatusInvalid
	rep.Error = err.Error()
	log.Warn("case rejected", zap.Error(err))
	return rep
}
