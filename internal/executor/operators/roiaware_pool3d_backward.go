// Package operators holds the concrete operator executors. Each file is one
// operator: it registers a factory under the operator name and implements
// validation, the device launch and the host reference computation.
package operators

import (
	"context"
	"fmt"

	"github.com/accelmark/opcheck/internal/device"
	"github.com/accelmark/opcheck/internal/device/kernels"
	"github.com/accelmark/opcheck/internal/executor"
	"github.com/accelmark/opcheck/internal/tensor"
	"go.uber.org/zap"
)

// Tensor argument names of the pooling backward operator.
const (
	TensorPtsIdxOfVoxels = "pts_idx_of_voxels"
	TensorArgmax         = "argmax"
	TensorGradOut        = "grad_out"
	TensorGradIn         = "grad_in"
)

// ArgmaxNoPoint is the argmax sentinel for a voxel that recorded no point
// during the forward pass.
const ArgmaxNoPoint = -1

func init() {
	executor.Register(kernels.RoiawarePool3dBackward, newRoiawarePool3dBackward)
}

// roiawarePool3dBackwardParams is the immutable test-case configuration.
type roiawarePool3dBackwardParams struct {
	poolMethod       int
	boxesNum         int
	outX, outY, outZ int
	channels         int
	maxPtsEachVoxel  int
	ptsNum           int
}

// RoiawarePool3dBackwardExecutor verifies the backward pass of ROI-aware 3D
// pooling: voxel gradients are scattered back to the points that produced the
// pooled value (the argmax point for max pooling, every assigned point with
// an even split for average pooling).
type RoiawarePool3dBackwardExecutor struct {
	*executor.Base
	params roiawarePool3dBackwardParams
}

func newRoiawarePool3dBackward(backend device.Backend, in executor.CaseInput, log *zap.Logger) (executor.Executor, error) {
	var p roiawarePool3dBackwardParams
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"pool_method", &p.poolMethod},
		{"boxes_num", &p.boxesNum},
		{"out_x", &p.outX},
		{"out_y", &p.outY},
		{"out_z", &p.outZ},
		{"channels", &p.channels},
		{"max_pts_each_voxel", &p.maxPtsEachVoxel},
		{"pts_num", &p.ptsNum},
	} {
		v, err := in.Param(f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = int(v)
	}

	e := &RoiawarePool3dBackwardExecutor{
		Base:   executor.NewBase(kernels.RoiawarePool3dBackward, backend, log),
		params: p,
	}

	for _, name := range []string{TensorPtsIdxOfVoxels, TensorArgmax, TensorGradOut} {
		host, err := in.Tensor(name)
		if err != nil {
			return nil, err
		}
		e.BindInput(host.Descriptor(), host)
	}

	// The output descriptor may come from the test case; otherwise it is
	// derived from the parameters.
	if host, err := in.Tensor(TensorGradIn); err == nil {
		e.BindOutput(host.Descriptor())
	} else {
		desc, err := tensor.NewDescriptor(TensorGradIn, tensor.Float32, tensor.Shape{p.ptsNum, p.channels})
		if err != nil {
			return nil, &executor.InvalidShapeError{Tensor: TensorGradIn, Reason: err.Error()}
		}
		e.BindOutput(desc)
	}
	return e, nil
}

// ValidateParameters checks the parameter ranges and every cross-tensor
// dimension constraint before anything touches the device.
func (e *RoiawarePool3dBackwardExecutor) ValidateParameters() error {
	p := e.params
	if p.poolMethod != kernels.PoolMax && p.poolMethod != kernels.PoolAvg {
		return &executor.InvalidParameterError{Param: "pool_method", Reason: "must be 0 (max) or 1 (avg)"}
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"boxes_num", p.boxesNum},
		{"out_x", p.outX},
		{"out_y", p.outY},
		{"out_z", p.outZ},
		{"channels", p.channels},
		{"max_pts_each_voxel", p.maxPtsEachVoxel},
		{"pts_num", p.ptsNum},
	} {
		if f.v <= 0 {
			return &executor.InvalidParameterError{Param: f.name, Reason: "must be > 0"}
		}
	}

	grid := tensor.Shape{p.boxesNum, p.outX, p.outY, p.outZ}
	if err := e.checkTensor(TensorPtsIdxOfVoxels, tensor.Int32, append(grid.Clone(), p.maxPtsEachVoxel)); err != nil {
		return err
	}
	if err := e.checkTensor(TensorArgmax, tensor.Int32, append(grid.Clone(), p.channels)); err != nil {
		return err
	}
	if err := e.checkTensor(TensorGradOut, tensor.Float32, append(grid.Clone(), p.channels)); err != nil {
		return err
	}
	if err := e.checkTensor(TensorGradIn, tensor.Float32, tensor.Shape{p.ptsNum, p.channels}); err != nil {
		return err
	}
	if err := e.checkIndices(); err != nil {
		return err
	}

	e.FinishValidate()
	return nil
}

// checkIndices scans the recorded point indices. A shape-valid case can still
// name a point outside the cloud or claim more points than a voxel run holds,
// and the gradient scatter must not run on such data.
func (e *RoiawarePool3dBackwardExecutor) checkIndices() error {
	p := e.params
	ptsIdx := e.Binding(TensorPtsIdxOfVoxels).Host.Int32s()
	argmax := e.Binding(TensorArgmax).Host.Int32s()

	for i, pt := range argmax {
		if int(pt) >= p.ptsNum {
			return &executor.InvalidShapeError{
				Tensor: TensorArgmax,
				Reason: fmt.Sprintf("slot %d names point %d, have %d points", i, pt, p.ptsNum),
			}
		}
	}
	voxels := p.boxesNum * p.outX * p.outY * p.outZ
	for v := 0; v < voxels; v++ {
		run := ptsIdx[v*p.maxPtsEachVoxel : (v+1)*p.maxPtsEachVoxel]
		count := int(run[0])
		if count <= 0 {
			continue
		}
		if count > p.maxPtsEachVoxel-1 {
			return &executor.InvalidShapeError{
				Tensor: TensorPtsIdxOfVoxels,
				Reason: fmt.Sprintf("voxel %d records %d points, run holds at most %d", v, count, p.maxPtsEachVoxel-1),
			}
		}
		for k := 1; k <= count; k++ {
			if pt := int(run[k]); pt < 0 || pt >= p.ptsNum {
				return &executor.InvalidShapeError{
					Tensor: TensorPtsIdxOfVoxels,
					Reason: fmt.Sprintf("voxel %d slot %d names point %d, have %d points", v, k, pt, p.ptsNum),
				}
			}
		}
	}
	return nil
}

func (e *RoiawarePool3dBackwardExecutor) checkTensor(name string, dtype tensor.DataType, want tensor.Shape) error {
	desc := e.Binding(name).Desc
	if desc.DType != dtype {
		return &executor.InvalidShapeError{
			Tensor: name,
			Reason: "element type is " + desc.DType.String() + ", want " + dtype.String(),
		}
	}
	if !desc.Shape.Equal(want) {
		return &executor.InvalidShapeError{
			Tensor: name,
			Reason: "shape is " + desc.Shape.String() + ", want " + want.String(),
		}
	}
	return nil
}

// ComputeOnDevice launches the kernel under test.
func (e *RoiawarePool3dBackwardExecutor) ComputeOnDevice(ctx context.Context) error {
	p := e.params
	return e.RunDevice(ctx, kernels.RoiawarePool3dBackward, kernels.RoiawarePool3dBackwardParams{
		PoolMethod:      p.poolMethod,
		BoxesNum:        p.boxesNum,
		OutX:            p.outX,
		OutY:            p.outY,
		OutZ:            p.outZ,
		Channels:        p.channels,
		MaxPtsEachVoxel: p.maxPtsEachVoxel,
		PtsNum:          p.ptsNum,
	})
}

// ComputeOnHost recomputes the gradient scatter from the uploaded inputs
// only. For each voxel of each box: under max pooling the recorded argmax
// point receives the voxel's gradient per channel; under average pooling
// every assigned point receives an even share. A sentinel argmax or a zero
// assigned-point count contributes nothing.
func (e *RoiawarePool3dBackwardExecutor) ComputeOnHost() error {
	return e.RunHost(func() error {
		p := e.params
		ptsIdx := e.Binding(TensorPtsIdxOfVoxels).Host.Int32s()
		argmax := e.Binding(TensorArgmax).Host.Int32s()
		gradOut := e.Binding(TensorGradOut).Host.Float32s()
		gradIn := e.Binding(TensorGradIn).Reference.Float32s()

		voxelsPerBox := p.outX * p.outY * p.outZ
		for box := 0; box < p.boxesNum; box++ {
			for voxel := 0; voxel < voxelsPerBox; voxel++ {
				v := box*voxelsPerBox + voxel
				switch p.poolMethod {
				case kernels.PoolMax:
					for c := 0; c < p.channels; c++ {
						pt := argmax[v*p.channels+c]
						if pt < 0 {
							continue
						}
						if int(pt) >= p.ptsNum {
							return fmt.Errorf("argmax[%d] names point %d of %d", v*p.channels+c, pt, p.ptsNum)
						}
						gradIn[int(pt)*p.channels+c] += gradOut[v*p.channels+c]
					}
				case kernels.PoolAvg:
					run := ptsIdx[v*p.maxPtsEachVoxel : (v+1)*p.maxPtsEachVoxel]
					count := int(run[0])
					if count <= 0 {
						continue
					}
					if count > p.maxPtsEachVoxel-1 {
						return fmt.Errorf("voxel %d records %d points, run holds at most %d", v, count, p.maxPtsEachVoxel-1)
					}
					for k := 1; k <= count; k++ {
						pt := int(run[k])
						if pt < 0 || pt >= p.ptsNum {
							return fmt.Errorf("voxel %d slot %d names point %d of %d", v, k, pt, p.ptsNum)
						}
						for c := 0; c < p.channels; c++ {
							gradIn[pt*p.channels+c] += gradOut[v*p.channels+c] / float32(count)
						}
					}
				}
			}
		}
		return nil
	})
}

// TheoryOps counts two scalar operations (one add, one compare or scale) per
// potential contribution in the voxel grid.
func (e *RoiawarePool3dBackwardExecutor) TheoryOps() int64 {
	p := e.params
	return 2 * int64(p.boxesNum) * int64(p.outX) * int64(p.outY) * int64(p.outZ) *
		int64(p.channels) * int64(p.maxPtsEachVoxel)
}
