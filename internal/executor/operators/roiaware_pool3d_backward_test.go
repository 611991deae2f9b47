package operators

import (
	"context"
	"math/rand"
	"testing"

	"github.com/accelmark/opcheck/internal/compare"
	"github.com/accelmark/opcheck/internal/device"
	"github.com/accelmark/opcheck/internal/executor"
	"github.com/accelmark/opcheck/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBackend(t *testing.T) device.Backend {
	t.Helper()
	b := device.NewSimBackend(zap.NewNop())
	require.NoError(t, b.Initialize())
	t.Cleanup(func() { _ = b.Cleanup() })
	return b
}

func params(poolMethod, boxes, outX, outY, outZ, channels, maxPts, pts int) map[string]int64 {
	return map[string]int64{
		"pool_method":        int64(poolMethod),
		"boxes_num":          int64(boxes),
		"out_x":              int64(outX),
		"out_y":              int64(outY),
		"out_z":              int64(outZ),
		"channels":           int64(channels),
		"max_pts_each_voxel": int64(maxPts),
		"pts_num":            int64(pts),
	}
}

// buildInput materializes consistent input tensors for the given parameters.
func buildInput(t *testing.T, p map[string]int64, ptsIdx, argmax []int32, gradOut []float32) executor.CaseInput {
	t.Helper()
	grid := tensor.Shape{int(p["boxes_num"]), int(p["out_x"]), int(p["out_y"]), int(p["out_z"])}

	mk := func(name string, dt tensor.DataType, shape tensor.Shape) *tensor.HostBuffer {
		desc, err := tensor.NewDescriptor(name, dt, shape)
		require.NoError(t, err)
		return tensor.NewHostBuffer(desc)
	}

	ptsIdxBuf := mk(TensorPtsIdxOfVoxels, tensor.Int32, append(grid.Clone(), int(p["max_pts_each_voxel"])))
	copy(ptsIdxBuf.Int32s(), ptsIdx)
	argmaxBuf := mk(TensorArgmax, tensor.Int32, append(grid.Clone(), int(p["channels"])))
	copy(argmaxBuf.Int32s(), argmax)
	gradOutBuf := mk(TensorGradOut, tensor.Float32, append(grid.Clone(), int(p["channels"])))
	copy(gradOutBuf.Float32s(), gradOut)

	return executor.CaseInput{
		Params: p,
		Tensors: map[string]*tensor.HostBuffer{
			TensorPtsIdxOfVoxels: ptsIdxBuf,
			TensorArgmax:         argmaxBuf,
			TensorGradOut:        gradOutBuf,
		},
	}
}

func runAllPhases(t *testing.T, exec executor.Executor) {
	t.Helper()
	require.NoError(t, exec.ValidateParameters())
	require.NoError(t, exec.ComputeOnDevice(context.Background()))
	require.NoError(t, exec.ComputeOnHost())
}

func gradIn(exec executor.Executor) *executor.Binding {
	for _, bd := range exec.Bindings() {
		if bd.Desc.Name == TensorGradIn {
			return bd
		}
	}
	return nil
}

func TestMaxPoolScatterSingleVoxel(t *testing.T) {
	// One box, one voxel, two channels; the single point is the argmax of
	// both channels, so it receives the full voxel gradient.
	p := params(0, 1, 1, 1, 1, 2, 1, 1)
	in := buildInput(t, p, []int32{0}, []int32{0, 0}, []float32{3.0, 5.0})

	exec, err := executor.New("roiaware_pool3d_backward", testBackend(t), in, zap.NewNop())
	require.NoError(t, err)
	defer exec.Close()
	runAllPhases(t, exec)

	bd := gradIn(exec)
	assert.Equal(t, []float32{3.0, 5.0}, bd.Reference.Float32s())
	assert.Equal(t, []float32{3.0, 5.0}, bd.DeviceResult.Float32s())
}

func TestAvgPoolSplitsEvenly(t *testing.T) {
	// Two points assigned to the single voxel: each gets half the voxel
	// gradient per channel.
	p := params(1, 1, 1, 1, 1, 2, 3, 2)
	in := buildInput(t, p,
		[]int32{2, 0, 1},
		[]int32{-1, -1},
		[]float32{4.0, 6.0})

	exec, err := executor.New("roiaware_pool3d_backward", testBackend(t), in, zap.NewNop())
	require.NoError(t, err)
	defer exec.Close()
	runAllPhases(t, exec)

	bd := gradIn(exec)
	assert.Equal(t, []float32{2.0, 3.0, 2.0, 3.0}, bd.Reference.Float32s())
	assert.Equal(t, []float32{2.0, 3.0, 2.0, 3.0}, bd.DeviceResult.Float32s())
}

func TestSentinelVoxelContributesNothing(t *testing.T) {
	p := params(0, 1, 2, 1, 1, 3, 2, 4)
	// Both voxels carry the no-point sentinel in every channel slot.
	in := buildInput(t, p,
		[]int32{0, 0, 0, 0},
		[]int32{-1, -1, -1, -1, -1, -1},
		[]float32{1, 2, 3, 4, 5, 6})

	exec, err := executor.New("roiaware_pool3d_backward", testBackend(t), in, zap.NewNop())
	require.NoError(t, err)
	defer exec.Close()
	runAllPhases(t, exec)

	for _, v := range gradIn(exec).Reference.Float32s() {
		assert.Zero(t, v)
	}
	for _, v := range gradIn(exec).DeviceResult.Float32s() {
		assert.Zero(t, v)
	}
}

func TestValidateParameters(t *testing.T) {
	newExec := func(t *testing.T, in executor.CaseInput) executor.Executor {
		exec, err := executor.New("roiaware_pool3d_backward", testBackend(t), in, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = exec.Close() })
		return exec
	}

	t.Run("accepts a consistent case", func(t *testing.T) {
		in := buildInput(t, params(0, 1, 1, 1, 1, 2, 1, 1), []int32{0}, []int32{0, 0}, []float32{1, 2})
		assert.NoError(t, newExec(t, in).ValidateParameters())
	})

	t.Run("rejects unknown pool method", func(t *testing.T) {
		in := buildInput(t, params(0, 1, 1, 1, 1, 2, 1, 1), []int32{0}, []int32{0, 0}, []float32{1, 2})
		in.Params["pool_method"] = 2
		err := newExec(t, in).ValidateParameters()
		var paramErr *executor.InvalidParameterError
		require.ErrorAs(t, err, &paramErr)
		assert.Equal(t, "pool_method", paramErr.Param)
	})

	t.Run("rejects non-positive extents", func(t *testing.T) {
		in := buildInput(t, params(0, 1, 1, 1, 1, 2, 1, 1), []int32{0}, []int32{0, 0}, []float32{1, 2})
		in.Params["out_y"] = 0
		err := newExec(t, in).ValidateParameters()
		var paramErr *executor.InvalidParameterError
		require.ErrorAs(t, err, &paramErr)
		assert.Equal(t, "out_y", paramErr.Param)
	})

	t.Run("rejects channel mismatch between grad_out and parameters", func(t *testing.T) {
		// Tensors are built for 2 channels, then the parameter grows.
		in := buildInput(t, params(0, 1, 1, 1, 1, 2, 1, 1), []int32{0}, []int32{0, 0}, []float32{1, 2})
		in.Params["channels"] = 3
		err := newExec(t, in).ValidateParameters()
		var shapeErr *executor.InvalidShapeError
		require.ErrorAs(t, err, &shapeErr)
		assert.Equal(t, TensorArgmax, shapeErr.Tensor)
	})

	t.Run("rejects voxel grid mismatch on pts_idx_of_voxels", func(t *testing.T) {
		in := buildInput(t, params(0, 1, 1, 1, 1, 2, 1, 1), []int32{0}, []int32{0, 0}, []float32{1, 2})
		in.Params["out_x"] = 2
		err := newExec(t, in).ValidateParameters()
		var shapeErr *executor.InvalidShapeError
		require.ErrorAs(t, err, &shapeErr)
		assert.Equal(t, TensorPtsIdxOfVoxels, shapeErr.Tensor)
	})

	t.Run("rejects grad_in with wrong channel count", func(t *testing.T) {
		in := buildInput(t, params(0, 1, 1, 1, 1, 2, 1, 1), []int32{0}, []int32{0, 0}, []float32{1, 2})
		desc, err := tensor.NewDescriptor(TensorGradIn, tensor.Float32, tensor.Shape{1, 3})
		require.NoError(t, err)
		in.Tensors[TensorGradIn] = tensor.NewHostBuffer(desc)

		verr := newExec(t, in).ValidateParameters()
		var shapeErr *executor.InvalidShapeError
		require.ErrorAs(t, verr, &shapeErr)
		assert.Equal(t, TensorGradIn, shapeErr.Tensor)
	})

	t.Run("rejects wrong element type", func(t *testing.T) {
		in := buildInput(t, params(0, 1, 1, 1, 1, 2, 1, 1), []int32{0}, []int32{0, 0}, []float32{1, 2})
		desc, err := tensor.NewDescriptor(TensorGradIn, tensor.Float64, tensor.Shape{1, 2})
		require.NoError(t, err)
		in.Tensors[TensorGradIn] = tensor.NewHostBuffer(desc)

		verr := newExec(t, in).ValidateParameters()
		var shapeErr *executor.InvalidShapeError
		require.ErrorAs(t, verr, &shapeErr)
		assert.Contains(t, shapeErr.Reason, "element type")
	})

	t.Run("missing tensor fails at construction", func(t *testing.T) {
		in := buildInput(t, params(0, 1, 1, 1, 1, 2, 1, 1), []int32{0}, []int32{0, 0}, []float32{1, 2})
		delete(in.Tensors, TensorArgmax)
		_, err := executor.New("roiaware_pool3d_backward", testBackend(t), in, zap.NewNop())
		var shapeErr *executor.InvalidShapeError
		assert.ErrorAs(t, err, &shapeErr)
	})
}

func TestValidateRejectsOutOfRangeIndices(t *testing.T) {
	newExec := func(t *testing.T, in executor.CaseInput) executor.Executor {
		exec, err := executor.New("roiaware_pool3d_backward", testBackend(t), in, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = exec.Close() })
		return exec
	}

	t.Run("argmax names a point beyond the cloud", func(t *testing.T) {
		in := buildInput(t, params(0, 1, 1, 1, 1, 2, 1, 1), []int32{0}, []int32{5, 5}, []float32{1, 2})
		err := newExec(t, in).ValidateParameters()
		var shapeErr *executor.InvalidShapeError
		require.ErrorAs(t, err, &shapeErr)
		assert.Equal(t, TensorArgmax, shapeErr.Tensor)
	})

	t.Run("voxel count overruns its run", func(t *testing.T) {
		// max_pts_each_voxel is 3, so a run holds at most 2 indices.
		in := buildInput(t, params(1, 1, 1, 1, 1, 2, 3, 2), []int32{3, 0, 1}, []int32{-1, -1}, []float32{4, 6})
		err := newExec(t, in).ValidateParameters()
		var shapeErr *executor.InvalidShapeError
		require.ErrorAs(t, err, &shapeErr)
		assert.Equal(t, TensorPtsIdxOfVoxels, shapeErr.Tensor)
		assert.Contains(t, shapeErr.Reason, "records")
	})

	t.Run("negative point index in an avg run", func(t *testing.T) {
		in := buildInput(t, params(1, 1, 1, 1, 1, 2, 3, 2), []int32{2, -1, 1}, []int32{-1, -1}, []float32{4, 6})
		err := newExec(t, in).ValidateParameters()
		var shapeErr *executor.InvalidShapeError
		require.ErrorAs(t, err, &shapeErr)
		assert.Equal(t, TensorPtsIdxOfVoxels, shapeErr.Tensor)
	})

	t.Run("avg run names a point beyond the cloud", func(t *testing.T) {
		in := buildInput(t, params(1, 1, 1, 1, 1, 2, 3, 2), []int32{2, 0, 9}, []int32{-1, -1}, []float32{4, 6})
		err := newExec(t, in).ValidateParameters()
		var shapeErr *executor.InvalidShapeError
		require.ErrorAs(t, err, &shapeErr)
		assert.Equal(t, TensorPtsIdxOfVoxels, shapeErr.Tensor)
	})
}

func TestTheoryOps(t *testing.T) {
	build := func(boxes int) executor.Executor {
		p := params(0, boxes, 2, 3, 4, 8, 16, 32)
		gen, err := generateRoiawarePool3dBackward(p, rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		exec, err := executor.New("roiaware_pool3d_backward", testBackend(t), executor.CaseInput{Params: p, Tensors: gen}, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = exec.Close() })
		return exec
	}

	t.Run("deterministic", func(t *testing.T) {
		exec := build(2)
		assert.Equal(t, exec.TheoryOps(), exec.TheoryOps())
		// 2 ops per potential contribution over the whole grid.
		assert.Equal(t, int64(2*2*2*3*4*8*16), exec.TheoryOps())
	})

	t.Run("linear in boxes_num", func(t *testing.T) {
		assert.Equal(t, 3*build(1).TheoryOps(), build(3).TheoryOps())
	})
}

func TestHostComputeIsIdempotent(t *testing.T) {
	for _, poolMethod := range []int{0, 1} {
		p := params(poolMethod, 2, 3, 3, 2, 4, 6, 64)
		gen, err := generateRoiawarePool3dBackward(p, rand.New(rand.NewSource(7)))
		require.NoError(t, err)

		exec, err := executor.New("roiaware_pool3d_backward", testBackend(t), executor.CaseInput{Params: p, Tensors: gen}, zap.NewNop())
		require.NoError(t, err)
		runAllPhases(t, exec)

		first := gradIn(exec).Reference.Clone()
		require.NoError(t, exec.ComputeOnHost())
		assert.True(t, first.Equal(gradIn(exec).Reference), "pool_method=%d", poolMethod)
		require.NoError(t, exec.Close())
	}
}

func TestMaxPoolConservesGradientMass(t *testing.T) {
	// Every gradient value behind a non-sentinel argmax slot must land in
	// exactly one grad_in slot: the sums agree.
	p := params(0, 3, 4, 4, 3, 8, 8, 256)
	gen, err := generateRoiawarePool3dBackward(p, rand.New(rand.NewSource(11)))
	require.NoError(t, err)

	exec, err := executor.New("roiaware_pool3d_backward", testBackend(t), executor.CaseInput{Params: p, Tensors: gen}, zap.NewNop())
	require.NoError(t, err)
	defer exec.Close()
	runAllPhases(t, exec)

	argmax := gen[TensorArgmax].Int32s()
	gradOut := gen[TensorGradOut].Float32s()
	var wantSum float64
	for i, pt := range argmax {
		if pt >= 0 {
			wantSum += float64(gradOut[i])
		}
	}

	var gotSum float64
	for _, v := range gradIn(exec).Reference.Float32s() {
		gotSum += float64(v)
	}
	assert.InDelta(t, wantSum, gotSum, 1e-3)
}

func TestDeviceAgreesWithHostOnRandomCases(t *testing.T) {
	for _, tc := range []struct {
		name       string
		poolMethod int
		seed       int64
	}{
		{"max pooling", 0, 21},
		{"average pooling", 1, 22},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := params(tc.poolMethod, 4, 5, 5, 4, 16, 8, 512)
			gen, err := generateRoiawarePool3dBackward(p, rand.New(rand.NewSource(tc.seed)))
			require.NoError(t, err)

			exec, err := executor.New("roiaware_pool3d_backward", testBackend(t), executor.CaseInput{Params: p, Tensors: gen}, zap.NewNop())
			require.NoError(t, err)
			defer exec.Close()
			runAllPhases(t, exec)

			bd := gradIn(exec)
			_, err = compare.Buffers(bd.DeviceResult, bd.Reference, compare.DefaultPolicy)
			assert.NoError(t, err)
		})
	}
}
