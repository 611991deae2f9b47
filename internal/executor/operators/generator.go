package operators

import (
	"fmt"
	"math/rand"

	"github.com/accelmark/opcheck/internal/cases"
	"github.com/accelmark/opcheck/internal/device/kernels"
	"github.com/accelmark/opcheck/internal/tensor"
)

func init() {
	cases.RegisterGenerator(kernels.RoiawarePool3dBackward, generateRoiawarePool3dBackward)
}

// generateRoiawarePool3dBackward builds consistent random inputs: each voxel
// is assigned up to max_pts_each_voxel-1 points (slot 0 holds the count), the
// per-channel argmax picks one of the assigned points, and empty voxels carry
// the no-point sentinel.
func generateRoiawarePool3dBackward(params map[string]int64, rng *rand.Rand) (map[string]*tensor.HostBuffer, error) {
	get := func(name string) (int, error) {
		v, ok := params[name]
		if !ok {
			return 0, fmt.Errorf("generator: missing parameter %q", name)
		}
		return int(v), nil
	}
	var boxes, outX, outY, outZ, channels, maxPts, pts int
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"boxes_num", &boxes},
		{"out_x", &outX},
		{"out_y", &outY},
		{"out_z", &outZ},
		{"channels", &channels},
		{"max_pts_each_voxel", &maxPts},
		{"pts_num", &pts},
	} {
		v, err := get(f.name)
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("generator: parameter %q must be > 0", f.name)
		}
		*f.dst = v
	}

	grid := tensor.Shape{boxes, outX, outY, outZ}
	ptsIdxDesc, err := tensor.NewDescriptor(TensorPtsIdxOfVoxels, tensor.Int32, append(grid.Clone(), maxPts))
	if err != nil {
		return nil, err
	}
	argmaxDesc, err := tensor.NewDescriptor(TensorArgmax, tensor.Int32, append(grid.Clone(), channels))
	if err != nil {
		return nil, err
	}
	gradOutDesc, err := tensor.NewDescriptor(TensorGradOut, tensor.Float32, append(grid.Clone(), channels))
	if err != nil {
		return nil, err
	}

	ptsIdxBuf := tensor.NewHostBuffer(ptsIdxDesc)
	argmaxBuf := tensor.NewHostBuffer(argmaxDesc)
	gradOutBuf := tensor.NewHostBuffer(gradOutDesc)

	ptsIdx := ptsIdxBuf.Int32s()
	argmax := argmaxBuf.Int32s()
	gradOut := gradOutBuf.Float32s()

	voxels := grid.NumElements()
	for v := 0; v < voxels; v++ {
		count := rng.Intn(maxPts) // 0..maxPts-1 assigned points
		run := ptsIdx[v*maxPts : (v+1)*maxPts]
		run[0] = int32(count)
		for k := 1; k <= count; k++ {
			run[k] = int32(rng.Intn(pts))
		}
		for c := 0; c < channels; c++ {
			if count == 0 {
				argmax[v*channels+c] = ArgmaxNoPoint
			} else {
				argmax[v*channels+c] = run[1+rng.Intn(count)]
			}
		}
	}
	for i := range gradOut {
		gradOut[i] = float32(rng.NormFloat64())
	}

	return map[string]*tensor.HostBuffer{
		TensorPtsIdxOfVoxels: ptsIdxBuf,
		TensorArgmax:         argmaxBuf,
		TensorGradOut:        gradOutBuf,
	}, nil
}
