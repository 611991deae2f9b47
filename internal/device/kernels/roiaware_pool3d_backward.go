package kernels

import (
	"fmt"

	"github.com/accelmark/opcheck/internal/device"
)

// RoiawarePool3dBackward is the launch name of the pooling backward kernel.
const RoiawarePool3dBackward = "roiaware_pool3d_backward"

// Pooling method selectors, matching the forward operator.
const (
	PoolMax = 0
	PoolAvg = 1
)

// RoiawarePool3dBackwardParams is the kernel parameter block.
type RoiawarePool3dBackwardParams struct {
	PoolMethod       int
	BoxesNum         int
	OutX, OutY, OutZ int
	Channels         int
	MaxPtsEachVoxel  int
	PtsNum           int
}

func init() {
	device.RegisterKernel(RoiawarePool3dBackward, roiawarePool3dBackward)
}

// roiawarePool3dBackward scatters voxel gradients back to points. Buffer args
// in order: pts_idx_of_voxels (int32), argmax (int32), grad_out (float32),
// grad_in (float32, written).
func roiawarePool3dBackward(params any, args [][]byte) error {
	p, ok := params.(RoiawarePool3dBackwardParams)
	if !ok {
		return fmt.Errorf("kernel %s: unexpected params type %T", RoiawarePool3dBackward, params)
	}
	if err := wantArgs(RoiawarePool3dBackward, args, 4); err != nil {
		return err
	}

	ptsIdx := i32(args[0])
	argmax := i32(args[1])
	gradOut := f32(args[2])
	gradIn := f32(args[3])

	voxels := p.BoxesNum * p.OutX * p.OutY * p.OutZ
	if len(argmax) != voxels*p.Channels || len(gradOut) != voxels*p.Channels ||
		len(ptsIdx) != voxels*p.MaxPtsEachVoxel || len(gradIn) != p.PtsNum*p.Channels {
		return fmt.Errorf("kernel %s: buffer sizes do not match the parameter block", RoiawarePool3dBackward)
	}

	for i := range gradIn {
		gradIn[i] = 0
	}

	switch p.PoolMethod {
	case PoolMax:
		// One flat pass over the voxel-channel grid; each slot names at
		// most one contributing point.
		for i, pt := range argmax {
			if pt < 0 {
				continue
			}
			if int(pt) >= p.PtsNum {
				return fmt.Errorf("kernel %s: argmax slot %d names point %d of %d", RoiawarePool3dBackward, i, pt, p.PtsNum)
			}
			c := i % p.Channels
			gradIn[int(pt)*p.Channels+c] += gradOut[i]
		}
	case PoolAvg:
		// Slot 0 of each voxel run is the assigned-point count, slots
		// 1..count hold point indices.
		for v := 0; v < voxels; v++ {
			cnt := ptsIdx[v*p.MaxPtsEachVoxel]
			if cnt <= 0 {
				continue
			}
			if int(cnt) > p.MaxPtsEachVoxel-1 {
				return fmt.Errorf("kernel %s: voxel %d records %d points, run holds at most %d", RoiawarePool3dBackward, v, cnt, p.MaxPtsEachVoxel-1)
			}
			inv := 1.0 / float32(cnt)
			for k := int32(1); k <= cnt; k++ {
				pt := int(ptsIdx[v*p.MaxPtsEachVoxel+int(k)])
				if pt < 0 || pt >= p.PtsNum {
					return fmt.Errorf("kernel %s: voxel %d slot %d names point %d of %d", RoiawarePool3dBackward, v, k, pt, p.PtsNum)
				}
				for c := 0; c < p.Channels; c++ {
					gradIn[pt*p.Channels+c] += gradOut[v*p.Channels+c] * inv
				}
			}
		}
	default:
		return fmt.Errorf("kernel %s: unsupported pool method %d", RoiawarePool3dBackward, p.PoolMethod)
	}
	return nil
}
