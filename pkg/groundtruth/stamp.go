package groundtruth

import (
	"vesiclegt/pkg/volume"
)

// StampBall writes label into every voxel of target covered by ball when the
// ball is centred on centre. The ball's origin is centre - shape/2 per axis.
//
// The part of the ball outside target is clipped, never wrapped. Voxels where
// the mask is false keep their current value. It returns the number of voxels
// written; a ball entirely outside target writes nothing.
func StampBall(target *volume.Volume, centre volume.Index, ball *volume.Mask, label int64) int {
	var origin volume.Index
	for axis := 0; axis < 3; axis++ {
		origin[axis] = centre[axis] - ball.Shape[axis]/2
	}

	dst, src, ok := volume.ClipRegion(origin, ball.Shape, target.Shape)
	if !ok {
		return 0
	}

	written := 0
	size := dst.Size()
	for z := 0; z < size[0]; z++ {
		for y := 0; y < size[1]; y++ {
			mRow := ball.Offset(volume.Index{src[0].Start + z, src[1].Start + y, src[2].Start})
			tRow := target.Offset(volume.Index{dst[0].Start + z, dst[1].Start + y, dst[2].Start})
			for x := 0; x < size[2]; x++ {
				if ball.Data[mRow+x] {
					target.Data[tRow+x] = label
					written++
				}
			}
		}
	}
	return written
}
