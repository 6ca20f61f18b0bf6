// Package kernel converts a physical sphere size into voxel-space
// spherical masks and convolution kernels.
//
// Every kernel is derived from one reference sphere sampled at a fixed high
// resolution and resampled to the anisotropic voxel extent of the requested
// diameter. The boolean ball is resampled with nearest-neighbour lookup to
// keep a crisp boundary; the float kernel is smoothed and linearly
// interpolated and is only used as a convolution weighting.
package kernel

import (
	"errors"
	"fmt"
	"math"

	"vesiclegt/pkg/volume"
)

// BaseRadius is the radius in voxels of the reference sphere every kernel is
// resampled from. The reference sphere spans 2*BaseRadius+1 voxels per axis.
const BaseRadius = 100

// baseExtent is the side of the reference sphere's bounding cube.
const baseExtent = 2*BaseRadius + 1

// ErrInvalidKernelShape is returned when a kernel would be smaller than one
// voxel along some axis.
var ErrInvalidKernelShape = errors.New("invalid kernel shape")

// Resolution is the physical size of one voxel along the z, y and x axes
type Resolution [3]float64

func (r Resolution) String() string {
	return fmt.Sprintf("(%g,%g,%g)", r[0], r[1], r[2])
}

// ShapeFor returns the voxel extent of a sphere with the given physical
// diameter, ceil(diameter/resolution) per axis.
//
// A sphere narrower than one voxel along any axis is rejected with
// ErrInvalidKernelShape rather than silently rounded up.
func ShapeFor(diameter float64, res Resolution) (volume.Shape, error) {
	if !(diameter > 0) || math.IsInf(diameter, 0) {
		return volume.Shape{}, fmt.Errorf("%w: diameter %g must be positive and finite", ErrInvalidKernelShape, diameter)
	}

	var shape volume.Shape
	for axis, r := range res {
		if !(r > 0) || math.IsInf(r, 0) {
			return volume.Shape{}, fmt.Errorf("%w: resolution %v must be positive and finite", ErrInvalidKernelShape, res)
		}
		ratio := diameter / r
		if ratio < 1 || math.IsInf(ratio, 0) {
			return volume.Shape{}, fmt.Errorf("%w: diameter %g spans %.3g voxels on axis %d at resolution %v",
				ErrInvalidKernelShape, diameter, ratio, axis, res)
		}
		shape[axis] = int(math.Ceil(ratio))
	}
	return shape, nil
}

// checkShape rejects shapes with a non-positive extent.
func checkShape(shape volume.Shape) error {
	if !shape.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidKernelShape, shape)
	}
	return nil
}

// inReference reports whether voxel (z, y, x) of the reference cube lies
// inside the reference sphere.
func inReference(z, y, x int) bool {
	dz, dy, dx := z-BaseRadius, y-BaseRadius, x-BaseRadius
	return dz*dz+dy*dy+dx*dx <= BaseRadius*BaseRadius
}

// sourceCoord maps output voxel o of an axis with n samples onto the
// reference cube, aligning voxel edges rather than voxel centres.
func sourceCoord(o, n int) float64 {
	scale := float64(baseExtent) / float64(n)
	return (float64(o)+0.5)*scale - 0.5
}
