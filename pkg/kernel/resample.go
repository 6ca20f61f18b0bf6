package kernel

import (
	"math"

	"vesiclegt/pkg/volume"
)

// FloatKernel resamples the reference sphere onto shape with linear
// interpolation and returns weights in [0, 1].
//
// When an axis is downsampled the reference sphere is first smoothed with a
// Gaussian of sigma (scale-1)/2 along that axis so the kernel does not alias.
// The result is not cached.
func FloatKernel(shape volume.Shape) (*volume.Float, error) {
	if err := checkShape(shape); err != nil {
		return nil, err
	}

	var axes [3]linearAxis
	var weights [3][]float64
	for axis := 0; axis < 3; axis++ {
		axes[axis] = newLinearAxis(shape[axis])
		weights[axis] = gaussianWeights(antiAliasSigma(shape[axis]))
	}

	grid := smoothedGrid(axes, weights)
	ny, nx := len(axes[1].coords), len(axes[2].coords)
	at := func(z, y, x int) float64 {
		return grid[(z*ny+y)*nx+x]
	}

	out := volume.NewFloat(shape)
	for oz := 0; oz < shape[0]; oz++ {
		z0, z1, fz := axes[0].lo[oz], axes[0].hi[oz], axes[0].frac[oz]
		for oy := 0; oy < shape[1]; oy++ {
			y0, y1, fy := axes[1].lo[oy], axes[1].hi[oy], axes[1].frac[oy]
			for ox := 0; ox < shape[2]; ox++ {
				x0, x1, fx := axes[2].lo[ox], axes[2].hi[ox], axes[2].frac[ox]

				c00 := at(z0, y0, x0)*(1-fx) + at(z0, y0, x1)*fx
				c01 := at(z0, y1, x0)*(1-fx) + at(z0, y1, x1)*fx
				c10 := at(z1, y0, x0)*(1-fx) + at(z1, y0, x1)*fx
				c11 := at(z1, y1, x0)*(1-fx) + at(z1, y1, x1)*fx
				c0 := c00*(1-fy) + c01*fy
				c1 := c10*(1-fy) + c11*fy

				v := c0*(1-fz) + c1*fz
				out.Data[out.Offset(volume.Index{oz, oy, ox})] = math.Min(1, math.Max(0, v))
			}
		}
	}
	return out, nil
}

// nearestBall resamples the reference sphere onto shape with
// nearest-neighbour lookup and no smoothing.
func nearestBall(shape volume.Shape) *volume.Mask {
	var src [3][]int
	for axis := 0; axis < 3; axis++ {
		src[axis] = make([]int, shape[axis])
		for o := range src[axis] {
			src[axis][o] = clampIndex(int(math.Floor(sourceCoord(o, shape[axis])+0.5)), baseExtent)
		}
	}

	mask := volume.NewMask(shape)
	i := 0
	for _, z := range src[0] {
		for _, y := range src[1] {
			for _, x := range src[2] {
				mask.Data[i] = inReference(z, y, x)
				i++
			}
		}
	}
	return mask
}

// linearAxis holds the interpolation stencil of one output axis.
// lo and hi index into coords, the distinct reference coordinates sampled.
type linearAxis struct {
	coords []int
	lo, hi []int
	frac   []float64
}

func newLinearAxis(n int) linearAxis {
	a := linearAxis{
		lo:   make([]int, n),
		hi:   make([]int, n),
		frac: make([]float64, n),
	}
	pos := make(map[int]int)
	slot := func(c int) int {
		if p, ok := pos[c]; ok {
			return p
		}
		pos[c] = len(a.coords)
		a.coords = append(a.coords, c)
		return pos[c]
	}

	for o := 0; o < n; o++ {
		s := math.Min(math.Max(sourceCoord(o, n), 0), float64(baseExtent-1))
		i0 := int(math.Floor(s))
		i1 := i0 + 1
		if i1 > baseExtent-1 {
			i1 = baseExtent - 1
		}
		a.lo[o] = slot(i0)
		a.hi[o] = slot(i1)
		a.frac[o] = s - float64(i0)
	}
	return a
}

// antiAliasSigma is the smoothing applied before downsampling an axis from
// the reference extent to n samples.
func antiAliasSigma(n int) float64 {
	return math.Max(0, (float64(baseExtent)/float64(n)-1)/2)
}

// gaussianWeights returns a normalised Gaussian truncated at four sigma.
// A zero sigma yields nil, meaning no smoothing.
func gaussianWeights(sigma float64) []float64 {
	if sigma <= 0 {
		return nil
	}
	radius := int(4*sigma + 0.5)
	w := make([]float64, 2*radius+1)
	sum := 0.0
	for t := -radius; t <= radius; t++ {
		v := math.Exp(-0.5 * float64(t*t) / (sigma * sigma))
		w[t+radius] = v
		sum += v
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// mirror folds k into [0, n) by reflecting about the outer voxel centres,
// so the edge voxel is not repeated.
func mirror(k, n int) int {
	if n == 1 {
		return 0
	}
	for k < 0 || k >= n {
		if k < 0 {
			k = -k
		} else {
			k = 2*(n-1) - k
		}
	}
	return k
}

func clampIndex(k, n int) int {
	if k < 0 {
		return 0
	}
	if k >= n {
		return n - 1
	}
	return k
}

// smoothedGrid evaluates the separably smoothed reference sphere on the
// product of the coordinates sampled along each axis. The result is laid out
// as [z][y][x] over axes[0].coords, axes[1].coords and axes[2].coords.
func smoothedGrid(axes [3]linearAxis, weights [3][]float64) []float64 {
	cz, cy, cx := axes[0].coords, axes[1].coords, axes[2].coords
	n := baseExtent

	// Pass 1: x, over every reference row.
	sx := make([]float64, n*n*len(cx))
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			dz, dy := z-BaseRadius, y-BaseRadius
			rem := BaseRadius*BaseRadius - dz*dz - dy*dy
			row := sx[(z*n+y)*len(cx):]
			if rem < 0 {
				continue
			}
			inside := func(x int) bool {
				dx := x - BaseRadius
				return dx*dx <= rem
			}
			for i, c := range cx {
				row[i] = smooth1D(weights[2], c, n, func(k int) float64 {
					if inside(k) {
						return 1
					}
					return 0
				})
			}
		}
	}

	// Pass 2: y, only at sampled y coordinates.
	sy := make([]float64, n*len(cy)*len(cx))
	for z := 0; z < n; z++ {
		for j, c := range cy {
			for i := range cx {
				sy[(z*len(cy)+j)*len(cx)+i] = smooth1D(weights[1], c, n, func(k int) float64 {
					return sx[(z*n+k)*len(cx)+i]
				})
			}
		}
	}

	// Pass 3: z, only at sampled z coordinates.
	grid := make([]float64, len(cz)*len(cy)*len(cx))
	for l, c := range cz {
		for j := range cy {
			for i := range cx {
				grid[(l*len(cy)+j)*len(cx)+i] = smooth1D(weights[0], c, n, func(k int) float64 {
					return sy[(k*len(cy)+j)*len(cx)+i]
				})
			}
		}
	}
	return grid
}

// smooth1D applies w centred on c to a line of n samples read through get,
// reflecting at the line ends. A nil w returns the sample at c.
func smooth1D(w []float64, c, n int, get func(k int) float64) float64 {
	if w == nil {
		return get(c)
	}
	radius := len(w) / 2
	sum := 0.0
	for t := -radius; t <= radius; t++ {
		sum += w[t+radius] * get(mirror(c+t, n))
	}
	return sum
}
