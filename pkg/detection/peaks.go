package detection

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"

	"vesiclegt/pkg/volume"
)

// PeakOptions controls the local-maxima search
type PeakOptions struct {
	// MinDistance is the minimum Chebyshev distance in voxels between two
	// reported peaks of one component. The local-maximum window is a cube of
	// side 2*MinDistance+1.
	MinDistance int

	// ExcludeBorder drops voxels closer than this many voxels to a volume face.
	ExcludeBorder int

	// ThresholdAbs overrides the peak threshold. By default peaks must exceed
	// the minimum of the whole response.
	ThresholdAbs *float64
}

// cross6 is the face-connected structuring element used by binary opening.
var cross6 = []volume.Index{
	{0, 0, 0},
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// PeakLocalMax finds the local maxima of img inside the components of comps.
//
// Each component is searched on its own: a voxel is a peak when no voxel of
// the same component within MinDistance has a larger value and its value
// exceeds the threshold. A component without any strict variation reports its
// isolated voxels instead. Peaks of one component closer than MinDistance are
// thinned, keeping the brighter one. The result is in ascending raster order.
func PeakLocalMax(img *volume.Float, comps *Components, opts PeakOptions) []volume.Index {
	if comps.Count == 0 || len(img.Data) == 0 {
		return nil
	}

	threshold := floats.Min(img.Data)
	if opts.ThresholdAbs != nil {
		threshold = *opts.ThresholdAbs
	}

	s := img.Shape
	border := opts.ExcludeBorder
	inBorder := func(p volume.Index) bool {
		for axis := 0; axis < 3; axis++ {
			if p[axis] < border || p[axis] >= s[axis]-border {
				return true
			}
		}
		return false
	}

	var peaks []int
	for c := 1; c <= comps.Count; c++ {
		id := int32(c)
		member := func(p volume.Index) bool {
			for axis := 0; axis < 3; axis++ {
				if p[axis] < 0 || p[axis] >= s[axis] {
					return false
				}
			}
			return comps.Labels[img.Offset(p)] == id && (border == 0 || !inBorder(p))
		}

		voxels := comps.Voxels[c-1]
		if border > 0 {
			kept := voxels[:0:0]
			for _, off := range voxels {
				if !inBorder(img.IndexOf(off)) {
					kept = append(kept, off)
				}
			}
			voxels = kept
		}
		if len(voxels) == 0 {
			continue
		}

		candidates := componentMaxima(img, voxels, member, opts.MinDistance)
		above := candidates[:0]
		for _, off := range candidates {
			if img.Data[off] > threshold {
				above = append(above, off)
			}
		}
		peaks = append(peaks, ensureSpacing(img, above, opts.MinDistance)...)
	}

	sort.Ints(peaks)
	result := make([]volume.Index, len(peaks))
	for i, off := range peaks {
		result[i] = img.IndexOf(off)
	}
	return result
}

// componentMaxima returns, in raster order, the voxels of one component that
// equal the maximum over their window restricted to the component.
func componentMaxima(img *volume.Float, voxels []int, member func(volume.Index) bool, dist int) []int {
	var maxima []int
	for _, off := range voxels {
		p := img.IndexOf(off)
		v := img.Data[off]
		isMax := true
	window:
		for dz := -dist; dz <= dist; dz++ {
			for dy := -dist; dy <= dist; dy++ {
				for dx := -dist; dx <= dist; dx++ {
					q := volume.Index{p[0] + dz, p[1] + dy, p[2] + dx}
					if member(q) && img.At(q) > v {
						isMax = false
						break window
					}
				}
			}
		}
		if isMax {
			maxima = append(maxima, off)
		}
	}

	if len(maxima) < len(voxels) {
		return maxima
	}
	// Every voxel is its own maximum, so the response is flat over the
	// component. Only voxels too thin to survive an opening count as peaks.
	return isolatedVoxels(img, voxels, member)
}

// isolatedVoxels returns the voxels removed by a binary opening of the
// component with the face-connected cross.
func isolatedVoxels(img *volume.Float, voxels []int, member func(volume.Index) bool) []int {
	eroded := make(map[int]bool, len(voxels))
	for _, off := range voxels {
		p := img.IndexOf(off)
		keep := true
		for _, d := range cross6 {
			if !member(volume.Index{p[0] + d[0], p[1] + d[1], p[2] + d[2]}) {
				keep = false
				break
			}
		}
		if keep {
			eroded[off] = true
		}
	}

	var isolated []int
	for _, off := range voxels {
		p := img.IndexOf(off)
		opened := false
		for _, d := range cross6 {
			q := volume.Index{p[0] + d[0], p[1] + d[1], p[2] + d[2]}
			if inside(img.Shape, q) && eroded[img.Offset(q)] {
				opened = true
				break
			}
		}
		if !opened {
			isolated = append(isolated, off)
		}
	}
	return isolated
}

func inside(s volume.Shape, p volume.Index) bool {
	for axis := 0; axis < 3; axis++ {
		if p[axis] < 0 || p[axis] >= s[axis] {
			return false
		}
	}
	return true
}

// ensureSpacing visits candidates from brightest to dimmest, ties in raster
// order, and rejects every later candidate closer than dist to an accepted one.
func ensureSpacing(img *volume.Float, candidates []int, dist int) []int {
	if dist <= 1 || len(candidates) < 2 {
		return append([]int(nil), candidates...)
	}

	ordered := append([]int(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return img.Data[ordered[i]] > img.Data[ordered[j]]
	})

	points := make(peakPoints, len(ordered))
	for i, off := range ordered {
		p := img.IndexOf(off)
		points[i] = peakPoint{Z: float64(p[0]), Y: float64(p[1]), X: float64(p[2]), rank: i}
	}
	tree := kdtree.New(append(peakPoints(nil), points...), false)

	// Integer coordinates: Chebyshev distance < dist means at most dist-1.
	radius := float64((dist - 1) * (dist - 1))
	rejected := make([]bool, len(points))
	var accepted []int
	for i, p := range points {
		if rejected[i] {
			continue
		}
		accepted = append(accepted, ordered[i])

		keeper := kdtree.NewDistKeeper(radius)
		tree.NearestSet(keeper, p)
		for _, item := range keeper.Heap {
			// Skip the sentinel value
			if item.Comparable == nil {
				continue
			}
			q := item.Comparable.(peakPoint)
			if q.rank != i {
				rejected[q.rank] = true
			}
		}
	}
	return accepted
}

// peakPoint is a candidate peak stored in the kd-tree.
// rank is its position in the brightness ordering.
type peakPoint struct {
	Z, Y, X float64
	rank    int
}

// Compare implements the kdtree.Comparable interface
func (p peakPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(peakPoint)
	switch d {
	case 0:
		return p.Z - q.Z
	case 1:
		return p.Y - q.Y
	case 2:
		return p.X - q.X
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p peakPoint) Dims() int { return 3 }

// Distance returns the squared Chebyshev distance between two points. The
// tree prunes on squared per-axis gaps, which never exceed it.
func (p peakPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(peakPoint)
	d := math.Max(math.Abs(p.Z-q.Z), math.Max(math.Abs(p.Y-q.Y), math.Abs(p.X-q.X)))
	return d * d
}

// peakPoints is a collection of peakPoint that satisfies kdtree.Interface
type peakPoints []peakPoint

func (p peakPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p peakPoints) Len() int                              { return len(p) }
func (p peakPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p peakPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(peakPlane{peakPoints: p, Dim: d}, kdtree.MedianOfRandoms(peakPlane{peakPoints: p, Dim: d}, 100))
}

// peakPlane implements sort.Interface and kdtree.SortSlicer for peakPoints
type peakPlane struct {
	peakPoints
	kdtree.Dim
}

func (p peakPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.peakPoints[i].Z < p.peakPoints[j].Z
	case 1:
		return p.peakPoints[i].Y < p.peakPoints[j].Y
	case 2:
		return p.peakPoints[i].X < p.peakPoints[j].X
	default:
		panic("illegal dimension")
	}
}

func (p peakPlane) Slice(start, end int) kdtree.SortSlicer {
	return peakPlane{peakPoints: p.peakPoints[start:end], Dim: p.Dim}
}

func (p peakPlane) Swap(i, j int) {
	p.peakPoints[i], p.peakPoints[j] = p.peakPoints[j], p.peakPoints[i]
}
