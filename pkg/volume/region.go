package volume

// Span is a half-open range [Start, End) along one axis
type Span struct {
	Start, End int
}

// Len returns the number of voxels covered by the span
func (s Span) Len() int {
	return s.End - s.Start
}

// Region is one span per axis in (z, y, x) order
type Region [3]Span

// Size returns the extent of the region
func (r Region) Size() Shape {
	return Shape{r[0].Len(), r[1].Len(), r[2].Len()}
}

// ClipSpan clips the range [start, start+length) to [0, bound).
//
// dst is the clipped range in destination coordinates. src is the matching
// range inside a source of extent length whose origin sits at start, so any
// amount trimmed from the front of dst shifts src by the same amount.
// ok is false when the two ranges do not intersect.
func ClipSpan(start, length, bound int) (dst, src Span, ok bool) {
	dst = Span{Start: start, End: start + length}
	src = Span{Start: 0, End: length}

	if dst.Start < 0 {
		src.Start = -dst.Start
		dst.Start = 0
	}
	if dst.End > bound {
		src.End -= dst.End - bound
		dst.End = bound
	}
	if dst.Start >= dst.End {
		return Span{}, Span{}, false
	}
	return dst, src, true
}

// ClipRegion places a block of the given size at origin inside a volume of
// shape bounds and clips it axis by axis. See ClipSpan.
func ClipRegion(origin Index, size Shape, bounds Shape) (dst, src Region, ok bool) {
	for axis := 0; axis < 3; axis++ {
		d, s, hit := ClipSpan(origin[axis], size[axis], bounds[axis])
		if !hit {
			return Region{}, Region{}, false
		}
		dst[axis] = d
		src[axis] = s
	}
	return dst, src, true
}
