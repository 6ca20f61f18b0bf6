// Package volume provides the dense 3D arrays shared by the ground-truth pipeline.
// All volumes are stored as flat row-major slices in (z, y, x) order.
package volume

import (
	"errors"
	"fmt"
	"sort"
)

// ErrShapeMismatch is returned when two volumes that must share a shape do not.
var ErrShapeMismatch = errors.New("volume shapes do not match")

// Shape is the extent of a volume along the z, y and x axes
type Shape [3]int

// Len returns the number of voxels in a volume of this shape
func (s Shape) Len() int {
	return s[0] * s[1] * s[2]
}

// Valid reports whether every extent is positive
func (s Shape) Valid() bool {
	return s[0] > 0 && s[1] > 0 && s[2] > 0
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s[0], s[1], s[2])
}

// Index is a voxel coordinate in (z, y, x) order
type Index [3]int

func (i Index) String() string {
	return fmt.Sprintf("(%d,%d,%d)", i[0], i[1], i[2])
}

// offset converts a coordinate to its flat row-major position for the given shape.
func offset(s Shape, idx Index) int {
	return (idx[0]*s[1]+idx[1])*s[2] + idx[2]
}

// indexOf is the inverse of offset.
func indexOf(s Shape, off int) Index {
	x := off % s[2]
	off /= s[2]
	y := off % s[1]
	return Index{off / s[1], y, x}
}

// contains reports whether idx lies inside a volume of shape s.
func contains(s Shape, idx Index) bool {
	for axis := 0; axis < 3; axis++ {
		if idx[axis] < 0 || idx[axis] >= s[axis] {
			return false
		}
	}
	return true
}

// Volume is a dense label volume.
// Label 0 is background, any other value is a class label.
type Volume struct {
	// Data holds the voxels in row-major (z, y, x) order
	Data []int64

	// Shape is the extent of the volume along each axis
	Shape Shape
}

// New allocates an all-zero volume of the given shape
func New(shape Shape) *Volume {
	return &Volume{
		Data:  make([]int64, shape.Len()),
		Shape: shape,
	}
}

// FromData wraps existing voxel data. The slice length must match the shape.
func FromData(shape Shape, data []int64) (*Volume, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("invalid volume shape %v", shape)
	}
	if len(data) != shape.Len() {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	return &Volume{Data: data, Shape: shape}, nil
}

// ZerosLike returns an empty volume with the same shape as v
func ZerosLike(v *Volume) *Volume {
	return New(v.Shape)
}

// Offset returns the flat position of idx in Data
func (v *Volume) Offset(idx Index) int {
	return offset(v.Shape, idx)
}

// IndexOf returns the coordinate of the flat position off
func (v *Volume) IndexOf(off int) Index {
	return indexOf(v.Shape, off)
}

// Contains reports whether idx lies inside the volume
func (v *Volume) Contains(idx Index) bool {
	return contains(v.Shape, idx)
}

// At returns the label at idx. idx must lie inside the volume.
func (v *Volume) At(idx Index) int64 {
	return v.Data[offset(v.Shape, idx)]
}

// Set writes the label at idx. idx must lie inside the volume.
func (v *Volume) Set(idx Index, label int64) {
	v.Data[offset(v.Shape, idx)] = label
}

// Clone returns a deep copy of v
func (v *Volume) Clone() *Volume {
	data := make([]int64, len(v.Data))
	copy(data, v.Data)
	return &Volume{Data: data, Shape: v.Shape}
}

// Equal reports whether both volumes have the same shape and voxels
func (v *Volume) Equal(o *Volume) bool {
	if v.Shape != o.Shape {
		return false
	}
	for i := range v.Data {
		if v.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// CountNonZero returns the number of labelled voxels
func (v *Volume) CountNonZero() int {
	n := 0
	for _, val := range v.Data {
		if val != 0 {
			n++
		}
	}
	return n
}

// LabelCount is the number of voxels carrying one label
type LabelCount struct {
	Label  int64
	Voxels int
}

// Labels returns the distinct non-zero labels of v in ascending order
// together with their voxel counts.
func (v *Volume) Labels() []LabelCount {
	counts := make(map[int64]int)
	for _, val := range v.Data {
		if val != 0 {
			counts[val]++
		}
	}
	result := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		result = append(result, LabelCount{Label: label, Voxels: n})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Label < result[j].Label
	})
	return result
}

// Add returns the elementwise sum of a and b as a new volume.
// Overlapping labels are summed, not resolved.
func Add(a, b *Volume) (*Volume, error) {
	if a.Shape != b.Shape {
		return nil, fmt.Errorf("%w: %v and %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	sum := New(a.Shape)
	for i := range sum.Data {
		sum.Data[i] = a.Data[i] + b.Data[i]
	}
	return sum, nil
}

// Crop extracts the sub-volume of the given size starting at origin.
// The region must lie entirely inside v.
func Crop(v *Volume, origin Index, size Shape) (*Volume, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("crop size %v must be positive", size)
	}
	for axis := 0; axis < 3; axis++ {
		if origin[axis] < 0 {
			return nil, fmt.Errorf("crop origin %v must be non-negative", origin)
		}
		if origin[axis]+size[axis] > v.Shape[axis] {
			return nil, fmt.Errorf("crop region %v+%v extends beyond volume %v", origin, size, v.Shape)
		}
	}

	out := New(size)
	for z := 0; z < size[0]; z++ {
		for y := 0; y < size[1]; y++ {
			src := v.Offset(Index{origin[0] + z, origin[1] + y, origin[2]})
			dst := out.Offset(Index{z, y, 0})
			copy(out.Data[dst:dst+size[2]], v.Data[src:src+size[2]])
		}
	}
	return out, nil
}

// Float is a dense float64 volume, used for kernels and filter responses
type Float struct {
	Data  []float64
	Shape Shape
}

// NewFloat allocates an all-zero float volume
func NewFloat(shape Shape) *Float {
	return &Float{Data: make([]float64, shape.Len()), Shape: shape}
}

func (f *Float) Offset(idx Index) int  { return offset(f.Shape, idx) }
func (f *Float) IndexOf(off int) Index { return indexOf(f.Shape, off) }
func (f *Float) At(idx Index) float64  { return f.Data[offset(f.Shape, idx)] }

// Mask is a dense boolean volume
type Mask struct {
	Data  []bool
	Shape Shape
}

// NewMask allocates an all-false mask
func NewMask(shape Shape) *Mask {
	return &Mask{Data: make([]bool, shape.Len()), Shape: shape}
}

func (m *Mask) Offset(idx Index) int { return offset(m.Shape, idx) }
func (m *Mask) At(idx Index) bool    { return m.Data[offset(m.Shape, idx)] }

// Count returns the number of set voxels
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Data {
		if b {
			n++
		}
	}
	return n
}
