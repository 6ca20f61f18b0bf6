package volume

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOffsetRoundTrip verifies that flat offsets and coordinates agree
func TestOffsetRoundTrip(t *testing.T) {
	v := New(Shape{3, 4, 5})
	require.Len(t, v.Data, 60)

	for off := range v.Data {
		idx := v.IndexOf(off)
		require.True(t, v.Contains(idx), "index %v out of bounds", idx)
		require.Equal(t, off, v.Offset(idx))
	}

	assert.Equal(t, 0, v.Offset(Index{0, 0, 0}))
	assert.Equal(t, 5, v.Offset(Index{0, 1, 0}))
	assert.Equal(t, 20, v.Offset(Index{1, 0, 0}))
	assert.Equal(t, 59, v.Offset(Index{2, 3, 4}))
}

func TestContains(t *testing.T) {
	v := New(Shape{2, 2, 2})
	assert.True(t, v.Contains(Index{1, 1, 1}))
	assert.False(t, v.Contains(Index{2, 0, 0}))
	assert.False(t, v.Contains(Index{0, -1, 0}))
}

// TestAdd checks the elementwise sum and the shape guard
func TestAdd(t *testing.T) {
	a := New(Shape{1, 2, 2})
	b := New(Shape{1, 2, 2})
	a.Set(Index{0, 0, 0}, 1)
	b.Set(Index{0, 1, 1}, 2)

	sum, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0, 0, 2}, sum.Data)

	// Inputs are untouched
	assert.Equal(t, []int64{1, 0, 0, 0}, a.Data)
	assert.Equal(t, []int64{0, 0, 0, 2}, b.Data)

	// Overlapping markings sum their labels
	b.Set(Index{0, 0, 0}, 2)
	sum, err = Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.At(Index{0, 0, 0}))

	_, err = Add(a, New(Shape{1, 2, 3}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestFromData(t *testing.T) {
	_, err := FromData(Shape{2, 2, 2}, make([]int64, 7))
	assert.Error(t, err)

	_, err = FromData(Shape{0, 2, 2}, nil)
	assert.Error(t, err)

	v, err := FromData(Shape{1, 1, 2}, []int64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.At(Index{0, 0, 1}))
}

func TestLabels(t *testing.T) {
	v := New(Shape{1, 1, 6})
	copy(v.Data, []int64{0, 2, 1, 2, 0, 2})

	assert.Equal(t, []LabelCount{{Label: 1, Voxels: 1}, {Label: 2, Voxels: 3}}, v.Labels())
	assert.Equal(t, 4, v.CountNonZero())
}

func TestCloneAndEqual(t *testing.T) {
	v := New(Shape{2, 1, 1})
	v.Set(Index{1, 0, 0}, 7)

	c := v.Clone()
	require.True(t, v.Equal(c))

	c.Set(Index{0, 0, 0}, 1)
	assert.False(t, v.Equal(c))
	assert.False(t, v.Equal(New(Shape{1, 2, 1})))
}

// TestCrop verifies region extraction and bounds validation
func TestCrop(t *testing.T) {
	v := New(Shape{4, 4, 4})
	for off := range v.Data {
		v.Data[off] = int64(off)
	}

	sub, err := Crop(v, Index{1, 2, 3}, Shape{2, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 2, 1}, sub.Shape)
	for z := 0; z < 2; z++ {
		for y := 0; y < 2; y++ {
			want := v.At(Index{1 + z, 2 + y, 3})
			assert.Equal(t, want, sub.At(Index{z, y, 0}))
		}
	}

	_, err = Crop(v, Index{3, 0, 0}, Shape{2, 1, 1})
	assert.Error(t, err, "region beyond the volume must be rejected")

	_, err = Crop(v, Index{-1, 0, 0}, Shape{1, 1, 1})
	assert.Error(t, err)

	_, err = Crop(v, Index{0, 0, 0}, Shape{1, 0, 1})
	assert.Error(t, err)
}

func TestMaskCount(t *testing.T) {
	m := NewMask(Shape{1, 2, 2})
	m.Data[1] = true
	m.Data[3] = true
	assert.Equal(t, 2, m.Count())
	assert.True(t, m.At(Index{0, 1, 1}))
}
