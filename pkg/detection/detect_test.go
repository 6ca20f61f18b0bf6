package detection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesiclegt/pkg/kernel"
	"vesiclegt/pkg/volume"
)

// naiveConvolve evaluates out[i] = sum_j k[j] * src[i-j+c] * factor directly.
func naiveConvolve(src *volume.Volume, factor int64, k *volume.Float) *volume.Float {
	out := volume.NewFloat(src.Shape)
	c := volume.Index{k.Shape[0] / 2, k.Shape[1] / 2, k.Shape[2] / 2}
	for off := range out.Data {
		i := out.IndexOf(off)
		sum := 0.0
		for koff, w := range k.Data {
			j := k.IndexOf(koff)
			q := volume.Index{i[0] - j[0] + c[0], i[1] - j[1] + c[1], i[2] - j[2] + c[2]}
			if src.Contains(q) {
				sum += w * float64(src.At(q)*factor)
			}
		}
		out.Data[off] = sum
	}
	return out
}

func rampKernel(shape volume.Shape) *volume.Float {
	k := volume.NewFloat(shape)
	for i := range k.Data {
		k.Data[i] = float64(i + 1)
	}
	return k
}

// TestConvolveImpulse checks kernel flipping and centring on a single voxel
func TestConvolveImpulse(t *testing.T) {
	src := volume.New(volume.Shape{5, 5, 5})
	src.Set(volume.Index{2, 2, 2}, 1)
	k := rampKernel(volume.Shape{3, 3, 3})

	out := Convolve(src, 5, k)
	// out[i] = 5 * k[i - p + c]
	assert.Equal(t, 5*1.0, out.At(volume.Index{1, 1, 1}))
	assert.Equal(t, 5*27.0, out.At(volume.Index{3, 3, 3}))
	assert.Equal(t, 5*3.0, out.At(volume.Index{1, 1, 3}))
	assert.Equal(t, 5*14.0, out.At(volume.Index{2, 2, 2}))
	assert.Equal(t, 0.0, out.At(volume.Index{0, 0, 0}))
}

// TestConvolveZeroPadding verifies that taps outside the volume are dropped
func TestConvolveZeroPadding(t *testing.T) {
	src := volume.New(volume.Shape{3, 3, 3})
	src.Set(volume.Index{0, 0, 0}, 2)
	k := rampKernel(volume.Shape{3, 3, 3})

	out := Convolve(src, 1, k)
	assert.Equal(t, 2*14.0, out.At(volume.Index{0, 0, 0}))
	assert.Equal(t, 2*27.0, out.At(volume.Index{1, 1, 1}))
	assert.Equal(t, 2*15.0, out.At(volume.Index{0, 0, 1}))
	assert.Equal(t, 0.0, out.At(volume.Index{2, 2, 2}))
}

// TestConvolveMatchesNaive compares the scatter implementation with a direct sum
func TestConvolveMatchesNaive(t *testing.T) {
	src := volume.New(volume.Shape{6, 7, 5})
	for off := range src.Data {
		if off%7 == 0 || off%11 == 3 {
			src.Data[off] = int64(off%3 + 1)
		}
	}

	for _, shape := range []volume.Shape{{3, 3, 3}, {4, 2, 5}, {1, 1, 1}} {
		k := rampKernel(shape)
		got := Convolve(src, 5, k)
		want := naiveConvolve(src, 5, k)
		require.Equal(t, want.Shape, got.Shape)
		for i := range want.Data {
			assert.InDelta(t, want.Data[i], got.Data[i], 1e-9, "kernel %v voxel %v", shape, got.IndexOf(i))
		}
	}
}

// TestLabelComponents checks 26-connectivity and raster numbering
func TestLabelComponents(t *testing.T) {
	src := volume.New(volume.Shape{3, 3, 5})
	src.Set(volume.Index{0, 0, 2}, 1)
	src.Set(volume.Index{1, 1, 1}, 1) // diagonal neighbour of the first
	src.Set(volume.Index{2, 2, 2}, 2) // diagonal neighbour of the second
	src.Set(volume.Index{0, 0, 4}, 1) // two voxels away from everything

	comps := LabelComponents(src)
	require.Equal(t, 2, comps.Count)
	assert.Equal(t, int32(1), comps.Labels[src.Offset(volume.Index{0, 0, 2})])
	assert.Equal(t, int32(1), comps.Labels[src.Offset(volume.Index{1, 1, 1})])
	assert.Equal(t, int32(1), comps.Labels[src.Offset(volume.Index{2, 2, 2})])
	assert.Equal(t, int32(2), comps.Labels[src.Offset(volume.Index{0, 0, 4})])
	assert.Equal(t, int32(0), comps.Labels[0])

	require.Len(t, comps.Voxels, 2)
	assert.Equal(t, []int{
		src.Offset(volume.Index{0, 0, 2}),
		src.Offset(volume.Index{1, 1, 1}),
		src.Offset(volume.Index{2, 2, 2}),
	}, comps.Voxels[0])

	byValue := LabelComponentsByValue(src)
	assert.Equal(t, 3, byValue.Count)
	assert.NotEqual(t,
		byValue.Labels[src.Offset(volume.Index{1, 1, 1})],
		byValue.Labels[src.Offset(volume.Index{2, 2, 2})])
}

func TestLabelComponentsEmpty(t *testing.T) {
	comps := LabelComponents(volume.New(volume.Shape{2, 3, 4}))
	assert.Equal(t, 0, comps.Count)
	assert.Empty(t, comps.Voxels)
}

// line builds a 1x1xN response and the matching marking volume.
func line(values []float64, marked []int) (*volume.Float, *Components) {
	shape := volume.Shape{1, 1, len(values)}
	img := volume.NewFloat(shape)
	copy(img.Data, values)
	src := volume.New(shape)
	for _, x := range marked {
		src.Data[x] = 1
	}
	return img, LabelComponents(src)
}

func xs(idx []volume.Index) []int {
	out := make([]int, len(idx))
	for i, p := range idx {
		out[i] = p[2]
	}
	return out
}

func TestPeakLocalMaxSinglePeak(t *testing.T) {
	img, comps := line([]float64{0, 1, 3, 1, 0}, []int{1, 2, 3})
	peaks := PeakLocalMax(img, comps, PeakOptions{MinDistance: 1})
	assert.Equal(t, []volume.Index{{0, 0, 2}}, peaks)
}

// TestPeakLocalMaxIgnoresBackground verifies that maxima outside the markings are skipped
func TestPeakLocalMaxIgnoresBackground(t *testing.T) {
	img, comps := line([]float64{0, 1, 2, 9, 0}, []int{1, 2})
	peaks := PeakLocalMax(img, comps, PeakOptions{MinDistance: 1})
	assert.Equal(t, []int{2}, xs(peaks))
}

// TestPeakLocalMaxFlatComponent checks the isolated-voxel rule for flat responses
func TestPeakLocalMaxFlatComponent(t *testing.T) {
	img, comps := line([]float64{0, 2, 2, 2, 0}, []int{1, 2, 3})

	peaks := PeakLocalMax(img, comps, PeakOptions{MinDistance: 1})
	assert.Equal(t, []int{1, 2, 3}, xs(peaks))

	peaks = PeakLocalMax(img, comps, PeakOptions{MinDistance: 2})
	assert.Equal(t, []int{1, 3}, xs(peaks))

	// A response flat everywhere never exceeds its own minimum
	img, comps = line([]float64{2, 2, 2}, []int{0, 1, 2})
	assert.Empty(t, PeakLocalMax(img, comps, PeakOptions{MinDistance: 1}))
}

// TestPeakLocalMaxSpacing checks that equal peaks closer than MinDistance are thinned
func TestPeakLocalMaxSpacing(t *testing.T) {
	img, comps := line([]float64{0, 3, 1, 3, 0, 0, 0}, []int{1, 2, 3})

	assert.Equal(t, []int{1, 3}, xs(PeakLocalMax(img, comps, PeakOptions{MinDistance: 2})))
	assert.Equal(t, []int{1}, xs(PeakLocalMax(img, comps, PeakOptions{MinDistance: 3})))
}

// TestPeakLocalMaxPerComponent verifies that each blob is searched on its own
func TestPeakLocalMaxPerComponent(t *testing.T) {
	// The dimmer blob keeps its peak even though the brighter one is within
	// the window, because the window never crosses components.
	img, comps := line([]float64{0, 5, 0, 2, 0}, []int{1, 3})
	require.Equal(t, 2, comps.Count)

	peaks := PeakLocalMax(img, comps, PeakOptions{MinDistance: 3})
	assert.Equal(t, []int{1, 3}, xs(peaks))
}

func TestPeakLocalMaxBorderAndThreshold(t *testing.T) {
	img, comps := line([]float64{4, 0, 0, 3, 0}, []int{0, 3})

	assert.Equal(t, []int{0, 3}, xs(PeakLocalMax(img, comps, PeakOptions{MinDistance: 1})))

	// y and z have extent 1, so any border exclusion empties the volume
	assert.Empty(t, PeakLocalMax(img, comps, PeakOptions{MinDistance: 1, ExcludeBorder: 1}))

	limit := 3.5
	assert.Equal(t, []int{0}, xs(PeakLocalMax(img, comps, PeakOptions{MinDistance: 1, ThresholdAbs: &limit})))
}

func TestPeakLocalMaxRasterOrder(t *testing.T) {
	shape := volume.Shape{3, 3, 3}
	img := volume.NewFloat(shape)
	src := volume.New(shape)
	// Brightest peak last in raster order
	for i, p := range []volume.Index{{0, 0, 0}, {0, 2, 2}, {2, 0, 2}, {2, 2, 0}} {
		src.Set(p, 1)
		img.Data[img.Offset(p)] = float64(10 - i)
	}
	img.Data[img.Offset(volume.Index{2, 2, 0})] = 100

	peaks := PeakLocalMax(img, LabelComponents(src), PeakOptions{MinDistance: 1})
	assert.Equal(t, []volume.Index{{0, 0, 0}, {0, 2, 2}, {2, 0, 2}, {2, 2, 0}}, peaks)
}

// TestFindCentresEmpty checks that an empty volume yields no centres
func TestFindCentresEmpty(t *testing.T) {
	d, err := FindCentres(volume.New(volume.Shape{8, 8, 8}), volume.Shape{5, 5, 5}, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, d.Centres)
	assert.Equal(t, 0, d.Components)
	assert.Equal(t, 0.0, d.ResponseMax)
}

// TestFindCentresSingleVoxels checks that isolated markings are their own centres
func TestFindCentresSingleVoxels(t *testing.T) {
	combined := volume.New(volume.Shape{12, 12, 12})
	combined.Set(volume.Index{2, 3, 4}, 1)
	combined.Set(volume.Index{9, 9, 9}, 2)

	d, err := FindCentres(combined, volume.Shape{5, 5, 5}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []volume.Index{{2, 3, 4}, {9, 9, 9}}, d.Centres)
	assert.Equal(t, 2, d.Components)
	assert.Greater(t, d.ResponseMax, 0.0)
}

// TestFindCentresBlob checks that a painted cube collapses to its middle voxel
func TestFindCentresBlob(t *testing.T) {
	combined := volume.New(volume.Shape{15, 15, 15})
	for z := 6; z <= 8; z++ {
		for y := 6; y <= 8; y++ {
			for x := 6; x <= 8; x++ {
				combined.Set(volume.Index{z, y, x}, 1)
			}
		}
	}

	d, err := FindCentres(combined, volume.Shape{5, 5, 5}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []volume.Index{{7, 7, 7}}, d.Centres)
}

// TestFindCentresEvenKernel runs detection with a kernel of even extent along z,
// where convolution and correlation disagree by one voxel
func TestFindCentresEvenKernel(t *testing.T) {
	combined := volume.New(volume.Shape{16, 9, 9})
	for z := 6; z <= 9; z++ {
		combined.Set(volume.Index{z, 4, 4}, 1)
	}
	shape := volume.Shape{10, 5, 5}

	d, err := FindCentres(combined, shape, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []volume.Index{{7, 4, 4}}, d.Centres)

	k, err := kernel.FloatKernel(shape)
	require.NoError(t, err)
	want := PeakLocalMax(naiveConvolve(combined, DefaultAmplification, k), LabelComponents(combined), PeakOptions{MinDistance: 1})
	assert.Equal(t, want, d.Centres)
}

func TestFindCentresInvalidOptions(t *testing.T) {
	combined := volume.New(volume.Shape{4, 4, 4})

	for _, opts := range []Options{
		{MinDistance: 0, Amplification: 5},
		{MinDistance: 1, Amplification: 0},
		{MinDistance: 1, Amplification: 5, ExcludeBorder: -1},
	} {
		_, err := FindCentres(combined, volume.Shape{3, 3, 3}, opts)
		assert.True(t, errors.Is(err, ErrInvalidOptions), "options %+v", opts)
	}

	_, err := FindCentres(combined, volume.Shape{0, 3, 3}, DefaultOptions())
	assert.Error(t, err)
}

func BenchmarkConvolve(b *testing.B) {
	src := volume.New(volume.Shape{40, 64, 64})
	for off := range src.Data {
		if off%97 == 0 {
			src.Data[off] = 1
		}
	}
	k := rampKernel(volume.Shape{10, 5, 5})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Convolve(src, DefaultAmplification, k)
	}
}
