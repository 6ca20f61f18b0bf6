package detection

import (
	"vesiclegt/pkg/volume"
)

// Convolve returns the same-shape convolution of src*factor with k.
// Voxels outside src are treated as zero. The kernel is flipped and centred
// on k.Shape/2 per axis, so out[i] = sum_j k[j] * src[i-j+c].
//
// Only non-zero voxels of src contribute, which keeps sparse markings cheap.
func Convolve(src *volume.Volume, factor int64, k *volume.Float) *volume.Float {
	out := volume.NewFloat(src.Shape)
	s := src.Shape
	ks := k.Shape
	var centre volume.Index
	for axis := 0; axis < 3; axis++ {
		centre[axis] = ks[axis] / 2
	}

	for off, val := range src.Data {
		if val == 0 {
			continue
		}
		amp := float64(val * factor)
		p := src.IndexOf(off)

		// Output voxel i receives src[p] through kernel tap j = i - p + c,
		// i.e. i = p - c + j. Clip the tap range so i stays inside src.
		for jz := 0; jz < ks[0]; jz++ {
			iz := p[0] - centre[0] + jz
			if iz < 0 || iz >= s[0] {
				continue
			}
			for jy := 0; jy < ks[1]; jy++ {
				iy := p[1] - centre[1] + jy
				if iy < 0 || iy >= s[1] {
					continue
				}
				kRow := k.Data[(jz*ks[1]+jy)*ks[2]:]
				oRow := out.Data[(iz*s[1]+iy)*s[2]:]
				for jx := 0; jx < ks[2]; jx++ {
					ix := p[2] - centre[2] + jx
					if ix < 0 || ix >= s[2] {
						continue
					}
					oRow[ix] += kRow[jx] * amp
				}
			}
		}
	}
	return out
}
