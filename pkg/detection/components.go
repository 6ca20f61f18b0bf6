package detection

import (
	"vesiclegt/pkg/volume"
)

// Components is a connected-component labelling of a volume.
type Components struct {
	// Shape of the labelled volume
	Shape volume.Shape

	// Labels holds the component of every voxel, 0 for background.
	// Components are numbered from 1 in raster order of their first voxel.
	Labels []int32

	// Count is the number of components
	Count int

	// Voxels lists the flat offsets of each component in raster order.
	// Voxels[c-1] belongs to component c.
	Voxels [][]int
}

// neighbours26 are the offsets of the full 3x3x3 neighbourhood without its centre.
var neighbours26 = func() []volume.Index {
	var n []volume.Index
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dz != 0 || dy != 0 || dx != 0 {
					n = append(n, volume.Index{dz, dy, dx})
				}
			}
		}
	}
	return n
}()

// LabelComponents labels the 26-connected components of the mask src != 0.
// Touching voxels with different labels share a component.
func LabelComponents(src *volume.Volume) *Components {
	return label(src, false)
}

// LabelComponentsByValue labels 26-connected regions of equal non-zero value,
// so touching markings of different classes form separate components.
func LabelComponentsByValue(src *volume.Volume) *Components {
	return label(src, true)
}

func label(src *volume.Volume, byValue bool) *Components {
	c := &Components{
		Shape:  src.Shape,
		Labels: make([]int32, len(src.Data)),
	}

	queue := make([]int, 0, 64)
	for start, val := range src.Data {
		if val == 0 || c.Labels[start] != 0 {
			continue
		}
		c.Count++
		id := int32(c.Count)
		c.Labels[start] = id
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			off := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			p := src.IndexOf(off)

			for _, d := range neighbours26 {
				q := volume.Index{p[0] + d[0], p[1] + d[1], p[2] + d[2]}
				if !src.Contains(q) {
					continue
				}
				qo := src.Offset(q)
				qv := src.Data[qo]
				if qv == 0 || c.Labels[qo] != 0 {
					continue
				}
				if byValue && qv != val {
					continue
				}
				c.Labels[qo] = id
				queue = append(queue, qo)
			}
		}
	}

	c.Voxels = make([][]int, c.Count)
	for off, id := range c.Labels {
		if id != 0 {
			c.Voxels[id-1] = append(c.Voxels[id-1], off)
		}
	}
	return c
}
