// Package detection locates marking centres inside hand-drawn blobs.
//
// The combined marking volume is amplified and convolved with a spherical
// kernel so that each blob responds most strongly near its centre. Local
// maxima of that response are then searched within each connected blob of
// the original markings, so background voxels never produce a centre.
package detection

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"vesiclegt/pkg/kernel"
	"vesiclegt/pkg/volume"
)

// DefaultAmplification scales the markings before convolution so that the
// response inside a blob separates clearly from the zero-padded edges.
const DefaultAmplification = 5

// ErrInvalidOptions is returned for out-of-range detection options.
var ErrInvalidOptions = errors.New("invalid detection options")

// Options controls centre detection
type Options struct {
	// MinDistance is the minimum separation between two centres, in voxels
	MinDistance int

	// Amplification multiplies the markings before convolution
	Amplification int64

	// ExcludeBorder ignores markings within this many voxels of a volume face
	ExcludeBorder int

	// SplitByLabel treats touching markings of different labels as separate blobs
	SplitByLabel bool
}

// DefaultOptions returns the options used by the labelling tool
func DefaultOptions() Options {
	return Options{
		MinDistance:   1,
		Amplification: DefaultAmplification,
	}
}

// Validate checks the options for out-of-range values
func (o Options) Validate() error {
	if o.MinDistance < 1 {
		return fmt.Errorf("%w: min distance %d must be at least 1", ErrInvalidOptions, o.MinDistance)
	}
	if o.Amplification < 1 {
		return fmt.Errorf("%w: amplification %d must be at least 1", ErrInvalidOptions, o.Amplification)
	}
	if o.ExcludeBorder < 0 {
		return fmt.Errorf("%w: exclude border %d must not be negative", ErrInvalidOptions, o.ExcludeBorder)
	}
	return nil
}

// Detection is the outcome of one centre search
type Detection struct {
	// Centres in ascending raster order
	Centres []volume.Index

	// Components is the number of connected blobs searched
	Components int

	// ResponseMin and ResponseMax bound the convolution response
	ResponseMin float64
	ResponseMax float64
}

// FindCentres detects one centre per sphere-sized peak of the markings.
//
// shape is the voxel extent of the sphere; the float kernel is built for it.
// An all-zero volume yields no centres and no error.
func FindCentres(combined *volume.Volume, shape volume.Shape, opts Options) (*Detection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	k, err := kernel.FloatKernel(shape)
	if err != nil {
		return nil, fmt.Errorf("failed to build convolution kernel: %w", err)
	}

	response := Convolve(combined, opts.Amplification, k)

	var comps *Components
	if opts.SplitByLabel {
		comps = LabelComponentsByValue(combined)
	} else {
		comps = LabelComponents(combined)
	}

	d := &Detection{Components: comps.Count}
	if len(response.Data) > 0 {
		d.ResponseMin = floats.Min(response.Data)
		d.ResponseMax = floats.Max(response.Data)
	}

	d.Centres = PeakLocalMax(response, comps, PeakOptions{
		MinDistance:   opts.MinDistance,
		ExcludeBorder: opts.ExcludeBorder,
	})
	return d, nil
}
