// Package stack stores label volumes as directories of 16-bit grey TIFF
// slices, one file per z plane.
package stack

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"vesiclegt/pkg/volume"
)

// OffsetFile is the file WriteOffset creates next to a cropped stack
const OffsetFile = "offset.txt"

var (
	// ErrNoSlices is returned when a directory holds no TIFF slices
	ErrNoSlices = errors.New("no TIFF slices found")

	// ErrSliceSize is returned when the slices of a stack differ in size
	ErrSliceSize = errors.New("slice dimensions differ")

	// ErrLabelRange is returned when a label does not fit a 16-bit slice
	ErrLabelRange = errors.New("label outside 16-bit range")
)

// SliceFiles lists the TIFF files of dir ordered by the number in their name
func SliceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".tif" || ext == ".tiff" {
			files = append(files, entry.Name())
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return extractNumber(files[i]) < extractNumber(files[j])
	})
	return files, nil
}

// extractNumber returns the digits of a file name read as one number, 0 without digits
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() > 0 {
		num, err := strconv.Atoi(digits.String())
		if err == nil {
			return num
		}
	}
	return 0
}

// Load reads the slices of dir into a volume of shape (slices, height, width)
func Load(dir string) (*volume.Volume, error) {
	files, err := SliceFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSlices, dir)
	}

	var v *volume.Volume
	for z, name := range files {
		img, err := loadSlice(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load slice %s: %w", name, err)
		}

		bounds := img.Bounds()
		if v == nil {
			v = volume.New(volume.Shape{len(files), bounds.Dy(), bounds.Dx()})
		} else if bounds.Dy() != v.Shape[1] || bounds.Dx() != v.Shape[2] {
			return nil, fmt.Errorf("%w: %s is %dx%d, expected %dx%d",
				ErrSliceSize, name, bounds.Dx(), bounds.Dy(), v.Shape[2], v.Shape[1])
		}

		copySlice(v, z, img)
	}
	return v, nil
}

func loadSlice(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return tiff.Decode(file)
}

// copySlice writes the grey values of img into plane z of v
func copySlice(v *volume.Volume, z int, img image.Image) {
	bounds := img.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		row := v.Offset(volume.Index{z, y, 0})
		for x := 0; x < bounds.Dx(); x++ {
			px, py := bounds.Min.X+x, bounds.Min.Y+y
			var val uint16
			switch src := img.(type) {
			case *image.Gray16:
				val = src.Gray16At(px, py).Y
			case *image.Gray:
				val = uint16(src.GrayAt(px, py).Y)
			default:
				val = color.Gray16Model.Convert(img.At(px, py)).(color.Gray16).Y
			}
			v.Data[row+x] = int64(val)
		}
	}
}

// Save writes v to dir as slice_000.tif, slice_001.tif and so on.
// The directory is created when missing. Slices left from an earlier Save
// into dir are removed first, so the directory always loads back as v.
func Save(dir string, v *volume.Volume) error {
	for _, val := range v.Data {
		if val < 0 || val > 0xFFFF {
			return fmt.Errorf("%w: %d", ErrLabelRange, val)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := removeSlices(dir); err != nil {
		return err
	}

	for z := 0; z < v.Shape[0]; z++ {
		filename := filepath.Join(dir, fmt.Sprintf("slice_%03d.tif", z))
		if err := saveSlice(filename, planeImage(v, z)); err != nil {
			return fmt.Errorf("failed to save slice %d: %w", z, err)
		}
	}
	return nil
}

// removeSlices deletes the slice_*.tif files a previous Save wrote into dir
func removeSlices(dir string) error {
	stale, err := filepath.Glob(filepath.Join(dir, "slice_*.tif"))
	if err != nil {
		return err
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove stale slice: %w", err)
		}
	}
	return nil
}

func planeImage(v *volume.Volume, z int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, v.Shape[2], v.Shape[1]))
	for y := 0; y < v.Shape[1]; y++ {
		row := v.Offset(volume.Index{z, y, 0})
		for x := 0; x < v.Shape[2]; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(v.Data[row+x])})
		}
	}
	return img
}

func saveSlice(filename string, img image.Image) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteOffset records the position of a cropped stack inside its source
func WriteOffset(dir string, origin volume.Index) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	line := fmt.Sprintf("Image offset (to top-left): (z,y,x) = (%d, %d, %d)\n", origin[0], origin[1], origin[2])
	return os.WriteFile(filepath.Join(dir, OffsetFile), []byte(line), 0644)
}
