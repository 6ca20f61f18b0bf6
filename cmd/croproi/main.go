package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"vesiclegt/internal/logging"
	"vesiclegt/pkg/stack"
	"vesiclegt/pkg/volume"
)

func main() {
	inputDir := flag.String("input", "", "Directory containing the source slices")
	outputDir := flag.String("output", "roi", "Directory to save the cropped slices and offset file")
	z0 := flag.Int("z0", 0, "First z plane (inclusive)")
	z1 := flag.Int("z1", -1, "Last z plane (exclusive, -1 for the full extent)")
	y0 := flag.Int("y0", 0, "First row (inclusive)")
	y1 := flag.Int("y1", -1, "Last row (exclusive, -1 for the full extent)")
	x0 := flag.Int("x0", 0, "First column (inclusive)")
	x1 := flag.Int("x1", -1, "Last column (exclusive, -1 for the full extent)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	logger, err := logging.New(*logLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	src, err := stack.Load(*inputDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load stack")
	}

	origin := volume.Index{*z0, *y0, *x0}
	end := volume.Index{*z1, *y1, *x1}
	var size volume.Shape
	for axis := 0; axis < 3; axis++ {
		if end[axis] < 0 {
			end[axis] = src.Shape[axis]
		}
		size[axis] = end[axis] - origin[axis]
	}

	roi, err := volume.Crop(src, origin, size)
	if err != nil {
		logger.WithError(err).Fatal("Failed to crop stack")
	}

	if err := stack.Save(*outputDir, roi); err != nil {
		logger.WithError(err).Fatal("Failed to save region")
	}
	if err := stack.WriteOffset(*outputDir, origin); err != nil {
		logger.WithError(err).Fatal("Failed to write offset file")
	}

	logger.WithFields(logrus.Fields{
		"source": src.Shape.String(),
		"origin": origin.String(),
		"shape":  roi.Shape.String(),
	}).Info("Region saved")
	fmt.Printf("Region saved to: %s\n", *outputDir)
}
