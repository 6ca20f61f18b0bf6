package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"vesiclegt/internal/logging"
	"vesiclegt/pkg/config"
	"vesiclegt/pkg/groundtruth"
	"vesiclegt/pkg/kernel"
	"vesiclegt/pkg/stack"
	"vesiclegt/pkg/volume"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "vesiclegt.yaml", "YAML configuration file (defaults are used if missing)")
	posDir := flag.String("pos", "", "Directory containing the positive marking slices")
	negDir := flag.String("neg", "", "Directory containing the negative marking slices (optional)")
	outputDir := flag.String("output", "", "Directory to save the ground truth slices")
	overwrite := flag.Bool("overwrite", false, "Replace existing slices in the output directory")
	diameter := flag.Float64("diameter", 0, "Vesicle diameter, same unit as the resolution")
	resZ := flag.Float64("res-z", 0, "Voxel size along z")
	resY := flag.Float64("res-y", 0, "Voxel size along y")
	resX := flag.Float64("res-x", 0, "Voxel size along x")
	minDistance := flag.Int("min-distance", 0, "Minimum separation in voxels between two centres")
	excludeBorder := flag.Int("exclude-border", 0, "Ignore markings this close to a volume face")
	splitByLabel := flag.Bool("split-by-label", false, "Keep touching markings of different labels apart")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	jsonLogs := flag.Bool("json", false, "Log in JSON")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags win over the file only when given explicitly
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pos":
			cfg.Input.PosDir = *posDir
		case "neg":
			cfg.Input.NegDir = *negDir
		case "output":
			cfg.Output.Dir = *outputDir
		case "overwrite":
			cfg.Output.Overwrite = *overwrite
		case "diameter":
			cfg.GroundTruth.Diameter = *diameter
		case "res-z":
			cfg.GroundTruth.Resolution.Z = *resZ
		case "res-y":
			cfg.GroundTruth.Resolution.Y = *resY
		case "res-x":
			cfg.GroundTruth.Resolution.X = *resX
		case "min-distance":
			cfg.GroundTruth.MinDistance = *minDistance
		case "exclude-border":
			cfg.GroundTruth.ExcludeBorder = *excludeBorder
		case "split-by-label":
			cfg.GroundTruth.SplitByLabel = *splitByLabel
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "json":
			cfg.Logging.JSON = *jsonLogs
		}
	})

	if cfg.Input.PosDir == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fmt.Println("================================")
	fmt.Println("VESICLE GROUND TRUTH FROM CENTRE MARKINGS")
	fmt.Println("================================")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Ground truth synthesis failed")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	if err := checkOutput(cfg.Output.Dir, cfg.Output.Overwrite); err != nil {
		return err
	}

	fmt.Println("Loading marking stacks...")
	pos, err := stack.Load(cfg.Input.PosDir)
	if err != nil {
		return fmt.Errorf("failed to load positive markings: %w", err)
	}
	neg, err := loadOptional(cfg.Input.NegDir, pos)
	if err != nil {
		return fmt.Errorf("failed to load negative markings: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"shape":        pos.Shape.String(),
		"pos_markings": pos.CountNonZero(),
		"neg_markings": neg.CountNonZero(),
	}).Info("Loaded marking stacks")

	provider, err := kernel.NewProvider(kernel.WithCacheSize(cfg.GroundTruth.BallCacheSize))
	if err != nil {
		return err
	}
	synth, err := groundtruth.New(pos, neg, cfg.Params(),
		groundtruth.WithLogger(logger),
		groundtruth.WithProvider(provider))
	if err != nil {
		return err
	}

	fmt.Printf("Kernel shape: %v (diameter %.1f, resolution %v)\n",
		synth.KernelShape(), cfg.GroundTruth.Diameter, cfg.Resolution())
	fmt.Println("Computing ground truth...")
	startTime := time.Now()
	gt, err := synth.Synthesize()
	if err != nil {
		return err
	}
	processingTime := time.Since(startTime)

	if err := stack.Save(cfg.Output.Dir, gt); err != nil {
		return fmt.Errorf("failed to save ground truth: %w", err)
	}

	report := synth.Report()
	fmt.Printf("\nGround truth completed in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output slices saved to: %s\n\n", cfg.Output.Dir)

	fmt.Printf("Summary:\n")
	fmt.Printf("========\n")
	fmt.Printf("Marking components: %d\n", report.Components)
	fmt.Printf("Centres found: %d\n", len(report.Centres))
	fmt.Printf("Mean voxels per sphere: %.1f\n", report.MeanStampedVoxels)
	for _, lc := range report.Labels {
		fmt.Printf("- Label %d: %d voxels\n", lc.Label, lc.Voxels)
	}
	return nil
}

// loadOptional reads dir, or returns an empty volume shaped like ref when
// dir is unset or holds no slices
func loadOptional(dir string, ref *volume.Volume) (*volume.Volume, error) {
	if dir == "" {
		return volume.ZerosLike(ref), nil
	}
	v, err := stack.Load(dir)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, stack.ErrNoSlices) {
		return volume.ZerosLike(ref), nil
	}
	return v, err
}

// checkOutput refuses to mix new slices into an existing stack unless allowed
func checkOutput(dir string, overwrite bool) error {
	if overwrite {
		return nil
	}
	files, err := stack.SliceFiles(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(files) > 0 {
		return fmt.Errorf("output directory %s already holds %d slices, use -overwrite to replace them", dir, len(files))
	}
	return nil
}
