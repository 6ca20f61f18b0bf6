// Package config provides configuration loading and management for vesiclegt.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"vesiclegt/pkg/groundtruth"
	"vesiclegt/pkg/kernel"
)

// ErrInvalidConfig is returned by Validate for unusable settings
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Ground truth synthesis parameters
	GroundTruth struct {
		// Diameter is the physical vesicle diameter, same unit as Resolution
		Diameter float64 `yaml:"diameter"`

		// Resolution is the physical voxel size per axis
		Resolution struct {
			Z float64 `yaml:"z"`
			Y float64 `yaml:"y"`
			X float64 `yaml:"x"`
		} `yaml:"resolution"`

		// MinDistance is the minimum separation in voxels between two centres
		MinDistance int `yaml:"minDistance"`

		// Amplification multiplies the markings before convolution
		Amplification int64 `yaml:"amplification"`

		// ExcludeBorder ignores markings this close to a volume face
		ExcludeBorder int `yaml:"excludeBorder"`

		// SplitByLabel keeps touching markings of different labels apart
		SplitByLabel bool `yaml:"splitByLabel"`

		// BallCacheSize is the number of ball masks kept in memory
		BallCacheSize int `yaml:"ballCacheSize"`
	} `yaml:"groundTruth"`

	// Input stacks
	Input struct {
		// PosDir holds the positive marking slices
		PosDir string `yaml:"posDir"`

		// NegDir holds the negative marking slices, optional
		NegDir string `yaml:"negDir"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Dir receives the ground truth slices
		Dir string `yaml:"dir"`

		// Overwrite allows replacing slices in a non-empty Dir
		Overwrite bool `yaml:"overwrite"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is a logrus level name
		Level string `yaml:"level"`

		// JSON switches to structured output
		JSON bool `yaml:"json"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	p := groundtruth.DefaultParams()

	cfg.GroundTruth.Diameter = p.Diameter
	cfg.GroundTruth.Resolution.Z = p.Resolution[0]
	cfg.GroundTruth.Resolution.Y = p.Resolution[1]
	cfg.GroundTruth.Resolution.X = p.Resolution[2]
	cfg.GroundTruth.MinDistance = p.MinDistance
	cfg.GroundTruth.Amplification = p.Amplification
	cfg.GroundTruth.ExcludeBorder = p.ExcludeBorder
	cfg.GroundTruth.BallCacheSize = kernel.DefaultCacheSize

	cfg.Output.Dir = "gt"

	cfg.Logging.Level = "info"

	return cfg
}

// Validate checks the settings that can be judged without reading any input
func (c *Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := kernel.ShapeFor(c.GroundTruth.Diameter, c.Resolution()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.GroundTruth.BallCacheSize < 1 {
		return fmt.Errorf("%w: ball cache size %d must be at least 1", ErrInvalidConfig, c.GroundTruth.BallCacheSize)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Resolution returns the voxel size in (z, y, x) order
func (c *Config) Resolution() kernel.Resolution {
	r := c.GroundTruth.Resolution
	return kernel.Resolution{r.Z, r.Y, r.X}
}

// Params maps the groundTruth section onto synthesis parameters
func (c *Config) Params() groundtruth.Params {
	return groundtruth.Params{
		Diameter:      c.GroundTruth.Diameter,
		Resolution:    c.Resolution(),
		MinDistance:   c.GroundTruth.MinDistance,
		Amplification: c.GroundTruth.Amplification,
		ExcludeBorder: c.GroundTruth.ExcludeBorder,
		SplitByLabel:  c.GroundTruth.SplitByLabel,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Unset keys keep their defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
