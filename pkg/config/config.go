// Package config provides configuration loading and management for seismicrop.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"seismicrop/pkg/assembly"
	"seismicrop/pkg/crop"
	"seismicrop/pkg/densestore"
	"seismicrop/pkg/geometry"
	"seismicrop/pkg/interpolation"
	"seismicrop/pkg/logging"
	"seismicrop/pkg/mask"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// Normalize scales crops to [0, 1] using the indexed value range
		Normalize bool `yaml:"normalize"`

		// SaveIntermediaryResults determines whether to save slice images of
		// crops, masks and the reassembled volume
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are written
		IntermediaryDir string `yaml:"intermediaryDir"`
	} `yaml:"processing"`

	// Geometry parameters
	Geometry struct {
		// Height overrides the height transform read from the SEG-Y headers
		Height *geometry.HeightTransform `yaml:"height,omitempty"`
	} `yaml:"geometry"`

	// Crop parameters
	Crop struct {
		// Source is "segy" or "dense"
		Source string `yaml:"source"`

		// Shape is the crop size along inline, crossline and height
		Shape [3]int `yaml:"shape,flow"`

		// Stride is the largest distance between neighbouring grid crops
		Stride [3]int `yaml:"stride,flow"`
	} `yaml:"crop"`

	// Mask parameters
	Mask struct {
		// Mode is "horizon" or "stratum"
		Mode string `yaml:"mode"`

		// Width is the band thickness in samples for horizon masks
		Width int `yaml:"width"`

		// Fill krigs the horizon into columns without picks
		Fill bool `yaml:"fill"`

		// Variogram is "spherical", "exponential" or "gaussian"
		Variogram string `yaml:"variogram"`

		// KrigingRange is the variogram range in traces; zero fits it to the picks
		KrigingRange float64 `yaml:"krigingRange"`

		// Neighbors is the number of picks used per kriged column
		Neighbors int `yaml:"neighbors"`
	} `yaml:"mask"`

	// Assembly parameters
	Assembly struct {
		// Reducer combines overlapping predictions: "mean-nonzero", "mean" or "max"
		Reducer string `yaml:"reducer"`
	} `yaml:"assembly"`

	// DenseStore parameters
	DenseStore struct {
		Path        string `yaml:"path"`
		InMemory    bool   `yaml:"inMemory"`
		Compression string `yaml:"compression"`
		CacheBytes  int    `yaml:"cacheBytes"`
	} `yaml:"denseStore"`

	Logging logging.Config `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.IntermediaryDir = "intermediary_results"

	cfg.Crop.Source = crop.SourceSEGY.String()
	cfg.Crop.Shape = [3]int{64, 64, 64}
	cfg.Crop.Stride = [3]int{32, 32, 32}

	cfg.Mask.Mode = mask.ModeHorizon.String()
	cfg.Mask.Width = 3
	cfg.Mask.Variogram = interpolation.Spherical.String()
	cfg.Mask.Neighbors = interpolation.DefaultNeighbors

	cfg.Assembly.Reducer = assembly.Reducer{Kind: assembly.MeanNonzero}.String()

	cfg.DenseStore.Path = "dense.db"
	cfg.DenseStore.Compression = densestore.Zstd.String()
	cfg.DenseStore.CacheBytes = 64 << 20

	cfg.Logging.MaxSize = 100
	cfg.Logging.MaxAge = 28

	return cfg
}

// Validate checks that every named setting is known and every size positive.
func (c *Config) Validate() error {
	if _, err := crop.ParseSource(c.Crop.Source); err != nil {
		return err
	}
	if _, err := mask.ParseMode(c.Mask.Mode); err != nil {
		return err
	}
	if _, err := interpolation.ParseVariogram(c.Mask.Variogram); err != nil {
		return err
	}
	if _, err := assembly.ParseReducer(c.Assembly.Reducer); err != nil {
		return err
	}
	if _, err := densestore.ParseCompression(c.DenseStore.Compression); err != nil {
		return err
	}
	for a := 0; a < 3; a++ {
		if c.Crop.Shape[a] <= 0 || c.Crop.Stride[a] <= 0 {
			return fmt.Errorf("crop shape %v and stride %v must be positive", c.Crop.Shape, c.Crop.Stride)
		}
		if c.Crop.Stride[a] > c.Crop.Shape[a] {
			return fmt.Errorf("crop stride %v exceeds crop shape %v", c.Crop.Stride, c.Crop.Shape)
		}
	}
	if c.Mask.Width < 1 {
		return fmt.Errorf("mask width must be positive, got %d", c.Mask.Width)
	}
	if c.Geometry.Height != nil && c.Geometry.Height.Step <= 0 {
		return fmt.Errorf("height step must be positive, got %v", c.Geometry.Height.Step)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
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
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
