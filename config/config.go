// Package config loads and validates the flat JSON run configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the full run configuration. One file drives training,
// validation and reconstruction alike.
type Config struct {
	// Mode selects the channel layout: "RGB" or "Greyscale".
	Mode             string  `json:"mode"`
	WindowSize       int     `json:"window_size"`
	Stride           int     `json:"stride"`
	TrainFolder      string  `json:"train_folder"`
	ValidationFolder string  `json:"validation_folder"`
	Validation       bool    `json:"validation"`
	BatchSize        int     `json:"batch_size"`
	LearningRate     float32 `json:"lr"`
	Epochs           int     `json:"epochs"`
	Augmentation     bool    `json:"augmentation"`

	// Weights and History are optional base paths of a previous run to
	// resume from.
	Weights string `json:"weights,omitempty"`
	History string `json:"history,omitempty"`

	SaveBackups bool `json:"save_backups"`
	WarmUp      bool `json:"warm_up"`

	// LinkedStretch pools the stretch statistics across channels.
	LinkedStretch bool `json:"linked_stretch"`
}

// Default returns a configuration with the standard settings filled in.
func Default() Config {
	return Config{
		Mode:          "RGB",
		WindowSize:    256,
		Stride:        128,
		BatchSize:     1,
		LearningRate:  0.0002,
		Epochs:        1,
		Augmentation:  true,
		LinkedStretch: true,
	}
}

// Load reads a JSON configuration file on top of the defaults and
// validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field constraint and the window/stride
// relationship.
func (c Config) Validate() error {
	if c.Mode != "RGB" && c.Mode != "Greyscale" {
		return fmt.Errorf("mode must be RGB or Greyscale, got %q", c.Mode)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", c.WindowSize)
	}
	if c.Stride <= 0 || c.Stride > c.WindowSize {
		return fmt.Errorf("stride must be in (0, window_size], got %d with window_size %d", c.Stride, c.WindowSize)
	}
	if (c.WindowSize-c.Stride)%2 != 0 {
		return fmt.Errorf("window_size minus stride must be even, got %d and %d", c.WindowSize, c.Stride)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("lr must be positive, got %v", c.LearningRate)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.Validation && c.ValidationFolder == "" {
		return fmt.Errorf("validation enabled but validation_folder is empty")
	}
	return nil
}

// Channels returns the channel count implied by the mode.
func (c Config) Channels() int {
	if c.Mode == "Greyscale" {
		return 1
	}
	return 3
}
