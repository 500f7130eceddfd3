// Package config loads tool configuration from YAML, with defaults
// that work without any file at all.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Style configures the overlay boxes.
type Style struct {
	// Color is the stroke color, RGB components in [0, 1].
	Color [3]float64 `yaml:"color"`
	// Width is the vector border width in page units.
	Width float64 `yaml:"width"`
	// RasterWidth is the bitmap outline thickness in pixels.
	RasterWidth int `yaml:"raster_width"`
}

// Config is the full tool configuration.
type Config struct {
	// OutputSuffix goes between the input base name and its extension.
	OutputSuffix string `yaml:"output_suffix"`
	// CaseSensitive disables case folding during matching.
	CaseSensitive bool `yaml:"case_sensitive"`
	// MaxMatchesPerPage caps occurrences per page; 0 keeps the default.
	MaxMatchesPerPage int `yaml:"max_matches_per_page"`
	// Workers bounds concurrent files; 0 means one per CPU.
	Workers int `yaml:"workers"`
	// Converter is the office converter binary to probe.
	Converter string `yaml:"converter"`
	// Log selects the backend: production, development or off.
	Log string `yaml:"log"`

	Style Style `yaml:"style"`
}

// Default is the configuration used when no file is given.
func Default() Config {
	return Config{
		OutputSuffix: ".marked",
		Log:          "production",
		Style: Style{
			Color:       [3]float64{1, 0, 0},
			Width:       1,
			RasterWidth: 3,
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected so a
// typo does not silently fall back.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot work with.
func (c *Config) Validate() error {
	for i, v := range c.Style.Color {
		if v < 0 || v > 1 {
			return fmt.Errorf("style.color[%d] = %g, want [0, 1]", i, v)
		}
	}
	if c.Style.Width < 0 {
		return fmt.Errorf("style.width = %g, want >= 0", c.Style.Width)
	}
	if c.Style.RasterWidth < 0 {
		return fmt.Errorf("style.raster_width = %d, want >= 0", c.Style.RasterWidth)
	}
	if c.MaxMatchesPerPage < 0 {
		return fmt.Errorf("max_matches_per_page = %d, want >= 0", c.MaxMatchesPerPage)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers = %d, want >= 0", c.Workers)
	}
	switch c.Log {
	case "production", "development", "off":
	default:
		return fmt.Errorf("log = %q, want production, development or off", c.Log)
	}
	return nil
}
