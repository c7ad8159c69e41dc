package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// RecorderConfig represents the binning and recording parameters for one
// polar recorder instance. All fields are pointers so that a partial JSON
// file only overrides what it names; the Get* methods supply defaults for
// the rest.
type RecorderConfig struct {
	// Binning ranges and steps
	TWAMin  *float64 `json:"twa_min,omitempty"`
	TWAMax  *float64 `json:"twa_max,omitempty"`
	TWAStep *float64 `json:"twa_step,omitempty"`
	TWSMin  *float64 `json:"tws_min,omitempty"`
	TWSMax  *float64 `json:"tws_max,omitempty"`
	TWSStep *float64 `json:"tws_step,omitempty"`

	// Behaviour flags
	FoldTo180   *bool `json:"fold_to_180,omitempty"`
	Interpolate *bool `json:"interpolate,omitempty"`

	// Thresholds. Declared alongside the ranges; enforcement happens through
	// the range checks during ingestion.
	MinTWS *float64 `json:"min_tws,omitempty"`
	MinBSP *float64 `json:"min_bsp,omitempty"`

	// Lull guard smoothing
	TWSEMAAlpha    *float64 `json:"tws_ema_alpha,omitempty"`
	LullGuardDelta *float64 `json:"lull_guard_delta,omitempty"`

	// Instrument gateway cooperation
	GatewayURL      *string  `json:"gateway_url,omitempty"`
	FastPollSeconds *float64 `json:"fast_poll_seconds,omitempty"`

	// DataDir constrains CSV export/import paths.
	DataDir *string `json:"data_dir,omitempty"`
}

// EmptyRecorderConfig returns a RecorderConfig with all fields unset.
func EmptyRecorderConfig() *RecorderConfig {
	return &RecorderConfig{}
}

// LoadRecorderConfig loads a RecorderConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadRecorderConfig(path string) (*RecorderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRecorderConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *RecorderConfig) Validate() error {
	if c.GetTWAStep() <= 0 {
		return fmt.Errorf("twa_step must be positive, got %f", c.GetTWAStep())
	}
	if c.GetTWSStep() <= 0 {
		return fmt.Errorf("tws_step must be positive, got %f", c.GetTWSStep())
	}
	if c.GetTWAMax() <= c.GetTWAMin() {
		return fmt.Errorf("twa_max (%f) must exceed twa_min (%f)", c.GetTWAMax(), c.GetTWAMin())
	}
	if c.GetTWSMax() <= c.GetTWSMin() {
		return fmt.Errorf("tws_max (%f) must exceed tws_min (%f)", c.GetTWSMax(), c.GetTWSMin())
	}
	if a := c.GetTWSEMAAlpha(); a < 0 || a > 1 {
		return fmt.Errorf("tws_ema_alpha must be between 0 and 1, got %f", a)
	}
	if d := c.GetLullGuardDelta(); d < 0 {
		return fmt.Errorf("lull_guard_delta must be non-negative, got %f", d)
	}
	if s := c.GetFastPollSeconds(); s <= 0 {
		return fmt.Errorf("fast_poll_seconds must be positive, got %f", s)
	}
	return nil
}

// GetTWAMin returns the twa_min value or the default.
func (c *RecorderConfig) GetTWAMin() float64 {
	if c.TWAMin == nil {
		return 0
	}
	return *c.TWAMin
}

// GetTWAMax returns the twa_max value or the default.
func (c *RecorderConfig) GetTWAMax() float64 {
	if c.TWAMax == nil {
		return 180
	}
	return *c.TWAMax
}

// GetTWAStep returns the twa_step value or the default.
func (c *RecorderConfig) GetTWAStep() float64 {
	if c.TWAStep == nil {
		return 10
	}
	return *c.TWAStep
}

// GetTWSMin returns the tws_min value or the default.
func (c *RecorderConfig) GetTWSMin() float64 {
	if c.TWSMin == nil {
		return 0
	}
	return *c.TWSMin
}

// GetTWSMax returns the tws_max value or the default.
func (c *RecorderConfig) GetTWSMax() float64 {
	if c.TWSMax == nil {
		return 30
	}
	return *c.TWSMax
}

// GetTWSStep returns the tws_step value or the default.
func (c *RecorderConfig) GetTWSStep() float64 {
	if c.TWSStep == nil {
		return 2
	}
	return *c.TWSStep
}

// GetFoldTo180 returns the fold_to_180 value or the default.
func (c *RecorderConfig) GetFoldTo180() bool {
	if c.FoldTo180 == nil {
		return true
	}
	return *c.FoldTo180
}

// GetInterpolate returns the interpolate value or the default.
func (c *RecorderConfig) GetInterpolate() bool {
	if c.Interpolate == nil {
		return true
	}
	return *c.Interpolate
}

// GetMinTWS returns the min_tws value or the default.
func (c *RecorderConfig) GetMinTWS() float64 {
	if c.MinTWS == nil {
		return 2.0
	}
	return *c.MinTWS
}

// GetMinBSP returns the min_bsp value or the default.
func (c *RecorderConfig) GetMinBSP() float64 {
	if c.MinBSP == nil {
		return 0.5
	}
	return *c.MinBSP
}

// GetTWSEMAAlpha returns the tws_ema_alpha value or the default
// (20% new sample, 80% history).
func (c *RecorderConfig) GetTWSEMAAlpha() float64 {
	if c.TWSEMAAlpha == nil {
		return 0.20
	}
	return *c.TWSEMAAlpha
}

// GetLullGuardDelta returns the lull_guard_delta value or the default
// (knots below the EMA treated as a lull).
func (c *RecorderConfig) GetLullGuardDelta() float64 {
	if c.LullGuardDelta == nil {
		return 0.5
	}
	return *c.LullGuardDelta
}

// GetGatewayURL returns the gateway_url value or empty when no instrument
// gateway is configured.
func (c *RecorderConfig) GetGatewayURL() string {
	if c.GatewayURL == nil {
		return ""
	}
	return *c.GatewayURL
}

// GetFastPollSeconds returns the fast_poll_seconds value or the default.
func (c *RecorderConfig) GetFastPollSeconds() float64 {
	if c.FastPollSeconds == nil {
		return 0.5
	}
	return *c.FastPollSeconds
}

// GetDataDir returns the data_dir value or the default.
func (c *RecorderConfig) GetDataDir() string {
	if c.DataDir == nil {
		return "data"
	}
	return *c.DataDir
}
