// Package config holds the optional export configuration. All fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Defaults for fields not present in the config file.
const (
	DefaultBeamModelPosition = 500.0 // mm upstream of isocenter
	DefaultNStat             = 1000000
	DefaultFormat            = "topas"
	DefaultSnoutPosition     = 421.0 // mm
)

// ExportConfig is the root export configuration.
type ExportConfig struct {
	// BeamModelPosition is the reference plane distance upstream of the
	// isocenter [mm] at which the beam model is defined.
	BeamModelPosition *float64 `json:"beam_model_position,omitempty"`

	// NStat is the requested Monte Carlo history count.
	NStat *int `json:"nstat,omitempty"`

	// Format selects the output dialect: "topas" or "racehorse".
	Format *string `json:"format,omitempty"`

	// Nominal emits planned energies instead of measured ones.
	Nominal *bool `json:"nominal,omitempty"`

	// Scaling is a plan-wide MU rescaling multiplier.
	Scaling *float64 `json:"scaling,omitempty"`

	// SnoutPosition overrides the snout position [mm] when the source
	// record does not carry one.
	SnoutPosition *float64 `json:"snout_position,omitempty"`

	// SPRToMaterialPath points to the stopping-power-ratio conversion
	// table included in study exports.
	SPRToMaterialPath *string `json:"spr_to_material_path,omitempty"`
}

// Empty returns an ExportConfig with all fields unset.
func Empty() *ExportConfig { return &ExportConfig{} }

// Load reads an ExportConfig from a JSON file. Fields omitted from the
// file keep their defaults, so partial configs are safe.
func Load(path string) (*ExportConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges for all set fields.
func (c *ExportConfig) Validate() error {
	if c.BeamModelPosition != nil && *c.BeamModelPosition <= 0 {
		return fmt.Errorf("beam_model_position must be positive, got %g", *c.BeamModelPosition)
	}
	if c.NStat != nil && *c.NStat < 1 {
		return fmt.Errorf("nstat must be at least 1, got %d", *c.NStat)
	}
	if c.Format != nil && *c.Format != "topas" && *c.Format != "racehorse" {
		return fmt.Errorf("format must be \"topas\" or \"racehorse\", got %q", *c.Format)
	}
	if c.Scaling != nil && *c.Scaling <= 0 {
		return fmt.Errorf("scaling must be positive, got %g", *c.Scaling)
	}
	return nil
}

// GetBeamModelPosition returns the beam model plane distance [mm].
func (c *ExportConfig) GetBeamModelPosition() float64 {
	if c.BeamModelPosition != nil {
		return *c.BeamModelPosition
	}
	return DefaultBeamModelPosition
}

// GetNStat returns the requested history count.
func (c *ExportConfig) GetNStat() int {
	if c.NStat != nil {
		return *c.NStat
	}
	return DefaultNStat
}

// GetFormat returns the output format.
func (c *ExportConfig) GetFormat() string {
	if c.Format != nil {
		return *c.Format
	}
	return DefaultFormat
}

// GetNominal reports whether planned energies are emitted.
func (c *ExportConfig) GetNominal() bool {
	if c.Nominal != nil {
		return *c.Nominal
	}
	return true
}

// GetScaling returns the plan-wide MU multiplier.
func (c *ExportConfig) GetScaling() float64 {
	if c.Scaling != nil {
		return *c.Scaling
	}
	return 1.0
}

// GetSnoutPosition returns the snout position fallback [mm].
func (c *ExportConfig) GetSnoutPosition() float64 {
	if c.SnoutPosition != nil {
		return *c.SnoutPosition
	}
	return DefaultSnoutPosition
}

// GetSPRToMaterialPath returns the SPR table path, empty when unset.
func (c *ExportConfig) GetSPRToMaterialPath() string {
	if c.SPRToMaterialPath != nil {
		return *c.SPRToMaterialPath
	}
	return ""
}
