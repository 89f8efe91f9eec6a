package config

import (
	"os"

	"github.com/andresmejia3/shades/internal/placement"
	"github.com/bytedance/sonic"
)

// Config holds the tunables of the filter pipeline.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	// Detector parameters
	MinDetection float64 `json:"min_detection"`
	MinTracking  float64 `json:"min_tracking"`
	MaxFaces     int     `json:"max_faces"`

	// Placement model
	Ratios placement.Ratios `json:"ratios"`

	// Compositing
	Interpolation string `json:"interpolation"`
	Rounding      string `json:"rounding"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		MinDetection:  0.5,
		MinTracking:   0.5,
		MaxFaces:      1,
		Ratios:        placement.DefaultRatios(),
		Interpolation: "bilinear",
		Rounding:      "nearest",
	}
}

// Normalize clamps values to safe ranges in place.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.MinDetection <= 0 || c.MinDetection > 1 {
		c.MinDetection = def.MinDetection
	}
	if c.MinTracking <= 0 || c.MinTracking > 1 {
		c.MinTracking = def.MinTracking
	}
	if c.MaxFaces < 1 {
		c.MaxFaces = def.MaxFaces
	}
	if c.Ratios.Width <= 0 {
		c.Ratios.Width = def.Ratios.Width
	}
	if c.Ratios.Height <= 0 {
		c.Ratios.Height = def.Ratios.Height
	}
	// Offsets of zero are legitimate (sprite anchored on the eye point).
	if c.Ratios.OffsetX < 0 {
		c.Ratios.OffsetX = def.Ratios.OffsetX
	}
	if c.Ratios.OffsetY < 0 {
		c.Ratios.OffsetY = def.Ratios.OffsetY
	}
	if c.Interpolation == "" {
		c.Interpolation = def.Interpolation
	}
	if c.Rounding == "" {
		c.Rounding = def.Rounding
	}
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On JSON error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := sonic.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), err
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	c.Normalize()
	data, err := sonic.ConfigStd.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
