package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/shades/internal/placement"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
	// A single face, like the MediaPipe face mesh default
	if cfg.MaxFaces != 1 {
		t.Errorf("default MaxFaces = %d, want 1", cfg.MaxFaces)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shades.json")
	body := `{"max_faces": 2, "ratios": {"width": 2.0, "height": 0.5}, "rounding": "truncate"}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxFaces != 2 || cfg.Rounding != "truncate" {
		t.Errorf("Load() did not apply file values: %+v", cfg)
	}
	if cfg.Ratios.Width != 2.0 || cfg.Ratios.Height != 0.5 {
		t.Errorf("Ratios = %+v", cfg.Ratios)
	}
	// Offsets missing from the file keep their defaults
	if cfg.Ratios.OffsetX != 0.25 || cfg.Ratios.OffsetY != 0.5 {
		t.Errorf("Offsets = %v,%v, want 0.25,0.5", cfg.Ratios.OffsetX, cfg.Ratios.OffsetY)
	}
	if cfg.MinDetection != 0.5 || cfg.Interpolation != "bilinear" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("malformed file should fall back to defaults, got %+v", cfg)
	}
}

func TestNormalizeClamps(t *testing.T) {
	cfg := &Config{
		MinDetection: 1.5,
		MinTracking:  -1,
		MaxFaces:     0,
		Ratios:       placement.Ratios{Width: -1, Height: 0, OffsetX: -0.1, OffsetY: 0},
	}
	cfg.Normalize()
	def := DefaultConfig()
	if cfg.MinDetection != def.MinDetection || cfg.MinTracking != def.MinTracking || cfg.MaxFaces != def.MaxFaces {
		t.Errorf("detector values not clamped: %+v", cfg)
	}
	want := placement.Ratios{Width: 1.5, Height: 0.4, OffsetX: 0.25, OffsetY: 0}
	if cfg.Ratios != want {
		t.Errorf("Ratios = %+v, want %+v", cfg.Ratios, want)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	cfg := DefaultConfig()
	cfg.MaxFaces = 7
	cfg.Interpolation = "catmull-rom"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}
