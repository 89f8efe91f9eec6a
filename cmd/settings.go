package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/shades/internal/config"
	"github.com/andresmejia3/shades/internal/filter"
	"github.com/andresmejia3/shades/internal/overlay"
	"github.com/andresmejia3/shades/internal/placement"
	"github.com/andresmejia3/shades/internal/raster"
	"github.com/andresmejia3/shades/internal/types"
	"github.com/andresmejia3/shades/internal/worker"
	"github.com/spf13/pflag"
)

// addDetectorFlags registers the flags that override the config file.
func addDetectorFlags(f *pflag.FlagSet, opts *Options) {
	def := config.DefaultConfig()
	f.Float64Var(&opts.MinDetection, "min-detection", def.MinDetection, "Minimum face detection confidence (0-1]")
	f.Float64Var(&opts.MinTracking, "min-tracking", def.MinTracking, "Minimum landmark tracking confidence (0-1]")
	f.IntVar(&opts.MaxFaces, "max-faces", def.MaxFaces, "Maximum number of faces to track per frame")
	f.StringVar(&opts.Interpolation, "interp", def.Interpolation, "Sprite resampling: nearest, approx-bilinear, bilinear, catmull-rom")
	f.StringVar(&opts.Rounding, "rounding", def.Rounding, "Blend rounding: nearest, truncate")
}

// resolveConfig starts from the loaded config file and applies every
// detector flag the user set explicitly.
func resolveConfig(flags *pflag.FlagSet, opts *Options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if AppConfig != nil {
		c := *AppConfig
		cfg = &c
	}

	if flags.Changed("min-detection") {
		if opts.MinDetection <= 0 || opts.MinDetection > 1.0 {
			return nil, fmt.Errorf("min-detection must be between 0.0 and 1.0, got %f", opts.MinDetection)
		}
		cfg.MinDetection = opts.MinDetection
	}
	if flags.Changed("min-tracking") {
		if opts.MinTracking <= 0 || opts.MinTracking > 1.0 {
			return nil, fmt.Errorf("min-tracking must be between 0.0 and 1.0, got %f", opts.MinTracking)
		}
		cfg.MinTracking = opts.MinTracking
	}
	if flags.Changed("max-faces") {
		if opts.MaxFaces < 1 {
			return nil, fmt.Errorf("max-faces must be >= 1, got %d", opts.MaxFaces)
		}
		cfg.MaxFaces = opts.MaxFaces
	}
	if flags.Changed("interp") {
		cfg.Interpolation = opts.Interpolation
	}
	if flags.Changed("rounding") {
		cfg.Rounding = opts.Rounding
	}

	// Catch typos here rather than after the engines are warm
	if _, err := raster.Interpolator(cfg.Interpolation); err != nil {
		return nil, err
	}
	if _, err := overlay.ParseRounding(cfg.Rounding); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// newFilter loads the sprite and configures placement and compositing from cfg.
func newFilter(spritePath string, cfg *config.Config) (*filter.Filter, error) {
	sprite, err := raster.Load(spritePath, raster.BGRA)
	if err != nil {
		return nil, err
	}
	flt, err := filter.New(sprite)
	if err != nil {
		return nil, err
	}
	interp, err := raster.Interpolator(cfg.Interpolation)
	if err != nil {
		return nil, err
	}
	rounding, err := overlay.ParseRounding(cfg.Rounding)
	if err != nil {
		return nil, err
	}
	flt.Ratios = cfg.Ratios
	flt.Compositor = overlay.Compositor{Interp: interp, Rounding: rounding}
	return flt, nil
}

// detectorFactory returns a constructor for per-engine detectors. A replay
// file is loaded once and shared; otherwise every engine gets its own sidecar.
func detectorFactory(opts Options, cfg *config.Config, width, height int, timeout time.Duration) (func(ctx context.Context, id int) (worker.Detector, error), error) {
	if opts.ReplayPath != "" {
		replay, err := worker.LoadReplay(opts.ReplayPath, opts.LoopReplay)
		if err != nil {
			return nil, err
		}
		return func(context.Context, int) (worker.Detector, error) { return replay, nil }, nil
	}

	wcfg := worker.Config{
		Python:       pythonBin,
		Script:       workerScript,
		Width:        width,
		Height:       height,
		MinDetection: cfg.MinDetection,
		MinTracking:  cfg.MinTracking,
		MaxFaces:     cfg.MaxFaces,
		ReadTimeout:  timeout,
	}
	return func(ctx context.Context, id int) (worker.Detector, error) {
		return worker.NewPythonWorker(ctx, id, wcfg)
	}, nil
}

// parseSize parses "WIDTHxHEIGHT".
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q, expected WIDTHxHEIGHT", s)
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q, expected WIDTHxHEIGHT", s)
	}
	return w, h, nil
}

// parseFloats splits a comma-separated list of exactly n numbers.
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma-separated values, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

// parsePoint parses a normalized landmark "x,y".
func parsePoint(s string) (types.Landmark, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return types.Landmark{}, err
	}
	return types.Landmark{X: v[0], Y: v[1]}, nil
}

// parseEyes parses "lx,ly,rx,ry" into the two outer eye corners.
func parseEyes(s string) (types.Landmark, types.Landmark, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return types.Landmark{}, types.Landmark{}, err
	}
	return types.Landmark{X: v[0], Y: v[1]}, types.Landmark{X: v[2], Y: v[3]}, nil
}

// parseBox parses a pixel box "x,y,w,h".
func parseBox(s string) (placement.Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return placement.Box{}, fmt.Errorf("invalid box %q, expected x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return placement.Box{}, fmt.Errorf("invalid box %q: %w", s, err)
		}
		v[i] = n
	}
	return placement.Box{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
