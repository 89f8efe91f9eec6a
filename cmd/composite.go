package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/shades/internal/config"
	"github.com/andresmejia3/shades/internal/filter"
	"github.com/andresmejia3/shades/internal/raster"
	"github.com/andresmejia3/shades/internal/types"
	"github.com/andresmejia3/shades/internal/utils"
	"github.com/andresmejia3/shades/internal/worker"
	"github.com/spf13/cobra"
)

var (
	compositeOpts Options
	compositeBox  string
	compositeEyes string
)

var compositeCmd = &cobra.Command{
	Use:   "composite",
	Short: "Overlay eyewear on a still image",
	Long: `Overlay the sprite on a single image. The placement comes from, in order of
preference: an explicit pixel box (--box), two normalized eye corners (--eyes),
a landmark file (--landmarks, first frame), or the face mesh detector.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateCompositeFlags(&compositeOpts); err != nil {
			return err
		}
		cfg, err := resolveConfig(cmd.Flags(), &compositeOpts)
		if err != nil {
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
		st, err := runComposite(cmd.Context(), compositeOpts, cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote %s (faces: %d, drawn: %d, skipped: %d)\n",
			compositeOpts.OutputPath, st.Faces, st.Drawn, st.Skipped)
		return nil
	},
}

func init() {
	f := compositeCmd.Flags()
	f.StringVarP(&compositeOpts.InputPath, "image", "i", "", "Path to input image")
	f.StringVarP(&compositeOpts.SpritePath, "sprite", "s", "", "Eyewear sprite with an alpha channel")
	f.StringVarP(&compositeOpts.OutputPath, "output", "o", "composited.png", "Path to output image (.png or .jpg)")
	f.StringVar(&compositeBox, "box", "", "Pixel box x,y,w,h to draw the sprite into")
	f.StringVar(&compositeEyes, "eyes", "", "Normalized outer eye corners lx,ly,rx,ry")
	f.StringVar(&compositeOpts.ReplayPath, "landmarks", "", "Landmark file; faces of its first frame are used")
	f.StringVar(&compositeOpts.WorkerTimeout, "worker-timeout", "60s", "Timeout for the detector to process the image")
	addDetectorFlags(f, &compositeOpts)

	compositeCmd.MarkFlagRequired("image")
	compositeCmd.MarkFlagRequired("sprite")
	rootCmd.AddCommand(compositeCmd)
}

// runComposite loads the image, places the sprite and writes the result.
func runComposite(ctx context.Context, opts Options, cfg *config.Config) (filter.Stats, error) {
	flt, err := newFilter(opts.SpritePath, cfg)
	if err != nil {
		utils.ShowError("Failed to load sprite", err, nil)
		return filter.Stats{}, err
	}

	img, err := raster.Load(opts.InputPath, raster.BGR)
	if err != nil {
		utils.ShowError("Failed to load image", err, nil)
		return filter.Stats{}, err
	}

	var st filter.Stats
	if compositeBox != "" {
		box, _ := parseBox(compositeBox) // validated
		drawn, err := flt.Compositor.CompositeResized(img, flt.Sprite, box)
		if err != nil {
			return st, err
		}
		st = filter.Stats{Frames: 1, WithFaces: 1, Faces: 1}
		if drawn {
			st.Drawn = 1
		} else {
			st.Skipped = 1
		}
	} else {
		det, err := stillDetector(ctx, opts, cfg, img)
		if err != nil {
			utils.ShowError("Worker startup failed", err, nil)
			return st, err
		}
		defer det.Close()

		st, err = flt.Process(ctx, det, img)
		if err != nil {
			if pw, ok := det.(*worker.PythonWorker); ok {
				pw.Close()
				utils.ShowError("Python crashed", err, pw.Cmd)
			} else {
				utils.ShowError("Detection failed", err, nil)
			}
			return st, err
		}
	}

	if err := raster.Save(opts.OutputPath, img); err != nil {
		utils.ShowError("Failed to write output image", err, nil)
		return st, err
	}
	return st, nil
}

// stillDetector picks the landmark source for a single image.
func stillDetector(ctx context.Context, opts Options, cfg *config.Config, img *raster.Raster) (worker.Detector, error) {
	if compositeEyes != "" {
		left, right, _ := parseEyes(compositeEyes) // validated
		return worker.StaticDetector{Faces: []types.FaceLandmarks{worker.EyesOnly(left, right)}}, nil
	}
	timeout, _ := time.ParseDuration(opts.WorkerTimeout)
	newDetector, err := detectorFactory(opts, cfg, img.Width, img.Height, timeout)
	if err != nil {
		return nil, err
	}
	return newDetector(ctx, 0)
}

func validateCompositeFlags(opts *Options) error {
	for _, p := range []struct{ name, path string }{
		{"Input image", opts.InputPath},
		{"Sprite file", opts.SpritePath},
	} {
		info, err := os.Stat(p.path)
		if err != nil {
			utils.ShowError(p.name+" is not readable", err, nil)
			return err
		}
		if info.IsDir() {
			err := fmt.Errorf("is a directory")
			utils.ShowError(p.name+" path is a directory", err, nil)
			return err
		}
	}

	inAbs, _ := filepath.Abs(opts.InputPath)
	outAbs, _ := filepath.Abs(opts.OutputPath)
	if inAbs == outAbs {
		err := fmt.Errorf("input and output paths must be different")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	sources := 0
	for _, s := range []string{compositeBox, compositeEyes, opts.ReplayPath} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		err := fmt.Errorf("--box, --eyes and --landmarks are mutually exclusive")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	if compositeBox != "" {
		if _, err := parseBox(compositeBox); err != nil {
			utils.ShowError("Invalid --box", err, nil)
			return err
		}
	}
	if compositeEyes != "" {
		if _, _, err := parseEyes(compositeEyes); err != nil {
			utils.ShowError("Invalid --eyes", err, nil)
			return err
		}
	}

	if _, err := time.ParseDuration(opts.WorkerTimeout); err != nil {
		utils.ShowError("Invalid worker-timeout format (use '30s', '1m')", err, nil)
		return err
	}
	return nil
}
