package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andresmejia3/shades/internal/config"
	"github.com/andresmejia3/shades/internal/filter"
	"github.com/andresmejia3/shades/internal/logging"
	"github.com/andresmejia3/shades/internal/raster"
	"github.com/andresmejia3/shades/internal/types"
	"github.com/andresmejia3/shades/internal/utils"
	"github.com/andresmejia3/shades/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const (
	megabyte      = 1024 * 1024
	previewTitle  = "AR Face Filter"
	defaultWidth  = 640
	defaultHeight = 480
)

var runOpts Options

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Overlay eyewear on every face of a camera feed or video file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// Cameras get the selfie view unless the user says otherwise
		if runOpts.Camera != "" && !cmd.Flags().Changed("mirror") {
			runOpts.Mirror = true
		}
		if err := validateRunFlags(&runOpts); err != nil {
			return err
		}
		cfg, err := resolveConfig(cmd.Flags(), &runOpts)
		if err != nil {
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
		return runFilter(cmd.Context(), runOpts, cfg)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.InputPath, "input", "i", "", "Path to input video")
	f.StringVarP(&runOpts.Camera, "camera", "c", "", "Camera device to capture from (e.g. /dev/video0)")
	f.BoolVar(&runOpts.Mirror, "mirror", false, "Flip frames horizontally before detection (default on for cameras)")
	f.StringVarP(&runOpts.SpritePath, "sprite", "s", "", "Eyewear sprite with an alpha channel")
	f.StringVarP(&runOpts.OutputPath, "output", "o", "", "Write the filtered video to this file")
	f.BoolVarP(&runOpts.Preview, "preview", "p", false, "Show the filtered frames in a window; closing it stops the run (default when no --output)")
	f.StringVar(&runOpts.ReplayPath, "landmarks", "", "Replay landmarks from a JSON file instead of running the detector")
	f.BoolVar(&runOpts.LoopReplay, "loop-landmarks", false, "Restart the landmark replay when it runs out")
	f.StringVar(&runOpts.FrameSize, "size", "", "Frame size WIDTHxHEIGHT (default: 640x480 for cameras, native for files)")
	f.Float64Var(&runOpts.FPS, "fps", 30, "Capture frame rate for cameras")

	f.IntVarP(&runOpts.NumEngines, "engines", "e", 1, "Number of parallel detector engines")
	f.StringVar(&runOpts.WorkerTimeout, "worker-timeout", "30s", "Timeout for a worker to process a single frame")
	addDetectorFlags(f, &runOpts)

	runCmd.MarkFlagRequired("sprite")
	rootCmd.AddCommand(runCmd)
}

// frameBufferPool recycles raw frame buffers between the decoder and the consumer.
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

type runResult struct {
	Index int
	Data  []byte
	Faces []types.FaceLandmarks
}

// frameSink is an ffmpeg/ffplay process fed raw bgr24 frames on stdin.
type frameSink struct {
	name string
	cmd  *utils.SafeCommand
	in   io.WriteCloser
}

func startSink(name string, cmd *utils.SafeCommand) (*frameSink, error) {
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pipe: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	return &frameSink{name: name, cmd: cmd, in: in}, nil
}

func (s *frameSink) finish() error {
	s.in.Close()
	return s.cmd.Wait()
}

// resolveSource works out where frames come from and their size and rate.
func resolveSource(ctx context.Context, opts Options) (utils.Source, error) {
	src := utils.Source{Path: opts.InputPath, Mirror: opts.Mirror, FPS: opts.FPS}
	if opts.Camera != "" {
		src.Path = opts.Camera
		src.Camera = true
		src.Width, src.Height = defaultWidth, defaultHeight
	}
	if opts.FrameSize != "" {
		w, h, err := parseSize(opts.FrameSize)
		if err != nil {
			return src, err
		}
		src.Width, src.Height = w, h
	}
	if src.Camera {
		return src, nil
	}

	fps, err := utils.GetVideoFPS(ctx, src.Path)
	if err != nil {
		return src, fmt.Errorf("failed to determine video FPS: %w", err)
	}
	src.FPS = fps
	if src.Width == 0 {
		w, h, err := utils.GetVideoDimensions(ctx, src.Path)
		if err != nil {
			return src, fmt.Errorf("failed to determine video dimensions: %w", err)
		}
		src.Width, src.Height = w, h
	}
	return src, nil
}

func runFilter(ctx context.Context, opts Options, cfg *config.Config) error {
	// Create a cancellable context to ensure all child processes (FFmpeg, Python)
	// are killed immediately if this function returns early (e.g. on error).
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runID := logging.NewRunID()
	logger := logging.For("run").With().Str("run_id", runID).Logger()

	flt, err := newFilter(opts.SpritePath, cfg)
	if err != nil {
		utils.ShowError("Failed to load sprite", err, nil)
		return err
	}

	src, err := resolveSource(ctx, opts)
	if err != nil {
		utils.ShowError("Failed to open input", err, nil)
		return err
	}
	width, height := src.Width, src.Height
	totalFrames := 0
	if !src.Camera {
		totalFrames = utils.GetTotalFrames(ctx, src.Path)
	}
	logger.Info().Str("source", src.Path).Int("width", width).Int("height", height).Float64("fps", src.FPS).Msg("input opened")

	// The source side (decoder and detectors) stops on its own when the preview
	// closes or on Ctrl+C. Sinks outlive it so the output file is finalized.
	srcCtx, stopSource := context.WithCancel(ctx)
	defer stopSource()
	sinkCtx, stopSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSinks()

	workerTimeout, _ := time.ParseDuration(opts.WorkerTimeout)
	newDetector, err := detectorFactory(opts, cfg, width, height, workerTimeout)
	if err != nil {
		utils.ShowError("Failed to load landmarks", err, nil)
		return err
	}

	taskChan := make(chan types.FrameTask, opts.NumEngines)
	resultsChan := make(chan runResult, opts.NumEngines*2)
	errChan := make(chan error, opts.NumEngines+2)

	var wg sync.WaitGroup
	readyChan := make(chan bool, opts.NumEngines)

	for i := 0; i < opts.NumEngines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			det, err := newDetector(srcCtx, id)
			if err != nil {
				utils.ShowError("Worker startup failed", err, nil)
				select {
				case errChan <- err:
				default:
				}
				return
			}
			defer det.Close()
			readyChan <- true

			for task := range taskChan {
				frame, err := raster.Wrap(task.Data, width, height, raster.BGR)
				if err != nil {
					select {
					case errChan <- err:
					default:
					}
					return
				}
				faces, err := det.Detect(srcCtx, frame)
				if errors.Is(err, worker.ErrRemote) {
					// The sidecar is healthy, only this frame failed; pass it through
					logger.Warn().Err(err).Int("frame", task.Index).Msg("detection failed")
					faces, err = nil, nil
				}
				if err != nil {
					if srcCtx.Err() == nil {
						// DRAIN: Wait for process to exit and capture final stderr logs
						det.Close()
						if pw, ok := det.(*worker.PythonWorker); ok {
							utils.ShowError("Python crashed", err, pw.Cmd)
						} else {
							utils.ShowError("Detector failed", err, nil)
						}
					}
					select {
					case errChan <- err:
					default:
					}
					return
				}
				select {
				case resultsChan <- runResult{Index: task.Index, Data: task.Data, Faces: faces}:
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	// Wait for workers to be ready
	fmt.Fprintln(os.Stderr, "🚀 Warming up engines...")
	for i := 0; i < opts.NumEngines; i++ {
		select {
		case <-readyChan:
		case err := <-errChan:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	decoder := utils.NewFFmpegRawDecoder(srcCtx, src)
	decoderOut, err := decoder.StdoutPipe()
	if err != nil {
		utils.ShowError("Failed to create decoder pipe", err, nil)
		return err
	}
	if err := decoder.Start(); err != nil {
		utils.ShowError("Failed to start decoder", err, nil)
		return err
	}

	var encoder, preview *frameSink
	if opts.OutputPath != "" {
		encoder, err = startSink("encoder", utils.NewFFmpegEncoder(sinkCtx, opts.OutputPath, src.FPS, width, height))
		if err != nil {
			utils.ShowError("Failed to start encoder", err, nil)
			return err
		}
	}
	if opts.Preview {
		preview, err = startSink("preview", utils.NewFFplayPreview(sinkCtx, previewTitle, src.FPS, width, height))
		if err != nil {
			utils.ShowError("Failed to open preview window", err, nil)
			return err
		}
	}

	go func() {
		// Closing on every exit path lets the engines drain and finish
		defer close(taskChan)
		frameSize := width * height * utils.BytesPerPixel
		idx := 0
		for {
			buf := frameBufferPool.Get().([]byte)
			if cap(buf) < frameSize {
				buf = make([]byte, frameSize)
			}
			buf = buf[:frameSize]

			_, err := io.ReadFull(decoderOut, buf)
			if err != nil {
				// EOF or unexpected error, stop reading
				frameBufferPool.Put(buf)
				return
			}

			select {
			case taskChan <- types.FrameTask{Index: idx, Data: buf}:
				idx++
			case <-srcCtx.Done():
				frameBufferPool.Put(buf)
				return
			}
		}
	}()

	buffer := make(map[int]runResult)
	nextFrame := 0
	var bar *progressbar.ProgressBar
	if src.Camera {
		bar = progressbar.DefaultSilent(-1)
	} else {
		var barTotal int64 = int64(totalFrames)
		if barTotal <= 0 {
			barTotal = -1 // Trigger spinner mode
		}
		bar = progressbar.NewOptions64(barTotal,
			progressbar.OptionSetDescription("Filtering"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var stats filter.Stats
	start := time.Now()
	stopping := false
	done := ctx.Done()

	for {
		select {
		case <-done:
			// Ctrl+C: stop reading but keep the sinks so the output is finalized
			done = nil
			stopping = true
			stopSource()
			logger.Info().Msg("interrupted, finishing output")
		case err := <-errChan:
			if stopping {
				continue
			}
			return err
		case res, ok := <-resultsChan:
			if !ok {
				goto Flush
			}
			if stopping {
				frameBufferPool.Put(res.Data)
				continue
			}
			buffer[res.Index] = res

			for !stopping {
				frame, ok := buffer[nextFrame]
				if !ok {
					break
				}
				delete(buffer, nextFrame)

				img, err := raster.Wrap(frame.Data, width, height, raster.BGR)
				if err != nil {
					return err
				}
				st, err := flt.Apply(img, frame.Faces)
				if err != nil {
					utils.ShowError("Compositing failed", err, nil)
					return err
				}
				stats.Add(st)

				if encoder != nil {
					if _, err := encoder.in.Write(img.Pix); err != nil {
						utils.ShowError("Encoder write failed", err, encoder.cmd)
						return err
					}
				}
				if preview != nil {
					if _, err := preview.in.Write(img.Pix); err != nil {
						// ffplay exits when its window is closed
						logger.Info().Msg("preview window closed")
						stopping = true
						stopSource()
					}
				}

				// Release buffer back to pool
				frameBufferPool.Put(frame.Data)

				bar.Add(1)
				nextFrame++
			}
		}
	}

Flush:
	elapsed := time.Since(start)
	bar.Finish()
	for _, leftover := range buffer {
		frameBufferPool.Put(leftover.Data)
	}

	if preview != nil {
		if err := preview.finish(); err != nil {
			logger.Debug().Err(err).Msg("preview exited")
		}
	}
	if encoder != nil {
		if err := encoder.finish(); err != nil {
			utils.ShowError("Encoder process failed", err, encoder.cmd)
			return err
		}
	}
	if err := decoder.Wait(); err != nil && !stopping {
		utils.ShowError("Decoder process failed", err, decoder)
		return err
	}

	logger.Info().Int("frames", stats.Frames).Int("drawn", stats.Drawn).Int("skipped", stats.Skipped).Dur("elapsed", elapsed).Msg("run finished")
	printRunSummary(os.Stderr, stats, elapsed)
	return nil
}

func printRunSummary(w io.Writer, st filter.Stats, elapsed time.Duration) {
	fps := 0.0
	if elapsed > 0 {
		fps = float64(st.Frames) / elapsed.Seconds()
	}
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 RUN SUMMARY\n")
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "🎞️  Frames Processed:   %d (%.1f fps)\n", st.Frames, fps)
	fmt.Fprintf(w, "👤 Frames With Faces:  %d\n", st.WithFaces)
	fmt.Fprintf(w, "🕶️  Overlays Drawn:     %d\n", st.Drawn)
	fmt.Fprintf(w, "✂️  Overlays Skipped:   %d\n", st.Skipped)
	if st.Partial > 0 {
		fmt.Fprintf(w, "❔ Incomplete Faces:   %d\n", st.Partial)
	}
	fmt.Fprintf(w, "⏱️  Elapsed:            %s\n", fmtTime(elapsed.Seconds()))
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

func validateRunFlags(opts *Options) error {
	if (opts.InputPath == "") == (opts.Camera == "") {
		err := fmt.Errorf("exactly one of --input or --camera is required")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	if opts.InputPath != "" {
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			if os.IsNotExist(err) {
				utils.ShowError("Input file does not exist", err, nil)
				return err
			}
			utils.ShowError("Unable to access input file", err, nil)
			return err
		}
		if info.IsDir() {
			err := fmt.Errorf("is a directory")
			utils.ShowError("Input path is a directory, expected a video file", err, nil)
			return err
		}
	}

	if _, err := os.Stat(opts.SpritePath); err != nil {
		utils.ShowError("Sprite file is not readable", err, nil)
		return err
	}

	// Without a file to write, the window is the only way to see anything
	if opts.OutputPath == "" {
		opts.Preview = true
	}

	// Safety Check: Prevent overwriting input file which causes corruption
	if opts.InputPath != "" && opts.OutputPath != "" {
		inAbs, _ := filepath.Abs(opts.InputPath)
		outAbs, _ := filepath.Abs(opts.OutputPath)
		if inAbs == outAbs {
			err := fmt.Errorf("input and output paths must be different to prevent file corruption")
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
	}

	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}

	if opts.ReplayPath != "" {
		if _, err := os.Stat(opts.ReplayPath); err != nil {
			utils.ShowError("Landmark file is not readable", err, nil)
			return err
		}
		// Replay hands out frames in call order, which only matches frame order with one engine
		opts.NumEngines = 1
	}

	if opts.FrameSize != "" {
		if _, _, err := parseSize(opts.FrameSize); err != nil {
			utils.ShowError("Invalid --size", err, nil)
			return err
		}
	}

	if opts.FPS <= 0 {
		err := fmt.Errorf("must be > 0, got %f", opts.FPS)
		utils.ShowError("Invalid --fps", err, nil)
		return err
	}

	if _, err := time.ParseDuration(opts.WorkerTimeout); err != nil {
		utils.ShowError("Invalid worker-timeout format (use '30s', '1m')", err, nil)
		return err
	}

	return nil
}
