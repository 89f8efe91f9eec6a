package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/shades/internal/config"
	"github.com/andresmejia3/shades/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Options holds shared configuration for the run and composite commands
type Options struct {
	InputPath     string
	Camera        string
	Mirror        bool
	SpritePath    string
	OutputPath    string
	Preview       bool
	ReplayPath    string
	LoopReplay    bool
	NumEngines    int
	WorkerTimeout string
	FrameSize     string
	FPS           float64
	MinDetection  float64
	MinTracking   float64
	MaxFaces      int
	Interpolation string
	Rounding      string
}

var (
	// AppConfig is loaded once in PersistentPreRunE and shared by subcommands
	AppConfig *config.Config

	configPath   string
	logLevel     string
	logFile      string
	workerScript string
	pythonBin    string
)

// Version is the application version.
const Version = "0.1.0"

// envFallbacks maps persistent flags to the environment variables consulted
// when the flag is not set on the command line.
var envFallbacks = map[string]string{
	"config":        "SHADES_CONFIG",
	"log-level":     "SHADES_LOG_LEVEL",
	"log-file":      "SHADES_LOG_FILE",
	"worker-script": "SHADES_WORKER_SCRIPT",
	"python":        "SHADES_PYTHON",
}

var rootCmd = &cobra.Command{
	Use:     "shades",
	Short:   "Real-time AR eyewear filter for faces",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal; anything else (bad syntax) is worth reporting
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		if err := applyEnv(cmd.Flags()); err != nil {
			return err
		}

		var files []io.Writer
		if logFile != "" {
			files = append(files, logging.FileWriter(logFile))
		}
		if err := logging.Setup(logLevel, os.Stderr, files...); err != nil {
			return err
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", configPath, err)
		}
		AppConfig = cfg
		log.Debug().Str("config", configPath).Interface("settings", cfg).Msg("configuration loaded")
		return nil
	},
}

// applyEnv copies SHADES_* variables into persistent flags the user did not set.
func applyEnv(flags *pflag.FlagSet) error {
	for name, env := range envFallbacks {
		f := flags.Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := flags.Set(name, v); err != nil {
				return fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "shades.json", "Path to the JSON config file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error, off")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
	rootCmd.PersistentFlags().StringVar(&workerScript, "worker-script", "python/face_mesh.py", "Path to the face mesh sidecar script")
	rootCmd.PersistentFlags().StringVar(&pythonBin, "python", "python3", "Python interpreter used for the sidecar")
}
