package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps Python logs if a SafeCommand is provided.
// Callers still return the error; exiting is left to cmd.Execute.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 SHADES ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nWORKER LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Video Engine (Frame Source & Sinks) ---

// BytesPerPixel of the raw bgr24 frames exchanged with ffmpeg.
const BytesPerPixel = 3

// Source describes where frames come from.
type Source struct {
	Path   string // video file, or camera device when Camera is set
	Camera bool
	Mirror bool // flip horizontally before processing (selfie view)
	Width  int  // output frame size; for cameras also the requested capture size
	Height int
	FPS    float64
}

// CameraFormat returns the ffmpeg input format for cameras on this platform.
func CameraFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "v4l2"
	}
}

// DecoderArgs builds the ffmpeg arguments that turn src into raw bgr24 frames on stdout.
func DecoderArgs(src Source) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if src.Camera {
		args = append(args, "-f", CameraFormat())
		if src.Width > 0 && src.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", src.Width, src.Height))
		}
		if src.FPS > 0 {
			args = append(args, "-framerate", strconv.FormatFloat(src.FPS, 'f', -1, 64))
		}
	}
	args = append(args, "-i", src.Path)

	var filters []string
	if src.Mirror {
		filters = append(filters, "hflip")
	}
	// Pin the output size so the frame length is known before the first read.
	if src.Width > 0 && src.Height > 0 {
		filters = append(filters, fmt.Sprintf("scale=%d:%d", src.Width, src.Height))
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	return append(args, "-f", "rawvideo", "-pix_fmt", "bgr24", "-")
}

// NewFFmpegRawDecoder creates the decoder pipe. Frames are width*height*3 bytes each.
func NewFFmpegRawDecoder(ctx context.Context, src Source) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", DecoderArgs(src)...)
}

// EncoderArgs builds the ffmpeg arguments that read raw bgr24 frames from stdin and write outputPath.
func EncoderArgs(outputPath string, fps float64, width, height int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		outputPath,
	}
}

// NewFFmpegEncoder creates the encoder pipe for file output. It is detached
// from the terminal so an interrupt still lets the file be finalized.
func NewFFmpegEncoder(ctx context.Context, outputPath string, fps float64, width, height int) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", EncoderArgs(outputPath, fps, width, height)...).Detach()
}

// PreviewArgs builds the ffplay arguments for the live preview window.
func PreviewArgs(title string, fps float64, width, height int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-window_title", title,
		"-f", "rawvideo", "-pixel_format", "bgr24",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-fflags", "nobuffer",
		"-autoexit",
		"-i", "-",
	}
}

// NewFFplayPreview creates the display sink. Closing its window ends the process,
// which the writer observes as a broken pipe.
func NewFFplayPreview(ctx context.Context, title string, fps float64, width, height int) *SafeCommand {
	return NewSafeCommand(ctx, "ffplay", PreviewArgs(title, fps, width, height)...).Detach()
}

// --- 3. Probing ---

type ffprobeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		RFrameRate    string `json:"r_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

func probe(ctx context.Context, args ...string) (*ffprobeOutput, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	base := []string{"-v", "error", "-select_streams", "v:0", "-of", "json"}
	out, err := exec.CommandContext(ctx, "ffprobe", append(base, args...)...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	var res ffprobeOutput
	if err := sonic.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return nil, fmt.Errorf("no video stream found")
	}
	return &res, nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25".
func ParseFrameRate(s string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if !found {
		if n <= 0 {
			return 0, fmt.Errorf("invalid frame rate %q", s)
		}
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 || n <= 0 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return n / d, nil
}

// GetVideoFPS returns the average frame rate of the first video stream.
func GetVideoFPS(ctx context.Context, path string) (float64, error) {
	res, err := probe(ctx, "-show_entries", "stream=avg_frame_rate,r_frame_rate", path)
	if err != nil {
		return 0, err
	}
	if fps, err := ParseFrameRate(res.Streams[0].AvgFrameRate); err == nil {
		return fps, nil
	}
	return ParseFrameRate(res.Streams[0].RFrameRate)
}

// GetVideoDimensions returns the width and height of the first video stream.
func GetVideoDimensions(ctx context.Context, path string) (int, int, error) {
	res, err := probe(ctx, "-show_entries", "stream=width,height", path)
	if err != nil {
		return 0, 0, err
	}
	w, h := res.Streams[0].Width, res.Streams[0].Height
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid video dimensions %dx%d", w, h)
	}
	return w, h, nil
}

// GetTotalFrames uses ffprobe to count frames for the progress bar
// It returns 0 if the count fails, allowing the caller to fallback to a spinner.
func GetTotalFrames(ctx context.Context, path string) int {
	// 1. Fast Path: Check Container Metadata
	if res, err := probe(ctx, "-show_entries", "stream=nb_frames", path); err == nil {
		if count, err := strconv.Atoi(res.Streams[0].NbFrames); err == nil && count > 0 {
			return count
		}
	}

	// 2. Slow Path: Count Packets (Fallback)
	res, err := probe(ctx, "-count_packets", "-show_entries", "stream=nb_read_packets", path)
	if err != nil {
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbReadPackets)
	if err != nil {
		return 0
	}
	return count
}

// RequireBinary checks that an external tool is installed.
func RequireBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return nil
}
