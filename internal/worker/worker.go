package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/andresmejia3/shades/internal/raster"
	"github.com/andresmejia3/shades/internal/types"
	"github.com/andresmejia3/shades/internal/utils" // Using the SafeCommand wrapper
)

// ErrRemote marks a failure reported by the Python side through the protocol.
// The process is still healthy; only that frame failed.
var ErrRemote = errors.New("python worker error")

// Protocol limits. Anything above is treated as a corrupt stream.
const (
	maxFaces      = 64
	maxLandmarks  = 1024
	maxMessageLen = 64 * 1024

	// Largest reply body either status can produce, plus header slack.
	maxReplyLen = maxFaces*(4+maxLandmarks*12) + maxMessageLen + 16
)

// Detector is the landmark source. Implementations return zero or more
// landmark sets per frame.
type Detector interface {
	Detect(ctx context.Context, frame *raster.Raster) ([]types.FaceLandmarks, error)
	Close()
}

// Config configures a face-mesh worker process.
type Config struct {
	Python       string // interpreter, defaults to python3
	Script       string // path to face_mesh.py
	Width        int    // raw frame width
	Height       int    // raw frame height
	MinDetection float64
	MinTracking  float64
	MaxFaces     int
	ReadTimeout  time.Duration // 0 disables the timeout
}

// PythonWorker drives a MediaPipe face-mesh sidecar.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	width, height int
	timeout       time.Duration
	closeOnce     sync.Once
}

// NewPythonWorker starts the sidecar. Frames are sent on stdin; replies come
// back on a dedicated pipe so library noise on stdout cannot corrupt them.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("worker %d: invalid frame size %dx%d", id, cfg.Width, cfg.Height)
	}
	python := cfg.Python
	if python == "" {
		python = "python3"
	}

	// 1. Initialize the SafeCommand
	py := utils.NewSafeCommand(ctx, python, "-u", cfg.Script,
		"--width", strconv.Itoa(cfg.Width),
		"--height", strconv.Itoa(cfg.Height),
		"--min-detection", strconv.FormatFloat(cfg.MinDetection, 'f', -1, 64),
		"--min-tracking", strconv.FormatFloat(cfg.MinTracking, 'f', -1, 64),
		"--max-faces", strconv.Itoa(cfg.MaxFaces),
	)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		width:    cfg.Width,
		height:   cfg.Height,
		timeout:  cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed message and reads one back.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if w.timeout <= 0 {
		return w.readMessage()
	}

	type reply struct {
		body []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		body, err := w.readMessage()
		done <- reply{body, err}
	}()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.body, r.err
	case <-timer.C:
		// A stuck worker cannot be resynchronised; kill it so the reader unblocks.
		w.kill()
		return nil, fmt.Errorf("worker %d timed out after %s", w.ID, w.timeout)
	}
}

func (w *PythonWorker) readMessage() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch an import crash on the Python side
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxReplyLen {
		return nil, fmt.Errorf("worker %d: reply of %d bytes exceeds %d", w.ID, respLen, maxReplyLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Detect sends a raw BGR frame and decodes the landmark sets.
func (w *PythonWorker) Detect(ctx context.Context, frame *raster.Raster) ([]types.FaceLandmarks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Channels != raster.BGR || frame.Width != w.width || frame.Height != w.height {
		return nil, fmt.Errorf("%w: worker %d expects %dx%dx3 frames, got %dx%dx%d",
			raster.ErrShape, w.ID, w.width, w.height, frame.Width, frame.Height, frame.Channels)
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	resp, err := w.Communicate(frame.Pix[:frame.Width*frame.Height*frame.Channels])
	if err != nil {
		return nil, err
	}
	return ParseResponse(resp)
}

// ParseResponse decodes a reply body.
//
//	OK:    [0][uint32 faces] then per face [uint32 n] and n x (float32 x, y, z)
//	Error: [1][uint32 len][message]
func ParseResponse(resp []byte) ([]types.FaceLandmarks, error) {
	r := bytes.NewReader(resp)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response: %w", err)
	}

	switch status {
	case 0:
	case 1:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		if msgLen > maxMessageLen {
			return nil, fmt.Errorf("malformed worker error: message length %d", msgLen)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrRemote, msg)
	default:
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var numFaces uint32
	if err := binary.Read(r, binary.BigEndian, &numFaces); err != nil {
		return nil, fmt.Errorf("malformed face count: %w", err)
	}
	if numFaces > maxFaces {
		return nil, fmt.Errorf("worker reported %d faces (limit %d)", numFaces, maxFaces)
	}

	faces := make([]types.FaceLandmarks, 0, numFaces)
	for i := uint32(0); i < numFaces; i++ {
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("face %d: malformed landmark count: %w", i, err)
		}
		if n > maxLandmarks {
			return nil, fmt.Errorf("face %d: %d landmarks (limit %d)", i, n, maxLandmarks)
		}
		pts := make([]float32, n*3)
		if err := binary.Read(r, binary.BigEndian, pts); err != nil {
			return nil, fmt.Errorf("face %d: truncated landmarks: %w", i, err)
		}
		face := make(types.FaceLandmarks, n)
		for j := range face {
			face[j] = types.Landmark{
				X: float64(pts[j*3]),
				Y: float64(pts[j*3+1]),
				Z: float64(pts[j*3+2]),
			}
			if math.IsNaN(face[j].X) || math.IsNaN(face[j].Y) {
				return nil, fmt.Errorf("face %d: landmark %d is NaN", i, j)
			}
		}
		faces = append(faces, face)
	}
	return faces, nil
}

func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
	if w.DataPipe != nil {
		w.DataPipe.Close()
	}
}

// Close shuts the worker down and waits for the process to exit.
func (w *PythonWorker) Close() {
	w.closeOnce.Do(func() {
		w.Stdin.Close()
		w.DataPipe.Close()
		if w.Cmd != nil {
			w.Cmd.Wait()
		}
	})
}
