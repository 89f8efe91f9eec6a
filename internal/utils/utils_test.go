package utils

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"30", 30, false},
		{"30000/1001", 29.97002997, false},
		{"25/1", 25, false},
		{"0/0", 0, true},
		{"N/A", 0, true},
		{"", 0, true},
		{"-5", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseFrameRate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFrameRate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("ParseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDecoderArgs(t *testing.T) {
	file := DecoderArgs(Source{Path: "in.mp4"})
	if !slices.Contains(file, "in.mp4") || slices.Contains(file, "hflip") {
		t.Errorf("file args = %v", file)
	}
	if got := strings.Join(file[len(file)-5:], " "); got != "-f rawvideo -pix_fmt bgr24 -" {
		t.Errorf("decoder must end with raw bgr24 on stdout, got %q", got)
	}

	cam := DecoderArgs(Source{Path: "/dev/video0", Camera: true, Mirror: true, Width: 640, Height: 480, FPS: 30})
	joined := strings.Join(cam, " ")
	for _, want := range []string{"-f " + CameraFormat(), "-video_size 640x480", "-framerate 30", "-vf hflip,scale=640:480"} {
		if !strings.Contains(joined, want) {
			t.Errorf("camera args %q missing %q", joined, want)
		}
	}
	// Input options must come before -i
	if strings.Index(joined, "-video_size") > strings.Index(joined, "-i ") {
		t.Errorf("capture size must precede the input: %q", joined)
	}
}

func TestEncoderAndPreviewArgs(t *testing.T) {
	enc := strings.Join(EncoderArgs("out.mp4", 29.97, 1280, 720), " ")
	for _, want := range []string{"-pix_fmt bgr24", "-s 1280x720", "-r 29.97", "-i -", "out.mp4"} {
		if !strings.Contains(enc, want) {
			t.Errorf("encoder args %q missing %q", enc, want)
		}
	}

	prev := strings.Join(PreviewArgs("AR Face Filter", 30, 640, 480), " ")
	for _, want := range []string{"-window_title AR Face Filter", "-pixel_format bgr24", "-video_size 640x480", "-i -"} {
		if !strings.Contains(prev, want) {
			t.Errorf("preview args %q missing %q", prev, want)
		}
	}
}

func TestSafeCommandCapturesStderr(t *testing.T) {
	if err := RequireBinary("sh"); err != nil {
		t.Skip("sh not available")
	}
	s := NewSafeCommand(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	err := s.Run()
	var exitErr interface{ ExitCode() int }
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, got %v", err)
	}
	if !strings.Contains(s.Stderr.String(), "boom") {
		t.Errorf("stderr not captured: %q", s.Stderr.String())
	}
}

func TestRequireBinary(t *testing.T) {
	if err := RequireBinary("definitely-not-a-real-binary-xyz"); err == nil {
		t.Error("expected error for missing binary")
	}
}
