package filter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/andresmejia3/shades/internal/raster"
	"github.com/andresmejia3/shades/internal/types"
	"github.com/andresmejia3/shades/internal/worker"
)

func opaqueSprite(w, h int) *raster.Raster {
	s := raster.New(w, h, raster.BGRA)
	for i := 0; i < len(s.Pix); i += 4 {
		copy(s.Pix[i:], []uint8{0, 0, 255, 255})
	}
	return s
}

func eyes(lx, ly, rx, ry float64) types.FaceLandmarks {
	return worker.EyesOnly(types.Landmark{X: lx, Y: ly}, types.Landmark{X: rx, Y: ry})
}

func TestNewRejectsBadSprites(t *testing.T) {
	if _, err := New(raster.New(4, 4, raster.BGR)); !errors.Is(err, raster.ErrShape) {
		t.Errorf("BGR sprite: expected ErrShape, got %v", err)
	}
	if _, err := New(raster.New(0, 0, raster.BGRA)); !errors.Is(err, raster.ErrShape) {
		t.Errorf("empty sprite: expected ErrShape, got %v", err)
	}
	if _, err := New(opaqueSprite(2, 2)); err != nil {
		t.Errorf("valid sprite: %v", err)
	}
}

func TestApply(t *testing.T) {
	f, err := New(opaqueSprite(10, 4))
	if err != nil {
		t.Fatal(err)
	}
	frame := raster.New(200, 200, raster.BGR)

	faces := []types.FaceLandmarks{
		eyes(0.3, 0.5, 0.5, 0.5),      // box (45,88,60,24), fits
		eyes(0.8, 0.1, 0.99, 0.1),     // box runs off the right edge
		eyes(0.4, 0.4, 0.4, 0.4),      // degenerate
		make(types.FaceLandmarks, 10), // no eye corners
	}

	st, err := f.Apply(frame, faces)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	want := Stats{Frames: 1, WithFaces: 1, Faces: 4, Drawn: 1, Skipped: 2, Partial: 1}
	if st != want {
		t.Errorf("Apply() stats = %+v, want %+v", st, want)
	}

	// Inside the first box the sprite is opaque red, just outside it is untouched
	in := frame.Offset(45, 88)
	if frame.Pix[in+2] != 255 {
		t.Errorf("pixel at box origin = %v, want red", frame.Pix[in:in+3])
	}
	out := frame.Offset(44, 88)
	if frame.Pix[out+2] != 0 {
		t.Errorf("pixel left of box = %v, want black", frame.Pix[out:out+3])
	}
	last := frame.Offset(45+59, 88+23)
	if frame.Pix[last+2] != 255 {
		t.Errorf("pixel at box corner = %v, want red", frame.Pix[last:last+3])
	}
	below := frame.Offset(45, 88+24)
	if frame.Pix[below+2] != 0 {
		t.Errorf("pixel below box = %v, want black", frame.Pix[below:below+3])
	}
}

func TestApplyNoFaces(t *testing.T) {
	f, _ := New(opaqueSprite(2, 2))
	frame := raster.New(20, 20, raster.BGR)
	orig := frame.Clone()

	st, err := f.Apply(frame, nil)
	if err != nil {
		t.Fatal(err)
	}
	if st != (Stats{Frames: 1}) {
		t.Errorf("stats = %+v", st)
	}
	if !frame.Equal(orig) {
		t.Error("frame changed without faces")
	}
}

func TestApplyShapeError(t *testing.T) {
	f, _ := New(opaqueSprite(2, 2))
	frame := raster.New(200, 200, raster.BGRA)
	_, err := f.Apply(frame, []types.FaceLandmarks{eyes(0.3, 0.5, 0.5, 0.5)})
	if !errors.Is(err, raster.ErrShape) {
		t.Errorf("expected ErrShape for a 4-channel frame, got %v", err)
	}
}

func TestProcess(t *testing.T) {
	f, _ := New(opaqueSprite(10, 4))
	ctx := context.Background()

	t.Run("Detected faces are drawn", func(t *testing.T) {
		frame := raster.New(200, 200, raster.BGR)
		det := worker.StaticDetector{Faces: []types.FaceLandmarks{eyes(0.3, 0.5, 0.5, 0.5)}}
		st, err := f.Process(ctx, det, frame)
		if err != nil || st.Drawn != 1 {
			t.Fatalf("Process() = %+v, %v", st, err)
		}
	})

	t.Run("Remote errors pass the frame through", func(t *testing.T) {
		frame := raster.New(200, 200, raster.BGR)
		orig := frame.Clone()
		det := worker.StaticDetector{Err: fmt.Errorf("%w: model not loaded", worker.ErrRemote)}
		st, err := f.Process(ctx, det, frame)
		if err != nil {
			t.Fatalf("Process() error: %v", err)
		}
		if st != (Stats{Frames: 1}) || !frame.Equal(orig) {
			t.Errorf("frame should pass through, stats = %+v", st)
		}
	})

	t.Run("Transport errors are returned", func(t *testing.T) {
		frame := raster.New(200, 200, raster.BGR)
		det := worker.StaticDetector{Err: errors.New("broken pipe")}
		if _, err := f.Process(ctx, det, frame); err == nil {
			t.Error("expected error")
		}
	})
}

func TestStatsAdd(t *testing.T) {
	var total Stats
	total.Add(Stats{Frames: 1, WithFaces: 1, Faces: 2, Drawn: 1, Skipped: 1})
	total.Add(Stats{Frames: 1, Partial: 1})
	want := Stats{Frames: 2, WithFaces: 1, Faces: 2, Drawn: 1, Skipped: 1, Partial: 1}
	if total != want {
		t.Errorf("Add() = %+v, want %+v", total, want)
	}
}
