package overlay

import (
	"errors"
	"math"
	"testing"

	"github.com/andresmejia3/shades/internal/placement"
	"github.com/andresmejia3/shades/internal/raster"
	"golang.org/x/image/draw"
)

// solid returns a raster with every pixel set to px.
func solid(w, h int, px ...uint8) *raster.Raster {
	r := raster.New(w, h, len(px))
	for i := 0; i < len(r.Pix); i += len(px) {
		copy(r.Pix[i:], px)
	}
	return r
}

func TestCompositeOpaqueSprite(t *testing.T) {
	bg := raster.New(100, 100, raster.BGR)
	sprite := solid(10, 10, 255, 0, 0, 255)

	drawn, err := CompositeResized(bg, sprite, placement.Box{X: 5, Y: 5, Width: 10, Height: 10})
	if err != nil {
		t.Fatalf("CompositeResized() error: %v", err)
	}
	if !drawn {
		t.Fatal("CompositeResized() reported nothing drawn")
	}

	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			off := bg.Offset(x, y)
			got := [3]uint8{bg.Pix[off], bg.Pix[off+1], bg.Pix[off+2]}
			want := [3]uint8{0, 0, 0}
			if x >= 5 && x < 15 && y >= 5 && y < 15 {
				want = [3]uint8{255, 0, 0}
			}
			if got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestCompositeOutOfBoundsIsNoOp(t *testing.T) {
	sprite := solid(10, 10, 255, 0, 0, 255)

	tests := []struct {
		name string
		box  placement.Box
	}{
		{"Overflows bottom right", placement.Box{X: 95, Y: 95, Width: 10, Height: 10}},
		{"Negative x", placement.Box{X: -1, Y: 5, Width: 10, Height: 10}},
		{"Negative y", placement.Box{X: 5, Y: -3, Width: 10, Height: 10}},
		{"Overflows right only", placement.Box{X: 91, Y: 0, Width: 10, Height: 10}},
		{"Overflows bottom only", placement.Box{X: 0, Y: 91, Width: 10, Height: 10}},
		{"Zero width", placement.Box{X: 5, Y: 5, Width: 0, Height: 10}},
		{"Zero height", placement.Box{X: 5, Y: 5, Width: 10, Height: 0}},
		{"Negative size", placement.Box{X: 5, Y: 5, Width: -4, Height: -2}},
		{"Huge x", placement.Box{X: math.MaxInt - 5, Y: 0, Width: 10, Height: 10}},
		{"Huge y", placement.Box{X: 0, Y: math.MaxInt - 5, Width: 10, Height: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bg := solid(100, 100, 7, 8, 9)
			orig := bg.Clone()

			drawn, err := CompositeResized(bg, sprite, tt.box)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if drawn {
				t.Error("expected nothing drawn")
			}
			if !bg.Equal(orig) {
				t.Error("background was modified")
			}
		})
	}
}

func TestCompositeHugeOffsetIsNoOp(t *testing.T) {
	sprite := solid(10, 10, 255, 0, 0, 255)
	for _, pos := range [][2]int{{math.MaxInt - 5, 0}, {0, math.MaxInt - 5}, {math.MaxInt, math.MaxInt}} {
		bg := solid(100, 100, 7, 8, 9)
		orig := bg.Clone()
		drawn, err := Composite(bg, sprite, pos[0], pos[1])
		if err != nil || drawn {
			t.Errorf("Composite(%d, %d) = %v, %v; want nothing drawn", pos[0], pos[1], drawn, err)
		}
		if !bg.Equal(orig) {
			t.Errorf("Composite(%d, %d) modified the background", pos[0], pos[1])
		}
	}
}

func TestCompositeExactFitAtEdge(t *testing.T) {
	bg := raster.New(20, 20, raster.BGR)
	sprite := solid(5, 5, 1, 2, 3, 255)

	drawn, err := Composite(bg, sprite, 15, 15)
	if err != nil || !drawn {
		t.Fatalf("Composite() = %v, %v; want drawn", drawn, err)
	}
	off := bg.Offset(19, 19)
	if bg.Pix[off] != 1 || bg.Pix[off+1] != 2 || bg.Pix[off+2] != 3 {
		t.Errorf("corner pixel = %v", bg.Pix[off:off+3])
	}
}

func TestCompositeTransparentSprite(t *testing.T) {
	bg := solid(30, 20, 40, 50, 60)
	orig := bg.Clone()
	sprite := solid(8, 6, 255, 255, 255, 0)

	if _, err := CompositeResized(bg, sprite, placement.Box{X: 3, Y: 4, Width: 12, Height: 9}); err != nil {
		t.Fatal(err)
	}
	if !bg.Equal(orig) {
		t.Error("fully transparent sprite changed the background")
	}
}

func TestCompositeRegionIsolation(t *testing.T) {
	bg := raster.New(40, 30, raster.BGR)
	for i := range bg.Pix {
		bg.Pix[i] = uint8(i * 31)
	}
	orig := bg.Clone()
	sprite := solid(4, 4, 10, 200, 30, 128)

	box := placement.Box{X: 11, Y: 7, Width: 9, Height: 5}
	drawn, err := CompositeResized(bg, sprite, box)
	if err != nil || !drawn {
		t.Fatalf("CompositeResized() = %v, %v", drawn, err)
	}

	changed := 0
	for y := 0; y < bg.Height; y++ {
		for x := 0; x < bg.Width; x++ {
			off := bg.Offset(x, y)
			inside := x >= box.X && x < box.X+box.Width && y >= box.Y && y < box.Y+box.Height
			for c := 0; c < 3; c++ {
				if bg.Pix[off+c] != orig.Pix[off+c] {
					if !inside {
						t.Fatalf("pixel (%d,%d) outside the box changed", x, y)
					}
					changed++
				}
			}
		}
	}
	if changed == 0 {
		t.Error("half-transparent sprite changed nothing inside the box")
	}
}

func TestCompositeAlphaGradient(t *testing.T) {
	const gray = 128
	for _, rounding := range []Rounding{RoundNearest, Truncate} {
		t.Run(rounding.String(), func(t *testing.T) {
			bg := solid(256, 3, gray, gray, gray)
			sprite := raster.New(256, 1, raster.BGRA)
			for x := 0; x < 256; x++ {
				copy(sprite.Pix[x*4:], []uint8{255, 0, 64, uint8(x)})
			}

			c := &Compositor{Rounding: rounding}
			drawn, err := c.Composite(bg, sprite, 0, 1)
			if err != nil || !drawn {
				t.Fatalf("Composite() = %v, %v", drawn, err)
			}

			fg := [3]float64{255, 0, 64}
			for x := 0; x < 256; x++ {
				alpha := float64(x) / 255.0
				off := bg.Offset(x, 1)
				for ch := 0; ch < 3; ch++ {
					v := alpha*fg[ch] + (1-alpha)*gray
					if rounding == RoundNearest {
						v = math.Floor(v + 0.5)
					} else {
						v = math.Floor(v)
					}
					if got := bg.Pix[off+ch]; got != uint8(v) {
						t.Fatalf("x=%d ch=%d: got %d, want %d", x, ch, got, uint8(v))
					}
				}
				// Rows above and below are untouched
				if bg.Pix[bg.Offset(x, 0)] != gray || bg.Pix[bg.Offset(x, 2)] != gray {
					t.Fatalf("x=%d: neighbouring rows changed", x)
				}
			}
		})
	}
}

func TestCompositeDoesNotMutateSprite(t *testing.T) {
	bg := raster.New(64, 64, raster.BGR)
	sprite := solid(6, 6, 9, 9, 9, 200)
	orig := sprite.Clone()

	c := &Compositor{Interp: draw.CatmullRom}
	for i := 0; i < 3; i++ {
		if _, err := c.CompositeResized(bg, sprite, placement.Box{X: i, Y: i, Width: 20 + i, Height: 8 + i}); err != nil {
			t.Fatal(err)
		}
	}
	if !sprite.Equal(orig) {
		t.Error("sprite was modified across calls")
	}
}

func TestCompositeShapeErrors(t *testing.T) {
	tests := []struct {
		name   string
		bg     *raster.Raster
		sprite *raster.Raster
	}{
		{"Sprite without alpha", raster.New(10, 10, raster.BGR), raster.New(2, 2, raster.BGR)},
		{"Background with alpha", raster.New(10, 10, raster.BGRA), raster.New(2, 2, raster.BGRA)},
		{"Short background buffer", &raster.Raster{Pix: make([]uint8, 3), Width: 10, Height: 10, Channels: 3}, raster.New(2, 2, raster.BGRA)},
		{"Nil sprite", raster.New(10, 10, raster.BGR), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompositeResized(tt.bg, tt.sprite, placement.Box{X: 0, Y: 0, Width: 2, Height: 2})
			if !errors.Is(err, ErrShape) {
				t.Errorf("CompositeResized() error = %v, want ErrShape", err)
			}
			_, err = Composite(tt.bg, tt.sprite, 0, 0)
			if !errors.Is(err, ErrShape) {
				t.Errorf("Composite() error = %v, want ErrShape", err)
			}
		})
	}
}

func TestParseRounding(t *testing.T) {
	if r, err := ParseRounding("truncate"); err != nil || r != Truncate {
		t.Errorf("ParseRounding(truncate) = %v, %v", r, err)
	}
	if r, err := ParseRounding(""); err != nil || r != RoundNearest {
		t.Errorf("ParseRounding(\"\") = %v, %v", r, err)
	}
	if _, err := ParseRounding("ceil"); err == nil {
		t.Error("expected error for unknown rounding")
	}
}
