// Package overlay blends a transparent sprite onto a video frame.
//
// The bounds policy is fail-soft: a sprite that does not fit entirely inside
// the frame is not drawn at all. There is no clipping, so a face near the
// frame edge simply shows no sprite for that frame.
package overlay

import (
	"fmt"

	"github.com/andresmejia3/shades/internal/placement"
	"github.com/andresmejia3/shades/internal/raster"
	"golang.org/x/image/draw"
)

// ErrShape is returned when the sprite or the background violate the raster
// shape preconditions (BGRA sprite, BGR background).
var ErrShape = raster.ErrShape

// Rounding selects how blended values are stored back into 8-bit channels.
type Rounding int

const (
	// RoundNearest rounds half up.
	RoundNearest Rounding = iota
	// Truncate drops the fractional part, matching integer array assignment.
	Truncate
)

// ParseRounding maps a config name to a Rounding mode.
func ParseRounding(name string) (Rounding, error) {
	switch name {
	case "", "nearest":
		return RoundNearest, nil
	case "truncate":
		return Truncate, nil
	default:
		return 0, fmt.Errorf("unknown rounding %q (use nearest or truncate)", name)
	}
}

func (r Rounding) String() string {
	if r == Truncate {
		return "truncate"
	}
	return "nearest"
}

// Compositor holds the resampling and rounding choices. The zero value
// resizes with bilinear interpolation and rounds to nearest.
type Compositor struct {
	Interp   draw.Interpolator
	Rounding Rounding
}

// Composite blends sprite onto bg with its top-left corner at (x, y), in place.
// It reports whether anything was drawn; an out-of-bounds placement returns
// false with bg untouched.
func (c *Compositor) Composite(bg, sprite *raster.Raster, x, y int) (bool, error) {
	if err := checkShapes(bg, sprite); err != nil {
		return false, err
	}
	w, h := sprite.Width, sprite.Height
	if w <= 0 || h <= 0 {
		return false, nil
	}
	if x < 0 || y < 0 || x > bg.Width-w || y > bg.Height-h {
		return false, nil
	}

	round := c.Rounding == RoundNearest
	for r := 0; r < h; r++ {
		src := sprite.Pix[r*sprite.Stride() : (r+1)*sprite.Stride()]
		dstStart := bg.Offset(x, y+r)
		dst := bg.Pix[dstStart : dstStart+w*raster.BGR]

		for col := 0; col < w; col++ {
			s := src[col*raster.BGRA : col*raster.BGRA+raster.BGRA]
			d := dst[col*raster.BGR : col*raster.BGR+raster.BGR]

			switch s[3] {
			case 0:
				continue
			case 255:
				d[0], d[1], d[2] = s[0], s[1], s[2]
				continue
			}

			alpha := float64(s[3]) / 255.0
			for ch := 0; ch < raster.BGR; ch++ {
				v := alpha*float64(s[ch]) + (1-alpha)*float64(d[ch])
				if round {
					v += 0.5
				}
				d[ch] = uint8(v)
			}
		}
	}
	return true, nil
}

// CompositeResized scales a copy of sprite to box's size and blends it at box's
// position. A degenerate box draws nothing. The sprite itself is never modified.
func (c *Compositor) CompositeResized(bg, sprite *raster.Raster, box placement.Box) (bool, error) {
	if err := checkShapes(bg, sprite); err != nil {
		return false, err
	}
	// Skip the resize entirely when the result could not be drawn anyway.
	if !box.Within(bg.Width, bg.Height) {
		return false, nil
	}

	scaled, err := sprite.Resize(box.Width, box.Height, c.Interp)
	if err != nil {
		return false, err
	}
	return c.Composite(bg, scaled, box.X, box.Y)
}

// Composite blends with a zero-value Compositor.
func Composite(bg, sprite *raster.Raster, x, y int) (bool, error) {
	var c Compositor
	return c.Composite(bg, sprite, x, y)
}

// CompositeResized resizes and blends with a zero-value Compositor.
func CompositeResized(bg, sprite *raster.Raster, box placement.Box) (bool, error) {
	var c Compositor
	return c.CompositeResized(bg, sprite, box)
}

func checkShapes(bg, sprite *raster.Raster) error {
	if err := bg.Validate(); err != nil {
		return fmt.Errorf("background: %w", err)
	}
	if err := sprite.Validate(); err != nil {
		return fmt.Errorf("sprite: %w", err)
	}
	if bg.Channels != raster.BGR {
		return fmt.Errorf("%w: background has %d channels, want %d", ErrShape, bg.Channels, raster.BGR)
	}
	if sprite.Channels != raster.BGRA {
		return fmt.Errorf("%w: sprite has %d channels, want %d (missing alpha)", ErrShape, sprite.Channels, raster.BGRA)
	}
	return nil
}
