// Package placement maps eye landmarks to the on-screen rectangle of the sprite.
package placement

import (
	"fmt"
	"image"

	"github.com/andresmejia3/shades/internal/types"
)

// Ratios is the geometric model relating eye distance to the sprite box.
type Ratios struct {
	Width   float64 `json:"width"`    // box width per pixel of eye distance
	Height  float64 `json:"height"`   // box height per pixel of box width
	OffsetX float64 `json:"offset_x"` // fraction of the width shifted left of the left eye
	OffsetY float64 `json:"offset_y"` // fraction of the height shifted above the left eye
}

// DefaultRatios returns the eyewear model.
func DefaultRatios() Ratios {
	return Ratios{Width: 1.5, Height: 0.4, OffsetX: 0.25, OffsetY: 0.5}
}

// Box is an axis-aligned placement rectangle in pixels. It may be degenerate
// or extend past the frame; the compositor decides what to do with it.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Within reports whether the box has area and lies entirely inside a
// w x h frame. Boxes that fail this are never drawn.
func (b Box) Within(w, h int) bool {
	return !b.Empty() && b.X >= 0 && b.Y >= 0 && b.X <= w-b.Width && b.Y <= h-b.Height
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", b.X, b.Y, b.Width, b.Height)
}

// ToPixel converts a normalized landmark to pixel coordinates, truncating
// toward zero.
func ToPixel(l types.Landmark, iw, ih int) image.Point {
	return image.Point{X: int(l.X * float64(iw)), Y: int(l.Y * float64(ih))}
}

// FromEyes computes the sprite box for a face whose outer eye corners are left
// and right, in a frame of iw x ih pixels. Every intermediate is truncated.
func (r Ratios) FromEyes(left, right types.Landmark, iw, ih int) Box {
	p1 := ToPixel(left, iw, ih)
	p2 := ToPixel(right, iw, ih)

	dx := p2.X - p1.X
	if dx < 0 {
		dx = -dx
	}

	w := int(r.Width * float64(dx))
	h := int(float64(w) * r.Height)
	return Box{
		X:      p1.X - int(float64(w)*r.OffsetX),
		Y:      p1.Y - int(float64(h)*r.OffsetY),
		Width:  w,
		Height: h,
	}
}

// FromFace computes the box from a full face-mesh landmark set.
// ok is false when the set does not contain both eye corners.
func (r Ratios) FromFace(face types.FaceLandmarks, iw, ih int) (Box, bool) {
	left, right, ok := face.EyeCorners()
	if !ok {
		return Box{}, false
	}
	return r.FromEyes(left, right, iw, ih), true
}

// FromEyes computes the box with the default ratios.
func FromEyes(left, right types.Landmark, iw, ih int) Box {
	return DefaultRatios().FromEyes(left, right, iw, ih)
}
