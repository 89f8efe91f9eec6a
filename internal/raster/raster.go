package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
)

// Channel counts of the two raster kinds used by the pipeline.
const (
	BGR  = 3
	BGRA = 4
)

// ErrShape is returned when a raster's buffer or channel count does not match
// what the caller requires.
var ErrShape = errors.New("raster shape mismatch")

// Raster is an interleaved 8-bit pixel grid. Color channels are stored in
// blue-green-red order, followed by straight (non-premultiplied) alpha when
// Channels is 4. Rows are tightly packed.
type Raster struct {
	Pix      []uint8
	Width    int
	Height   int
	Channels int
}

// New allocates a zeroed raster.
func New(width, height, channels int) *Raster {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Raster{
		Pix:      make([]uint8, width*height*channels),
		Width:    width,
		Height:   height,
		Channels: channels,
	}
}

// Wrap builds a raster over an existing buffer without copying it.
// This is how raw decoder output is handed to the compositor.
func Wrap(pix []uint8, width, height, channels int) (*Raster, error) {
	r := &Raster{Pix: pix, Width: width, Height: height, Channels: channels}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that the buffer is large enough for the declared shape.
func (r *Raster) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil raster", ErrShape)
	}
	if r.Width < 0 || r.Height < 0 || r.Channels < 1 {
		return fmt.Errorf("%w: invalid dimensions %dx%dx%d", ErrShape, r.Width, r.Height, r.Channels)
	}
	if need := r.Width * r.Height * r.Channels; len(r.Pix) < need {
		return fmt.Errorf("%w: buffer holds %d bytes, %dx%dx%d needs %d", ErrShape, len(r.Pix), r.Width, r.Height, r.Channels, need)
	}
	return nil
}

// Stride is the number of bytes per row.
func (r *Raster) Stride() int { return r.Width * r.Channels }

// Offset returns the index of the first channel of pixel (x, y).
func (r *Raster) Offset(x, y int) int { return y*r.Stride() + x*r.Channels }

// Bounds returns the raster rectangle anchored at the origin.
func (r *Raster) Bounds() image.Rectangle { return image.Rect(0, 0, r.Width, r.Height) }

// Empty reports whether the raster has no pixels.
func (r *Raster) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	pix := make([]uint8, r.Width*r.Height*r.Channels)
	copy(pix, r.Pix)
	return &Raster{Pix: pix, Width: r.Width, Height: r.Height, Channels: r.Channels}
}

// Equal reports whether both rasters have the same shape and pixels.
func (r *Raster) Equal(o *Raster) bool {
	if r.Width != o.Width || r.Height != o.Height || r.Channels != o.Channels {
		return false
	}
	n := r.Width * r.Height * r.Channels
	for i := 0; i < n; i++ {
		if r.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// FromImage converts any image into a BGR or BGRA raster. Colors are taken
// un-premultiplied, so sprite pixels keep their straight alpha.
func FromImage(img image.Image, channels int) (*Raster, error) {
	if channels != BGR && channels != BGRA {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrShape, channels)
	}
	b := img.Bounds()
	r := New(b.Dx(), b.Dy(), channels)

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < r.Height; y++ {
			srcRow := src.PixOffset(b.Min.X, b.Min.Y+y)
			dstRow := y * r.Stride()
			for x := 0; x < r.Width; x++ {
				s := srcRow + x*4
				d := dstRow + x*channels
				r.Pix[d] = src.Pix[s+2]
				r.Pix[d+1] = src.Pix[s+1]
				r.Pix[d+2] = src.Pix[s]
				if channels == BGRA {
					r.Pix[d+3] = src.Pix[s+3]
				}
			}
		}
		return r, nil
	}

	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			d := r.Offset(x, y)
			r.Pix[d] = c.B
			r.Pix[d+1] = c.G
			r.Pix[d+2] = c.R
			if channels == BGRA {
				r.Pix[d+3] = c.A
			}
		}
	}
	return r, nil
}

// ToNRGBA converts the raster into a standard image. BGR rasters become fully
// opaque.
func (r *Raster) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(r.Bounds())
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			s := r.Offset(x, y)
			d := img.PixOffset(x, y)
			img.Pix[d] = r.Pix[s+2]
			img.Pix[d+1] = r.Pix[s+1]
			img.Pix[d+2] = r.Pix[s]
			if r.Channels == BGRA {
				img.Pix[d+3] = r.Pix[s+3]
			} else {
				img.Pix[d+3] = 255
			}
		}
	}
	return img
}

// Resize returns a new raster scaled to exactly width x height. The receiver is
// never modified; when the size already matches, a plain copy is returned.
func (r *Raster) Resize(width, height int, interp draw.Interpolator) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: cannot resize to %dx%d", ErrShape, width, height)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if width == r.Width && height == r.Height {
		return r.Clone(), nil
	}
	if interp == nil {
		interp = draw.BiLinear
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	interp.Scale(dst, dst.Bounds(), r.ToNRGBA(), r.Bounds(), draw.Src, nil)
	return FromImage(dst, r.Channels)
}

// Interpolator maps a resampling name to an x/image/draw interpolator.
func Interpolator(name string) (draw.Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest":
		return draw.NearestNeighbor, nil
	case "approx-bilinear":
		return draw.ApproxBiLinear, nil
	case "", "bilinear":
		return draw.BiLinear, nil
	case "catmull-rom":
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("unknown interpolation %q (use nearest, approx-bilinear, bilinear, catmull-rom)", name)
	}
}
