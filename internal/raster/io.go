package raster

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	// Decoders for sprite and still-image formats.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load decodes an image file into a raster with the requested channel count.
// Sprites must be loaded with BGRA so their alpha survives.
func Load(path string, channels int) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	if channels == BGRA && !hasAlpha(img) {
		return nil, fmt.Errorf("%w: %s image %s has no alpha channel", ErrShape, format, filepath.Base(path))
	}
	return FromImage(img, channels)
}

// Save encodes the raster to path, choosing JPEG for .jpg/.jpeg and PNG otherwise.
func Save(path string, r *Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, r.ToNRGBA(), &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(f, r.ToNRGBA())
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// hasAlpha reports whether the decoded color model can carry transparency.
func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	}
	return true
}
