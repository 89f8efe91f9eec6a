// Package filter applies the eyewear sprite to every detected face of a frame.
package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/shades/internal/logging"
	"github.com/andresmejia3/shades/internal/overlay"
	"github.com/andresmejia3/shades/internal/placement"
	"github.com/andresmejia3/shades/internal/raster"
	"github.com/andresmejia3/shades/internal/types"
	"github.com/andresmejia3/shades/internal/worker"
	"github.com/rs/zerolog"
)

// Filter bundles everything the per-frame step needs. It is built once at
// startup and is safe to share between goroutines as long as each call works
// on its own frame.
type Filter struct {
	Sprite     *raster.Raster // BGRA, read-only
	Ratios     placement.Ratios
	Compositor overlay.Compositor
	Logger     zerolog.Logger
}

// New validates the sprite and returns a filter with default ratios.
func New(sprite *raster.Raster) (*Filter, error) {
	if err := sprite.Validate(); err != nil {
		return nil, fmt.Errorf("sprite: %w", err)
	}
	if sprite.Channels != raster.BGRA {
		return nil, fmt.Errorf("%w: sprite has %d channels, want %d", raster.ErrShape, sprite.Channels, raster.BGRA)
	}
	if sprite.Empty() {
		return nil, fmt.Errorf("%w: sprite is empty", raster.ErrShape)
	}
	return &Filter{
		Sprite: sprite,
		Ratios: placement.DefaultRatios(),
		Logger: logging.For("filter"),
	}, nil
}

// Stats counts what happened to the faces of one or more frames.
type Stats struct {
	Frames    int // frames processed
	WithFaces int // frames with at least one face
	Faces     int // faces seen
	Drawn     int // sprites composited
	Skipped   int // faces whose box was degenerate or out of frame
	Partial   int // faces without both eye landmarks
}

// Add accumulates another tally.
func (s *Stats) Add(o Stats) {
	s.Frames += o.Frames
	s.WithFaces += o.WithFaces
	s.Faces += o.Faces
	s.Drawn += o.Drawn
	s.Skipped += o.Skipped
	s.Partial += o.Partial
}

// Apply draws the sprite for every face onto frame, in place. Faces are
// processed in order, so overlapping sprites stack.
func (f *Filter) Apply(frame *raster.Raster, faces []types.FaceLandmarks) (Stats, error) {
	st := Stats{Frames: 1, Faces: len(faces)}
	if len(faces) > 0 {
		st.WithFaces = 1
	}

	for i, face := range faces {
		box, ok := f.Ratios.FromFace(face, frame.Width, frame.Height)
		if !ok {
			st.Partial++
			f.Logger.Debug().Int("face", i).Int("landmarks", len(face)).Msg("face lacks eye landmarks")
			continue
		}

		drawn, err := f.Compositor.CompositeResized(frame, f.Sprite, box)
		if err != nil {
			return st, err
		}
		if drawn {
			st.Drawn++
		} else {
			st.Skipped++
			f.Logger.Debug().Int("face", i).Stringer("box", box).Msg("sprite does not fit, skipped")
		}
	}
	return st, nil
}

// Process detects faces on frame and applies the sprite. A detection failure
// reported by the detector itself (worker.ErrRemote) leaves the frame
// untouched and is not returned as an error.
func (f *Filter) Process(ctx context.Context, det worker.Detector, frame *raster.Raster) (Stats, error) {
	faces, err := det.Detect(ctx, frame)
	if err != nil {
		if errors.Is(err, worker.ErrRemote) {
			f.Logger.Warn().Err(err).Msg("detection failed, frame passed through")
			return Stats{Frames: 1}, nil
		}
		return Stats{}, err
	}
	return f.Apply(frame, faces)
}
