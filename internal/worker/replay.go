package worker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/andresmejia3/shades/internal/raster"
	"github.com/andresmejia3/shades/internal/types"
	"github.com/bytedance/sonic"
)

// replayFile is the on-disk format of recorded landmarks. Faces are sparse:
// only the indices that were recorded need to be present.
//
//	{"frames": [{"faces": [{"33": {"x": 0.3, "y": 0.5}, "263": {"x": 0.5, "y": 0.5}}]}]}
type replayFile struct {
	Frames []struct {
		Faces []map[int]types.Landmark `json:"faces"`
	} `json:"frames"`
}

// ReplayDetector returns pre-recorded landmark sets, one entry per frame, in
// call order. Past the last entry it reports no faces, or starts over when Loop
// is set.
type ReplayDetector struct {
	Loop bool

	mu     sync.Mutex
	frames [][]types.FaceLandmarks
	next   int
}

// NewReplayDetector wraps in-memory landmark sets.
func NewReplayDetector(frames [][]types.FaceLandmarks, loop bool) *ReplayDetector {
	return &ReplayDetector{frames: frames, Loop: loop}
}

// LoadReplay reads a landmark recording.
func LoadReplay(path string, loop bool) (*ReplayDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f replayFile
	if err := sonic.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse landmark recording: %w", err)
	}

	frames := make([][]types.FaceLandmarks, len(f.Frames))
	for i, fr := range f.Frames {
		for j, sparse := range fr.Faces {
			face, err := expand(sparse)
			if err != nil {
				return nil, fmt.Errorf("frame %d face %d: %w", i, j, err)
			}
			frames[i] = append(frames[i], face)
		}
	}
	return NewReplayDetector(frames, loop), nil
}

func expand(sparse map[int]types.Landmark) (types.FaceLandmarks, error) {
	size := 0
	for idx := range sparse {
		if idx < 0 || idx >= maxLandmarks {
			return nil, fmt.Errorf("landmark index %d out of range", idx)
		}
		if idx+1 > size {
			size = idx + 1
		}
	}
	face := make(types.FaceLandmarks, size)
	for idx, l := range sparse {
		face[idx] = l
	}
	return face, nil
}

// Len returns the number of recorded frames.
func (d *ReplayDetector) Len() int { return len(d.frames) }

// Detect returns the next recorded entry. The frame content is ignored.
func (d *ReplayDetector) Detect(ctx context.Context, _ *raster.Raster) ([]types.FaceLandmarks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.next >= len(d.frames) {
		if !d.Loop || len(d.frames) == 0 {
			return nil, nil
		}
		d.next = 0
	}
	faces := d.frames[d.next]
	d.next++
	return faces, nil
}

// Close is a no-op.
func (d *ReplayDetector) Close() {}

// StaticDetector reports the same faces for every frame.
type StaticDetector struct {
	Faces []types.FaceLandmarks
	Err   error
}

// EyesOnly builds a face set that carries only the two outer eye corners.
func EyesOnly(left, right types.Landmark) types.FaceLandmarks {
	face := make(types.FaceLandmarks, types.RightEyeOuter+1)
	face[types.LeftEyeOuter] = left
	face[types.RightEyeOuter] = right
	return face
}

// Detect returns the configured faces.
func (d StaticDetector) Detect(ctx context.Context, _ *raster.Raster) ([]types.FaceLandmarks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Faces, d.Err
}

// Close is a no-op.
func (d StaticDetector) Close() {}
