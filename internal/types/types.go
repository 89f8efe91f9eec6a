package types

// Face-mesh indices of the outer eye corners.
const (
	LeftEyeOuter  = 33
	RightEyeOuter = 263
)

// FrameTask represents a single frame sent to a detector engine for processing
type FrameTask struct {
	Index int
	Data  []byte
}

// Landmark is a keypoint normalized to the frame size. Z is relative depth and
// may be zero when the source does not provide it.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// FaceLandmarks is the ordered landmark set of one detected face.
type FaceLandmarks []Landmark

// EyeCorners returns the left and right outer eye corners.
// ok is false when the set is too short to contain them.
func (f FaceLandmarks) EyeCorners() (left, right Landmark, ok bool) {
	if len(f) <= RightEyeOuter {
		return Landmark{}, Landmark{}, false
	}
	return f[LeftEyeOuter], f[RightEyeOuter], true
}
