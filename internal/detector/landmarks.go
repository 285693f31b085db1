// Package detector provides the hand landmark types and the detection capability
// consumed by the sign recognition pipeline.
package detector

import (
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Handedness labels reported by MediaPipe.
const (
	Left  = "Left"
	Right = "Right"
)

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
// Coordinates are in normalized image space as reported by the detector.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Coords returns the points flattened as x, y, z in landmark order.
func (h *HandLandmarks) Coords() [NumLandmarks * 3]float64 {
	var out [NumLandmarks * 3]float64
	for i, p := range h.Points {
		out[i*3] = p.X
		out[i*3+1] = p.Y
		out[i*3+2] = p.Z
	}
	return out
}

// NonFinite returns the index of the first point with a NaN or infinite
// coordinate, or -1.
func (h *HandLandmarks) NonFinite() int {
	for i, p := range h.Points {
		for _, c := range [3]float64{p.X, p.Y, p.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return i
			}
		}
	}
	return -1
}

// ParsePoints converts [x, y, z] triples into a landmark array. It requires
// exactly NumLandmarks points of 3 coordinates each.
func ParsePoints(points [][]float64) ([NumLandmarks]Point3D, error) {
	var out [NumLandmarks]Point3D
	if len(points) != NumLandmarks {
		return out, fmt.Errorf("%d points, want %d", len(points), NumLandmarks)
	}
	for i, p := range points {
		if len(p) != 3 {
			return out, fmt.Errorf("point %d has %d coordinates, want 3", i, len(p))
		}
		out[i] = Point3D{X: p[0], Y: p[1], Z: p[2]}
	}
	return out, nil
}
