// Package features turns per-frame hand landmark detections into the fixed
// 126-value feature vectors consumed by the classifier.
//
// Layout: indices 0-62 hold hand slot 1 and 63-125 hold hand slot 2. Each slot is
// the 21 landmarks in detector order, flattened as x, y, z. An empty slot is
// zero-filled, so the vector length never varies.
package features

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/ayusman/signify/internal/detector"
)

// Vector dimensions.
const (
	HandSlots     = 2
	ValuesPerHand = detector.NumLandmarks * 3
	Dim           = HandSlots * ValuesPerHand
)

// ErrMalformed is returned when a landmark set or feature vector does not have
// the expected shape or contains non-finite values.
var ErrMalformed = errors.New("malformed input")

// Vector is a feature vector of exactly Dim values.
type Vector []float64

// SlotPolicy decides which hand slot a detection is written to.
type SlotPolicy string

const (
	// SlotDetectionOrder writes hands in the order the detector reported them.
	SlotDetectionOrder SlotPolicy = "detection"
	// SlotHandedness writes the left hand to slot 1 and the right hand to slot 2.
	// Two hands reporting the same handedness fall back to detection order.
	SlotHandedness SlotPolicy = "handedness"
)

// ParseSlotPolicy converts a configuration string to a SlotPolicy.
// The empty string selects SlotDetectionOrder.
func ParseSlotPolicy(s string) (SlotPolicy, error) {
	switch SlotPolicy(s) {
	case "", SlotDetectionOrder:
		return SlotDetectionOrder, nil
	case SlotHandedness:
		return SlotHandedness, nil
	default:
		return "", fmt.Errorf("unknown slot policy %q", s)
	}
}

// Extractor converts landmark sets to feature vectors. It holds no per-frame
// state; the zero value uses SlotDetectionOrder.
type Extractor struct {
	Policy SlotPolicy
}

// NewExtractor creates an Extractor with the given slot policy.
func NewExtractor(policy SlotPolicy) *Extractor {
	return &Extractor{Policy: policy}
}

// Zero returns an all-zero feature vector.
func Zero() Vector {
	return make(Vector, Dim)
}

// Extract builds the feature vector for one frame. Zero hands produce the zero
// vector. More than HandSlots hands or any non-finite coordinate is rejected
// with ErrMalformed.
func (e *Extractor) Extract(hands []detector.HandLandmarks) (Vector, error) {
	if len(hands) > HandSlots {
		return nil, fmt.Errorf("%w: %d hands, at most %d supported", ErrMalformed, len(hands), HandSlots)
	}

	for i := range hands {
		if j := hands[i].NonFinite(); j >= 0 {
			return nil, fmt.Errorf("%w: hand %d point %d is not finite", ErrMalformed, i, j)
		}
	}

	v := Zero()
	for slot, hand := range e.order(hands) {
		if hand == nil {
			continue
		}
		coords := hand.Coords()
		copy(v[slot*ValuesPerHand:], coords[:])
	}

	return v, nil
}

// ExtractFrame is Extract for the live pipeline: a failed detection or a
// malformed landmark set yields the zero vector instead of an error, so the
// next stage always receives a well-formed vector.
func (e *Extractor) ExtractFrame(hands []detector.HandLandmarks, detectErr error) Vector {
	if detectErr != nil {
		return Zero()
	}

	v, err := e.Extract(hands)
	if err != nil {
		log.Printf("Discarding landmarks: %v", err)
		return Zero()
	}
	return v
}

// ExtractRaw validates a loosely typed landmark set (hands x points x xyz) and
// extracts it. Every hand must have exactly 21 points of 3 coordinates.
func (e *Extractor) ExtractRaw(raw [][][]float64) (Vector, error) {
	hands, err := ParseHands(raw)
	if err != nil {
		return nil, err
	}
	return e.Extract(hands)
}

// ParseHands converts a loosely typed landmark set into HandLandmarks.
// Handedness is unknown for raw input and left empty.
func ParseHands(raw [][][]float64) ([]detector.HandLandmarks, error) {
	if len(raw) > HandSlots {
		return nil, fmt.Errorf("%w: %d hands, at most %d supported", ErrMalformed, len(raw), HandSlots)
	}

	hands := make([]detector.HandLandmarks, len(raw))
	for i, points := range raw {
		parsed, err := detector.ParsePoints(points)
		if err != nil {
			return nil, fmt.Errorf("%w: hand %d: %v", ErrMalformed, i, err)
		}
		hands[i].Points = parsed
	}

	return hands, nil
}

// order maps detections to slots according to the policy.
func (e *Extractor) order(hands []detector.HandLandmarks) [HandSlots]*detector.HandLandmarks {
	var slots [HandSlots]*detector.HandLandmarks

	if e.Policy == SlotHandedness && handednessDistinct(hands) {
		for i := range hands {
			switch hands[i].Handedness {
			case detector.Left:
				slots[0] = &hands[i]
			case detector.Right:
				slots[1] = &hands[i]
			}
		}
		return slots
	}

	for i := range hands {
		slots[i] = &hands[i]
	}
	return slots
}

// handednessDistinct reports whether every hand has a known handedness and no
// two hands share one.
func handednessDistinct(hands []detector.HandLandmarks) bool {
	seen := make(map[string]bool, len(hands))
	for _, h := range hands {
		if h.Handedness != detector.Left && h.Handedness != detector.Right {
			return false
		}
		if seen[h.Handedness] {
			return false
		}
		seen[h.Handedness] = true
	}
	return true
}

// Validate checks that v has exactly Dim finite values.
func Validate(v []float64) error {
	if len(v) != Dim {
		return fmt.Errorf("%w: vector has %d values, want %d", ErrMalformed, len(v), Dim)
	}
	for i, x := range v {
		if !finite(x) {
			return fmt.Errorf("%w: value %d is not finite", ErrMalformed, i)
		}
	}
	return nil
}

// HandCount returns the number of hand slots in v holding any non-zero value.
func HandCount(v Vector) int {
	if len(v) != Dim {
		return 0
	}
	n := 0
	for slot := 0; slot < HandSlots; slot++ {
		for _, x := range v[slot*ValuesPerHand : (slot+1)*ValuesPerHand] {
			if x != 0 {
				n++
				break
			}
		}
	}
	return n
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
