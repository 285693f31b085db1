package detector

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// ErrDetectorUnavailable is returned when the landmark service cannot be located.
var ErrDetectorUnavailable = errors.New("hand detector unavailable")

// Detector finds hands in a frame. A frame without hands yields an empty
// slice and no error.
type Detector interface {
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)
	Close() error
}

// Config tunes the MediaPipe landmark service.
type Config struct {
	MaxHands        int     // hands tracked per frame
	ModelComplexity int     // 0 = lite, 1 = full
	MinConfidence   float64 // detection threshold, 0..1
	MinTrackingConf float64 // tracking threshold, 0..1

	// Script and Python override where hands_service.py and its
	// interpreter are looked up.
	Script string
	Python string

	// IdleTimeout stops the service after this long without frames.
	IdleTimeout time.Duration
	// ReplyTimeout kills the service when a frame goes unanswered this long.
	ReplyTimeout time.Duration
}

// DefaultConfig tracks two hands with the lite model.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		IdleTimeout:     DefaultIdleTimeout,
		ReplyTimeout:    DefaultReplyTimeout,
	}
}
