// Package session ties the feature extractor, inference engine and stabilizer
// together into a per-stream recognition session.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ayusman/signify/internal/classifier"
	"github.com/ayusman/signify/internal/detector"
	"github.com/ayusman/signify/internal/features"
	"github.com/ayusman/signify/internal/stabilizer"
)

// ErrSessionEnded is returned when frames are pushed to a session after End.
var ErrSessionEnded = errors.New("session ended")

// Status is a snapshot of a session.
type Status struct {
	ID         string                 `json:"id"`
	Output     stabilizer.Output      `json:"output"`
	Prediction *classifier.Prediction `json:"prediction,omitempty"`
	Frames     int                    `json:"frames"`
	Classified int                    `json:"classified"`
	StartedAt  time.Time              `json:"started_at"`
	Ended      bool                   `json:"ended"`
}

// Session processes the frames of one stream in order. Calls on a Session are
// serialized; separate sessions never share a window.
type Session struct {
	id        string
	extractor *features.Extractor
	engine    *classifier.Engine
	window    *stabilizer.Stabilizer

	mu         sync.Mutex
	ended      bool
	startedAt  time.Time
	frames     int
	classified int
	last       *classifier.Prediction
}

// New creates a session. It must be started before frames are pushed.
func New(id string, extractor *features.Extractor, engine *classifier.Engine, config stabilizer.Config) (*Session, error) {
	window, err := stabilizer.New(config)
	if err != nil {
		return nil, err
	}
	return &Session{
		id:        id,
		extractor: extractor,
		engine:    engine,
		window:    window,
		ended:     true,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start begins (or restarts) the session with an empty window.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window.Reset()
	s.ended = false
	s.startedAt = time.Now()
	s.frames = 0
	s.classified = 0
	s.last = nil
}

// End stops the session and discards the window.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window.Reset()
	s.ended = true
}

// PushFrame processes one frame's detections. It returns an output only when
// the window is STABLE. Frames without a hand, or whose detection failed, are
// not classified and leave the window unchanged. Malformed landmarks and a
// missing model are reported as errors, also without touching the window.
func (s *Session) PushFrame(hands []detector.HandLandmarks, detectErr error) (*stabilizer.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushFrame(hands, detectErr)
}

// PushFrameStatus is PushFrame that also returns the session status right
// after this frame. Concurrent pushes to the same session each see their own
// frame's window.
func (s *Session) PushFrameStatus(hands []detector.HandLandmarks, detectErr error) (Status, *stabilizer.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.pushFrame(hands, detectErr)
	return s.status(), out, err
}

// PushVector processes an already extracted feature vector.
func (s *Session) PushVector(v []float64) (*stabilizer.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushVector(v)
}

// PushVectorStatus is PushVector that also returns the session status right
// after this vector.
func (s *Session) PushVectorStatus(v []float64) (Status, *stabilizer.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.pushVector(v)
	return s.status(), out, err
}

func (s *Session) pushFrame(hands []detector.HandLandmarks, detectErr error) (*stabilizer.Output, error) {
	if s.ended {
		return nil, ErrSessionEnded
	}
	s.frames++

	if detectErr != nil {
		return nil, nil
	}

	v, err := s.extractor.Extract(hands)
	if err != nil {
		return nil, err
	}
	return s.push(v)
}

func (s *Session) pushVector(v []float64) (*stabilizer.Output, error) {
	if s.ended {
		return nil, ErrSessionEnded
	}
	s.frames++

	if err := features.Validate(v); err != nil {
		return nil, err
	}
	return s.push(v)
}

func (s *Session) push(v []float64) (*stabilizer.Output, error) {
	if features.HandCount(v) == 0 {
		return nil, nil
	}

	p, err := s.engine.Predict(v)
	if err != nil {
		return nil, err
	}

	s.classified++
	s.last = p

	out := s.window.Push(p.Label)
	if out.State != stabilizer.StateStable {
		return nil, nil
	}
	return &out, nil
}

// Status returns a snapshot of the session, including the window output for
// states other than STABLE.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

func (s *Session) status() Status {
	return Status{
		ID:         s.id,
		Output:     s.window.Current(),
		Prediction: s.last,
		Frames:     s.frames,
		Classified: s.classified,
		StartedAt:  s.startedAt,
		Ended:      s.ended,
	}
}
