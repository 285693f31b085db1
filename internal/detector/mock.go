package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector returns scripted results instead of looking at frames.
type MockDetector struct {
	mu     sync.Mutex
	fixed  []HandLandmarks
	script [][]HandLandmarks
	err    error
	calls  int
}

// NewMockDetector returns a detector that sees no hands.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands makes every Detect return hands.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	m.fixed, m.script = hands, nil
	m.mu.Unlock()
}

// SetSequence makes the n-th Detect return seq[n]. The last entry repeats
// once the sequence runs out.
func (m *MockDetector) SetSequence(seq [][]HandLandmarks) {
	m.mu.Lock()
	m.script, m.calls = seq, 0
	m.mu.Unlock()
}

// SetError makes Detect fail with err; nil restores normal results.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Calls returns the number of Detect calls so far.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDetector) Detect(*gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.calls
	m.calls++
	switch {
	case m.err != nil:
		return nil, m.err
	case len(m.script) == 0:
		return m.fixed, nil
	default:
		return m.script[min(n, len(m.script)-1)], nil
	}
}

func (m *MockDetector) Close() error { return nil }
