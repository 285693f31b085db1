package classifier

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ayusman/signify/internal/features"
)

// ErrNotReady is returned when a prediction is requested before a model is loaded.
var ErrNotReady = errors.New("no model loaded")

// Engine answers predictions against the currently loaded Model. Predictions
// never block on a reload; a call in flight keeps the model it started with.
type Engine struct {
	model atomic.Pointer[Model]
}

// NewEngine creates an Engine with no model loaded.
func NewEngine() *Engine {
	return &Engine{}
}

// Load reads a model file and makes it the active model.
func (e *Engine) Load(path string) error {
	m, err := LoadModel(path)
	if err != nil {
		return err
	}
	return e.Swap(m)
}

// Swap replaces the active model.
func (e *Engine) Swap(m *Model) error {
	if m == nil {
		return fmt.Errorf("swap: nil model")
	}
	if m.Dim != features.Dim {
		return fmt.Errorf("%w: model dimension %d, want %d", ErrCorruptModel, m.Dim, features.Dim)
	}
	if m.K < 1 {
		return fmt.Errorf("%w: k=%d", ErrCorruptModel, m.K)
	}
	if len(m.Labels) != len(m.Vectors) || len(m.Vectors) == 0 {
		return fmt.Errorf("%w: %d labels for %d vectors", ErrCorruptModel, len(m.Labels), len(m.Vectors))
	}
	e.model.Store(m)
	return nil
}

// Model returns the active model, or nil if none is loaded.
func (e *Engine) Model() *Model {
	return e.model.Load()
}

// Ready reports whether a model is loaded.
func (e *Engine) Ready() bool {
	return e.model.Load() != nil
}

// Predict classifies a feature vector.
func (e *Engine) Predict(v []float64) (*Prediction, error) {
	m := e.model.Load()
	if m == nil {
		return nil, ErrNotReady
	}
	if err := features.Validate(v); err != nil {
		return nil, err
	}
	return classify(m, v), nil
}
