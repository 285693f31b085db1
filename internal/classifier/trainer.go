package classifier

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/signify/internal/features"
)

// ErrInsufficientData is returned when the training set is empty or some label
// has fewer than k samples.
var ErrInsufficientData = errors.New("insufficient training data")

// Sample is one labeled training vector.
type Sample struct {
	Label  string
	Vector []float64
}

// Trainer builds Models from labeled samples.
type Trainer struct {
	K int
}

// NewTrainer creates a Trainer that consults k neighbors per prediction.
// A k below 1 selects DefaultK.
func NewTrainer(k int) *Trainer {
	if k < 1 {
		k = DefaultK
	}
	return &Trainer{K: k}
}

// Fit validates samples and snapshots them into a new Model. Training never
// lowers k to fit a small dataset; it fails with ErrInsufficientData instead.
func (t *Trainer) Fit(samples []Sample) (*Model, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrInsufficientData)
	}

	counts := make(map[string]int)
	labels := make([]string, len(samples))
	vectors := make([][]float64, len(samples))

	for i, s := range samples {
		if s.Label == "" {
			return nil, fmt.Errorf("sample %d: %w: empty label", i, features.ErrMalformed)
		}
		if err := features.Validate(s.Vector); err != nil {
			return nil, fmt.Errorf("sample %d (%s): %w", i, s.Label, err)
		}

		counts[s.Label]++
		labels[i] = s.Label
		vectors[i] = append([]float64(nil), s.Vector...)
	}

	var short []string
	for label, n := range counts {
		if n < t.K {
			short = append(short, fmt.Sprintf("%s has %d", label, n))
		}
	}
	if len(short) > 0 {
		sort.Strings(short)
		return nil, fmt.Errorf("%w: need at least %d samples per label, %s",
			ErrInsufficientData, t.K, strings.Join(short, ", "))
	}

	return &Model{
		Version:   uuid.NewString(),
		K:         t.K,
		Dim:       features.Dim,
		Labels:    labels,
		Vectors:   vectors,
		CreatedAt: time.Now(),
	}, nil
}
