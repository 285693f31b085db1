// Package stabilizer smooths per-frame sign predictions over a short window of
// recent labels so that a single misclassified frame does not change the output.
package stabilizer

import (
	"fmt"
)

// State describes how much trust the current window output deserves.
type State string

const (
	// StateEmpty means no labels have been pushed since the last reset.
	StateEmpty State = "EMPTY"
	// StateWarming means the window is not yet full; Leader is provisional.
	StateWarming State = "WARMING"
	// StateStable means the window is full and the leader has enough agreement.
	StateStable State = "STABLE"
	// StateUncertain means the window is full but no label has enough agreement.
	StateUncertain State = "UNCERTAIN"
)

// DefaultCapacity is the number of recent labels kept in the window.
const DefaultCapacity = 7

// Config holds stabilizer settings.
type Config struct {
	Capacity     int `yaml:"window"`
	MinAgreement int `yaml:"min_agreement"`
}

// DefaultConfig returns a window of DefaultCapacity with simple majority agreement.
func DefaultConfig() Config {
	return Config{
		Capacity:     DefaultCapacity,
		MinAgreement: DefaultCapacity/2 + 1,
	}
}

// Validate checks the configuration. A zero MinAgreement is filled in with a
// simple majority of Capacity.
func (c *Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("stabilizer window must be at least 1, got %d", c.Capacity)
	}
	if c.MinAgreement == 0 {
		c.MinAgreement = c.Capacity/2 + 1
	}
	if c.MinAgreement < 1 || c.MinAgreement > c.Capacity {
		return fmt.Errorf("stabilizer min_agreement must be between 1 and %d, got %d", c.Capacity, c.MinAgreement)
	}
	return nil
}

// Output is the stabilized view of the window after a push.
type Output struct {
	State     State  `json:"state"`
	Label     string `json:"label,omitempty"`
	Leader    string `json:"leader,omitempty"`
	Agreement int    `json:"agreement"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// Stabilizer keeps the last Capacity labels in arrival order. It is not safe
// for concurrent use; each recognition session owns one.
type Stabilizer struct {
	config Config
	ring   []string
	head   int
	size   int
}

// New creates a Stabilizer. The config is validated first.
func New(config Config) (*Stabilizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Stabilizer{
		config: config,
		ring:   make([]string, config.Capacity),
	}, nil
}

// Config returns the validated configuration.
func (s *Stabilizer) Config() Config {
	return s.config
}

// Push appends label, evicting the oldest entry once the window is full, and
// returns the new output.
func (s *Stabilizer) Push(label string) Output {
	s.ring[(s.head+s.size)%len(s.ring)] = label
	if s.size < len(s.ring) {
		s.size++
	} else {
		s.head = (s.head + 1) % len(s.ring)
	}
	return s.Current()
}

// Reset empties the window.
func (s *Stabilizer) Reset() {
	for i := range s.ring {
		s.ring[i] = ""
	}
	s.head = 0
	s.size = 0
}

// Current returns the output for the window without modifying it.
func (s *Stabilizer) Current() Output {
	out := Output{
		State:    StateEmpty,
		Size:     s.size,
		Capacity: len(s.ring),
	}
	if s.size == 0 {
		return out
	}

	out.Leader, out.Agreement = s.plurality()

	switch {
	case s.size < len(s.ring):
		out.State = StateWarming
	case out.Agreement >= s.config.MinAgreement:
		out.State = StateStable
		out.Label = out.Leader
	default:
		out.State = StateUncertain
	}
	return out
}

// Labels returns the window contents, oldest first.
func (s *Stabilizer) Labels() []string {
	labels := make([]string, s.size)
	for i := range labels {
		labels[i] = s.ring[(s.head+i)%len(s.ring)]
	}
	return labels
}

// plurality returns the most frequent label. Among tied labels the one pushed
// most recently wins.
func (s *Stabilizer) plurality() (string, int) {
	counts := make(map[string]int, s.size)
	for i := 0; i < s.size; i++ {
		counts[s.ring[(s.head+i)%len(s.ring)]]++
	}

	var leader string
	best := 0
	for i := s.size - 1; i >= 0; i-- {
		label := s.ring[(s.head+i)%len(s.ring)]
		if counts[label] > best {
			leader, best = label, counts[label]
		}
	}
	return leader, best
}
