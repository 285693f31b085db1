package classifier

import (
	"gonum.org/v1/gonum/floats"
)

// Neighbor is one training vector close to a query.
type Neighbor struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
	Index    int     `json:"index"`
}

// Prediction is the result of classifying one feature vector.
type Prediction struct {
	Label        string         `json:"label"`
	Neighbors    []Neighbor     `json:"neighbors"`
	Votes        map[string]int `json:"votes"`
	Confidence   float64        `json:"confidence"`
	ModelVersion string         `json:"model_version"`
}

// before orders neighbors by distance, then by training index.
func before(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Index < b.Index
}

// nearest returns the k training vectors closest to v, nearest first.
func nearest(m *Model, v []float64) []Neighbor {
	k := m.K
	if k > len(m.Vectors) {
		k = len(m.Vectors)
	}

	best := make([]Neighbor, 0, k+1)
	for i, x := range m.Vectors {
		n := Neighbor{Label: m.Labels[i], Distance: floats.Distance(v, x, 2), Index: i}
		if len(best) == k && !before(n, best[k-1]) {
			continue
		}

		pos := len(best)
		for pos > 0 && before(n, best[pos-1]) {
			pos--
		}
		best = append(best, Neighbor{})
		copy(best[pos+1:], best[pos:])
		best[pos] = n

		if len(best) > k {
			best = best[:k]
		}
	}
	return best
}

// classify takes the majority label among neighbors. Ties go to the tied label
// whose first neighbor is nearest.
func classify(m *Model, v []float64) *Prediction {
	neighbors := nearest(m, v)

	votes := make(map[string]int, len(neighbors))
	top := 0
	for _, n := range neighbors {
		votes[n.Label]++
		if votes[n.Label] > top {
			top = votes[n.Label]
		}
	}

	var label string
	for _, n := range neighbors {
		if votes[n.Label] == top {
			label = n.Label
			break
		}
	}

	return &Prediction{
		Label:        label,
		Neighbors:    neighbors,
		Votes:        votes,
		Confidence:   float64(top) / float64(m.K),
		ModelVersion: m.Version,
	}
}
