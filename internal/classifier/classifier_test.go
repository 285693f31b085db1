package classifier

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ayusman/signify/internal/features"
)

// point returns a feature vector with every value of the first hand slot set to x.
func point(x float64) []float64 {
	v := make([]float64, features.Dim)
	for i := 0; i < features.ValuesPerHand; i++ {
		v[i] = x
	}
	return v
}

func cluster(label string, center float64, n int) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{Label: label, Vector: point(center + float64(i)*0.001)}
	}
	return samples
}

func trainedEngine(t *testing.T, samples []Sample) *Engine {
	t.Helper()
	m, err := NewTrainer(DefaultK).Fit(samples)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	e := NewEngine()
	if err := e.Swap(m); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	return e
}

func TestTrainer_Fit_InsufficientData(t *testing.T) {
	trainer := NewTrainer(3)

	tests := []struct {
		name    string
		samples []Sample
		mention string
	}{
		{name: "empty", samples: nil},
		{name: "two samples of one label", samples: cluster("hola", 0.1, 2), mention: "hola has 2"},
		{
			name:    "one short label among full ones",
			samples: append(cluster("a", 0.1, 5), cluster("b", 0.5, 2)...),
			mention: "b has 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := trainer.Fit(tt.samples)
			if !errors.Is(err, ErrInsufficientData) {
				t.Fatalf("expected ErrInsufficientData, got %v", err)
			}
			if m != nil {
				t.Error("expected no model")
			}
			if tt.mention != "" && !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error %q should mention %q", err, tt.mention)
			}
		})
	}
}

func TestTrainer_Fit(t *testing.T) {
	samples := append(cluster("a", 0.1, 3), cluster("b", 0.9, 4)...)

	m, err := NewTrainer(0).Fit(samples)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if m.K != DefaultK {
		t.Errorf("expected default k %d, got %d", DefaultK, m.K)
	}
	if m.Dim != features.Dim {
		t.Errorf("expected dim %d, got %d", features.Dim, m.Dim)
	}
	if m.Version == "" {
		t.Error("expected version to be set")
	}
	if len(m.Vectors) != 7 || len(m.Labels) != 7 {
		t.Errorf("expected 7 training vectors, got %d/%d", len(m.Vectors), len(m.Labels))
	}
	if classes := m.Classes(); len(classes) != 2 || classes[0] != "a" || classes[1] != "b" {
		t.Errorf("Classes() = %v", classes)
	}

	samples[0].Vector[0] = 42
	if m.Vectors[0][0] == 42 {
		t.Error("model must not alias caller vectors")
	}
}

func TestTrainer_Fit_Malformed(t *testing.T) {
	samples := cluster("a", 0.1, 3)
	samples[1].Vector = samples[1].Vector[:10]

	if _, err := NewTrainer(3).Fit(samples); !errors.Is(err, features.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestEngine_NotReady(t *testing.T) {
	e := NewEngine()
	if e.Ready() {
		t.Error("new engine should not be ready")
	}
	if _, err := e.Predict(point(0.1)); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestEngine_Malformed(t *testing.T) {
	e := trainedEngine(t, cluster("a", 0.1, 3))

	for _, n := range []int{0, features.Dim - 1, features.Dim + 1} {
		if _, err := e.Predict(make([]float64, n)); !errors.Is(err, features.ErrMalformed) {
			t.Errorf("length %d: expected ErrMalformed, got %v", n, err)
		}
	}
}

func TestEngine_SelfConsistency(t *testing.T) {
	samples := append(append(cluster("a", 0.1, 5), cluster("b", 0.5, 5)...), cluster("c", 0.9, 5)...)
	e := trainedEngine(t, samples)

	for i, s := range samples {
		p, err := e.Predict(s.Vector)
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		if p.Label != s.Label {
			t.Errorf("sample %d: predicted %q, want %q", i, p.Label, s.Label)
		}
		if p.Confidence != 1 {
			t.Errorf("sample %d: confidence %f, want 1", i, p.Confidence)
		}
		if p.Neighbors[0].Distance != 0 || p.Neighbors[0].Index != i {
			t.Errorf("sample %d: nearest neighbor %+v, want itself", i, p.Neighbors[0])
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	samples := append(cluster("a", 0.1, 4), cluster("b", 0.2, 4)...)
	e := trainedEngine(t, samples)

	query := point(0.15)
	first, err := e.Predict(query)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		p, _ := e.Predict(query)
		if p.Label != first.Label {
			t.Fatalf("label changed between calls: %q vs %q", p.Label, first.Label)
		}
		for j := range p.Neighbors {
			if p.Neighbors[j] != first.Neighbors[j] {
				t.Fatalf("neighbor %d changed between calls", j)
			}
		}
	}
}

func TestClassify_Majority(t *testing.T) {
	m := &Model{
		Version: "v",
		K:       3,
		Dim:     features.Dim,
		Labels:  []string{"a", "b", "b", "a"},
		Vectors: [][]float64{point(0.10), point(0.12), point(0.13), point(0.50)},
	}

	p := classify(m, point(0.11))
	if p.Label != "b" {
		t.Errorf("expected majority 'b', got %q", p.Label)
	}
	if p.Votes["b"] != 2 || p.Votes["a"] != 1 {
		t.Errorf("unexpected votes %v", p.Votes)
	}
	if p.Confidence != 2.0/3.0 {
		t.Errorf("expected confidence 2/3, got %f", p.Confidence)
	}
	if p.ModelVersion != "v" {
		t.Errorf("expected model version 'v', got %q", p.ModelVersion)
	}
}

func TestClassify_TieBreak(t *testing.T) {
	t.Run("three-way tie goes to nearest", func(t *testing.T) {
		m := &Model{
			K:       3,
			Dim:     features.Dim,
			Labels:  []string{"a", "b", "c"},
			Vectors: [][]float64{point(0.30), point(0.11), point(0.20)},
		}
		if p := classify(m, point(0.10)); p.Label != "b" {
			t.Errorf("expected nearest label 'b', got %q", p.Label)
		}
	})

	t.Run("equal distances ordered by training index", func(t *testing.T) {
		m := &Model{
			K:       3,
			Dim:     features.Dim,
			Labels:  []string{"x", "y", "z", "w"},
			Vectors: [][]float64{point(0.2), point(0.2), point(0.2), point(0.2)},
		}
		p := classify(m, point(0.1))
		if p.Label != "x" {
			t.Errorf("expected lowest index label 'x', got %q", p.Label)
		}
		for i, n := range p.Neighbors {
			if n.Index != i {
				t.Errorf("neighbor %d has index %d", i, n.Index)
			}
		}
	})
}

func TestModel_SaveLoad(t *testing.T) {
	samples := append(cluster("hola", 0.1, 3), cluster("gracias", 0.7, 3)...)
	samples = append(samples, cluster("adios", 0.4, 3)...)
	m, err := NewTrainer(3).Fit(samples)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "models", "model.bin")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}

	if loaded.Version != m.Version || loaded.K != m.K || loaded.Dim != m.Dim {
		t.Errorf("header mismatch: got %s/%d/%d", loaded.Version, loaded.K, loaded.Dim)
	}
	if !loaded.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("created at %v, want %v", loaded.CreatedAt, m.CreatedAt)
	}
	if !reflect.DeepEqual(loaded.Labels, m.Labels) || !reflect.DeepEqual(loaded.Vectors, m.Vectors) {
		t.Error("loaded training set differs from the saved one")
	}

	// Held-out queries; none of them is a training vector.
	rng := rand.New(rand.NewSource(7))
	queries := [][]float64{point(0.0), point(0.25), point(0.55), point(1.0)}
	for i := 0; i < 20; i++ {
		q := make([]float64, features.Dim)
		for j := range q {
			q[j] = rng.Float64()
		}
		queries = append(queries, q)
	}

	orig, restored := NewEngine(), NewEngine()
	if err := orig.Swap(m); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for i, q := range queries {
		want, err := orig.Predict(q)
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		got, err := restored.Predict(q)
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("query %d: reloaded model predicted %+v, want %+v", i, got, want)
		}
	}

	tied := &Model{
		Version: "tied",
		K:       3,
		Dim:     features.Dim,
		Labels:  []string{"x", "y", "x", "y"},
		Vectors: [][]float64{point(0.25), point(0.75), point(0.25), point(0.75)},
	}
	tiedPath := filepath.Join(t.TempDir(), "tied.bin")
	if err := tied.Save(tiedPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	reloaded, err := LoadModel(tiedPath)
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	// Every training vector is equidistant from 0.5.
	q := point(0.5)
	want, got := classify(tied, q), classify(reloaded, q)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tie query: reloaded model predicted %+v, want %+v", got, want)
	}
	if got.Label != "x" || got.Neighbors[0].Index != 0 {
		t.Errorf("tie should resolve to index 0 label x, got %q via %+v", got.Label, got.Neighbors)
	}
}

// serializedModel returns the encoded form of a small valid model.
func serializedModel(t testing.TB) []byte {
	t.Helper()
	m, err := NewTrainer(3).Fit(append(cluster("a", 0.1, 3), cluster("b", 0.6, 3)...))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	data, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	return data
}

func TestLoadModel_RandomBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.bin")
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 300; i++ {
		blob := make([]byte, 1+rng.Intn(512))
		rng.Read(blob)
		if err := os.WriteFile(path, blob, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadModel(path); !errors.Is(err, ErrCorruptModel) {
			t.Fatalf("blob %d (%d bytes): expected ErrCorruptModel, got %v", i, len(blob), err)
		}
	}
}

func TestLoadModel_CorruptLength(t *testing.T) {
	m, err := NewTrainer(3).Fit(cluster("a", 0.1, 3))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	valid, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Each offset is overwritten in turn with a huge count, so every length
	// and count field in the file gets hit by one of them. 1<<63 is negative
	// as an int; 1<<40 float64s is allocatable on paper but not in practice.
	for _, bad := range []uint64{1<<63 + 12345, 1 << 40} {
		for off := 0; off+8 <= len(valid); off++ {
			data := append([]byte(nil), valid...)
			binary.LittleEndian.PutUint64(data[off:], bad)
			if err := os.WriteFile(path, data, 0644); err != nil {
				t.Fatal(err)
			}
			if got, err := LoadModel(path); err == nil {
				if got == nil {
					t.Fatalf("offset %d: nil model without error", off)
				}
			} else if !errors.Is(err, ErrCorruptModel) {
				t.Fatalf("offset %d: expected ErrCorruptModel, got %v", off, err)
			}
		}
	}

	for _, n := range []int{1, 8, len(valid) / 2, len(valid) - 1} {
		if err := os.WriteFile(path, valid[:n], 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadModel(path); !errors.Is(err, ErrCorruptModel) {
			t.Errorf("truncated to %d bytes: expected ErrCorruptModel, got %v", n, err)
		}
	}
}

func TestDeserializeVectorData_CountMismatch(t *testing.T) {
	tests := []struct {
		name  string
		count uint64
		body  int
	}{
		{name: "oversized", count: 1 << 40, body: 16},
		{name: "short", count: 3, body: 16},
		{name: "long", count: 1, body: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := make([]byte, 8+tt.body)
			binary.LittleEndian.PutUint64(d, tt.count)
			if _, err := deserializeVectorData(d); err == nil {
				t.Error("expected an error")
			}
		})
	}

	d := make([]byte, 8+16)
	binary.LittleEndian.PutUint64(d, 2)
	v, err := deserializeVectorData(d)
	if err != nil || len(v) != 2 {
		t.Errorf("deserializeVectorData() = %v, %v; want 2 zero values", v, err)
	}
}

func FuzzDeserializeModel(f *testing.F) {
	valid := serializedModel(f)
	f.Add(valid)
	f.Add(valid[:len(valid)/2])
	f.Add([]byte("not a model"))

	f.Fuzz(func(t *testing.T, data []byte) {
		m, err := DeserializeModel(data)
		if err != nil {
			if !errors.Is(err, ErrCorruptModel) {
				t.Fatalf("error %v does not match ErrCorruptModel", err)
			}
			return
		}
		if len(m.Vectors) != len(m.Labels) || m.K < 1 || m.Dim < 1 {
			t.Fatalf("decoded inconsistent model: k=%d dim=%d %d labels %d vectors",
				m.K, m.Dim, len(m.Labels), len(m.Vectors))
		}
		for i, v := range m.Vectors {
			if len(v) != m.Dim {
				t.Fatalf("vector %d has %d values, want %d", i, len(v), m.Dim)
			}
		}
	})
}

func TestLoadModel_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadModel(filepath.Join(dir, "missing.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}

	corrupt := filepath.Join(dir, "corrupt.bin")
	if err := os.WriteFile(corrupt, []byte("not a model"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(corrupt); !errors.Is(err, ErrCorruptModel) {
		t.Errorf("expected ErrCorruptModel, got %v", err)
	}

	e := NewEngine()
	if err := e.Load(corrupt); err == nil {
		t.Error("expected Load to fail")
	}
	if e.Ready() {
		t.Error("failed load must leave engine not ready")
	}
}

func TestModelDir_Publish(t *testing.T) {
	dir := NewModelDir(t.TempDir())

	if _, err := dir.LoadCurrent(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist before first publish, got %v", err)
	}

	trainer := NewTrainer(3)
	first, _ := trainer.Fit(cluster("a", 0.1, 3))
	second, _ := trainer.Fit(append(cluster("a", 0.1, 3), cluster("b", 0.6, 3)...))

	firstPath, err := dir.Publish(first)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, err := dir.Publish(second); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	current, err := dir.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current != second.Version {
		t.Errorf("current = %s, want %s", current, second.Version)
	}

	loaded, err := dir.LoadCurrent()
	if err != nil {
		t.Fatalf("LoadCurrent() error = %v", err)
	}
	if len(loaded.Classes()) != 2 {
		t.Errorf("expected the second model to be current, got classes %v", loaded.Classes())
	}

	old, err := LoadModel(firstPath)
	if err != nil {
		t.Fatalf("prior version should remain readable: %v", err)
	}
	if old.Version != first.Version {
		t.Errorf("prior version file changed: %s", old.Version)
	}
}

func TestEngine_Swap(t *testing.T) {
	e := trainedEngine(t, cluster("a", 0.1, 3))

	before, _ := e.Predict(point(0.9))
	if before.Label != "a" {
		t.Fatalf("expected 'a' before swap, got %q", before.Label)
	}

	m, _ := NewTrainer(3).Fit(append(cluster("a", 0.1, 3), cluster("b", 0.9, 3)...))
	if err := e.Swap(m); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}

	after, _ := e.Predict(point(0.9))
	if after.Label != "b" {
		t.Errorf("expected 'b' after swap, got %q", after.Label)
	}
	if after.ModelVersion != m.Version {
		t.Errorf("expected model version %s, got %s", m.Version, after.ModelVersion)
	}

	if err := e.Swap(&Model{Dim: 3}); !errors.Is(err, ErrCorruptModel) {
		t.Errorf("expected ErrCorruptModel for wrong dimension, got %v", err)
	}
	zeroK := &Model{K: 0, Dim: features.Dim, Labels: []string{"a"}, Vectors: [][]float64{point(0.1)}}
	if err := e.Swap(zeroK); !errors.Is(err, ErrCorruptModel) {
		t.Errorf("expected ErrCorruptModel for k=0, got %v", err)
	}
	if e.Model() != m {
		t.Error("rejected swap must keep the previous model")
	}
}
