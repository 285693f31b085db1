// Package classifier trains and serves the k-nearest-neighbor sign classifier.
//
// A Model is an immutable snapshot of the training set. The Trainer produces
// Models, ModelDir persists them as versioned files, and the Engine answers
// predictions against whichever Model is currently loaded.
package classifier

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
	var l labelList
	serializer.RegisterTypedDeserializer(l.SerializerType(), deserializeLabelList)
	var v vectorData
	serializer.RegisterTypedDeserializer(v.SerializerType(), deserializeVectorData)
}

// ErrCorruptModel is returned when a model file cannot be read or decoded.
var ErrCorruptModel = errors.New("corrupt model")

// DefaultK is the number of neighbors consulted per prediction.
const DefaultK = 3

// Model is a trained nearest-neighbor classifier. Labels[i] is the label of
// Vectors[i]. A Model is never modified after training.
type Model struct {
	Version   string
	K         int
	Dim       int
	Labels    []string
	Vectors   [][]float64
	CreatedAt time.Time
}

// Classes returns the distinct labels known to the model in sorted order.
func (m *Model) Classes() []string {
	seen := make(map[string]bool)
	var classes []string
	for _, l := range m.Labels {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	sort.Strings(classes)
	return classes
}

// SerializerType returns the unique ID used to serialize a Model with the
// serializer package.
func (m *Model) SerializerType() string {
	return "github.com/ayusman/signify/internal/classifier.Model"
}

// Serialize encodes the model. Vectors are flattened row by row.
func (m *Model) Serialize() ([]byte, error) {
	flat := make([]float64, 0, len(m.Vectors)*m.Dim)
	for i, v := range m.Vectors {
		if len(v) != m.Dim {
			return nil, fmt.Errorf("serialize model: vector %d has %d values, want %d", i, len(v), m.Dim)
		}
		flat = append(flat, v...)
	}

	return serializer.SerializeAny(
		serializer.String(m.Version),
		m.K,
		m.Dim,
		serializer.Int(m.CreatedAt.UnixNano()),
		labelList(m.Labels),
		vectorData(flat),
	)
}

// DeserializeModel decodes a Model produced by Serialize. Malformed input
// yields an error matching ErrCorruptModel, never a panic.
func DeserializeModel(d []byte) (m *Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("%w: deserialize Model: %v", ErrCorruptModel, r)
		}
	}()

	var version serializer.String
	var k, dim int
	var created serializer.Int
	var labels labelList
	var flat vectorData

	if err := serializer.DeserializeAny(d, &version, &k, &dim, &created, &labels, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, essentials.AddCtx("deserialize Model", err))
	}

	if k < 1 || dim < 1 {
		return nil, fmt.Errorf("%w: deserialize Model: invalid k=%d dim=%d", ErrCorruptModel, k, dim)
	}
	if (len(labels) > 0 && dim > len(flat)) || len(flat) != len(labels)*dim {
		return nil, fmt.Errorf("%w: deserialize Model: %d values for %d labels of dim %d",
			ErrCorruptModel, len(flat), len(labels), dim)
	}

	m = &Model{
		Version:   string(version),
		K:         k,
		Dim:       dim,
		Labels:    []string(labels),
		Vectors:   make([][]float64, len(labels)),
		CreatedAt: time.Unix(0, int64(created)),
	}
	for i := range m.Vectors {
		m.Vectors[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
	}

	return m, nil
}

// Save writes the model to path atomically. Readers of path see either the
// previous file or the complete new one.
func (m *Model) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := serializer.SaveAny(tmpPath, m); err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("install model: %w", err)
	}
	return nil
}

// LoadModel reads a model file written by Save.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m, err := decodeModelFile(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptModel, path, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s: empty model", ErrCorruptModel, path)
	}
	return m, nil
}

// decodeModelFile decodes the bytes written by SaveAny. The serializer
// package trusts length fields read from the data, so a damaged file can
// panic inside it; that panic is returned as an error.
func decodeModelFile(data []byte) (m *Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("decode: %v", r)
		}
	}()

	if err := serializer.DeserializeAny(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// currentFile names the file that points at the active model version.
const currentFile = "current"

// ModelDir stores versioned model files. Each published model is written to
// its own model-<version>.bin; the current file names the active one.
type ModelDir struct {
	Dir string
}

// NewModelDir returns a ModelDir rooted at dir.
func NewModelDir(dir string) *ModelDir {
	return &ModelDir{Dir: dir}
}

// PathFor returns the file path for a model version.
func (d *ModelDir) PathFor(version string) string {
	return filepath.Join(d.Dir, "model-"+version+".bin")
}

// Publish writes m as a new version file and then makes it current.
// Previously published versions are left on disk unchanged.
func (d *ModelDir) Publish(m *Model) (string, error) {
	if m.Version == "" {
		return "", fmt.Errorf("publish model: empty version")
	}

	path := d.PathFor(m.Version)
	if err := m.Save(path); err != nil {
		return "", err
	}

	if err := writeFileAtomic(filepath.Join(d.Dir, currentFile), []byte(m.Version+"\n")); err != nil {
		return "", fmt.Errorf("update current model: %w", err)
	}

	return path, nil
}

// Current returns the active model version. The error matches os.ErrNotExist
// if no model has been published.
func (d *ModelDir) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(d.Dir, currentFile))
	if err != nil {
		return "", err
	}

	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("%w: empty current pointer", ErrCorruptModel)
	}
	return version, nil
}

// LoadCurrent loads the active model.
func (d *ModelDir) LoadCurrent() (*Model, error) {
	version, err := d.Current()
	if err != nil {
		return nil, err
	}

	m, err := LoadModel(d.PathFor(version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: current version %s has no model file", ErrCorruptModel, version)
		}
		return nil, err
	}
	return m, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".current-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// labelList serializes the per-vector labels of a Model.
type labelList []string

func (l labelList) SerializerType() string {
	return "github.com/ayusman/signify/internal/classifier.labelList"
}

func (l labelList) Serialize() ([]byte, error) {
	slice := make([]serializer.Serializer, len(l))
	for i, s := range l {
		slice[i] = serializer.String(s)
	}
	return serializer.SerializeSlice(slice)
}

func deserializeLabelList(d []byte) (labelList, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize label list", err)
	}

	res := make(labelList, len(slice))
	for i, x := range slice {
		s, ok := x.(serializer.String)
		if !ok {
			return nil, fmt.Errorf("deserialize label list: not a String: %T", x)
		}
		res[i] = string(s)
	}
	return res, nil
}

// vectorData holds the flattened training vectors. It is encoded like
// serializer.Float64Slice, but the element count is checked against the
// data before anything is allocated.
type vectorData []float64

func (v vectorData) SerializerType() string {
	return "github.com/ayusman/signify/internal/classifier.vectorData"
}

func (v vectorData) Serialize() ([]byte, error) {
	return serializer.Float64Slice(v).Serialize()
}

func deserializeVectorData(d []byte) (vectorData, error) {
	if len(d) < 8 {
		return nil, essentials.AddCtx("deserialize vector data", serializer.ErrBufferUnderflow)
	}
	if n := binary.LittleEndian.Uint64(d); n != uint64(len(d)-8)/8 {
		return nil, fmt.Errorf("deserialize vector data: %d values in %d bytes", n, len(d)-8)
	}
	vec, err := serializer.DeserializeFloat64Slice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize vector data", err)
	}
	return vectorData(vec), nil
}
