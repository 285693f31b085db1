package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ayusman/signify/internal/features"
)

// ErrInvalidSample is returned when a sample is rejected before it is stored.
// Shape problems also match features.ErrMalformed.
var ErrInvalidSample = errors.New("invalid sample")

// Sample is one labeled feature vector collected for training.
type Sample struct {
	Seq       int64           `json:"seq"`
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	Vector    features.Vector `json:"vector"`
	SessionID string          `json:"session_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// LabelCount is the number of stored samples for one label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SampleRepository provides append-only access to collected samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// NormalizeLabel trims surrounding whitespace from a sign label.
func NormalizeLabel(label string) string {
	return strings.TrimSpace(label)
}

// checkSample validates a label/vector pair before it reaches the database.
func checkSample(label string, v features.Vector) error {
	if label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidSample)
	}
	if err := features.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSample, err)
	}
	return nil
}

// Append stores one labeled vector as an independent row. Each call commits on
// its own so an interrupted collection keeps everything appended so far.
func (r *SampleRepository) Append(label string, v features.Vector, sessionID string) (*Sample, error) {
	label = NormalizeLabel(label)
	if err := checkSample(label, v); err != nil {
		return nil, err
	}

	blob, err := msgpack.Marshal([]float64(v))
	if err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}

	sample := &Sample{
		ID:        uuid.NewString(),
		Label:     label,
		Vector:    append(features.Vector(nil), v...),
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}

	result, err := r.db.Exec(
		`INSERT INTO samples (id, label, vector, session_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		sample.ID, sample.Label, blob, sample.SessionID, sample.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sample.Seq, err = result.LastInsertId(); err != nil {
		return nil, err
	}

	return sample, nil
}

// All returns every stored sample in collection order.
func (r *SampleRepository) All() ([]Sample, error) {
	return r.query(`SELECT seq, id, label, vector, session_id, created_at FROM samples ORDER BY seq`)
}

// ByLabel returns the samples stored for one label in collection order.
func (r *SampleRepository) ByLabel(label string) ([]Sample, error) {
	return r.query(
		`SELECT seq, id, label, vector, session_id, created_at FROM samples WHERE label = ? ORDER BY seq`,
		NormalizeLabel(label),
	)
}

func (r *SampleRepository) query(q string, args ...any) ([]Sample, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var blob []byte
		if err := rows.Scan(&s.Seq, &s.ID, &s.Label, &blob, &s.SessionID, &s.CreatedAt); err != nil {
			return nil, err
		}

		if s.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.ID, err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

func decodeVector(blob []byte) (features.Vector, error) {
	var values []float64
	if err := msgpack.Unmarshal(blob, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := features.Validate(values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return features.Vector(values), nil
}

// Count returns the total number of stored samples.
func (r *SampleRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&n)
	return n, err
}

// Counts returns the number of samples per label, ordered by label.
func (r *SampleRepository) Counts() ([]LabelCount, error) {
	rows, err := r.db.Query(`SELECT label, COUNT(*) FROM samples GROUP BY label ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []LabelCount
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// Replace swaps the whole dataset for samples in a single transaction.
// Every sample is validated before anything is written.
func (r *SampleRepository) Replace(samples []Sample) error {
	blobs := make([][]byte, len(samples))
	for i := range samples {
		samples[i].Label = NormalizeLabel(samples[i].Label)
		if err := checkSample(samples[i].Label, samples[i].Vector); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		blob, err := msgpack.Marshal([]float64(samples[i].Vector))
		if err != nil {
			return fmt.Errorf("encode sample %d: %w", i, err)
		}
		blobs[i] = blob
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM samples`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (id, label, vector, session_id, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i, s := range samples {
		id := s.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := s.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.Exec(id, s.Label, blobs[i], s.SessionID, createdAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteAll removes the whole dataset and returns how many samples were deleted.
func (r *SampleRepository) DeleteAll() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM samples`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteLabel removes every sample of one label.
// Returns ErrNotFound if the label has no samples.
func (r *SampleRepository) DeleteLabel(label string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM samples WHERE label = ?`, NormalizeLabel(label))
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}
