package store

import (
	"database/sql"
	"errors"
	"time"
)

// ModelVersion records one trained model artifact.
type ModelVersion struct {
	Version   string    `json:"version"`
	Path      string    `json:"path"`
	K         int       `json:"k"`
	Samples   int       `json:"samples"`
	Labels    int       `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelRepository provides access to the model version ledger.
type ModelRepository struct {
	db *sql.DB
}

// Models returns the model repository for this store.
func (s *Store) Models() *ModelRepository {
	return &ModelRepository{db: s.db}
}

// Record inserts a ledger entry for a newly trained model.
func (r *ModelRepository) Record(m *ModelVersion) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO models (version, path, k, samples, labels, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.Version, m.Path, m.K, m.Samples, m.Labels, m.CreatedAt,
	)
	return err
}

// Get retrieves a ledger entry by version.
func (r *ModelRepository) Get(version string) (*ModelVersion, error) {
	m := &ModelVersion{}
	err := r.db.QueryRow(
		`SELECT version, path, k, samples, labels, created_at FROM models WHERE version = ?`,
		version,
	).Scan(&m.Version, &m.Path, &m.K, &m.Samples, &m.Labels, &m.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// Latest returns the most recently recorded model.
func (r *ModelRepository) Latest() (*ModelVersion, error) {
	m := &ModelVersion{}
	err := r.db.QueryRow(
		`SELECT version, path, k, samples, labels, created_at FROM models ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&m.Version, &m.Path, &m.K, &m.Samples, &m.Labels, &m.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// List returns all recorded models, newest first.
func (r *ModelRepository) List() ([]*ModelVersion, error) {
	rows, err := r.db.Query(
		`SELECT version, path, k, samples, labels, created_at FROM models ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*ModelVersion
	for rows.Next() {
		m := &ModelVersion{}
		if err := rows.Scan(&m.Version, &m.Path, &m.K, &m.Samples, &m.Labels, &m.CreatedAt); err != nil {
			return nil, err
		}
		models = append(models, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return models, nil
}
