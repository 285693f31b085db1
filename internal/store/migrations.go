package store

import "fmt"

// migrations are applied in order. PRAGMA user_version records how many have
// run, so entries are only ever appended.
var migrations = []string{
	// 1: samples, one labeled feature vector per row in collection order
	`CREATE TABLE samples (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		label TEXT NOT NULL CHECK(length(label) > 0),
		vector BLOB NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX idx_samples_label ON samples(label);
	CREATE INDEX idx_samples_session_id ON samples(session_id)`,

	// 2: ledger of trained model artifacts
	`CREATE TABLE models (
		version TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		k INTEGER NOT NULL,
		samples INTEGER NOT NULL,
		labels INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX idx_models_created_at ON models(created_at)`,
}

// runMigrations applies every migration newer than the database's
// user_version, each in its own transaction.
func (s *Store) runMigrations() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this build (%d)", current, len(migrations))
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bound parameters
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
