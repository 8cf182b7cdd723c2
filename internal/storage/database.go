// Package storage is the SQLite knowledge-graph backend: entities with a
// markdown description and the relations between them.
package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the knowledge-graph tables. It is idempotent.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			description TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS relations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id TEXT NOT NULL,
			predicate TEXT NOT NULL,
			object_id TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (subject_id) REFERENCES entities(id) ON DELETE CASCADE,
			FOREIGN KEY (object_id) REFERENCES entities(id) ON DELETE CASCADE,
			UNIQUE (subject_id, predicate, object_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_relations_subject ON relations(subject_id);`,
		`CREATE INDEX IF NOT EXISTS idx_relations_object ON relations(object_id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
