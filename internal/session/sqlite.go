package session

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend keeps each session document as a JSON column in one row.
// project, updated_at and completed are copied out of the document so they
// can be inspected with plain SQL.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens the SQLite database at dbPath and creates tables if they don't exist.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		document TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project, updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Save(s *Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}

	_, err = b.db.Exec(
		`INSERT INTO sessions (id, project, completed, document, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   project = excluded.project,
		   completed = excluded.completed,
		   document = excluded.document,
		   updated_at = excluded.updated_at`,
		s.ID, s.ProjectName, s.Completed, string(data), s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Load(id string) (*Session, error) {
	var doc string
	err := b.db.QueryRow(`SELECT document FROM sessions WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return decode(id, []byte(doc))
}

func (b *SQLiteBackend) LoadAll(skip func(ref string, err error)) ([]*Session, error) {
	rows, err := b.db.Query(`SELECT id, document FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s, decodeErr := decode(id, []byte(doc))
		if decodeErr != nil {
			if skip != nil {
				skip(id, decodeErr)
			}
			continue
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return sessions, nil
}

func (b *SQLiteBackend) Delete(id string) error {
	if _, err := b.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
