package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists graph documents to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite document store.
// The path should be a file path (e.g., "./graphs.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS graphs (
			graph_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_graphs_name
		ON graphs(name)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveGraph implements Store.
func (s *SQLiteStore) SaveGraph(doc *Document) error {
	if doc == nil || doc.GraphID == "" {
		return ErrInvalidDocument
	}

	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err = s.db.Exec(`
		INSERT INTO graphs (graph_id, name, updated_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(graph_id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at,
			data = excluded.data
	`, doc.GraphID, doc.Name, doc.SavedAt.Format(time.RFC3339Nano), data)

	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// LoadGraph implements Store.
func (s *SQLiteStore) LoadGraph(graphID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRow(`
		SELECT data FROM graphs WHERE graph_id = ?
	`, graphID).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	return UnmarshalDocument(data)
}

// List implements Store.
func (s *SQLiteStore) List() ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT graph_id, name, updated_at, LENGTH(data)
		FROM graphs
		ORDER BY name, graph_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	infos := make([]Info, 0)
	for rows.Next() {
		var info Info
		var updatedAt string
		if err := rows.Scan(&info.GraphID, &info.Name, &updatedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan document info: %w", err)
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`DELETE FROM graphs WHERE graph_id = ?`, graphID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
