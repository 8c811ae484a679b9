// Package store provides persistent storage for graph documents.
package store

import (
	"errors"
	"time"
)

// Store persists graph documents. Implementations must be safe for
// concurrent use.
type Store interface {
	// SaveGraph stores a document, overwriting any document with the
	// same graph ID.
	SaveGraph(doc *Document) error

	// LoadGraph retrieves a document by graph ID.
	// Returns ErrNotFound if no document exists.
	LoadGraph(graphID string) (*Document, error)

	// List returns metadata for all stored documents, ordered by name.
	// Returns an empty slice (not an error) if the store is empty.
	List() ([]Info, error)

	// Delete removes a document.
	// Returns nil if the document doesn't exist.
	Delete(graphID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides document metadata without loading the full document.
type Info struct {
	GraphID   string
	Name      string
	UpdatedAt time.Time
	Size      int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a document doesn't exist.
	ErrNotFound = errors.New("graph document not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("graph store closed")

	// ErrInvalidDocument indicates a document that cannot be saved,
	// such as a nil document or one without a graph ID.
	ErrInvalidDocument = errors.New("invalid graph document")
)
