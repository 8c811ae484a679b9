package store

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory document store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]storedDocument // graphID -> document
	closed bool
}

// storedDocument holds serialized document bytes with metadata for List().
type storedDocument struct {
	name      string
	data      []byte
	updatedAt time.Time
}

// NewMemoryStore creates a new in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]storedDocument),
	}
}

// SaveGraph implements Store.
func (m *MemoryStore) SaveGraph(doc *Document) error {
	if doc == nil || doc.GraphID == "" {
		return ErrInvalidDocument
	}

	// Serialize outside the lock; Marshal stamps version and save time.
	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.docs[doc.GraphID] = storedDocument{
		name:      doc.Name,
		data:      data,
		updatedAt: doc.SavedAt,
	}
	return nil
}

// LoadGraph implements Store.
func (m *MemoryStore) LoadGraph(graphID string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	stored, ok := m.docs[graphID]
	if !ok {
		return nil, ErrNotFound
	}

	// Deserializing yields a fresh document, so callers can't mutate
	// stored state.
	return UnmarshalDocument(stored.data)
}

// List implements Store.
func (m *MemoryStore) List() ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.docs))
	for graphID, stored := range m.docs {
		infos = append(infos, Info{
			GraphID:   graphID,
			Name:      stored.name,
			UpdatedAt: stored.updatedAt,
			Size:      int64(len(stored.data)),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Name != infos[j].Name {
			return infos[i].Name < infos[j].Name
		}
		return infos[i].GraphID < infos[j].GraphID
	})

	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(graphID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.docs, graphID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.docs = nil
	return nil
}

// Len returns the number of stored documents.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.docs)
}
