package store_test

import (
	"testing"
	"time"

	"github.com/randalmurphal/dataflow/pkg/dataflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) store.Store

// testDocument builds a small two-node document for contract tests.
func testDocument(graphID, name string) *store.Document {
	return &store.Document{
		GraphID: graphID,
		Name:    name,
		Nodes: []store.NodeSnapshot{
			{
				ID:     "const",
				Type:   "math/constant",
				State:  "normal",
				Config: map[string]any{"value": 42.0},
			},
			{
				ID:               "double",
				Type:             "math/multiply",
				State:            "disabled",
				DisabledBehavior: "use_last_valid",
				Position:         [2]float64{120, 40},
			},
		},
		Links: []store.LinkRecord{
			{SourceID: "const", SourcePort: "out", TargetID: "double", TargetPort: "a"},
		},
	}
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		doc := testDocument("graph-1", "pipeline")
		require.NoError(t, s.SaveGraph(doc))

		loaded, err := s.LoadGraph("graph-1")
		require.NoError(t, err)
		assert.Equal(t, "graph-1", loaded.GraphID)
		assert.Equal(t, "pipeline", loaded.Name)
		assert.Equal(t, store.FormatVersion, loaded.Version)
		assert.False(t, loaded.SavedAt.IsZero())

		require.Len(t, loaded.Nodes, 2)
		assert.Equal(t, "const", loaded.Nodes[0].ID)
		assert.Equal(t, "math/constant", loaded.Nodes[0].Type)
		assert.Equal(t, 42.0, loaded.Nodes[0].Config["value"])
		assert.Equal(t, "disabled", loaded.Nodes[1].State)
		assert.Equal(t, "use_last_valid", loaded.Nodes[1].DisabledBehavior)
		assert.Equal(t, [2]float64{120, 40}, loaded.Nodes[1].Position)

		require.Len(t, loaded.Links, 1)
		assert.Equal(t, "const", loaded.Links[0].SourceID)
		assert.Equal(t, "a", loaded.Links[0].TargetPort)
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.LoadGraph("nonexistent")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/Save_Overwrite", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.SaveGraph(testDocument("graph-1", "first")))
		require.NoError(t, s.SaveGraph(testDocument("graph-1", "second")))

		loaded, err := s.LoadGraph("graph-1")
		require.NoError(t, err)
		assert.Equal(t, "second", loaded.Name)

		infos, err := s.List()
		require.NoError(t, err)
		assert.Len(t, infos, 1)
	})

	t.Run(name+"/Save_Invalid", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		err := s.SaveGraph(nil)
		assert.ErrorIs(t, err, store.ErrInvalidDocument)

		err = s.SaveGraph(&store.Document{Name: "no id"})
		assert.ErrorIs(t, err, store.ErrInvalidDocument)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		infos, err := s.List()
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run(name+"/List_OrderedByName", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.SaveGraph(testDocument("g-z", "zebra")))
		require.NoError(t, s.SaveGraph(testDocument("g-a", "alpha")))
		require.NoError(t, s.SaveGraph(testDocument("g-m", "mango")))

		infos, err := s.List()
		require.NoError(t, err)
		require.Len(t, infos, 3)

		assert.Equal(t, "alpha", infos[0].Name)
		assert.Equal(t, "mango", infos[1].Name)
		assert.Equal(t, "zebra", infos[2].Name)

		for _, info := range infos {
			assert.False(t, info.UpdatedAt.IsZero())
			assert.Greater(t, info.Size, int64(0))
		}
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.SaveGraph(testDocument("graph-1", "doomed")))
		require.NoError(t, s.Delete("graph-1"))

		_, err := s.LoadGraph("graph-1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/Delete_Nonexistent", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		// Should not error when deleting nonexistent
		err := s.Delete("nonexistent")
		assert.NoError(t, err)
	})

	t.Run(name+"/LoadedDocumentIsIsolated", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.SaveGraph(testDocument("graph-1", "original")))

		loaded, err := s.LoadGraph("graph-1")
		require.NoError(t, err)

		// Mutate the loaded copy
		loaded.Name = "mutated"
		loaded.Nodes[0].Config["value"] = 99.0

		// A second load should be untouched
		again, err := s.LoadGraph("graph-1")
		require.NoError(t, err)
		assert.Equal(t, "original", again.Name)
		assert.Equal(t, 42.0, again.Nodes[0].Config["value"])
	})

	t.Run(name+"/Close_ThenError", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Close())

		err := s.SaveGraph(testDocument("graph-1", "late"))
		assert.ErrorIs(t, err, store.ErrStoreClosed)

		_, err = s.LoadGraph("graph-1")
		assert.ErrorIs(t, err, store.ErrStoreClosed)

		_, err = s.List()
		assert.ErrorIs(t, err, store.ErrStoreClosed)
	})

	t.Run(name+"/UpdatedAtAdvances", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.SaveGraph(testDocument("graph-1", "v1")))
		first, err := s.List()
		require.NoError(t, err)
		require.Len(t, first, 1)

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, s.SaveGraph(testDocument("graph-1", "v2")))

		second, err := s.List()
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.True(t, second[0].UpdatedAt.After(first[0].UpdatedAt))
	})
}

// TestMemoryStore runs contract tests against MemoryStore.
func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	}
	storeContractTest(t, "MemoryStore", factory)
}

// TestSQLiteStore runs contract tests against SQLiteStore.
func TestSQLiteStore(t *testing.T) {
	factory := func(t *testing.T) store.Store {
		s, err := store.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return s
	}
	storeContractTest(t, "SQLiteStore", factory)
}

// TestMemoryStoreLen verifies the test helper.
func TestMemoryStoreLen(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	assert.Equal(t, 0, s.Len())
	require.NoError(t, s.SaveGraph(testDocument("a", "a")))
	require.NoError(t, s.SaveGraph(testDocument("b", "b")))
	assert.Equal(t, 2, s.Len())
}

// TestSQLiteStoreFile verifies persistence across store instances.
func TestSQLiteStoreFile(t *testing.T) {
	path := t.TempDir() + "/graphs.db"

	s1, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.SaveGraph(testDocument("graph-1", "persisted")))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	loaded, err := s2.LoadGraph("graph-1")
	require.NoError(t, err)
	assert.Equal(t, "persisted", loaded.Name)
}
