package catalog

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/store"
	"github.com/randalmurphal/dataflow/pkg/dataflow/types"
)

// Restore rebuilds a live graph from a saved document. Each node is
// re-instantiated from its catalog type, then overlaid with the saved
// state, policy, defaults, and parameters. Links are rewired without
// type validation: the document came from a graph that already passed
// it, and a catalog revision that changed port types should not brick
// old saves. Every restored node comes back dirty, so the first pull
// recomputes instead of trusting values from another process.
func (c *Catalog) Restore(doc *store.Document, reg *types.Registry) (*dataflow.Graph, error) {
	if doc == nil {
		return nil, errors.New("catalog: document cannot be nil")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	g := dataflow.NewGraphWithID(doc.GraphID, doc.Name, reg)
	for _, snap := range doc.Nodes {
		n, err := c.Instantiate(snap.Type, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("restore node %s: %w", snap.ID, err)
		}
		if err := n.RestoreSnapshot(snap); err != nil {
			return nil, fmt.Errorf("restore node %s: %w", snap.ID, err)
		}
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("restore node %s: %w", snap.ID, err)
		}
	}
	for _, l := range doc.Links {
		_, err := g.Connect(l.SourceID, l.SourcePort, l.TargetID, l.TargetPort,
			dataflow.WithoutValidation(), dataflow.WithoutDirtyMark())
		if err != nil {
			return nil, fmt.Errorf("restore link %s.%s -> %s.%s: %w",
				l.SourceID, l.SourcePort, l.TargetID, l.TargetPort, err)
		}
	}
	return g, nil
}

// Load fetches a saved graph from the store and restores it.
func (c *Catalog) Load(st store.Store, graphID string, reg *types.Registry) (*dataflow.Graph, error) {
	doc, err := st.LoadGraph(graphID)
	if err != nil {
		return nil, err
	}
	return c.Restore(doc, reg)
}
