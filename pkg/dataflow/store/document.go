package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// FormatVersion is the document format written by this package.
//
// Version history:
//
//	1: nodes and links only
//	2: per-node state and config
//	3: disabled behavior, editor positions, widget extras
//
// Documents with older versions load with defaults for the missing
// fields. Documents with newer versions are rejected.
const FormatVersion = 3

// Document is the serialized form of a graph. It captures everything
// needed to rebuild the graph against a node catalog: node snapshots
// with their configuration and state, plus the links between ports.
type Document struct {
	Version int            `json:"version"`
	GraphID string         `json:"graph_id"`
	Name    string         `json:"name,omitempty"`
	Nodes   []NodeSnapshot `json:"nodes"`
	Links   []LinkRecord   `json:"links"`
	SavedAt time.Time      `json:"saved_at"`
}

// NodeSnapshot is the serialized form of a single node.
type NodeSnapshot struct {
	ID string `json:"id"`

	// Type is the catalog path used to re-instantiate the node,
	// e.g. "math/add" or "image/blur".
	Type string `json:"type"`

	Name string `json:"name,omitempty"`

	// State is the node's saved state name: "normal", "disabled" or
	// "passthrough". A running state is never persisted.
	State string `json:"state,omitempty"`

	// DisabledBehavior is the node's disabled-output policy name.
	DisabledBehavior string `json:"disabled_behavior,omitempty"`

	// Manual marks nodes that only recompute on an explicit trigger.
	Manual bool `json:"manual,omitempty"`

	// PortDefaults holds per-port fallback values keyed by port name.
	PortDefaults map[string]any `json:"port_defaults,omitempty"`

	// Config holds widget and parameter values.
	Config map[string]any `json:"config,omitempty"`

	// Extras holds opaque state contributed by a node's snapshot hook,
	// handed back verbatim to its restore hook. The engine never
	// interprets it.
	Extras map[string]any `json:"extras,omitempty"`

	// Position is the node's editor placement (x, y).
	Position [2]float64 `json:"position"`
}

// LinkRecord is the serialized form of a connection between two ports.
type LinkRecord struct {
	SourceID   string `json:"source_id"`
	SourcePort string `json:"source_port"`
	TargetID   string `json:"target_id"`
	TargetPort string `json:"target_port"`
}

// Marshal serializes the document as JSON, stamping the current format
// version and save time.
func (d *Document) Marshal() ([]byte, error) {
	d.Version = FormatVersion
	d.SavedAt = time.Now().UTC()

	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// UnmarshalDocument parses a serialized document and checks its format
// version. Older versions are accepted; missing fields take their zero
// values and the engine applies defaults on restore.
func UnmarshalDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	if doc.Version > FormatVersion {
		return nil, fmt.Errorf("document format version %d is newer than supported version %d", doc.Version, FormatVersion)
	}
	if doc.Version < 1 {
		return nil, fmt.Errorf("document has no format version")
	}

	return &doc, nil
}

// Validate checks the document for internal consistency: a graph ID,
// unique node IDs, and links that reference declared nodes.
func (d *Document) Validate() error {
	if d.GraphID == "" {
		return fmt.Errorf("%w: missing graph id", ErrInvalidDocument)
	}

	seen := make(map[string]struct{}, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node with empty id", ErrInvalidDocument)
		}
		if n.Type == "" {
			return fmt.Errorf("%w: node %q has no type", ErrInvalidDocument, n.ID)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidDocument, n.ID)
		}
		seen[n.ID] = struct{}{}
	}

	for _, l := range d.Links {
		if _, ok := seen[l.SourceID]; !ok {
			return fmt.Errorf("%w: link references unknown source node %q", ErrInvalidDocument, l.SourceID)
		}
		if _, ok := seen[l.TargetID]; !ok {
			return fmt.Errorf("%w: link references unknown target node %q", ErrInvalidDocument, l.TargetID)
		}
		if l.SourcePort == "" || l.TargetPort == "" {
			return fmt.Errorf("%w: link %s -> %s has empty port name", ErrInvalidDocument, l.SourceID, l.TargetID)
		}
	}

	return nil
}
