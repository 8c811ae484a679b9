package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/config"
)

// Sentinel errors for catalog operations.
var (
	// ErrTypeExists indicates a registration under an already-taken path.
	ErrTypeExists = errors.New("catalog: type already registered")

	// ErrTypeNotFound indicates a lookup of an unregistered path.
	ErrTypeNotFound = errors.New("catalog: type not found")
)

// Factory builds the node for one catalog entry. It returns the builder
// rather than a finished node: the catalog completes it, stamping the
// type path for persistence and the disabled-output policy.
type Factory func(id string) *dataflow.NodeBuilder

// Definition describes one node type available to the editor.
type Definition struct {
	// Path uniquely identifies the type and places it in the category
	// tree, e.g. "math/add" or "image/filter/blur". The final segment is
	// the type name; everything before it is the category.
	Path string

	// Name is the display name shown in menus and search results.
	// Defaults to the final path segment.
	Name string

	// Description is a short human-readable summary.
	Description string

	// Keywords are extra search terms beyond name and category.
	Keywords []string

	// Behavior optionally names the disabled-output policy for instances
	// of this type ("use_last_valid", "use_none", "use_default",
	// "propagate"). Empty means the catalog default applies.
	Behavior string

	// Factory builds a node of this type.
	Factory Factory
}

// Category returns the path with the final segment removed. Paths
// without a slash fall in the empty category.
func (d Definition) Category() string {
	if i := strings.LastIndex(d.Path, "/"); i >= 0 {
		return d.Path[:i]
	}
	return ""
}

// TypeName returns the final path segment.
func (d Definition) TypeName() string {
	if i := strings.LastIndex(d.Path, "/"); i >= 0 {
		return d.Path[i+1:]
	}
	return d.Path
}

// Catalog is the registry of node types an editor can instantiate,
// organized by category path and searchable by name, category, keywords,
// and description.
//
// All methods are safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	defs     map[string]Definition
	behavior dataflow.DisabledBehavior
}

// Option adjusts catalog construction.
type Option func(*Catalog)

// WithDefaultBehavior sets the disabled-output policy stamped on
// instantiated nodes whose definition does not choose its own.
func WithDefaultBehavior(b dataflow.DisabledBehavior) Option {
	return func(c *Catalog) { c.behavior = b }
}

// New creates an empty catalog. The instantiation default for the
// disabled-output policy is UseLastValid unless overridden.
func New(opts ...Option) *Catalog {
	c := &Catalog{defs: make(map[string]Definition)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromSettings creates a catalog whose instantiation default follows the
// engine settings' disabled behavior.
func FromSettings(s config.Settings) (*Catalog, error) {
	b, err := dataflow.ParseDisabledBehavior(s.DisabledBehavior)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return New(WithDefaultBehavior(b)), nil
}

// Register adds a node type under its path.
func (c *Catalog) Register(def Definition) error {
	if def.Path == "" {
		return errors.New("catalog: definition path cannot be empty")
	}
	for _, seg := range strings.Split(def.Path, "/") {
		if seg == "" {
			return fmt.Errorf("catalog: malformed path %q", def.Path)
		}
	}
	if def.Factory == nil {
		return fmt.Errorf("catalog: definition %s has no factory", def.Path)
	}
	if def.Behavior != "" {
		if _, err := dataflow.ParseDisabledBehavior(def.Behavior); err != nil {
			return fmt.Errorf("catalog: definition %s: %w", def.Path, err)
		}
	}
	if def.Name == "" {
		def.Name = def.TypeName()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.defs[def.Path]; dup {
		return fmt.Errorf("%w: %s", ErrTypeExists, def.Path)
	}
	c.defs[def.Path] = def
	return nil
}

// MustRegister is Register panicking on error, for package-level
// registration of node definitions where a failure is a programming
// error.
func (c *Catalog) MustRegister(def Definition) {
	if err := c.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition registered under a path.
func (c *Catalog) Lookup(path string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[path]
	return def, ok
}

// Has reports whether a path is registered.
func (c *Catalog) Has(path string) bool {
	_, ok := c.Lookup(path)
	return ok
}

// Len returns the number of registered types.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// Paths returns every registered type path, sorted.
func (c *Catalog) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.defs))
	for path := range c.defs {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Categories returns every category that has at least one type, sorted.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, def := range c.defs {
		cat := def.Category()
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// ByCategory returns the definitions directly under a category, sorted
// by display name. Matching is case-insensitive.
func (c *Catalog) ByCategory(category string) []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Definition
	for _, def := range c.defs {
		if strings.EqualFold(def.Category(), category) {
			out = append(out, def)
		}
	}
	sortDefinitions(out)
	return out
}

// Tree returns the full category tree for menu building: category path
// to definitions sorted by display name.
func (c *Catalog) Tree() map[string][]Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tree := make(map[string][]Definition)
	for _, def := range c.defs {
		cat := def.Category()
		tree[cat] = append(tree[cat], def)
	}
	for _, defs := range tree {
		sortDefinitions(defs)
	}
	return tree
}

// Instantiate builds a node of the named type. The node carries the type
// path for persistence and the catalog's disabled-output policy unless
// the definition chose its own.
func (c *Catalog) Instantiate(path, id string) (*dataflow.Node, error) {
	c.mu.RLock()
	def, ok := c.defs[path]
	behavior := c.behavior
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, path)
	}

	b := def.Factory(id)
	if b == nil {
		return nil, fmt.Errorf("catalog: factory for %s returned nil", path)
	}
	if def.Behavior != "" {
		behavior, _ = dataflow.ParseDisabledBehavior(def.Behavior)
	}
	return b.TypePath(path).DisabledBehavior(behavior).Build(), nil
}

func sortDefinitions(defs []Definition) {
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Name != defs[j].Name {
			return defs[i].Name < defs[j].Name
		}
		return defs[i].Path < defs[j].Path
	})
}
