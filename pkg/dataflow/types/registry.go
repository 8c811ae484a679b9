package types

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is a thread-safe collection of port types and casts.
// It uses sync.RWMutex for optimal read-heavy workloads: compatibility
// checks run on every link creation and passthrough mapping, while
// registration happens once at startup.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*PortType
	byID     map[ID]*PortType
	casts    map[[2]ID]ConvertFunc
	nextUser ID
}

// New creates a registry pre-loaded with the builtin type table and
// its standard casts.
func New() *Registry {
	r := NewBare()
	registerBuiltins(r)
	return r
}

// NewBare creates a registry containing only the Generic type.
// Useful for tests that want full control over the table.
func NewBare() *Registry {
	r := &Registry{
		byName:   make(map[string]*PortType),
		byID:     make(map[ID]*PortType),
		casts:    make(map[[2]ID]ConvertFunc),
		nextUser: UserIDStart,
	}
	generic := &PortType{Name: "generic", ID: Generic, Base: NoBase}
	r.byName[generic.Name] = generic
	r.byID[generic.ID] = generic
	return r
}

// Register adds a port type. Returns an error if the name is empty or
// the name or ID collides with an existing registration.
func (r *Registry) Register(pt PortType) error {
	name := strings.ToLower(strings.TrimSpace(pt.Name))
	if name == "" {
		return fmt.Errorf("types: port type name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		return fmt.Errorf("types: name %q already registered with id %d", name, existing.ID)
	}
	if existing, ok := r.byID[pt.ID]; ok {
		return fmt.Errorf("types: id %d already registered as %q", pt.ID, existing.Name)
	}

	stored := pt
	stored.Name = name
	r.byName[name] = &stored
	r.byID[pt.ID] = &stored
	if pt.ID >= r.nextUser {
		r.nextUser = pt.ID + 1
	}
	return nil
}

// MustRegister registers a port type, panicking on error.
func (r *Registry) MustRegister(pt PortType) {
	if err := r.Register(pt); err != nil {
		panic(err)
	}
}

// RegisterCast installs a conversion from src to dst. Both types must
// already be registered.
func (r *Registry) RegisterCast(src, dst ID, fn ConvertFunc) error {
	if fn == nil {
		return fmt.Errorf("types: cast %d->%d requires a conversion function", src, dst)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[src]; !ok {
		return fmt.Errorf("types: cast source id %d is not registered", src)
	}
	if _, ok := r.byID[dst]; !ok {
		return fmt.Errorf("types: cast target id %d is not registered", dst)
	}
	r.casts[[2]ID{src, dst}] = fn
	return nil
}

// ByName returns the port type for a case-insensitive name, falling
// back to Generic when the name is unknown. Unknown types still flow,
// they just lose static checking.
func (r *Registry) ByName(name string) *PortType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if pt, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return pt
	}
	return r.byID[Generic]
}

// ByID returns the port type for an ID, falling back to Generic.
func (r *Registry) ByID(id ID) *PortType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if pt, ok := r.byID[id]; ok {
		return pt
	}
	return r.byID[Generic]
}

// Lookup returns the port type for a name without the Generic fallback.
func (r *Registry) Lookup(name string) (*PortType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pt, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return pt, ok
}

// Has reports whether an ID is registered.
func (r *Registry) Has(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Compatible reports whether a value of type src may feed a port of
// type dst.
func (r *Registry) Compatible(src, dst ID) bool {
	_, ok := r.Converter(src, dst)
	return ok
}

// Converter resolves how a src value becomes a dst value. The returned
// function is nil when no conversion is needed (identity, upcast, or
// generic). The boolean reports compatibility.
//
// Resolution order: identity, explicit cast, single-level base upcast,
// generic on either side.
func (r *Registry) Converter(src, dst ID) (ConvertFunc, bool) {
	if src == dst {
		return nil, true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn, ok := r.casts[[2]ID{src, dst}]; ok {
		return fn, true
	}
	if st, ok := r.byID[src]; ok && st.Base != NoBase && st.Base == dst {
		return nil, true
	}
	if src == Generic || dst == Generic {
		return nil, true
	}
	return nil, false
}

// NextUserID allocates the next free user type ID. Callers typically
// pass the result straight into Register.
func (r *Registry) NextUserID() ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := r.nextUser
		r.nextUser++
		if _, taken := r.byID[id]; !taken {
			return id
		}
	}
}

// Names returns all registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
