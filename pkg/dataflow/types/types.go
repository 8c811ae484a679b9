package types

// ID is a numeric port type identifier. Builtin types occupy the range
// below UserIDStart; user-defined types are allocated from UserIDStart up.
type ID int

// NoBase marks a PortType that does not inherit from another type.
const NoBase ID = -1

// UserIDStart is the first ID available for user-registered types.
const UserIDStart ID = 200

// ConvertFunc converts a value during a cast between two port types.
type ConvertFunc func(v any) (any, error)

// ValidateFunc reports whether a value is acceptable for a port type.
type ValidateFunc func(v any) error

// PortType describes one entry in the type system.
type PortType struct {
	// Name is the unique, case-insensitive type name ("float", "string").
	Name string

	// ID is the unique numeric identifier.
	ID ID

	// Base is the parent type for single-level upcasts, or NoBase.
	// Inheritance is not transitive: only a direct base matches.
	Base ID

	// DefaultFactory produces a zero value for ports of this type.
	// May be nil when the type has no sensible default.
	DefaultFactory func() any

	// Validator checks candidate values. May be nil (accept anything).
	Validator ValidateFunc
}

// Default returns the type's default value, or nil without a factory.
func (t *PortType) Default() any {
	if t == nil || t.DefaultFactory == nil {
		return nil
	}
	return t.DefaultFactory()
}

// Validate checks v against the type's validator, if any.
func (t *PortType) Validate(v any) error {
	if t == nil || t.Validator == nil {
		return nil
	}
	return t.Validator(v)
}
