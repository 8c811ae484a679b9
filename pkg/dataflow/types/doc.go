// Package types defines the port type system for dataflow graphs.
//
// Every port declares a type ID. A Registry maps IDs to PortType
// descriptors and answers compatibility questions: whether a value
// flowing out of one port may feed another, and how to convert it.
//
// Compatibility holds when the IDs are identical, an explicit cast is
// registered, the source's base type equals the target (single-level
// upcast only), or either side is the universal Generic type.
//
// A Registry is an explicit dependency: construct one with New (which
// loads the builtin table) and pass it to graph and engine constructors.
// There is no package-level default registry.
package types
