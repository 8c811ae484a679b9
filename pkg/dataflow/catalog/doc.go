/*
Package catalog maintains the registry of node types a graph editor can
offer: category-organized definitions with factories, ranked search, and
reconstruction of saved graphs.

# Definitions

A Definition ties a type path like "math/add" to a factory producing the
node. The path doubles as the category tree position: everything before
the final segment is the category, the final segment names the type.

	cat := catalog.New()
	cat.MustRegister(catalog.Definition{
	    Path:        "math/add",
	    Description: "Adds two numbers.",
	    Keywords:    []string{"sum", "plus"},
	    Factory: func(id string) *dataflow.NodeBuilder {
	        return dataflow.NewNode(id).
	            Input("a", floatT).
	            Input("b", floatT).
	            Output("sum", floatT).
	            Compute(addFn)
	    },
	})

	n, err := cat.Instantiate("math/add", "add-1")

Instantiate completes the builder: it stamps the type path so saved
documents can name the type, and applies the disabled-output policy
(the catalog default, or the definition's own override).

# Search

Search ranks types against a query with weighted substring matching
across name, category, keywords and description. FuzzySearch catches
misspellings that substring matching misses:

	hits := cat.Search("add", catalog.WithLimit(10))
	near := cat.FuzzySearch("mutliply", 0.6, 5)

# Persistence

Restore rebuilds a live graph from a store.Document by re-instantiating
every node from its saved type path and rewiring the saved links. Load
combines that with fetching the document from a store:

	g, err := cat.Load(st, graphID, reg)

RegisterBuiltins installs a small standard set of constant sources,
math, and list utilities.
*/
package catalog
