package catalog

import (
	"sort"
	"strings"
)

// Field weights for ranked search. Name hits dominate, categories and
// keywords matter more than prose.
const (
	weightName        = 10.0
	weightCategory    = 5.0
	weightKeyword     = 4.0
	weightDescription = 3.0
)

// SearchResult is one ranked hit.
type SearchResult struct {
	Definition Definition

	// Score is the accumulated relevance across all query terms.
	Score float64

	// MatchedFields names the fields that contributed, e.g.
	// ["name", "keywords"]. Fuzzy hits report ["fuzzy"].
	MatchedFields []string
}

// SearchOption narrows or truncates a search.
type SearchOption func(*searchParams)

type searchParams struct {
	limit    int
	minScore float64
	category string
}

// WithLimit caps the number of results. Zero or negative means no cap.
func WithLimit(n int) SearchOption {
	return func(p *searchParams) { p.limit = n }
}

// WithMinScore drops results scoring below the floor.
func WithMinScore(s float64) SearchOption {
	return func(p *searchParams) { p.minScore = s }
}

// WithCategory restricts results to one category (case-insensitive).
func WithCategory(category string) SearchOption {
	return func(p *searchParams) { p.category = category }
}

// Search ranks registered types against a query. Each whitespace-
// separated term is matched case-insensitively against name, category,
// keywords, and description; exact field matches score double, prefix
// matches half again over plain substring hits. Results come back
// highest score first.
//
// An empty query returns nothing.
func (c *Catalog) Search(query string, opts ...SearchOption) []SearchResult {
	var p searchParams
	for _, opt := range opts {
		opt(&p)
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []SearchResult
	for _, def := range c.defs {
		if p.category != "" && !strings.EqualFold(def.Category(), p.category) {
			continue
		}
		score, fields := scoreDefinition(def, terms)
		if score <= 0 || score < p.minScore {
			continue
		}
		results = append(results, SearchResult{
			Definition:    def,
			Score:         score,
			MatchedFields: fields,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Definition.Path < results[j].Definition.Path
	})
	if p.limit > 0 && len(results) > p.limit {
		results = results[:p.limit]
	}
	return results
}

// scoreDefinition accumulates weighted term hits across a definition's
// fields and reports which fields contributed.
func scoreDefinition(def Definition, terms []string) (float64, []string) {
	name := strings.ToLower(def.Name)
	typeName := strings.ToLower(def.TypeName())
	category := strings.ToLower(def.Category())
	description := strings.ToLower(def.Description)

	var score float64
	matched := make(map[string]struct{})

	hit := func(field, text string, weight float64, term string) {
		s := termScore(text, term, weight)
		if s <= 0 {
			return
		}
		score += s
		matched[field] = struct{}{}
	}

	for _, term := range terms {
		hit("name", name, weightName, term)
		if typeName != name {
			hit("name", typeName, weightName, term)
		}
		hit("category", category, weightCategory, term)
		for _, kw := range def.Keywords {
			hit("keywords", strings.ToLower(kw), weightKeyword, term)
		}
		hit("description", description, weightDescription, term)
	}

	fields := make([]string, 0, len(matched))
	for f := range matched {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return score, fields
}

// termScore rates one term against one field: exact match doubles the
// field weight, a prefix match takes 1.5x, any other substring hit takes
// the weight as-is.
func termScore(text, term string, weight float64) float64 {
	switch {
	case text == term:
		return weight * 2
	case strings.HasPrefix(text, term):
		return weight * 1.5
	case strings.Contains(text, term):
		return weight
	default:
		return 0
	}
}

// FuzzySearch finds types whose names roughly resemble the query, for
// catching misspellings that substring search misses. Similarity is the
// shared-character ratio of the two strings; matches below the threshold
// are dropped. A zero or negative threshold defaults to 0.6.
func (c *Catalog) FuzzySearch(query string, threshold float64, limit int) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if threshold <= 0 {
		threshold = 0.6
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []SearchResult
	for _, def := range c.defs {
		sim := similarityRatio(q, strings.ToLower(def.TypeName()))
		if s := similarityRatio(q, strings.ToLower(def.Name)); s > sim {
			sim = s
		}
		if sim < threshold {
			continue
		}
		results = append(results, SearchResult{
			Definition:    def,
			Score:         sim * 10,
			MatchedFields: []string{"fuzzy"},
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Definition.Path < results[j].Definition.Path
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// similarityRatio measures how much of the two strings' characters
// overlap, ignoring order: twice the shared count over the combined
// length. Identical strings score 1, disjoint ones 0.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	lenA := 0
	for _, r := range a {
		counts[r]++
		lenA++
	}
	matches := 0
	lenB := 0
	for _, r := range b {
		lenB++
		if counts[r] > 0 {
			counts[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(lenA+lenB)
}
