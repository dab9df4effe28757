package models

import "fmt"

// DefaultTopK is the number of hits returned when a query does not ask for a count.
const DefaultTopK = 5

// SearchQuery is a k-nearest-neighbour request.
type SearchQuery struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
	// UseQuery applies the query instruction prefix; nil means true.
	UseQuery *bool `json:"use_query,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK < 0 {
		return fmt.Errorf("top_k must be positive, got %d", q.TopK)
	}
	if q.TopK == 0 {
		q.TopK = DefaultTopK
	}
	return nil
}

// InstructionEnabled reports whether the query instruction should be applied.
func (q *SearchQuery) InstructionEnabled() bool {
	return q.UseQuery == nil || *q.UseQuery
}
