// Package search provides org-scoped free-text customer search: Meilisearch
// when configured and healthy, a SQL scan over the record document
// otherwise.
package search

// Query describes a search request. OrganizationID is mandatory — results
// never cross the tenant boundary.
type Query struct {
	OrganizationID string
	Text           string
	Limit          int
	Offset         int
}

// Result is a single matching customer id with a preview of the matching
// text.
type Result struct {
	ID      string `json:"id"`
	Preview string `json:"preview"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// CustomerDoc is the flattened form of a customer record pushed into the
// index: all visible field values joined into one searchable string.
type CustomerDoc struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Text           string `json:"text"`
}

// Searcher can execute a free-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
