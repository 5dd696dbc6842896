// Package search finds forms by title.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	FormID  string `json:"formId"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Version int    `json:"version"`
	// Highlight is the title with matches wrapped in <mark>, when the index
	// provides it.
	Highlight string `json:"highlight,omitempty"`
}

// Query describes a search request. Results are always scoped to OwnerID.
type Query struct {
	Text    string
	OwnerID string
	Limit   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a title search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// FormRecord is the data we index for a form: its latest version.
type FormRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	OwnerID string `json:"ownerId"`
	Version int    `json:"version"`
}
