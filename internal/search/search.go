// Package search indexes documents for full-text lookup across a user's
// dashboard. Meilisearch is the primary backend with a Postgres fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	Snippet  string `json:"snippet"`
	Status   string `json:"status"`
	OwnerID  string `json:"ownerId"`
}

// Query describes a search request. OwnerID is always set; users only
// search their own documents.
type Query struct {
	Text         string
	OwnerID      string
	FilterStatus string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID           string   `json:"id"`
	FileName     string   `json:"fileName"`
	Subject      string   `json:"subject"`
	Message      string   `json:"message"`
	Status       string   `json:"status"`
	OwnerID      string   `json:"ownerId"`
	SignerEmails []string `json:"signerEmails"`
}
