package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultSession ResultType = "session"
	ResultProject ResultType = "project"
)

// Result is a single search hit returned to the caller. Only public
// resources are ever indexed, so results are safe for anonymous callers.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId,omitempty"`
	OwnerID   string     `json:"ownerId"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
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

// SessionRecord is the data we index for a public chat session.
type SessionRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ProjectID string `json:"projectId"`
	OwnerID   string `json:"ownerId"`
}

// ProjectRecord is the data we index for a public project.
type ProjectRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId"`
}
