package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultScan       ResultType = "nmap_scan"
	ResultCredential ResultType = "credential"
)

// ParseResultType maps a query parameter onto a ResultType. Unknown values
// report false; the empty string means all types.
func ParseResultType(value string) (ResultType, bool) {
	switch ResultType(value) {
	case "":
		return "", true
	case ResultScan, ResultCredential:
		return ResultType(value), true
	default:
		return "", false
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
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
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexScans(scans []ScanRecord) error
	IndexCredentials(credentials []CredentialRecord) error
	DeleteScan(id string) error
	DeleteCredential(id string) error
}

// ScanRecord is the data we index for an nmap scan. Raw results are left out;
// the open ports summary is what people search for.
type ScanRecord struct {
	ID       string `json:"id"`
	Target   string `json:"target"`
	Command  string `json:"command"`
	ScanType string `json:"scanType"`
	Ports    string `json:"ports"`
	Notes    string `json:"notes"`
}

// CredentialRecord is the data we index for a credential. Secrets are never
// part of it.
type CredentialRecord struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Service  string `json:"service"`
	Username string `json:"username"`
	Notes    string `json:"notes"`
}
