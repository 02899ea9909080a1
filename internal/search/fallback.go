package search

import (
	"context"
	"strings"

	"reconbook/api/internal/store"
)

// RecordSource is the slice of the data store the fallback searcher needs.
type RecordSource interface {
	SearchScans(ctx context.Context, text string, limit int) ([]store.NmapScan, error)
	SearchCredentials(ctx context.Context, text string, limit int) ([]store.Credential, error)
}

// StoreSearcher implements Searcher with substring matching in the data store.
type StoreSearcher struct {
	source RecordSource
}

func NewStoreSearcher(source RecordSource) *StoreSearcher {
	return &StoreSearcher{source: source}
}

// Healthy always returns true; if the store is down the whole app is down.
func (s *StoreSearcher) Healthy() bool {
	return true
}

func (s *StoreSearcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	// fetch enough rows to honour the offset after both types are merged
	window := limit + max(q.Offset, 0)

	var results []Result
	if q.FilterType == "" || q.FilterType == ResultScan {
		scans, err := s.source.SearchScans(ctx, text, window)
		if err != nil {
			return nil, 0, err
		}
		for _, scan := range scans {
			results = append(results, Result{
				Type:    ResultScan,
				ID:      scan.ID,
				Title:   scan.Target,
				Snippet: snippet(text, scan.Notes, scan.Command, scan.Results),
			})
		}
	}
	if q.FilterType == "" || q.FilterType == ResultCredential {
		credentials, err := s.source.SearchCredentials(ctx, text, window)
		if err != nil {
			return nil, 0, err
		}
		for _, credential := range credentials {
			results = append(results, Result{
				Type:    ResultCredential,
				ID:      credential.ID,
				Title:   credentialTitle(credential.Host, credential.Service),
				Snippet: snippet(text, credential.Notes, credential.Username),
			})
		}
	}

	total := len(results)
	if q.Offset > 0 {
		if q.Offset >= len(results) {
			return []Result{}, total, nil
		}
		results = results[q.Offset:]
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, total, nil
}

func credentialTitle(host, service string) string {
	switch {
	case host != "" && service != "":
		return service + "@" + host
	case host != "":
		return host
	default:
		return service
	}
}

const snippetRadius = 60

// snippet returns a window of the first field containing text, marking the
// match the same way Meilisearch highlights. Fields without a match fall
// through to the first non-blank one.
func snippet(text string, fields ...string) string {
	needle := strings.ToLower(text)
	for _, field := range fields {
		lower := strings.ToLower(field)
		if len(lower) != len(field) {
			// case folding changed byte offsets; match case-sensitively
			lower = field
		}
		idx := strings.Index(lower, needle)
		if idx < 0 {
			continue
		}
		start := max(idx-snippetRadius, 0)
		end := min(idx+len(needle)+snippetRadius, len(field))
		var b strings.Builder
		if start > 0 {
			b.WriteString("…")
		}
		b.WriteString(field[start:idx])
		b.WriteString("<mark>")
		b.WriteString(field[idx : idx+len(needle)])
		b.WriteString("</mark>")
		b.WriteString(field[idx+len(needle) : end])
		if end < len(field) {
			b.WriteString("…")
		}
		return strings.TrimSpace(b.String())
	}
	return firstNonBlank(fields...)
}
