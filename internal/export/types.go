// Package export renders per-target reports as HTML, PDF or DOCX.
package export

import (
	"errors"
	"strings"
	"time"

	"reconbook/api/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts a query value; the empty string means HTML.
func ParseFormat(value string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatHTML:
		return FormatHTML, true
	case FormatPDF:
		return FormatPDF, true
	case FormatDOCX:
		return FormatDOCX, true
	default:
		return "", false
	}
}

// Report is everything we know about one target at GeneratedAt.
type Report struct {
	Target         string
	GeneratedAt    time.Time
	TotalItems     int
	CompletedItems int
	Progress       int
	Items          []store.ChecklistItem
	Scans          []store.NmapScan
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	Format   Format
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	ErrUnsupportedFormat     = errors.New("unsupported export format")
)
