package export

import (
	"context"
	"fmt"
	"strings"
)

type converter func(ctx context.Context, html, name string) (*Result, error)

// Service turns a Report into a downloadable file.
type Service struct {
	pdf  converter
	docx converter
}

// NewService creates an export service backed by headless Chrome and pandoc.
func NewService() *Service {
	return &Service{pdf: exportPDF, docx: exportDOCX}
}

// Render generates the report in the requested format.
func (s *Service) Render(ctx context.Context, report Report, format Format) (*Result, error) {
	html, err := RenderReportHTML(newTemplateData(report))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	name := Slug(report.Target) + "-report"
	switch format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: name + ".html",
			MimeType: "text/html; charset=utf-8",
			Format:   FormatHTML,
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, name)
	case FormatDOCX:
		return s.docx(ctx, html, name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Slug turns a target into a file-name-safe token. Separators common in
// hosts and URLs become hyphens before the usual sanitizing.
func Slug(target string) string {
	replacer := strings.NewReplacer(".", "-", ":", "-", "/", "-", "@", "-")
	slug := sanitizeFilename(replacer.Replace(strings.TrimSpace(target)))
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "document"
	}
	return slug
}

// sanitizeFilename keeps ASCII letters, digits, '-' and '_', turns spaces into
// hyphens and drops the rest. The result is capped at 50 bytes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}

	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "document"
	}
	return result
}
