package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"reconbook/api/internal/archive"
	"reconbook/api/internal/export"
	"reconbook/api/internal/store"
)

// BuildReport collects the checklist and the scans whose target matches
// exactly, ignoring case.
func (s *Service) BuildReport(ctx context.Context, target string) (export.Report, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return export.Report{}, validationError("Target parameter is required")
	}
	checklist, err := s.loadChecklist(ctx, target)
	if err != nil {
		return export.Report{}, err
	}
	candidates, err := s.records.SearchScansByTarget(ctx, target)
	if err != nil {
		return export.Report{}, fmt.Errorf("load scans: %w", err)
	}
	scans := make([]store.NmapScan, 0, len(candidates))
	for _, scan := range candidates {
		if strings.EqualFold(scan.Target, target) {
			scans = append(scans, scan)
		}
	}

	summary := summarize(checklist)
	return export.Report{
		Target:         target,
		GeneratedAt:    s.timestamp(),
		TotalItems:     summary.TotalItems,
		CompletedItems: summary.CompletedItems,
		Progress:       summary.Progress,
		Items:          checklist.Items,
		Scans:          scans,
	}, nil
}

// ExportReport renders the target's report in format ("" means html).
func (s *Service) ExportReport(ctx context.Context, target, format string) (*export.Result, error) {
	parsed, ok := export.ParseFormat(format)
	if !ok {
		return nil, validationError("format must be one of html, pdf, docx")
	}
	report, err := s.BuildReport(ctx, target)
	if err != nil {
		return nil, err
	}
	result, err := s.export.Render(ctx, report, parsed)
	switch {
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, domainError(http.StatusNotImplemented, "EXPORT_UNAVAILABLE", fmt.Sprintf("%s export is not available on this server", parsed), nil)
	case err != nil:
		return nil, fmt.Errorf("render report: %w", err)
	}
	return result, nil
}

// ArchiveReport renders the report and stores it, returning the object key.
func (s *Service) ArchiveReport(ctx context.Context, target, format string) (string, error) {
	if s.archive == nil {
		return "", unavailableError("ARCHIVE_DISABLED", "Report archive is not configured")
	}
	result, err := s.ExportReport(ctx, target, format)
	if err != nil {
		return "", err
	}
	key := archive.Key(export.Slug(target), string(result.Format), s.timestamp())
	if err := s.archive.Put(ctx, key, result.Data, result.MimeType); err != nil {
		return "", fmt.Errorf("archive report: %w", err)
	}
	return key, nil
}
