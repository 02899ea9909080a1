package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reconbook/api/internal/nmap"
	"reconbook/api/internal/search"
	"reconbook/api/internal/store"
	"reconbook/api/internal/util"
)

const defaultScanType = "custom"

var allowedScanTypes = map[string]struct{}{
	"basic":      {},
	"service":    {},
	"aggressive": {},
	"stealth":    {},
	"custom":     {},
}

// ScanInput is used for both create and update; nil fields are absent.
type ScanInput struct {
	Target       *string           `json:"target"`
	Command      *string           `json:"command"`
	Results      *string           `json:"results"`
	ScanType     *string           `json:"scanType"`
	Ports        *[]store.NmapPort `json:"ports"`
	OSDetection  *string           `json:"osDetection"`
	ScanDuration *string           `json:"scanDuration"`
	Notes        *string           `json:"notes"`
}

func (s *Service) ListScans(ctx context.Context) ([]store.NmapScan, error) {
	scans, err := s.records.ListScans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return scans, nil
}

func (s *Service) GetScan(ctx context.Context, id string) (store.NmapScan, error) {
	scan, err := s.records.GetScan(ctx, strings.TrimSpace(id))
	if errors.Is(err, store.ErrNotFound) {
		return store.NmapScan{}, notFoundError("Nmap scan not found")
	}
	if err != nil {
		return store.NmapScan{}, fmt.Errorf("get scan: %w", err)
	}
	return scan, nil
}

// CreateScan saves pasted nmap output. Ports are parsed from the results
// when the caller does not supply them.
func (s *Service) CreateScan(ctx context.Context, input ScanInput) (store.NmapScan, error) {
	target, command := trimmed(input.Target), trimmed(input.Command)
	results := ""
	if input.Results != nil {
		results = nmap.Normalize([]byte(*input.Results))
	}
	if target == "" || command == "" || strings.TrimSpace(results) == "" {
		return store.NmapScan{}, validationError("Target, command, and results are required")
	}
	scanType, err := normalizeScanType(input.ScanType)
	if err != nil {
		return store.NmapScan{}, err
	}

	now := s.timestamp()
	scan := store.NmapScan{
		ID:           util.NewID("nmap"),
		Target:       target,
		Command:      command,
		Results:      results,
		ScanType:     scanType,
		OSDetection:  trimmed(input.OSDetection),
		ScanDuration: trimmed(input.ScanDuration),
		Notes:        trimmed(input.Notes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.Ports != nil {
		scan.Ports = copyPorts(*input.Ports)
	} else {
		scan.Ports = nmap.ParsePorts(results)
	}

	if err := s.records.InsertScan(ctx, scan); err != nil {
		return store.NmapScan{}, fmt.Errorf("insert scan: %w", err)
	}
	s.search.IndexScan(search.ScanRecordFrom(scan))
	return scan, nil
}

// ImportScan creates a scan from a raw nmap output body in any charset.
// Missing target and command are read from the output header.
func (s *Service) ImportScan(ctx context.Context, raw []byte, target, command, scanType string) (store.NmapScan, error) {
	results := nmap.Normalize(raw)
	header := nmap.ParseHeader(results)
	if strings.TrimSpace(target) == "" {
		target = header.Target
	}
	if strings.TrimSpace(command) == "" {
		command = header.Command
	}
	input := ScanInput{Target: &target, Command: &command, Results: &results}
	if scanType != "" {
		input.ScanType = &scanType
	}
	return s.CreateScan(ctx, input)
}

// UpdateScan applies only the supplied fields. Changing the results without
// supplying ports re-parses the port table.
func (s *Service) UpdateScan(ctx context.Context, id string, input ScanInput) (store.NmapScan, error) {
	scan, err := s.GetScan(ctx, id)
	if err != nil {
		return store.NmapScan{}, err
	}

	for _, field := range []struct {
		value *string
		dst   *string
	}{
		{input.Target, &scan.Target},
		{input.Command, &scan.Command},
	} {
		if field.value == nil {
			continue
		}
		if strings.TrimSpace(*field.value) == "" {
			return store.NmapScan{}, validationError("Target, command, and results are required")
		}
		*field.dst = strings.TrimSpace(*field.value)
	}
	if input.Results != nil {
		results := nmap.Normalize([]byte(*input.Results))
		if strings.TrimSpace(results) == "" {
			return store.NmapScan{}, validationError("Target, command, and results are required")
		}
		scan.Results = results
		if input.Ports == nil {
			scan.Ports = nmap.ParsePorts(results)
		}
	}
	if input.ScanType != nil {
		if scan.ScanType, err = normalizeScanType(input.ScanType); err != nil {
			return store.NmapScan{}, err
		}
	}
	if input.Ports != nil {
		scan.Ports = copyPorts(*input.Ports)
	}
	applyTrimmed(&scan.OSDetection, input.OSDetection)
	applyTrimmed(&scan.ScanDuration, input.ScanDuration)
	applyTrimmed(&scan.Notes, input.Notes)
	scan.UpdatedAt = s.timestamp()

	err = s.records.UpdateScan(ctx, scan)
	if errors.Is(err, store.ErrNotFound) {
		return store.NmapScan{}, notFoundError("Nmap scan not found")
	}
	if err != nil {
		return store.NmapScan{}, fmt.Errorf("update scan: %w", err)
	}
	s.search.IndexScan(search.ScanRecordFrom(scan))
	return scan, nil
}

func (s *Service) DeleteScan(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := s.records.DeleteScan(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("Nmap scan not found")
	}
	if err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}
	s.search.DeleteScan(id)
	return nil
}

// SearchScans matches target as a case-insensitive substring.
func (s *Service) SearchScans(ctx context.Context, target string) ([]store.NmapScan, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, validationError("Target parameter is required")
	}
	scans, err := s.records.SearchScansByTarget(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("search scans: %w", err)
	}
	return scans, nil
}

// Search runs a full-text query over scans and credentials.
func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return search.Response{}, validationError("q is required")
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	return s.search.Search(ctx, q), nil
}

func normalizeScanType(value *string) (string, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return defaultScanType, nil
	}
	scanType := strings.ToLower(strings.TrimSpace(*value))
	if _, ok := allowedScanTypes[scanType]; !ok {
		return "", validationError("scanType must be one of basic, service, aggressive, stealth, custom")
	}
	return scanType, nil
}

func copyPorts(ports []store.NmapPort) []store.NmapPort {
	out := make([]store.NmapPort, len(ports))
	copy(out, ports)
	return out
}
