package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps every record in process memory. Checklists are held in a
// map keyed by target. It backs STORE_DRIVER=memory and the service tests.
type MemoryStore struct {
	mu          sync.RWMutex
	checklists  map[string]Checklist
	credentials map[string]Credential
	scans       map[string]NmapScan
	// insertion order, used by FirstCredential and as a stable tiebreak
	credentialOrder []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checklists:  make(map[string]Checklist),
		credentials: make(map[string]Credential),
		scans:       make(map[string]NmapScan),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) GetChecklist(_ context.Context, target string) (Checklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checklist, ok := s.checklists[target]
	if !ok {
		return Checklist{}, ErrNotFound
	}
	return checklist.Clone(), nil
}

func (s *MemoryStore) SaveChecklist(_ context.Context, checklist Checklist) (Checklist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := checklist.Clone()
	if existing, ok := s.checklists[checklist.Target]; ok {
		saved.CreatedAt = existing.CreatedAt
	}
	s.checklists[checklist.Target] = saved
	return saved.Clone(), nil
}

func (s *MemoryStore) ListChecklists(context.Context) ([]Checklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Checklist, 0, len(s.checklists))
	for _, checklist := range s.checklists {
		out = append(out, checklist.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Target < out[j].Target
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) DeleteChecklist(_ context.Context, target string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checklists[target]; !ok {
		return false, nil
	}
	delete(s.checklists, target)
	return true, nil
}

func (s *MemoryStore) ListCredentials(context.Context) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Credential, 0, len(s.credentials))
	for i := len(s.credentialOrder) - 1; i >= 0; i-- {
		out = append(out, s.credentials[s.credentialOrder[i]])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetCredential(_ context.Context, id string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credential, ok := s.credentials[id]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return credential, nil
}

func (s *MemoryStore) FirstCredential(context.Context) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.credentialOrder) == 0 {
		return Credential{}, ErrNotFound
	}
	return s.credentials[s.credentialOrder[0]], nil
}

func (s *MemoryStore) InsertCredential(_ context.Context, credential Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[credential.ID] = credential
	s.credentialOrder = append(s.credentialOrder, credential.ID)
	return nil
}

func (s *MemoryStore) UpdateCredential(_ context.Context, credential Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.credentials[credential.ID]
	if !ok {
		return ErrNotFound
	}
	credential.CreatedAt = existing.CreatedAt
	s.credentials[credential.ID] = credential
	return nil
}

func (s *MemoryStore) DeleteCredential(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[id]; !ok {
		return ErrNotFound
	}
	delete(s.credentials, id)
	for i, existing := range s.credentialOrder {
		if existing == id {
			s.credentialOrder = append(s.credentialOrder[:i], s.credentialOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) SearchCredentials(_ context.Context, text string, limit int) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(text))
	var out []Credential
	for i := len(s.credentialOrder) - 1; i >= 0; i-- {
		credential := s.credentials[s.credentialOrder[i]]
		if containsFold(needle, credential.Host, credential.Service, credential.Username, credential.Notes) {
			out = append(out, credential)
		}
	}
	return capLimit(out, limit), nil
}

func (s *MemoryStore) ListScans(context.Context) ([]NmapScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedScans(func(NmapScan) bool { return true }), nil
}

func (s *MemoryStore) GetScan(_ context.Context, id string) (NmapScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scan, ok := s.scans[id]
	if !ok {
		return NmapScan{}, ErrNotFound
	}
	return cloneScan(scan), nil
}

func (s *MemoryStore) InsertScan(_ context.Context, scan NmapScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[scan.ID] = cloneScan(scan)
	return nil
}

func (s *MemoryStore) UpdateScan(_ context.Context, scan NmapScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.scans[scan.ID]
	if !ok {
		return ErrNotFound
	}
	scan.CreatedAt = existing.CreatedAt
	s.scans[scan.ID] = cloneScan(scan)
	return nil
}

func (s *MemoryStore) DeleteScan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scans[id]; !ok {
		return ErrNotFound
	}
	delete(s.scans, id)
	return nil
}

func (s *MemoryStore) SearchScansByTarget(_ context.Context, target string) ([]NmapScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(target)
	return s.sortedScans(func(scan NmapScan) bool {
		return strings.Contains(strings.ToLower(scan.Target), needle)
	}), nil
}

func (s *MemoryStore) SearchScans(_ context.Context, text string, limit int) ([]NmapScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(text))
	return capLimit(s.sortedScans(func(scan NmapScan) bool {
		return containsFold(needle, scan.Target, scan.Command, scan.Notes, scan.Results)
	}), limit), nil
}

func (s *MemoryStore) sortedScans(keep func(NmapScan) bool) []NmapScan {
	out := make([]NmapScan, 0, len(s.scans))
	for _, scan := range s.scans {
		if keep(scan) {
			out = append(out, cloneScan(scan))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneScan(scan NmapScan) NmapScan {
	ports := make([]NmapPort, len(scan.Ports))
	copy(ports, scan.Ports)
	scan.Ports = ports
	return scan
}

func containsFold(needle string, fields ...string) bool {
	if needle == "" {
		return false
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func capLimit[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
