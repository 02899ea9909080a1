package app

import (
	"context"
	"sync"
	"time"

	"reconbook/api/internal/archive"
	"reconbook/api/internal/export"
	"reconbook/api/internal/history"
	"reconbook/api/internal/search"
	"reconbook/api/internal/store"
	"reconbook/api/internal/vault"

	"go.uber.org/zap"
)

// ChecklistStore is implemented by store.MemoryStore, store.PostgresStore
// and kvstore.ChecklistStore.
type ChecklistStore interface {
	GetChecklist(context.Context, string) (store.Checklist, error)
	SaveChecklist(context.Context, store.Checklist) (store.Checklist, error)
	ListChecklists(context.Context) ([]store.Checklist, error)
	DeleteChecklist(context.Context, string) (bool, error)
	Ping(context.Context) error
}

// RecordStore holds credentials and nmap scans.
type RecordStore interface {
	ListCredentials(context.Context) ([]store.Credential, error)
	GetCredential(context.Context, string) (store.Credential, error)
	FirstCredential(context.Context) (store.Credential, error)
	InsertCredential(context.Context, store.Credential) error
	UpdateCredential(context.Context, store.Credential) error
	DeleteCredential(context.Context, string) error
	SearchCredentials(context.Context, string, int) ([]store.Credential, error)
	ListScans(context.Context) ([]store.NmapScan, error)
	GetScan(context.Context, string) (store.NmapScan, error)
	InsertScan(context.Context, store.NmapScan) error
	UpdateScan(context.Context, store.NmapScan) error
	DeleteScan(context.Context, string) error
	SearchScansByTarget(context.Context, string) ([]store.NmapScan, error)
	SearchScans(context.Context, string, int) ([]store.NmapScan, error)
	Ping(context.Context) error
}

type historyRecorder interface {
	Record(store.Checklist, string) (history.Entry, error)
	Remove(string, string) (history.Entry, error)
	History(string, int) ([]history.Entry, error)
}

type reportRenderer interface {
	Render(context.Context, export.Report, export.Format) (*export.Result, error)
}

// Deps wires the service. Checklists and Records are required; everything
// else is optional.
type Deps struct {
	Checklists ChecklistStore
	Records    RecordStore
	Vault      *vault.Vault
	History    *history.Recorder
	Search     *search.Service
	Export     *export.Service
	Archive    archive.Store
	Logger     *zap.Logger
}

type Service struct {
	checklists ChecklistStore
	records    RecordStore
	vault      *vault.Vault
	history    historyRecorder
	search     *search.Service
	export     reportRenderer
	archive    archive.Store
	logger     *zap.Logger
	now        func() time.Time

	lockMu sync.Mutex
	locks  map[string]*targetLock
}

func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		checklists: deps.Checklists,
		records:    deps.Records,
		vault:      deps.Vault,
		search:     deps.Search,
		archive:    deps.Archive,
		logger:     logger,
		now:        time.Now,
		locks:      make(map[string]*targetLock),
	}
	if deps.History != nil {
		s.history = deps.History
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewStoreSearcher(deps.Records), logger)
	}
	if deps.Export != nil {
		s.export = deps.Export
	} else {
		s.export = export.NewService()
	}
	return s
}

// Bootstrap pushes every scan and credential into the search engine.
func (s *Service) Bootstrap(ctx context.Context) error {
	scans, err := s.records.ListScans(ctx)
	if err != nil {
		return err
	}
	credentials, err := s.records.ListCredentials(ctx)
	if err != nil {
		return err
	}
	scanRecords := make([]search.ScanRecord, 0, len(scans))
	for _, scan := range scans {
		scanRecords = append(scanRecords, search.ScanRecordFrom(scan))
	}
	credentialRecords := make([]search.CredentialRecord, 0, len(credentials))
	for _, credential := range credentials {
		credentialRecords = append(credentialRecords, search.CredentialRecordFrom(credential))
	}
	s.search.ReindexAll(scanRecords, credentialRecords)
	return nil
}

// Ping checks the record store.
func (s *Service) Ping(ctx context.Context) error {
	return s.records.Ping(ctx)
}

// Checks reports the health of every backend for /api/ready. The first
// return is false when a required backend is down.
func (s *Service) Checks(ctx context.Context) (bool, map[string]any) {
	ok := true
	checks := map[string]any{}

	check := func(name string, err error) {
		if err != nil {
			ok = false
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = map[string]any{"status": "error"}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	check("database", s.records.Ping(ctx))
	if any(s.checklists) != any(s.records) {
		check("checklists", s.checklists.Ping(ctx))
	}
	checks["search"] = map[string]any{"status": "ok", "backend": s.search.Backend()}
	return ok, checks
}

// targetLock is a per-target mutex shared by every caller currently waiting
// on or holding it. refs is guarded by Service.lockMu.
type targetLock struct {
	mu   sync.Mutex
	refs int
}

// lockTarget serializes mutations of one target inside this process. The
// returned func releases the lock and drops the entry once no caller holds it.
func (s *Service) lockTarget(target string) func() {
	s.lockMu.Lock()
	lock, ok := s.locks[target]
	if !ok {
		lock = &targetLock{}
		s.locks[target] = lock
	}
	lock.refs++
	s.lockMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.lockMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, target)
		}
		s.lockMu.Unlock()
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
