package search

import (
	"context"

	"go.uber.org/zap"
)

// Engine is a full-text backend that can both search and be indexed.
// *Meili is the production implementation.
type Engine interface {
	Searcher
	Indexer
}

// Service is the facade that tries the engine first and falls back to the
// data store.
type Service struct {
	engine   Engine
	fallback Searcher
	logger   *zap.Logger
}

// NewService creates a search service. engine may be nil if Meilisearch is
// not configured.
func NewService(engine Engine, fallback Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, fallback: fallback, logger: logger.Named("search")}
}

// Search tries the engine if healthy, otherwise falls back to the store.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engineReady() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("engine search failed, falling back to store", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("fallback search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Backend reports which backend will serve the next query.
func (s *Service) Backend() string {
	if s.engineReady() {
		return "meilisearch"
	}
	return "store"
}

// IndexScan indexes a scan (fire-and-forget).
func (s *Service) IndexScan(scan ScanRecord) {
	s.async("index scan", scan.ID, func() error { return s.engine.IndexScans([]ScanRecord{scan}) })
}

// IndexCredential indexes a credential (fire-and-forget).
func (s *Service) IndexCredential(credential CredentialRecord) {
	s.async("index credential", credential.ID, func() error {
		return s.engine.IndexCredentials([]CredentialRecord{credential})
	})
}

// DeleteScan removes a scan from the index (fire-and-forget).
func (s *Service) DeleteScan(id string) {
	s.async("delete scan", id, func() error { return s.engine.DeleteScan(id) })
}

// DeleteCredential removes a credential from the index (fire-and-forget).
func (s *Service) DeleteCredential(id string) {
	s.async("delete credential", id, func() error { return s.engine.DeleteCredential(id) })
}

// ReindexAll pushes every record to the engine. It runs synchronously and is
// called at startup once the store is open.
func (s *Service) ReindexAll(scans []ScanRecord, credentials []CredentialRecord) {
	if !s.engineReady() {
		return
	}
	if err := s.engine.IndexScans(scans); err != nil {
		s.logger.Warn("reindex scans", zap.Error(err))
	}
	if err := s.engine.IndexCredentials(credentials); err != nil {
		s.logger.Warn("reindex credentials", zap.Error(err))
	}
	s.logger.Info("reindexed", zap.Int("scans", len(scans)), zap.Int("credentials", len(credentials)))
}

func (s *Service) engineReady() bool {
	return s != nil && s.engine != nil && s.engine.Healthy()
}

func (s *Service) async(op, id string, fn func() error) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := fn(); err != nil {
			s.logger.Warn(op, zap.String("id", id), zap.Error(err))
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
