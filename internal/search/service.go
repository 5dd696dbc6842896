package search

import (
	"context"
	"strings"
	"sync"

	"formdesk/api/internal/logging"
	"formdesk/api/internal/store"
)

// Fallback searches titles in the primary database.
type Fallback interface {
	SearchByTitle(ctx context.Context, ownerID, query string, limit int) ([]store.FormVersion, error)
}

type indexer interface {
	Searcher
	IndexForm(rec FormRecord) error
}

// Service is the facade that tries Meilisearch first and falls back to the
// store.
type Service struct {
	index    indexer
	fallback Fallback
	log      logging.Logger

	mu      sync.Mutex
	pending map[string]FormRecord // latest unindexed record per form
	running map[string]bool       // forms with an indexing worker
}

// NewService creates a search service. index may be nil if Meilisearch is
// not configured.
func NewService(index *Meili, fallback Fallback, log logging.Logger) *Service {
	s := &Service{
		fallback: fallback,
		log:      log,
		pending:  make(map[string]FormRecord),
		running:  make(map[string]bool),
	}
	if index != nil {
		s.index = index
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 {
		q.Limit = 20
	}

	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
		}
		s.log.Warn(ctx, "meilisearch error, falling back to store search", "error", err)
	}

	rows, err := s.fallback.SearchByTitle(ctx, q.OwnerID, q.Text, q.Limit)
	if err != nil {
		return Response{}, err
	}
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			FormID:  row.FormID,
			Title:   row.Title,
			Status:  string(row.Status),
			Version: row.Version,
		})
	}
	return Response{Results: results, Total: len(results), Query: q.Text}, nil
}

// IndexForm pushes the latest version of a form to the index
// (fire-and-forget). Writes for one form never overlap: a record queued
// while an earlier one is in flight replaces any other queued record, so
// the last call is the last write.
func (s *Service) IndexForm(ctx context.Context, row store.FormVersion) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	rec := FormRecord{
		ID:      row.FormID,
		Title:   row.Title,
		Status:  string(row.Status),
		OwnerID: row.CreatedBy,
		Version: row.Version,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[rec.ID] = rec
	if s.running[rec.ID] {
		return
	}
	s.running[rec.ID] = true
	go s.drain(context.WithoutCancel(ctx), rec.ID)
}

func (s *Service) drain(ctx context.Context, formID string) {
	for {
		s.mu.Lock()
		rec, ok := s.pending[formID]
		if !ok {
			delete(s.running, formID)
			s.mu.Unlock()
			return
		}
		delete(s.pending, formID)
		s.mu.Unlock()

		if err := s.index.IndexForm(rec); err != nil {
			s.log.Warn(ctx, "index form", "form_id", rec.ID, "version", rec.Version, "error", err)
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
