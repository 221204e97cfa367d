package search

import (
	"context"
	"log"
)

// Service tries Meilisearch first and falls back to Postgres.
type Service struct {
	meili    *Meili
	fallback Searcher
	indexer  Indexer
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	s := &Service{meili: meili, fallback: fallback}
	if meili != nil {
		s.indexer = meili
	}
	return s
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(q)
	if err != nil {
		log.Printf("search: postgres error: %v", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Enabled reports whether writes are currently pushed to an index.
func (s *Service) Enabled() bool {
	if s.indexer == nil {
		return false
	}
	return s.meili == nil || s.meili.Healthy()
}

// Index pushes an entity to the index without waiting.
func (s *Service) Index(e Entity) {
	if !s.Enabled() {
		return
	}
	go func() {
		if err := s.indexer.Index(e); err != nil {
			log.Printf("search: index %s: %v", e.Key, err)
		}
	}()
}

// Delete removes an entity and its descendants from the index without
// waiting.
func (s *Service) Delete(key string) {
	if !s.Enabled() {
		return
	}
	go func() {
		if err := s.indexer.DeleteTree(key); err != nil {
			log.Printf("search: delete %s: %v", key, err)
		}
	}()
}

// Reindex loads every record from Postgres and pushes it to the index.
func (s *Service) Reindex(ctx context.Context, pg *Postgres) {
	if !s.Enabled() || pg == nil {
		return
	}
	entities, err := pg.LoadEntities(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.indexer.Index(entities...); err != nil {
		log.Printf("search: reindex: %v", err)
		return
	}
	log.Printf("search: reindexed %d entities", len(entities))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
