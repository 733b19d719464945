package search

import (
	"fmt"
	"log"
)

// Service fronts the two backends: Meilisearch when reachable, the SQL
// scan otherwise. Indexing is best-effort and never blocks a write.
type Service struct {
	meili    *Meili
	fallback Searcher
}

// NewService builds the facade. meili may be nil when no MEILI_URL is
// configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search routes to the healthy backend.
func (s *Service) Search(q Query) (Response, error) {
	backend := s.fallback
	if s.meili != nil && s.meili.Healthy() {
		backend = s.meili
	}

	results, total, err := backend.Search(q)
	if err != nil && backend != s.fallback {
		log.Printf("search: meilisearch query failed, falling back: %v", err)
		results, total, err = s.fallback.Search(q)
	}
	if err != nil {
		return Response{}, fmt.Errorf("search: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return Response{Results: results, Total: total, Query: q.Text}, nil
}

// IndexCustomer pushes a customer document to Meilisearch in the
// background. No-op without a configured Meilisearch.
func (s *Service) IndexCustomer(doc CustomerDoc) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCustomer(doc); err != nil {
			log.Printf("search: index customer %s: %v", doc.ID, err)
		}
	}()
}

// RemoveCustomer drops a customer document from Meilisearch in the
// background.
func (s *Service) RemoveCustomer(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCustomer(id); err != nil {
			log.Printf("search: remove customer %s: %v", id, err)
		}
	}()
}
