package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"
	"unicode/utf8"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxCustomers = "flexicrm_customers"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the customer index.
// The caller should proceed without it when the connection fails; the
// health loop will pick it up if it comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCustomers,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxCustomers, err)
	}

	index := m.client.Index(idxCustomers)
	filterable := []interface{}{"organizationId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs: %v", err)
	}
	searchable := []string{"text"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs: %v", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the customer index scoped to one organization.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	resp, err := m.client.Index(idxCustomers).Search(q.Text, &meili.SearchRequest{
		Limit:                limit,
		Offset:               int64(q.Offset),
		Filter:               fmt.Sprintf("organizationId = %q", q.OrganizationID),
		AttributesToRetrieve: []string{"id", "text"},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		id := decodeString(hit, "id")
		if id == "" {
			continue
		}
		results = append(results, Result{ID: id, Preview: preview(decodeString(hit, "text"))})
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IndexCustomer pushes one flattened customer document into the index.
func (m *Meili) IndexCustomer(doc CustomerDoc) error {
	if _, err := m.client.Index(idxCustomers).AddDocuments([]CustomerDoc{doc}, nil); err != nil {
		return fmt.Errorf("index customer %s: %w", doc.ID, err)
	}
	return nil
}

// DeleteCustomer removes a customer from the index.
func (m *Meili) DeleteCustomer(id string) error {
	if _, err := m.client.Index(idxCustomers).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("delete customer %s from index: %w", id, err)
	}
	return nil
}

// preview truncates on a rune boundary so the JSON stays valid UTF-8.
func preview(text string) string {
	const max = 120
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
