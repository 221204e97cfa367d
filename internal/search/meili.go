package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxEntities = "toolcatalog_entities"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. The
// returned value is usable while Meilisearch is down; Healthy reports false
// until a health check succeeds.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))
	m := &Meili{client: client, done: make(chan struct{})}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxEntities, PrimaryKey: "key"}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxEntities, err)
	}
	index := m.client.Index(idxEntities)
	filterable := []interface{}{"type", "parentId", "ancestors"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs: %v", err)
	}
	searchable := []string{"name"}
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

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	req := &meili.SearchRequest{
		Limit:                 int64(q.limit()),
		Offset:                int64(q.offset()),
		AttributesToHighlight: []string{"name"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.Type != "" {
		req.Filter = fmt.Sprintf("type = %q", q.Type)
	}

	resp, err := m.client.Index(idxEntities).Search(q.Text, req)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	var r Result
	decode(hit, "type", &r.Type)
	decode(hit, "id", &r.ID)
	decode(hit, "name", &r.Name)
	decode(hit, "parentId", &r.ParentID)

	var formatted map[string]json.RawMessage
	decode(hit, "_formatted", &formatted)
	var snippet string
	if raw, ok := formatted["name"]; ok && json.Unmarshal(raw, &snippet) == nil {
		r.Snippet = strings.TrimSpace(snippet)
	}
	return r
}

func decode(hit meili.Hit, key string, dst any) {
	raw, ok := hit[key]
	if !ok {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// Index adds or replaces entities.
func (m *Meili) Index(entities ...Entity) error {
	if len(entities) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEntities).AddDocuments(entities, nil)
	return err
}

// DeleteTree removes the entity with key and every entity below it.
func (m *Meili) DeleteTree(key string) error {
	index := m.client.Index(idxEntities)
	if _, err := index.DeleteDocument(key, nil); err != nil {
		return err
	}
	_, err := index.DeleteDocumentsByFilter(fmt.Sprintf("ancestors = %q", key), nil)
	return err
}
