package search

import (
	"fmt"
	"strconv"
	"strings"
)

// Entity is the document indexed for one catalog record. Ancestors holds the
// keys of every record above it, so a removal can drop the whole subtree.
type Entity struct {
	Key       string   `json:"key"`
	Type      string   `json:"type"`
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	ParentID  int64    `json:"parentId"`
	Ancestors []string `json:"ancestors"`
}

// Key builds the index key of a record, e.g. "tool-inputs-12".
func Key(resource string, id int64) string {
	return resource + "-" + strconv.FormatInt(id, 10)
}

// ParseKey splits a key built by Key.
func ParseKey(key string) (string, int64, error) {
	i := strings.LastIndexByte(key, '-')
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid search key %q", key)
	}
	id, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid search key %q: %w", key, err)
	}
	return key[:i], id, nil
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type     string `json:"type"`
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parentId"`
	Snippet  string `json:"snippet,omitempty"`
}

// Query describes a search request. Type is a resource name; empty means all.
type Query struct {
	Text   string
	Type   string
	Limit  int
	Offset int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	Index(entities ...Entity) error
	DeleteTree(key string) error
}
