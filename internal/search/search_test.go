package search

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeSearcher struct {
	search func(Query) ([]Result, int, error)
}

func (f fakeSearcher) Search(q Query) ([]Result, int, error) { return f.search(q) }
func (f fakeSearcher) Healthy() bool                         { return true }

type fakeIndexer struct {
	indexed chan Entity
	deleted chan string
}

func (f fakeIndexer) Index(entities ...Entity) error {
	for _, e := range entities {
		f.indexed <- e
	}
	return nil
}

func (f fakeIndexer) DeleteTree(key string) error {
	f.deleted <- key
	return nil
}

func TestKeyRoundTrip(t *testing.T) {
	key := Key("tool-inputs", 12)
	if key != "tool-inputs-12" {
		t.Fatalf("unexpected key %q", key)
	}
	resource, id, err := ParseKey(key)
	if err != nil || resource != "tool-inputs" || id != 12 {
		t.Fatalf("ParseKey() = %q %d %v", resource, id, err)
	}
	if _, _, err := ParseKey("tools"); err == nil {
		t.Fatal("expected error for key without id")
	}
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	var got Query
	svc := NewService(nil, fakeSearcher{search: func(q Query) ([]Result, int, error) {
		got = q
		return []Result{{Type: "tools", ID: 3, Name: "Invoice"}}, 1, nil
	}})

	resp := svc.Search(Query{Text: "inv", Type: "tools"})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].ID != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.Type != "tools" || resp.Query != "inv" {
		t.Fatalf("query not forwarded: %+v", got)
	}
}

func TestServiceReturnsEmptyOnFallbackError(t *testing.T) {
	svc := NewService(nil, fakeSearcher{search: func(Query) ([]Result, int, error) {
		return nil, 0, errors.New("boom")
	}})
	resp := svc.Search(Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
}

func TestServiceSkipsIndexingWithoutMeili(t *testing.T) {
	svc := NewService(nil, nil)
	svc.Index(Entity{Key: "tools-1"})
	svc.Delete("tools-1")
	if resp := svc.Search(Query{Text: "x"}); len(resp.Results) != 0 {
		t.Fatalf("unexpected results %+v", resp)
	}
}

func TestServiceIndexesAsync(t *testing.T) {
	idx := fakeIndexer{indexed: make(chan Entity, 1), deleted: make(chan string, 1)}
	svc := &Service{indexer: idx}

	svc.Index(Entity{Key: "customers-1", Type: "customers", ID: 1, Name: "Acme"})
	select {
	case e := <-idx.indexed:
		if e.Key != "customers-1" {
			t.Fatalf("unexpected entity %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("entity was not indexed")
	}

	svc.Delete("customers-1")
	select {
	case key := <-idx.deleted:
		if key != "customers-1" {
			t.Fatalf("unexpected key %q", key)
		}
	case <-time.After(time.Second):
		t.Fatal("entity was not deleted")
	}
}

func TestUnhealthyMeiliFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMeili(srv.URL, "")
	defer m.Close()
	if m.Healthy() {
		t.Fatal("expected meilisearch to be unhealthy")
	}
	if _, _, err := m.Search(Query{Text: "x"}); err == nil {
		t.Fatal("expected search error while unhealthy")
	}

	called := false
	svc := NewService(m, fakeSearcher{search: func(Query) ([]Result, int, error) {
		called = true
		return nil, 0, nil
	}})
	svc.Search(Query{Text: "x"})
	if !called {
		t.Fatal("expected postgres fallback")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("escapeLike() = %q", got)
	}
}
