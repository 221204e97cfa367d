package backend

import (
	"context"
	"errors"
	"testing"

	"toolcatalog/internal/kv"
	"toolcatalog/internal/model"
)

func newLocalTools(t *testing.T) (*Local[model.Tool, model.ToolPatch], *kv.Memory) {
	t.Helper()
	ns := kv.NewMemory()
	return NewLocal[model.Tool, model.ToolPatch](ns, model.ToolKind), ns
}

func TestLocalListEmpty(t *testing.T) {
	tools, _ := newLocalTools(t)
	items, err := tools.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
}

func TestLocalCreateAssignsIDs(t *testing.T) {
	ctx := context.Background()
	tools, ns := newLocalTools(t)

	first, err := tools.Create(ctx, model.Tool{ApplicationID: 1, Name: "a"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.ID != 1 {
		t.Fatalf("expected id 1, got %d", first.ID)
	}

	// colliding id is replaced
	second, err := tools.Create(ctx, model.Tool{ID: 1, ApplicationID: 1, Name: "b"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if second.ID != 2 {
		t.Fatalf("expected id 2, got %d", second.ID)
	}

	// free id is kept
	third, err := tools.Create(ctx, model.Tool{ID: 7, ApplicationID: 1, Name: "c"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if third.ID != 7 {
		t.Fatalf("expected id 7, got %d", third.ID)
	}

	raw, ok, _ := ns.Get(ctx, "tools")
	if !ok {
		t.Fatal("expected tools key to be written")
	}
	want := `[{"id":1,"applicationId":1,"name":"a","apiEndpoint":""},{"id":2,"applicationId":1,"name":"b","apiEndpoint":""},{"id":7,"applicationId":1,"name":"c","apiEndpoint":""}]`
	if string(raw) != want {
		t.Fatalf("unexpected stored json:\n%s", raw)
	}
}

func TestLocalUpdateMerges(t *testing.T) {
	ctx := context.Background()
	tools, _ := newLocalTools(t)
	created, _ := tools.Create(ctx, model.Tool{ApplicationID: 3, Name: "old", APIEndpoint: "https://x.example.com"})

	updated, err := tools.Update(ctx, created.ID, model.ToolPatch{Name: model.Ptr("X")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Name != "X" || updated.APIEndpoint != "https://x.example.com" || updated.ApplicationID != 3 {
		t.Fatalf("unexpected merge result %+v", updated)
	}

	items, _ := tools.List(ctx)
	if len(items) != 1 || items[0] != updated {
		t.Fatalf("update not persisted: %+v", items)
	}
}

func TestLocalNotFound(t *testing.T) {
	ctx := context.Background()
	tools, _ := newLocalTools(t)

	_, err := tools.Update(ctx, 42, model.ToolPatch{Name: model.Ptr("X")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from update, got %v", err)
	}
	var berr *Error
	if !errors.As(err, &berr) || berr.Op != "update" || berr.ID != 42 || berr.Resource != "tools" {
		t.Fatalf("unexpected error detail %#v", err)
	}

	if err := tools.Delete(ctx, 42); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound from delete, got %v", err)
	}
}

func TestLocalDelete(t *testing.T) {
	ctx := context.Background()
	tools, _ := newLocalTools(t)
	for _, name := range []string{"a", "b", "c"} {
		if _, err := tools.Create(ctx, model.Tool{ApplicationID: 1, Name: name}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := tools.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	items, _ := tools.List(ctx)
	if len(items) != 2 || items[0].ID != 1 || items[1].ID != 3 {
		t.Fatalf("unexpected items after delete %+v", items)
	}
}

func TestLocalSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	tools, _ := newLocalTools(t)
	_, _ = tools.Create(ctx, model.Tool{ApplicationID: 1, Name: "a"})

	var saver Saver[model.Tool] = tools
	if err := saver.Save(ctx, []model.Tool{{ID: 9, ApplicationID: 2, Name: "z"}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	items, _ := tools.List(ctx)
	if len(items) != 1 || items[0].ID != 9 {
		t.Fatalf("expected overwrite, got %+v", items)
	}
}

func TestLocalCorruptCollection(t *testing.T) {
	ctx := context.Background()
	tools, ns := newLocalTools(t)
	_ = ns.Set(ctx, "tools", []byte("{not json"))
	if _, err := tools.List(ctx); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLocalSetSharesNamespace(t *testing.T) {
	ctx := context.Background()
	ns := kv.NewMemory()
	set := NewLocalSet(ns)
	if err := set.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if _, err := set.Customers.Create(ctx, model.Customer{Name: "Acme"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := set.InputOptions.Create(ctx, model.InputOption{InputID: 1, Label: "One", Value: "1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, key := range []string{"customers", "inputOptions"} {
		if _, ok, _ := ns.Get(ctx, key); !ok {
			t.Errorf("expected key %s", key)
		}
	}
	if _, ok := set.Tools.(Saver[model.Tool]); !ok {
		t.Error("local backends must implement Saver")
	}
}
