package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"toolcatalog/internal/backend"
	"toolcatalog/internal/config"
	"toolcatalog/internal/kv"
	"toolcatalog/internal/model"
)

func seed(t *testing.T, ns kv.Namespace, key string, items any) {
	t.Helper()
	data, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("marshal %s: %v", key, err)
	}
	if err := ns.Set(context.Background(), key, data); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func newTestCatalog(t *testing.T, ns kv.Namespace) *Catalog {
	t.Helper()
	c, err := New(context.Background(), backend.NewLocalSet(ns), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.WaitLoaded(ctx); err != nil {
		t.Fatalf("WaitLoaded failed: %v", err)
	}
	return c
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAcmeScenario(t *testing.T) {
	ns := kv.NewMemory()
	seed(t, ns, "customers", []model.Customer{{ID: 1, Name: "Acme"}})
	seed(t, ns, "applications", []model.Application{{ID: 10, CustomerID: 1, Name: "Portal"}})
	seed(t, ns, "tools", []model.Tool{{ID: 100, ApplicationID: 10, Name: "Lookup"}})
	seed(t, ns, "toolInputs", []model.ToolInput{{ID: 1000, ToolID: 100, Name: "q", FieldType: model.InputSelect}})
	seed(t, ns, "toolOutputs", []model.ToolOutput{{ID: 2000, ToolID: 100, Name: "result"}})
	seed(t, ns, "inputOptions", []model.InputOption{{ID: 10000, InputID: 1000, Label: "One", Value: "1"}})

	c := newTestCatalog(t, ns)
	c.Customers.Remove(1)

	eventually(t, "cascade to settle", func() bool {
		for _, n := range c.Counts() {
			if n != 0 {
				return false
			}
		}
		return true
	})
	if err := c.Err(); err != nil {
		t.Fatalf("unexpected store errors: %v", err)
	}

	// every collection is persisted empty
	eventually(t, "persisted collections", func() bool {
		for _, kind := range model.Kinds() {
			raw, ok, _ := ns.Get(context.Background(), kind.StorageKey)
			if !ok || string(raw) != "[]" {
				return false
			}
		}
		return true
	})
}

func TestCascadeCompleteness(t *testing.T) {
	const (
		customers = 2
		apps      = 3 // per customer
		tools     = 2 // per application
		perTool   = 2 // inputs and outputs per tool
		options   = 2 // per input
	)
	var (
		cs  []model.Customer
		as  []model.Application
		ts  []model.Tool
		is  []model.ToolInput
		os  []model.ToolOutput
		ops []model.InputOption
		id  int64
	)
	next := func() int64 { id++; return id }
	for c := 0; c < customers; c++ {
		customer := model.Customer{ID: next(), Name: fmt.Sprintf("customer-%d", c)}
		cs = append(cs, customer)
		for a := 0; a < apps; a++ {
			app := model.Application{ID: next(), CustomerID: customer.ID, Name: fmt.Sprintf("app-%d", a)}
			as = append(as, app)
			for k := 0; k < tools; k++ {
				tool := model.Tool{ID: next(), ApplicationID: app.ID, Name: fmt.Sprintf("tool-%d", k)}
				ts = append(ts, tool)
				for p := 0; p < perTool; p++ {
					input := model.ToolInput{ID: next(), ToolID: tool.ID, Name: fmt.Sprintf("in-%d", p), FieldType: model.InputSelect}
					is = append(is, input)
					os = append(os, model.ToolOutput{ID: next(), ToolID: tool.ID, Name: fmt.Sprintf("out-%d", p)})
					for o := 0; o < options; o++ {
						ops = append(ops, model.InputOption{ID: next(), InputID: input.ID, Label: fmt.Sprintf("opt-%d", o)})
					}
				}
			}
		}
	}

	ns := kv.NewMemory()
	seed(t, ns, "customers", cs)
	seed(t, ns, "applications", as)
	seed(t, ns, "tools", ts)
	seed(t, ns, "toolInputs", is)
	seed(t, ns, "toolOutputs", os)
	seed(t, ns, "inputOptions", ops)

	c := newTestCatalog(t, ns)
	removed := cs[0].ID
	c.Customers.Remove(removed)

	per := apps
	eventually(t, "cascade to settle", func() bool {
		counts := c.Counts()
		return counts["customers"] == 1 &&
			counts["applications"] == per &&
			counts["tools"] == per*tools &&
			counts["toolInputs"] == per*tools*perTool &&
			counts["toolOutputs"] == per*tools*perTool &&
			counts["inputOptions"] == per*tools*perTool*options
	})

	if orphans := c.Orphans(); len(orphans) != 0 {
		t.Fatalf("expected no orphans, got %+v", orphans)
	}
	tree := c.Tree()
	if len(tree) != 1 || tree[0].ID == removed {
		t.Fatalf("unexpected tree %+v", tree)
	}
	if got := len(tree[0].Applications); got != apps {
		t.Fatalf("expected %d applications under the survivor, got %d", apps, got)
	}
}

func TestRemovingToolCascadesToBothChildKinds(t *testing.T) {
	ns := kv.NewMemory()
	seed(t, ns, "customers", []model.Customer{{ID: 1, Name: "Acme"}})
	seed(t, ns, "applications", []model.Application{{ID: 1, CustomerID: 1, Name: "Portal"}})
	seed(t, ns, "tools", []model.Tool{{ID: 1, ApplicationID: 1, Name: "a"}, {ID: 2, ApplicationID: 1, Name: "b"}})
	seed(t, ns, "toolInputs", []model.ToolInput{
		{ID: 1, ToolID: 1, Name: "q", FieldType: model.InputText},
		{ID: 2, ToolID: 2, Name: "q", FieldType: model.InputSelect},
	})
	seed(t, ns, "toolOutputs", []model.ToolOutput{{ID: 1, ToolID: 1, Name: "r"}, {ID: 2, ToolID: 2, Name: "r"}})
	seed(t, ns, "inputOptions", []model.InputOption{{ID: 1, InputID: 2, Label: "x"}})

	c := newTestCatalog(t, ns)
	c.Tools.Remove(2)

	eventually(t, "tool cascade", func() bool {
		return c.ToolInputs.Count() == 1 && c.ToolOutputs.Count() == 1 && c.InputOptions.Count() == 0
	})
	if _, ok := c.ToolInputs.Get(1); !ok {
		t.Fatal("input of the other tool must survive")
	}
	if c.Customers.Count() != 1 || c.Applications.Count() != 1 {
		t.Fatal("ancestors must be untouched")
	}
}

func TestEdges(t *testing.T) {
	c := newTestCatalog(t, kv.NewMemory())
	want := []string{
		"customer -> application",
		"application -> tool",
		"tool -> tool input",
		"tool -> tool output",
		"tool input -> input option",
	}
	edges := c.Edges()
	if len(edges) != len(want) {
		t.Fatalf("expected %d edges, got %d", len(want), len(edges))
	}
	for i, edge := range edges {
		if edge.String() != want[i] {
			t.Errorf("edge %d = %q, want %q", i, edge, want[i])
		}
	}
}

func TestNewRejectsIncompleteSet(t *testing.T) {
	if _, err := New(context.Background(), backend.Set{}, nil); err == nil {
		t.Fatal("expected error for empty backend set")
	}
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()

	set, err := OpenBackends(ctx, config.Config{Backend: "local", KVDriver: "memory"})
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if _, ok := set.Customers.(*backend.Local[model.Customer, model.CustomerPatch]); !ok {
		t.Fatalf("expected local backend, got %T", set.Customers)
	}
	_ = set.Close()

	set, err = OpenBackends(ctx, config.Config{Backend: "remote", APIURL: "http://localhost:8787"})
	if err != nil {
		t.Fatalf("remote: %v", err)
	}
	if _, ok := set.Tools.(*backend.Remote[model.Tool, model.ToolPatch]); !ok {
		t.Fatalf("expected remote backend, got %T", set.Tools)
	}

	if _, err := OpenBackends(ctx, config.Config{Backend: "carrier-pigeon"}); err == nil {
		t.Fatal("expected unknown backend error")
	}
	if _, err := OpenBackends(ctx, config.Config{Backend: "remote"}); err == nil {
		t.Fatal("expected missing url error")
	}
}

func TestOpenLocalSQLite(t *testing.T) {
	cfg := config.Config{
		Backend:    "local",
		KVDriver:   "sqlite",
		SQLitePath: t.TempDir() + "/catalog.db",
	}
	c, err := Open(context.Background(), cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.WaitLoaded(ctx); err != nil {
		t.Fatalf("WaitLoaded failed: %v", err)
	}
	c.Customers.Add(model.Customer{Name: "Acme"})
	eventually(t, "add", func() bool { return c.Customers.Count() == 1 })
	if got := c.Customers.Items()[0].ID; got != 1 {
		t.Fatalf("expected id 1, got %d", got)
	}
}

func TestWaitLoadedReportsLoadFailure(t *testing.T) {
	set := backend.NewLocalSet(kv.NewMemory())
	set.Tools = failingTools{}
	c, err := New(context.Background(), set, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.WaitLoaded(ctx); err == nil {
		t.Fatal("expected load failure")
	}
	if c.Err() == nil {
		t.Fatal("expected joined store error")
	}
}

type failingTools struct{}

func (failingTools) List(context.Context) ([]model.Tool, error) {
	return nil, fmt.Errorf("unavailable")
}
func (failingTools) Create(context.Context, model.Tool) (model.Tool, error) {
	return model.Tool{}, fmt.Errorf("unavailable")
}
func (failingTools) Update(context.Context, int64, model.ToolPatch) (model.Tool, error) {
	return model.Tool{}, fmt.Errorf("unavailable")
}
func (failingTools) Delete(context.Context, int64) error { return fmt.Errorf("unavailable") }

func TestSettleWaitsForCascadeAndSaves(t *testing.T) {
	ns := kv.NewMemory()
	seed(t, ns, "customers", []model.Customer{{ID: 1, Name: "Acme"}})
	seed(t, ns, "applications", []model.Application{{ID: 1, CustomerID: 1, Name: "Portal"}, {ID: 2, CustomerID: 1, Name: "Admin"}})
	seed(t, ns, "tools", []model.Tool{{ID: 1, ApplicationID: 1, Name: "a"}, {ID: 2, ApplicationID: 2, Name: "b"}})

	c := newTestCatalog(t, ns)
	c.Customers.Remove(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Settle(ctx); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	// no polling: Settle returns only once everything is done
	for key, n := range c.Counts() {
		if n != 0 {
			t.Fatalf("%s still has %d records after Settle", key, n)
		}
	}
	raw, _, _ := ns.Get(context.Background(), "tools")
	if string(raw) != "[]" {
		t.Fatalf("tools not persisted before Settle returned: %s", raw)
	}
}

func TestSettleHonoursContext(t *testing.T) {
	c := newTestCatalog(t, kv.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Settle(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestAddRejectsMissingParent(t *testing.T) {
	ns := kv.NewMemory()
	seed(t, ns, "customers", []model.Customer{{ID: 1, Name: "Acme"}})
	c := newTestCatalog(t, ns)

	c.Applications.Add(model.Application{CustomerID: 999, Name: "ghost"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Settle(ctx); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	var verr *model.ValidationError
	if !errors.As(c.Applications.Err(), &verr) || verr.Field != "customerId" {
		t.Fatalf("expected customerId validation error, got %v", c.Applications.Err())
	}
	if n := c.Applications.Count(); n != 0 {
		t.Fatalf("expected no application, got %d", n)
	}
	if orphans := c.Orphans(); len(orphans) != 0 {
		t.Fatalf("unexpected orphans %+v", orphans)
	}

	c.Applications.Add(model.Application{CustomerID: 1, Name: "Portal"})
	if err := c.Settle(ctx); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if c.Applications.Count() != 1 || c.Applications.Err() != nil {
		t.Fatalf("expected valid add, got %+v err=%v", c.Applications.Items(), c.Applications.Err())
	}
}

func TestSettleReturnsWhenChildNeverLoaded(t *testing.T) {
	ns := kv.NewMemory()
	seed(t, ns, "customers", []model.Customer{{ID: 1, Name: "Acme"}})
	seed(t, ns, "applications", []model.Application{{ID: 1, CustomerID: 1, Name: "Portal"}})
	set := backend.NewLocalSet(ns)
	set.Tools = failingTools{}
	c, err := New(context.Background(), set, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.WaitLoaded(ctx)
	c.Customers.Remove(1)
	if err := c.Settle(ctx); err != nil {
		t.Fatalf("Settle blocked on a collection that never loaded: %v", err)
	}
	if c.Applications.Count() != 0 {
		t.Fatalf("expected application cascade, got %+v", c.Applications.Items())
	}
}
