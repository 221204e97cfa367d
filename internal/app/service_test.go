package app

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"toolcatalog/internal/config"
	"toolcatalog/internal/model"
	"toolcatalog/internal/rbac"
)

// memRepo is an in-memory Repository. Set a fn field to override a method.
type memRepo[T model.Record[T]] struct {
	mu     sync.Mutex
	items  []T
	nextID int64

	insertFn func(context.Context, T) (T, error)
}

func (m *memRepo[T]) List(context.Context) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T{}, m.items...), nil
}

func (m *memRepo[T]) ListByParent(_ context.Context, parentID int64) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []T{}
	for _, item := range m.items {
		if item.ParentID() == parentID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memRepo[T]) Get(_ context.Context, id int64) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.RecordID() == id {
			return item, nil
		}
	}
	var zero T
	return zero, sql.ErrNoRows
}

func (m *memRepo[T]) Insert(ctx context.Context, item T) (T, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item = item.WithID(m.nextID)
	m.items = append(m.items, item)
	return item, nil
}

func (m *memRepo[T]) Update(_ context.Context, item T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].RecordID() == item.RecordID() {
			m.items[i] = item
			return item, nil
		}
	}
	var zero T
	return zero, sql.ErrNoRows
}

func (m *memRepo[T]) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.items)
	m.items = slices.DeleteFunc(m.items, func(item T) bool { return item.RecordID() == id })
	if len(m.items) == before {
		return sql.ErrNoRows
	}
	return nil
}

func (m *memRepo[T]) DeleteByParent(_ context.Context, parentID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	m.items = slices.DeleteFunc(m.items, func(item T) bool {
		if item.ParentID() == parentID {
			ids = append(ids, item.RecordID())
			return true
		}
		return false
	})
	return ids, nil
}

func (m *memRepo[T]) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := m.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

type fakeDB struct {
	pingFn func(context.Context) error
}

func (f fakeDB) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type testRepos struct {
	customers    *memRepo[model.Customer]
	applications *memRepo[model.Application]
	tools        *memRepo[model.Tool]
	toolInputs   *memRepo[model.ToolInput]
	toolOutputs  *memRepo[model.ToolOutput]
	inputOptions *memRepo[model.InputOption]
}

func newTestRepos() *testRepos {
	return &testRepos{
		customers:    &memRepo[model.Customer]{},
		applications: &memRepo[model.Application]{},
		tools:        &memRepo[model.Tool]{},
		toolInputs:   &memRepo[model.ToolInput]{},
		toolOutputs:  &memRepo[model.ToolOutput]{},
		inputOptions: &memRepo[model.InputOption]{},
	}
}

func (r *testRepos) repositories() Repositories {
	return Repositories{
		Customers:    r.customers,
		Applications: r.applications,
		Tools:        r.tools,
		ToolInputs:   r.toolInputs,
		ToolOutputs:  r.toolOutputs,
		InputOptions: r.inputOptions,
	}
}

func newTestService(repos *testRepos, cfg config.Config) *Service {
	return New(cfg, fakeDB{}, repos.repositories(), nil, nil, nil)
}

func TestCreateChecksParentAndSiblings(t *testing.T) {
	repos := newTestRepos()
	svc := newTestService(repos, config.Config{AuthDisabled: true})
	ctx := context.Background()
	apps, _ := svc.resource("applications")

	if _, err := apps.Create(ctx, []byte(`{"customerId":7,"name":"Billing"}`)); err == nil {
		t.Fatal("expected missing parent error")
	} else if status, _, _, _ := mapError(err); status != 422 {
		t.Fatalf("missing parent status = %d, want 422", status)
	}

	customers, _ := svc.resource("customers")
	if _, err := customers.Create(ctx, []byte(`{"name":"Acme"}`)); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if _, err := apps.Create(ctx, []byte(`{"customerId":1,"name":"Billing"}`)); err != nil {
		t.Fatalf("create application: %v", err)
	}
	_, err := apps.Create(ctx, []byte(`{"customerId":1,"name":"billing "}`))
	if status, code, _, _ := mapError(err); status != 409 || code != "DUPLICATE_NAME" {
		t.Fatalf("duplicate = %d %s, want 409 DUPLICATE_NAME", status, code)
	}
}

func TestCreateIgnoresClientID(t *testing.T) {
	repos := newTestRepos()
	svc := newTestService(repos, config.Config{})
	customers, _ := svc.resource("customers")

	created, err := customers.Create(context.Background(), []byte(`{"id":99,"name":"Acme"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := created.(model.Customer).ID; got != 1 {
		t.Fatalf("id = %d, want 1", got)
	}
}

func TestUpdateMergesPatch(t *testing.T) {
	repos := newTestRepos()
	repos.customers.items = []model.Customer{{ID: 1, Name: "Acme"}}
	repos.applications.items = []model.Application{{ID: 1, CustomerID: 1, Name: "Billing"}}
	repos.tools.items = []model.Tool{{ID: 1, ApplicationID: 1, Name: "old", APIEndpoint: "https://tools.example.com/run"}}
	svc := newTestService(repos, config.Config{})
	tools, _ := svc.resource("tools")

	updated, err := tools.Update(context.Background(), 1, []byte(`{"name":"X"}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	tool := updated.(model.Tool)
	if tool.Name != "X" || tool.APIEndpoint != "https://tools.example.com/run" || tool.ApplicationID != 1 {
		t.Fatalf("unexpected merge result %+v", tool)
	}

	if _, err := tools.Update(context.Background(), 42, []byte(`{"name":"Y"}`)); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestUpdateRejectsInvalidMerge(t *testing.T) {
	repos := newTestRepos()
	repos.customers.items = []model.Customer{{ID: 1, Name: "Acme"}, {ID: 2, Name: "Globex"}}
	svc := newTestService(repos, config.Config{})
	customers, _ := svc.resource("customers")

	_, err := customers.Update(context.Background(), 2, []byte(`{"name":"ACME"}`))
	if status, _, _, _ := mapError(err); status != 409 {
		t.Fatalf("rename onto sibling status = %d, want 409", status)
	}
	_, err = customers.Update(context.Background(), 2, []byte(`{"name":"  "}`))
	if status, _, _, details := mapError(err); status != 422 || details.(map[string]string)["field"] != "name" {
		t.Fatalf("blank rename = %d %v, want 422 on name", status, details)
	}
}

func TestAncestryWalksToRoot(t *testing.T) {
	repos := newTestRepos()
	repos.customers.items = []model.Customer{{ID: 1, Name: "Acme"}}
	repos.applications.items = []model.Application{{ID: 2, CustomerID: 1, Name: "Billing"}}
	repos.tools.items = []model.Tool{{ID: 3, ApplicationID: 2, Name: "Invoice"}}
	repos.toolInputs.items = []model.ToolInput{{ID: 4, ToolID: 3, Name: "plan", FieldType: model.InputSelect}}
	svc := newTestService(repos, config.Config{})
	inputs, _ := svc.resource("tool-inputs")

	chain, err := inputs.ancestry(context.Background(), 4)
	if err != nil {
		t.Fatalf("ancestry: %v", err)
	}
	want := []string{"customers-1", "applications-2", "tools-3", "tool-inputs-4"}
	if !slices.Equal(chain, want) {
		t.Fatalf("ancestry = %v, want %v", chain, want)
	}
}

func TestSessionFromToken(t *testing.T) {
	svc := newTestService(newTestRepos(), config.Config{TokenSecret: "s3cret", TokenTTL: time.Hour})
	if _, err := svc.SessionFromToken(context.Background(), ""); err == nil {
		t.Fatal("expected error for missing token")
	}

	disabled := newTestService(newTestRepos(), config.Config{AuthDisabled: true})
	session, err := disabled.SessionFromToken(context.Background(), "")
	if err != nil || session.Role != string(rbac.RoleAdmin) {
		t.Fatalf("auth disabled session = %+v %v", session, err)
	}
}
