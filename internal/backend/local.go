package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"toolcatalog/internal/kv"
	"toolcatalog/internal/model"
)

// Local stores one collection as a JSON array under kind.StorageKey. Every
// mutation reads the whole array, changes it in memory and writes it back.
type Local[T model.Record[T], P model.Patch[T]] struct {
	ns   kv.Namespace
	kind model.Kind
	mu   sync.Mutex
}

func NewLocal[T model.Record[T], P model.Patch[T]](ns kv.Namespace, kind model.Kind) *Local[T, P] {
	return &Local[T, P]{ns: ns, kind: kind}
}

// NewLocalSet builds local backends for every kind on one namespace. Closing
// the set closes the namespace.
func NewLocalSet(ns kv.Namespace) Set {
	return Set{
		Customers:    NewLocal[model.Customer, model.CustomerPatch](ns, model.CustomerKind),
		Applications: NewLocal[model.Application, model.ApplicationPatch](ns, model.ApplicationKind),
		Tools:        NewLocal[model.Tool, model.ToolPatch](ns, model.ToolKind),
		ToolInputs:   NewLocal[model.ToolInput, model.ToolInputPatch](ns, model.ToolInputKind),
		ToolOutputs:  NewLocal[model.ToolOutput, model.ToolOutputPatch](ns, model.ToolOutputKind),
		InputOptions: NewLocal[model.InputOption, model.InputOptionPatch](ns, model.InputOptionKind),
		closer:       ns.Close,
	}
}

func (l *Local[T, P]) fail(op string, id int64, err error) error {
	return &Error{Op: op, Resource: l.kind.Resource, ID: id, Err: err}
}

func (l *Local[T, P]) read(ctx context.Context) ([]T, error) {
	data, ok, err := l.ns.Get(ctx, l.kind.StorageKey)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", l.kind.StorageKey, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (l *Local[T, P]) write(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", l.kind.StorageKey, err)
	}
	return l.ns.Set(ctx, l.kind.StorageKey, data)
}

func (l *Local[T, P]) List(ctx context.Context) ([]T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items, err := l.read(ctx)
	if err != nil {
		return nil, l.fail("list", 0, err)
	}
	return items, nil
}

// Create appends item. An unset or colliding id is replaced with the next
// free one.
func (l *Local[T, P]) Create(ctx context.Context, item T) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	items, err := l.read(ctx)
	if err != nil {
		return zero, l.fail("create", 0, err)
	}
	if item.RecordID() <= 0 || indexOf(items, item.RecordID()) >= 0 {
		item = item.WithID(model.NextID(items))
	}
	if err := l.write(ctx, append(items, item)); err != nil {
		return zero, l.fail("create", item.RecordID(), err)
	}
	return item, nil
}

func (l *Local[T, P]) Update(ctx context.Context, id int64, patch P) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	items, err := l.read(ctx)
	if err != nil {
		return zero, l.fail("update", id, err)
	}
	idx := indexOf(items, id)
	if idx < 0 {
		return zero, l.fail("update", id, ErrNotFound)
	}
	updated := patch.Apply(items[idx])
	items[idx] = updated
	if err := l.write(ctx, items); err != nil {
		return zero, l.fail("update", id, err)
	}
	return updated, nil
}

func (l *Local[T, P]) Delete(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	items, err := l.read(ctx)
	if err != nil {
		return l.fail("delete", id, err)
	}
	idx := indexOf(items, id)
	if idx < 0 {
		return l.fail("delete", id, ErrNotFound)
	}
	items = append(items[:idx], items[idx+1:]...)
	if err := l.write(ctx, items); err != nil {
		return l.fail("delete", id, err)
	}
	return nil
}

// Save overwrites the whole collection.
func (l *Local[T, P]) Save(ctx context.Context, items []T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(ctx, items); err != nil {
		return l.fail("save", 0, err)
	}
	return nil
}

func indexOf[T model.Record[T]](items []T, id int64) int {
	for i, item := range items {
		if item.RecordID() == id {
			return i
		}
	}
	return -1
}
