package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"toolcatalog/internal/model"
	"toolcatalog/internal/search"
)

// Repository is the persistence a resource needs. *store.Table satisfies it;
// Get, Update and Delete return sql.ErrNoRows for a missing id.
type Repository[T model.Record[T]] interface {
	List(ctx context.Context) ([]T, error)
	ListByParent(ctx context.Context, parentID int64) ([]T, error)
	Get(ctx context.Context, id int64) (T, error)
	Insert(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, item T) (T, error)
	Delete(ctx context.Context, id int64) error
	DeleteByParent(ctx context.Context, parentID int64) ([]int64, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

// resource is the type-erased view of one entity collection used by the
// router.
type resource interface {
	Kind() model.Kind
	Parent() resource
	List(ctx context.Context, parentID int64) (any, error)
	Get(ctx context.Context, id int64) (any, error)
	Create(ctx context.Context, body json.RawMessage) (any, error)
	Update(ctx context.Context, id int64, body json.RawMessage) (any, error)
	Delete(ctx context.Context, id int64) error
	DeleteChildren(ctx context.Context, parentID int64) (int, error)
	Exists(ctx context.Context, id int64) (bool, error)
	ancestry(ctx context.Context, id int64) ([]string, error)
}

type entityResource[T model.Record[T], P model.Patch[T]] struct {
	svc         *Service
	kind        model.Kind
	repo        Repository[T]
	parent      resource
	parentField string
}

func newResource[T model.Record[T], P model.Patch[T]](svc *Service, kind model.Kind, repo Repository[T], parent resource, parentField string) *entityResource[T, P] {
	return &entityResource[T, P]{svc: svc, kind: kind, repo: repo, parent: parent, parentField: parentField}
}

func (r *entityResource[T, P]) Kind() model.Kind { return r.kind }

func (r *entityResource[T, P]) Parent() resource { return r.parent }

func (r *entityResource[T, P]) Exists(ctx context.Context, id int64) (bool, error) {
	return r.repo.Exists(ctx, id)
}

func (r *entityResource[T, P]) List(ctx context.Context, parentID int64) (any, error) {
	if parentID > 0 {
		return r.repo.ListByParent(ctx, parentID)
	}
	return r.repo.List(ctx)
}

func (r *entityResource[T, P]) Get(ctx context.Context, id int64) (any, error) {
	return r.repo.Get(ctx, id)
}

func (r *entityResource[T, P]) Create(ctx context.Context, body json.RawMessage) (any, error) {
	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	item = item.WithID(0)
	if err := r.check(ctx, item); err != nil {
		return nil, err
	}
	created, err := r.repo.Insert(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", r.kind.Name, err)
	}
	r.svc.metrics.Write(r.kind.Resource, "create", 1)
	r.index(ctx, created)
	return created, nil
}

// Update merges the patch in body into the stored record.
func (r *entityResource[T, P]) Update(ctx context.Context, id int64, body json.RawMessage) (any, error) {
	var patch P
	if err := json.Unmarshal(body, &patch); err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	current, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := patch.Apply(current).WithID(id)
	if err := r.check(ctx, merged); err != nil {
		return nil, err
	}
	updated, err := r.repo.Update(ctx, merged)
	if err != nil {
		return nil, fmt.Errorf("update %s %d: %w", r.kind.Name, id, err)
	}
	r.svc.metrics.Write(r.kind.Resource, "update", 1)
	r.index(ctx, updated)
	return updated, nil
}

// Delete removes the record. The database cascades to descendants and the
// search index drops the whole subtree.
func (r *entityResource[T, P]) Delete(ctx context.Context, id int64) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.svc.metrics.Write(r.kind.Resource, "delete", 1)
	r.svc.search.Delete(search.Key(r.kind.Resource, id))
	return nil
}

func (r *entityResource[T, P]) DeleteChildren(ctx context.Context, parentID int64) (int, error) {
	if r.parent == nil {
		return 0, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	exists, err := r.parent.Exists(ctx, parentID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, sql.ErrNoRows
	}
	ids, err := r.repo.DeleteByParent(ctx, parentID)
	if err != nil {
		return 0, err
	}
	r.svc.metrics.Write(r.kind.Resource, "delete", len(ids))
	for _, id := range ids {
		r.svc.search.Delete(search.Key(r.kind.Resource, id))
	}
	return len(ids), nil
}

// check validates item, confirms its parent exists and rejects a sibling
// with the same name.
func (r *entityResource[T, P]) check(ctx context.Context, item T) error {
	if err := item.Validate(); err != nil {
		return invalid(err)
	}
	if r.parent != nil {
		exists, err := r.parent.Exists(ctx, item.ParentID())
		if err != nil {
			return err
		}
		if !exists {
			return missingParent(r.parentField, item.ParentID())
		}
	}
	siblings, err := r.repo.ListByParent(ctx, item.ParentID())
	if err != nil {
		return err
	}
	if model.DuplicateTitle(siblings, item) {
		return duplicateName(r.kind, item.Title())
	}
	return nil
}

// ancestry returns the search keys from the root down to id, inclusive.
func (r *entityResource[T, P]) ancestry(ctx context.Context, id int64) ([]string, error) {
	key := search.Key(r.kind.Resource, id)
	if r.parent == nil {
		return []string{key}, nil
	}
	item, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	above, err := r.parent.ancestry(ctx, item.ParentID())
	if err != nil {
		return nil, err
	}
	return append(above, key), nil
}

func (r *entityResource[T, P]) index(ctx context.Context, item T) {
	if !r.svc.search.Enabled() {
		return
	}
	ancestors := []string{}
	if r.parent != nil {
		chain, err := r.parent.ancestry(ctx, item.ParentID())
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			r.svc.logf("index %s %d: %v", r.kind.Name, item.RecordID(), err)
			return
		}
		ancestors = append(ancestors, chain...)
	}
	r.svc.search.Index(search.Entity{
		Key:       search.Key(r.kind.Resource, item.RecordID()),
		Type:      r.kind.Resource,
		ID:        item.RecordID(),
		Name:      item.Title(),
		ParentID:  item.ParentID(),
		Ancestors: ancestors,
	})
}
