// Package backend implements catalog persistence behind one CRUD interface per
// entity kind. Local keeps JSON arrays in a kv.Namespace; Remote talks to the
// REST server.
package backend

import (
	"context"
	"errors"
	"fmt"

	"toolcatalog/internal/model"
)

// ErrNotFound is returned (wrapped in *Error) by Update and Delete for a
// missing id.
var ErrNotFound = errors.New("not found")

// Backend is the persistence surface a store is built on.
type Backend[T model.Record[T], P model.Patch[T]] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id int64, patch P) (T, error)
	Delete(ctx context.Context, id int64) error
}

// Saver is implemented by backends that can overwrite a whole collection.
// Stores only run their persistence side-effect for backends that have it.
type Saver[T any] interface {
	Save(ctx context.Context, items []T) error
}

// Error describes a failed backend call.
type Error struct {
	Op       string // list, create, update, delete, save
	Resource string
	ID       int64
	Status   int    // HTTP status, zero for local calls
	Code     string // server error code when available
	Err      error
}

func (e *Error) Error() string {
	msg := e.Op + " " + e.Resource
	if e.ID != 0 {
		msg += fmt.Sprintf(" %d", e.ID)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err identifies a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Set bundles one backend per entity kind. It is chosen once at startup.
type Set struct {
	Customers    Backend[model.Customer, model.CustomerPatch]
	Applications Backend[model.Application, model.ApplicationPatch]
	Tools        Backend[model.Tool, model.ToolPatch]
	ToolInputs   Backend[model.ToolInput, model.ToolInputPatch]
	ToolOutputs  Backend[model.ToolOutput, model.ToolOutputPatch]
	InputOptions Backend[model.InputOption, model.InputOptionPatch]

	closer func() error
}

// Close releases the resources shared by the set, if any.
func (s Set) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Validate reports a missing backend.
func (s Set) Validate() error {
	switch {
	case s.Customers == nil:
		return errors.New("backend set: customers backend missing")
	case s.Applications == nil:
		return errors.New("backend set: applications backend missing")
	case s.Tools == nil:
		return errors.New("backend set: tools backend missing")
	case s.ToolInputs == nil:
		return errors.New("backend set: tool inputs backend missing")
	case s.ToolOutputs == nil:
		return errors.New("backend set: tool outputs backend missing")
	case s.InputOptions == nil:
		return errors.New("backend set: input options backend missing")
	}
	return nil
}
