package entitystore

import (
	"fmt"
	"slices"

	"toolcatalog/internal/backend"
)

type op int

const (
	opLoad op = iota
	opAdd
	opEdit
	opRemove
	opCascade
	opSave
)

func (o op) String() string {
	switch o {
	case opLoad:
		return "load"
	case opAdd:
		return "add"
	case opEdit:
		return "edit"
	case opRemove:
		return "remove"
	case opCascade:
		return "cascade remove"
	case opSave:
		return "save"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// result is the outcome of one backend call, turned into a state patch by
// apply.
type result[T any] struct {
	op    op
	items []T
	item  T
	id    int64
	err   error
}

// apply merges a finished operation into the state. It runs on the loop
// goroutine only, so s.state can be read without the lock here.
func (s *Store[T, P]) apply(res result[T]) {
	cur := s.state
	if res.op != opLoad && res.op != opSave {
		s.inflight--
	}
	switch res.op {
	case opLoad:
		s.loadPending = false
		defer close(s.loadDone)
		if res.err != nil {
			if len(s.deferred) > 0 {
				s.logf("dropping cascades for parents %v, the collection never loaded", s.deferred)
				s.deferred = nil
			}
			s.fail(res.err)
			return
		}
		items := slices.Clone(res.items)
		if items == nil {
			items = []T{}
		}
		s.commit(State[T]{Items: items, Loaded: true}, false)
		deferred := s.deferred
		s.deferred = nil
		for _, parentID := range deferred {
			s.enqueueChildren(parentID)
		}

	case opAdd:
		s.addGate.Release(1)
		if res.err != nil {
			s.fail(res.err)
			return
		}
		items := append(slices.Clone(cur.Items), res.item)
		s.commit(State[T]{Items: items, Loaded: cur.Loaded}, true)

	case opEdit:
		s.editGate.Release(1)
		if res.err != nil {
			s.fail(res.err)
			return
		}
		items := slices.Clone(cur.Items)
		if idx := indexOf(items, res.item.RecordID()); idx >= 0 {
			items[idx] = res.item
		}
		s.commit(State[T]{Items: items, Loaded: cur.Loaded}, true)

	case opRemove:
		s.removeGate.Release(1)
		if res.err != nil {
			s.fail(res.err)
			return
		}
		s.dropItem(res.id)
		s.emitRemoved(res.id)

	case opCascade:
		s.cascading = false
		delete(s.queued, res.id)
		// the server may already have removed it with its parent
		if res.err != nil && !backend.IsNotFound(res.err) {
			s.fail(fmt.Errorf("cascade: %w", res.err))
			return
		}
		s.dropItem(res.id)
		s.emitRemoved(res.id)

	case opSave:
		s.fail(res.err)
	}
}

func (s *Store[T, P]) dropItem(id int64) {
	cur := s.state
	items := slices.DeleteFunc(slices.Clone(cur.Items), func(item T) bool {
		return item.RecordID() == id
	})
	s.commit(State[T]{Items: items, Loaded: cur.Loaded}, true)
}
