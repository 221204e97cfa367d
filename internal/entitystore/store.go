// Package entitystore owns one catalog collection in memory. Mutation intents
// are accepted fire-and-forget, executed against a backend with per-kind
// single-flight, and their results are merged by a single loop goroutine into
// an immutable snapshot.
package entitystore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"toolcatalog/internal/backend"
	"toolcatalog/internal/cascade"
	"toolcatalog/internal/model"
)

const (
	defaultLoadAttempts = 3
	removedBuffer       = 64
)

// State is one immutable snapshot of a store.
type State[T any] struct {
	Items  []T
	Loaded bool
	Err    error
}

// Options tunes a store. The zero value is usable.
type Options struct {
	Logger       *log.Logger
	LoadAttempts int
	// ParentExists, when set, must report true for the parent key of every
	// added record. ParentField names that key in the validation error.
	ParentExists func(id int64) bool
	ParentField  string
}

type subscription struct {
	ch   chan cascade.Removal
	done <-chan struct{}
}

type editRequest[P any] struct {
	id    int64
	patch P
}

// Store is the reactive owner of one collection.
type Store[T model.Record[T], P model.Patch[T]] struct {
	kind    model.Kind
	backend backend.Backend[T, P]
	saver   backend.Saver[T]
	logger  *log.Logger

	parentExists func(int64) bool
	parentField  string

	addCh      chan T
	editCh     chan editRequest[P]
	removeCh   chan int64
	byParentCh chan int64
	results    chan result[T]
	unsubCh    chan *subscription

	addGate    *semaphore.Weighted
	editGate   *semaphore.Weighted
	removeGate *semaphore.Weighted

	mu       sync.RWMutex
	state    State[T]
	changed  chan struct{}
	loadDone chan struct{}

	subsMu sync.Mutex
	subs   []*subscription

	// owned by the loop goroutine
	deferred    []int64
	queue       []int64
	queued      map[int64]bool
	cascading   bool
	saveMailbox chan []T
	inflight    int
	loadPending bool

	// intake counts requests handed to an intake method and not yet counted
	// by busy; unacked counts removals announced and not yet acknowledged.
	intake  atomic.Int64
	busy    atomic.Int64
	unsaved atomic.Int64
	unacked atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a store for kind and starts its initial load. The store runs
// until ctx is cancelled or Close is called.
func New[T model.Record[T], P model.Patch[T]](ctx context.Context, kind model.Kind, b backend.Backend[T, P], opts Options) *Store[T, P] {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.LoadAttempts <= 0 {
		opts.LoadAttempts = defaultLoadAttempts
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Store[T, P]{
		kind:         kind,
		backend:      b,
		logger:       opts.Logger,
		parentExists: opts.ParentExists,
		parentField:  opts.ParentField,
		addCh:        make(chan T),
		editCh:       make(chan editRequest[P]),
		removeCh:     make(chan int64),
		byParentCh:   make(chan int64),
		results:      make(chan result[T]),
		unsubCh:      make(chan *subscription),
		addGate:      semaphore.NewWeighted(1),
		editGate:     semaphore.NewWeighted(1),
		removeGate:   semaphore.NewWeighted(1),
		state:        State[T]{Items: []T{}},
		changed:      make(chan struct{}),
		loadDone:     make(chan struct{}),
		queued:       make(map[int64]bool),
		loadPending:  true,
		ctx:          ctx,
		cancel:       cancel,
	}
	s.busy.Store(1)
	if saver, ok := b.(backend.Saver[T]); ok {
		s.saver = saver
		s.saveMailbox = make(chan []T, 1)
		s.wg.Add(1)
		go s.persist()
	}

	s.wg.Add(2)
	go s.run()
	go s.load(opts.LoadAttempts)
	return s
}

// Kind returns the collection this store owns.
func (s *Store[T, P]) Kind() model.Kind { return s.kind }

// Snapshot returns the current state. Items is a copy.
func (s *Store[T, P]) Snapshot() State[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State[T]{Items: slices.Clone(s.state.Items), Loaded: s.state.Loaded, Err: s.state.Err}
}

func (s *Store[T, P]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Items)
}

func (s *Store[T, P]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Items)
}

func (s *Store[T, P]) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loaded
}

// Err returns the last failure, or nil after a successful operation.
func (s *Store[T, P]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Err
}

// Get returns the record with id from the current snapshot.
func (s *Store[T, P]) Get(id int64) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.state.Items {
		if item.RecordID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// ChildrenOf returns the records whose parent key equals parentID.
func (s *Store[T, P]) ChildrenOf(parentID int64) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []T
	for _, item := range s.state.Items {
		if item.ParentID() == parentID {
			out = append(out, item)
		}
	}
	return out
}

// Watch delivers the latest state, first immediately and then after every
// change. A slow reader only ever sees the newest value. The channel closes
// when ctx ends or the store is closed.
func (s *Store[T, P]) Watch(ctx context.Context) <-chan State[T] {
	out := make(chan State[T], 1)
	go func() {
		defer close(out)
		for {
			s.mu.RLock()
			state := State[T]{Items: slices.Clone(s.state.Items), Loaded: s.state.Loaded, Err: s.state.Err}
			changed := s.changed
			s.mu.RUnlock()

			select {
			case <-out:
			default:
			}
			out <- state

			select {
			case <-changed:
			case <-ctx.Done():
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	return out
}

// Add requests creation of item. The id is assigned by the store.
func (s *Store[T, P]) Add(item T) {
	s.intake.Add(1)
	select {
	case s.addCh <- item:
	case <-s.ctx.Done():
		s.intake.Add(-1)
	}
}

// Edit requests a partial update of the record with id.
func (s *Store[T, P]) Edit(id int64, patch P) {
	s.intake.Add(1)
	select {
	case s.editCh <- editRequest[P]{id: id, patch: patch}:
	case <-s.ctx.Done():
		s.intake.Add(-1)
	}
}

// Remove requests deletion of the record with id.
func (s *Store[T, P]) Remove(id int64) {
	s.intake.Add(1)
	select {
	case s.removeCh <- id:
	case <-s.ctx.Done():
		s.intake.Add(-1)
	}
}

// RemoveByParent removes every record whose parent key is parentID, one
// record at a time so each removal is announced on Removed. Requests are
// queued, never dropped.
func (s *Store[T, P]) RemoveByParent(parentID int64) {
	s.intake.Add(1)
	select {
	case s.byParentCh <- parentID:
	case <-s.ctx.Done():
		s.intake.Add(-1)
	}
}

// Removed subscribes to the records this store deletes. The receiver must
// call Done on every removal it takes and keep reading until ctx ends; the
// channel closes after ctx ends or when the store stops.
func (s *Store[T, P]) Removed(ctx context.Context) <-chan cascade.Removal {
	sub := &subscription{ch: make(chan cascade.Removal, removedBuffer), done: ctx.Done()}
	s.subsMu.Lock()
	if s.ctx.Err() != nil {
		s.subsMu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	s.subs = append(s.subs, sub)
	s.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			select {
			case s.unsubCh <- sub:
			case <-s.ctx.Done():
			}
		case <-s.ctx.Done():
		}
	}()
	return sub.ch
}

// Close stops the store and waits for in-flight backend calls to return.
func (s *Store[T, P]) Close() {
	s.cancel()
	s.wg.Wait()
}

// LoadDone is closed once the initial load has succeeded or given up.
func (s *Store[T, P]) LoadDone() <-chan struct{} {
	return s.loadDone
}

// Done is closed once the store has been asked to stop.
func (s *Store[T, P]) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Store[T, P]) logf(format string, args ...any) {
	s.logger.Printf("entitystore: %s: "+format, append([]any{s.kind.Name}, args...)...)
}

func (s *Store[T, P]) load(attempts int) {
	defer s.wg.Done()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		items, err := s.backend.List(s.ctx)
		if err == nil {
			s.deliver(result[T]{op: opLoad, items: items})
			return
		}
		lastErr = err
		if s.ctx.Err() != nil {
			return
		}
		s.logf("load attempt %d/%d failed: %v", attempt, attempts, err)
	}
	s.deliver(result[T]{op: opLoad, err: fmt.Errorf("load %s: %w", s.kind.Resource, lastErr)})
}

// deliver hands a finished operation to the loop.
func (s *Store[T, P]) deliver(res result[T]) {
	select {
	case s.results <- res:
	case <-s.ctx.Done():
	}
}

func (s *Store[T, P]) run() {
	defer s.wg.Done()
	defer s.closeSubscribers()
	for {
		intake := true
		select {
		case <-s.ctx.Done():
			return
		case item := <-s.addCh:
			s.startAdd(item)
		case req := <-s.editCh:
			s.startEdit(req)
		case id := <-s.removeCh:
			s.startRemove(id)
		case parentID := <-s.byParentCh:
			s.enqueueChildren(parentID)
		case res := <-s.results:
			intake = false
			s.apply(res)
		case sub := <-s.unsubCh:
			intake = false
			s.dropSubscriber(sub)
		}
		s.pumpCascade()
		s.updateBusy()
		// busy covers the request now
		if intake {
			s.intake.Add(-1)
		}
	}
}

// updateBusy publishes how much work the loop still owns.
func (s *Store[T, P]) updateBusy() {
	n := s.inflight + len(s.queue) + len(s.deferred)
	if s.loadPending {
		n++
	}
	s.busy.Store(int64(n))
}

// Idle reports whether no request, backend call, cascade, save or
// unacknowledged removal is outstanding. Work moves from intake to busy to
// unsaved and unacked, and the counters are read in that order.
func (s *Store[T, P]) Idle() bool {
	return s.intake.Load() == 0 &&
		s.busy.Load() == 0 &&
		s.unsaved.Load() == 0 &&
		s.unacked.Load() == 0
}

// spawn runs fn as tracked in-flight work.
func (s *Store[T, P]) spawn(fn func()) {
	s.inflight++
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Store[T, P]) startAdd(item T) {
	if !s.addGate.TryAcquire(1) {
		s.logf("add dropped, another add is in flight")
		return
	}
	items := s.state.Items
	item = item.WithID(model.NextID(items))
	err := checkRecord(items, item)
	if err == nil && s.parentExists != nil && !s.parentExists(item.ParentID()) {
		err = &model.ValidationError{Field: s.parentField, Message: "must reference an existing record"}
	}
	if err != nil {
		s.addGate.Release(1)
		s.fail(fmt.Errorf("add %s: %w", s.kind.Name, err))
		return
	}
	s.spawn(func() {
		created, err := s.backend.Create(s.ctx, item)
		s.deliver(result[T]{op: opAdd, item: created, err: err})
	})
}

func (s *Store[T, P]) startEdit(req editRequest[P]) {
	if !s.editGate.TryAcquire(1) {
		s.logf("edit of %d dropped, another edit is in flight", req.id)
		return
	}
	items := s.state.Items
	if idx := indexOf(items, req.id); idx >= 0 {
		if err := checkRecord(items, req.patch.Apply(items[idx])); err != nil {
			s.editGate.Release(1)
			s.fail(fmt.Errorf("edit %s %d: %w", s.kind.Name, req.id, err))
			return
		}
	}
	s.spawn(func() {
		updated, err := s.backend.Update(s.ctx, req.id, req.patch)
		s.deliver(result[T]{op: opEdit, id: req.id, item: updated, err: err})
	})
}

func (s *Store[T, P]) startRemove(id int64) {
	if !s.removeGate.TryAcquire(1) {
		s.logf("remove of %d dropped, another remove is in flight", id)
		return
	}
	s.spawn(func() {
		err := s.backend.Delete(s.ctx, id)
		s.deliver(result[T]{op: opRemove, id: id, err: err})
	})
}

// enqueueChildren queues the current children of parentID for removal. Before
// the first load completes the parent id is held back; after a failed load it
// is dropped.
func (s *Store[T, P]) enqueueChildren(parentID int64) {
	if !s.state.Loaded {
		if s.loadPending {
			s.deferred = append(s.deferred, parentID)
		} else {
			s.logf("cascade for parent %d dropped, the collection never loaded", parentID)
		}
		return
	}
	for _, item := range s.state.Items {
		id := item.RecordID()
		if item.ParentID() == parentID && !s.queued[id] {
			s.queued[id] = true
			s.queue = append(s.queue, id)
		}
	}
}

// pumpCascade starts the next queued removal when none is running.
func (s *Store[T, P]) pumpCascade() {
	if s.cascading || len(s.queue) == 0 || s.ctx.Err() != nil {
		return
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	s.cascading = true
	s.spawn(func() {
		err := s.backend.Delete(s.ctx, id)
		s.deliver(result[T]{op: opCascade, id: id, err: err})
	})
}

// fail records a failure without touching items.
func (s *Store[T, P]) fail(err error) {
	s.logf("%v", err)
	s.commit(State[T]{Items: s.state.Items, Loaded: s.state.Loaded, Err: err}, false)
}

// commit publishes next as the current state and wakes watchers. When items
// changed after the first load, the snapshot is handed to the persister.
func (s *Store[T, P]) commit(next State[T], itemsChanged bool) {
	s.mu.Lock()
	s.state = next
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	if itemsChanged && next.Loaded && s.saver != nil {
		select {
		case <-s.saveMailbox:
		default:
			s.unsaved.Add(1)
		}
		s.saveMailbox <- next.Items
	}
}

// emitRemoved announces id to every subscriber. A subscriber whose context
// has ended is skipped.
func (s *Store[T, P]) emitRemoved(id int64) {
	s.subsMu.Lock()
	subs := slices.Clone(s.subs)
	s.subsMu.Unlock()
	for _, sub := range subs {
		s.unacked.Add(1)
		removal := cascade.NewRemoval(id, func() { s.unacked.Add(-1) })
		select {
		case sub.ch <- removal:
		case <-sub.done:
			removal.Done()
		case <-s.ctx.Done():
			return
		}
	}
}

// dropSubscriber forgets sub, acknowledging what it left unread.
func (s *Store[T, P]) dropSubscriber(sub *subscription) {
	s.subsMu.Lock()
	s.subs = slices.DeleteFunc(s.subs, func(other *subscription) bool { return other == sub })
	s.subsMu.Unlock()
	for {
		select {
		case removal := <-sub.ch:
			removal.Done()
		default:
			close(sub.ch)
			return
		}
	}
}

func (s *Store[T, P]) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		close(sub.ch)
	}
	s.subs = nil
}

// persist writes the newest snapshot handed over by commit. Older snapshots
// still waiting in the mailbox are replaced, not written.
func (s *Store[T, P]) persist() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case items := <-s.saveMailbox:
			err := s.saver.Save(s.ctx, items)
			if errors.Is(err, context.Canceled) {
				return
			}
			if err != nil {
				s.deliver(result[T]{op: opSave, err: fmt.Errorf("save %s: %w", s.kind.Resource, err)})
			}
			s.unsaved.Add(-1)
		}
	}
}

func indexOf[T model.Record[T]](items []T, id int64) int {
	for i, item := range items {
		if item.RecordID() == id {
			return i
		}
	}
	return -1
}

// checkRecord validates candidate and rejects a sibling with the same title.
func checkRecord[T model.Record[T]](items []T, candidate T) error {
	if err := candidate.Validate(); err != nil {
		return err
	}
	if model.DuplicateTitle(items, candidate) {
		return fmt.Errorf("%w: %q", model.ErrDuplicateName, candidate.Title())
	}
	return nil
}
