// Package cascade forwards deletions from parent stores to child stores.
// The graph is built once at startup; each edge gets one forwarding goroutine.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Removal announces one deleted record. The receiver calls Done once it has
// handed the removal on; the announcing store counts it as outstanding work
// until then.
type Removal struct {
	ID   int64
	done func()
}

// NewRemoval wraps id. done runs at most once.
func NewRemoval(id int64, done func()) Removal {
	var once sync.Once
	return Removal{ID: id, done: func() {
		if done != nil {
			once.Do(done)
		}
	}}
}

// Done acknowledges the removal.
func (r Removal) Done() {
	if r.done != nil {
		r.done()
	}
}

// Source announces the records it has removed until ctx ends.
type Source interface {
	Removed(ctx context.Context) <-chan Removal
}

// Sink removes the records that belong to a removed parent. RemoveByParent
// must have counted the request as pending work by the time it returns.
type Sink interface {
	RemoveByParent(parentID int64)
}

// Edge is one parent to child dependency.
type Edge struct {
	From string
	To   string

	removed <-chan Removal
	sink    Sink
}

func (e Edge) String() string {
	return e.From + " -> " + e.To
}

// Router owns the edges of the cascade graph.
type Router struct {
	logger *log.Logger

	mu      sync.Mutex
	edges   []Edge
	started bool
	group   *errgroup.Group

	forwarding atomic.Int64

	// subscriptions end when the forwarders stop
	subs    context.Context
	endSubs context.CancelFunc
}

func NewRouter(logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	subs, endSubs := context.WithCancel(context.Background())
	return &Router{logger: logger, subs: subs, endSubs: endSubs}
}

// Connect adds the edge from -> to. It subscribes to the source right away,
// so removals that happen before Start are delivered once it runs.
func (r *Router) Connect(from string, source Source, to string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("cascade: router already started")
	}
	for _, edge := range r.edges {
		if edge.From == from && edge.To == to {
			return fmt.Errorf("cascade: duplicate edge %s", edge)
		}
	}
	r.edges = append(r.edges, Edge{From: from, To: to, removed: source.Removed(r.subs), sink: sink})
	return nil
}

// Edges lists the graph in connection order.
func (r *Router) Edges() []Edge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Edge(nil), r.edges...)
}

// Start runs one forwarder per edge until ctx ends or the source closes.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	group, ctx := errgroup.WithContext(ctx)
	r.group = group
	for _, edge := range r.edges {
		group.Go(func() error {
			return r.forward(ctx, edge)
		})
	}
	go func() {
		<-ctx.Done()
		r.endSubs()
	}()
}

// Pending counts removals received from a source and not yet handed to the
// sink, including those still buffered in the source channel.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int(r.forwarding.Load())
	for _, edge := range r.edges {
		n += len(edge.removed)
	}
	return n
}

// Wait blocks until every forwarder has stopped.
func (r *Router) Wait() error {
	r.mu.Lock()
	group := r.group
	r.mu.Unlock()
	if group == nil {
		return nil
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Router) forward(ctx context.Context, edge Edge) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case removal, ok := <-edge.removed:
			if !ok {
				return nil
			}
			r.forwarding.Add(1)
			r.logger.Printf("cascade: %s removed %d, removing its %s records", edge.From, removal.ID, edge.To)
			edge.sink.RemoveByParent(removal.ID)
			removal.Done()
			r.forwarding.Add(-1)
		}
	}
}
