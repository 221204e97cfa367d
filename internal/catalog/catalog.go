// Package catalog wires the six entity stores and the cascade graph between
// them on top of one backend set.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"toolcatalog/internal/backend"
	"toolcatalog/internal/cascade"
	"toolcatalog/internal/config"
	"toolcatalog/internal/entitystore"
	"toolcatalog/internal/kv"
	"toolcatalog/internal/model"
)

type (
	CustomerStore    = entitystore.Store[model.Customer, model.CustomerPatch]
	ApplicationStore = entitystore.Store[model.Application, model.ApplicationPatch]
	ToolStore        = entitystore.Store[model.Tool, model.ToolPatch]
	ToolInputStore   = entitystore.Store[model.ToolInput, model.ToolInputPatch]
	ToolOutputStore  = entitystore.Store[model.ToolOutput, model.ToolOutputPatch]
	InputOptionStore = entitystore.Store[model.InputOption, model.InputOptionPatch]
)

// Catalog holds one store per entity kind.
type Catalog struct {
	Customers    *CustomerStore
	Applications *ApplicationStore
	Tools        *ToolStore
	ToolInputs   *ToolInputStore
	ToolOutputs  *ToolOutputStore
	InputOptions *InputOptionStore

	router   *cascade.Router
	backends backend.Set
	cancel   context.CancelFunc
}

// New builds the stores on set, connects the cascade edges and starts
// everything. Close releases it.
func New(ctx context.Context, set backend.Set, logger *log.Logger) (*Catalog, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	opts := entitystore.Options{Logger: logger}
	under := func(field string, exists func(int64) bool) entitystore.Options {
		return entitystore.Options{Logger: logger, ParentField: field, ParentExists: exists}
	}

	c := &Catalog{router: cascade.NewRouter(logger), backends: set, cancel: cancel}
	c.Customers = entitystore.New(ctx, model.CustomerKind, set.Customers, opts)
	c.Applications = entitystore.New(ctx, model.ApplicationKind, set.Applications, under("customerId", exists(c.Customers)))
	c.Tools = entitystore.New(ctx, model.ToolKind, set.Tools, under("applicationId", exists(c.Applications)))
	c.ToolInputs = entitystore.New(ctx, model.ToolInputKind, set.ToolInputs, under("toolId", exists(c.Tools)))
	c.ToolOutputs = entitystore.New(ctx, model.ToolOutputKind, set.ToolOutputs, under("toolId", exists(c.Tools)))
	c.InputOptions = entitystore.New(ctx, model.InputOptionKind, set.InputOptions, under("inputId", exists(c.ToolInputs)))

	edges := []struct {
		from   model.Kind
		source cascade.Source
		to     model.Kind
		sink   cascade.Sink
	}{
		{model.CustomerKind, c.Customers, model.ApplicationKind, c.Applications},
		{model.ApplicationKind, c.Applications, model.ToolKind, c.Tools},
		{model.ToolKind, c.Tools, model.ToolInputKind, c.ToolInputs},
		{model.ToolKind, c.Tools, model.ToolOutputKind, c.ToolOutputs},
		{model.ToolInputKind, c.ToolInputs, model.InputOptionKind, c.InputOptions},
	}
	for _, edge := range edges {
		if err := c.router.Connect(edge.from.Name, edge.source, edge.to.Name, edge.sink); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.router.Start(ctx)
	return c, nil
}

// Open selects the backend set described by cfg and builds the catalog.
func Open(ctx context.Context, cfg config.Config, logger *log.Logger) (*Catalog, error) {
	set, err := OpenBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c, err := New(ctx, set, logger)
	if err != nil {
		_ = set.Close()
		return nil, err
	}
	return c, nil
}

// OpenBackends builds the local or remote backend set from cfg.
func OpenBackends(ctx context.Context, cfg config.Config) (backend.Set, error) {
	switch cfg.Backend {
	case "", "local":
		ns, err := kv.Open(ctx, kv.Options{
			Driver:     kv.Driver(cfg.KVDriver),
			RedisURL:   cfg.RedisURL,
			SQLitePath: cfg.SQLitePath,
			KeyPrefix:  cfg.KVPrefix,
			Object: kv.ObjectOptions{
				Endpoint:        cfg.S3Endpoint,
				AccessKeyID:     cfg.S3AccessKey,
				SecretAccessKey: cfg.S3SecretKey,
				Bucket:          cfg.S3Bucket,
				Prefix:          cfg.KVPrefix,
				Secure:          cfg.S3UseSSL,
				Region:          cfg.S3Region,
			},
		})
		if err != nil {
			return backend.Set{}, fmt.Errorf("open kv namespace: %w", err)
		}
		return backend.NewLocalSet(ns), nil
	case "remote":
		if cfg.APIURL == "" {
			return backend.Set{}, errors.New("remote backend requires TOOLCATALOG_API_URL")
		}
		client := backend.NewClient(cfg.APIURL, cfg.APIToken, &http.Client{Timeout: cfg.APITimeout})
		return backend.NewRemoteSet(client), nil
	default:
		return backend.Set{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Edges lists the cascade graph.
func (c *Catalog) Edges() []cascade.Edge {
	return c.router.Edges()
}

// WaitLoaded blocks until every store has finished its initial load. It
// returns the first load error, or ctx's error.
func (c *Catalog) WaitLoaded(ctx context.Context) error {
	for _, s := range c.stores() {
		if err := waitLoaded(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

const (
	settlePoll   = 10 * time.Millisecond
	settleRounds = 3
)

// Settle blocks until every store is idle and no cascade is in transit for
// several consecutive polls, so removals have reached every descendant.
func (c *Catalog) Settle(ctx context.Context) error {
	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	quiet := 0
	for quiet < settleRounds {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if c.idle() {
			quiet++
		} else {
			quiet = 0
		}
	}
	return nil
}

// idle reads parents before children so work handed down the cascade
// between two reads is still seen.
func (c *Catalog) idle() bool {
	if c.router.Pending() > 0 {
		return false
	}
	for _, s := range c.stores() {
		if !s.Idle() {
			return false
		}
	}
	return true
}

// Err joins the current error of every store.
func (c *Catalog) Err() error {
	var errs []error
	for _, s := range c.stores() {
		if err := s.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Kind().Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close stops every store and the router, then releases the backends.
func (c *Catalog) Close() error {
	c.cancel()
	for _, s := range c.stores() {
		s.Close()
	}
	if err := c.router.Wait(); err != nil {
		log.Printf("catalog: cascade router: %v", err)
	}
	return c.backends.Close()
}

// store is the part of entitystore.Store the catalog needs without knowing
// the record type.
type store interface {
	Kind() model.Kind
	Loaded() bool
	Err() error
	Idle() bool
	Close()
	LoadDone() <-chan struct{}
	Done() <-chan struct{}
}

// exists reports whether parents currently holds a record with the id.
func exists[T model.Record[T], P model.Patch[T]](parents *entitystore.Store[T, P]) func(int64) bool {
	return func(id int64) bool {
		_, ok := parents.Get(id)
		return ok
	}
}

func (c *Catalog) stores() []store {
	return []store{c.Customers, c.Applications, c.Tools, c.ToolInputs, c.ToolOutputs, c.InputOptions}
}

func waitLoaded(ctx context.Context, s store) error {
	select {
	case <-s.LoadDone():
	case <-s.Done():
		return fmt.Errorf("%s store closed before loading", s.Kind().Name)
	case <-ctx.Done():
		return ctx.Err()
	}
	if !s.Loaded() {
		return fmt.Errorf("%s: %w", s.Kind().Name, s.Err())
	}
	return nil
}
