package app

import (
	"context"
	"log"
	"time"

	"toolcatalog/internal/config"
	"toolcatalog/internal/metrics"
	"toolcatalog/internal/model"
	"toolcatalog/internal/search"
	"toolcatalog/internal/store"
)

type Session struct {
	Subject   string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

// Repositories holds the persistence of every resource.
type Repositories struct {
	Customers    Repository[model.Customer]
	Applications Repository[model.Application]
	Tools        Repository[model.Tool]
	ToolInputs   Repository[model.ToolInput]
	ToolOutputs  Repository[model.ToolOutput]
	InputOptions Repository[model.InputOption]
}

// PostgresRepositories exposes the tables of a PostgresStore.
func PostgresRepositories(pg *store.PostgresStore) Repositories {
	return Repositories{
		Customers:    pg.Customers(),
		Applications: pg.Applications(),
		Tools:        pg.Tools(),
		ToolInputs:   pg.ToolInputs(),
		ToolOutputs:  pg.ToolOutputs(),
		InputOptions: pg.InputOptions(),
	}
}

type pinger interface {
	Ping(context.Context) error
}

type Service struct {
	cfg       config.Config
	db        pinger
	search    *search.Service
	pgSearch  *search.Postgres
	metrics   *metrics.Metrics
	resources map[string]resource
	logger    *log.Logger
}

// New wires the resources in parent-first order. searchSvc, pgSearch and m
// may be nil.
func New(cfg config.Config, db pinger, repos Repositories, searchSvc *search.Service, pgSearch *search.Postgres, m *metrics.Metrics) *Service {
	if searchSvc == nil {
		searchSvc = search.NewService(nil, nil)
	}
	if m == nil {
		m = metrics.New()
	}
	s := &Service{
		cfg:      cfg,
		db:       db,
		search:   searchSvc,
		pgSearch: pgSearch,
		metrics:  m,
		logger:   log.Default(),
	}

	customers := newResource[model.Customer, model.CustomerPatch](s, model.CustomerKind, repos.Customers, nil, "")
	applications := newResource[model.Application, model.ApplicationPatch](s, model.ApplicationKind, repos.Applications, customers, "customerId")
	tools := newResource[model.Tool, model.ToolPatch](s, model.ToolKind, repos.Tools, applications, "applicationId")
	toolInputs := newResource[model.ToolInput, model.ToolInputPatch](s, model.ToolInputKind, repos.ToolInputs, tools, "toolId")
	toolOutputs := newResource[model.ToolOutput, model.ToolOutputPatch](s, model.ToolOutputKind, repos.ToolOutputs, tools, "toolId")
	inputOptions := newResource[model.InputOption, model.InputOptionPatch](s, model.InputOptionKind, repos.InputOptions, toolInputs, "inputId")

	s.resources = map[string]resource{}
	for _, r := range []resource{customers, applications, tools, toolInputs, toolOutputs, inputOptions} {
		s.resources[r.Kind().Resource] = r
	}
	return s
}

// Bootstrap pushes every stored record to the search index.
func (s *Service) Bootstrap(ctx context.Context) {
	s.search.Reindex(ctx, s.pgSearch)
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Ping(ctx)
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) resource(name string) (resource, bool) {
	r, ok := s.resources[name]
	return r, ok
}

func (s *Service) logf(format string, args ...any) {
	s.logger.Printf("app: "+format, args...)
}
