package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mimic/internal/chaos"
	"mimic/internal/generator"
	"mimic/internal/handler"
	"mimic/internal/journal"
	"mimic/internal/logger"
	"mimic/internal/metrics"
	"mimic/internal/models"
	"mimic/internal/router"
	"mimic/internal/scenario"
	"mimic/internal/store"

	"github.com/SOLUCIONESSYCOM/scribe"
)

var (
	ErrDuplicateBackend = errors.New("backend already exists")
	ErrUnknownBackend   = errors.New("unknown backend")
	ErrJournalDisabled  = errors.New("journal is not configured")
)

// Options tune how a Server is built. The zero value is usable.
type Options struct {
	Logger      *scribe.Scribe
	Metrics     *metrics.Metrics
	Seed        *uint64
	HistorySize int
}

// Server is one simulated backend: its routes, scenarios, generators and
// state store.
type Server struct {
	Name string

	handler  *handler.Handler
	registry *generator.Registry
	state    *store.MemoryStore
	journal  *journal.BatchManager
	logger   *scribe.Scribe

	// dbMu guards db against Close while History queries it.
	dbMu sync.RWMutex
	db   *sql.DB
}

// New builds the backend described by config and registers its endpoints
// and scenarios.
func New(config models.Backend, opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = backendLogger(config)
	}

	engine := chaos.NewEngine()
	if opts.Seed != nil {
		engine = chaos.NewEngineWithSeed(*opts.Seed)
	}

	s := &Server{
		Name:     config.Name,
		registry: generator.NewRegistry(),
		state:    store.NewMemoryStore(opts.HistorySize),
		logger:   log,
	}

	var recorder handler.Recorder
	if config.Journal != nil {
		if err := s.openJournal(*config.Journal); err != nil {
			return nil, err
		}
		recorder = s.journal
	}

	s.handler = handler.NewHandler(handler.Options{
		Backend:  config.Name,
		Logger:   log,
		Registry: s.registry,
		Chaos:    engine,
		Metrics:  opts.Metrics,
		Journal:  recorder,
		State:    s.state,
	})

	if err := s.registerEndpoints(config.Endpoints); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.registerScenarios(config.Scenarios); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func backendLogger(config models.Backend) *scribe.Scribe {
	desc := models.LogDescriptor{
		Name:   config.Name,
		Logger: config.Logger != nil && *config.Logger,
	}
	if config.Version != nil {
		desc.Version = *config.Version
	}
	if config.LoggerPath != nil {
		desc.Path = *config.LoggerPath
		desc.File = true
	}
	if !desc.Logger && !desc.File {
		return logger.Quiet()
	}

	log, err := logger.GetLoggerContext(desc)
	if err != nil {
		return logger.Quiet()
	}
	return log
}

func (s *Server) openJournal(settings models.JournalSettings) error {
	db, err := journal.InitDB(settings.Path)
	if err != nil {
		return fmt.Errorf("error opening journal for backend %s: %w", s.Name, err)
	}

	bm := journal.NewBatchManager(db, journal.BatchConfig{
		BatchSize:     settings.BatchSize,
		FlushInterval: time.Duration(settings.FlushIntervalMs) * time.Millisecond,
		MaxWorkers:    settings.MaxWorkers,
	}, s.logger)
	if err := bm.Start(); err != nil {
		db.Close()
		return fmt.Errorf("error starting journal for backend %s: %w", s.Name, err)
	}

	s.db = db
	s.journal = bm
	return nil
}

func (s *Server) registerEndpoints(endpoints []models.Endpoint) error {
	for _, endpoint := range endpoints {
		if err := s.RegisterRoute(endpoint.Method, endpoint.Path, endpoint.EndpointConfig); err != nil {
			return fmt.Errorf("error registering endpoint %s %s: %w", endpoint.Method, endpoint.Path, err)
		}
		s.logger.Info().Msg(fmt.Sprintf("Registered route: %s %s", endpoint.Method, endpoint.Path))
	}
	return nil
}

func (s *Server) registerScenarios(specs []models.ScenarioSpec) error {
	for _, spec := range specs {
		sc, err := scenario.FromSpec(spec)
		if err != nil {
			return fmt.Errorf("error building scenario %s: %w", spec.Name, err)
		}
		if err := s.DefineScenario(sc); err != nil {
			return err
		}
		if spec.Active {
			if err := s.ActivateScenario(sc.Name, scopeOf(spec.Endpoint)); err != nil {
				return err
			}
		}
	}
	return nil
}

func scopeOf(endpoint string) string {
	if strings.TrimSpace(endpoint) == "" {
		return scenario.GlobalScope
	}
	return endpoint
}

func (s *Server) RegisterRoute(method, pathTemplate string, config models.EndpointConfig) error {
	return s.handler.RegisterRoute(method, pathTemplate, config)
}

func (s *Server) UnregisterRoute(method, pathTemplate string) bool {
	return s.handler.UnregisterRoute(method, pathTemplate)
}

func (s *Server) HandleRequest(ctx context.Context, method, path string, req *models.Request) (*models.Response, error) {
	return s.handler.HandleRequest(ctx, method, path, req)
}

func (s *Server) DefineScenario(sc scenario.Scenario) error {
	return s.handler.Scenarios().Define(sc)
}

func (s *Server) RemoveScenario(name string) bool {
	return s.handler.Scenarios().Remove(name)
}

// ActivateScenario enables the scenario for scope, either GlobalScope or an
// endpoint key such as "GET /users/:id".
func (s *Server) ActivateScenario(name, scope string) error {
	return s.handler.Scenarios().Activate(name, scope)
}

func (s *Server) DeactivateScenario(name, scope string) {
	s.handler.Scenarios().Deactivate(name, scope)
}

func (s *Server) ResetScenarios() {
	s.handler.Scenarios().Reset()
}

func (s *Server) Scenarios() []string {
	return s.handler.Scenarios().List()
}

// Routes returns the endpoint keys in registration order.
func (s *Server) Routes() []string {
	routes := s.handler.Router().List()
	keys := make([]string, len(routes))
	for i, r := range routes {
		keys[i] = r.Key()
	}
	return keys
}

func (s *Server) Endpoint(method, pathTemplate string) (*router.Route, bool) {
	key := router.Key(method, pathTemplate)
	for _, r := range s.handler.Router().List() {
		if r.Key() == key {
			return r, true
		}
	}
	return nil, false
}

func (s *Server) State() *store.MemoryStore {
	return s.state
}

func (s *Server) Generators() *generator.Registry {
	return s.registry
}

// History returns the newest journal entries of this backend.
func (s *Server) History(ctx context.Context, limit int) ([]journal.Entry, error) {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return nil, ErrJournalDisabled
	}
	return journal.Query(ctx, s.db, s.Name, limit)
}

// Close drains the journal. It is safe to call more than once.
func (s *Server) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.journal != nil {
		s.journal.Stop()
	}
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Manager holds every configured backend by name.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*Server
	options Options
}

func NewManager(opts Options) *Manager {
	return &Manager{
		servers: make(map[string]*Server),
		options: opts,
	}
}

// CreateServers builds every backend of config.
func (m *Manager) CreateServers(config *models.MockServer) error {
	for _, backend := range config.Backends {
		if err := m.CreateServer(backend); err != nil {
			return fmt.Errorf("error creating backend %s: %w", backend.Name, err)
		}
	}
	return nil
}

func (m *Manager) CreateServer(config models.Backend) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.servers[config.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, config.Name)
	}

	s, err := New(config, m.options)
	if err != nil {
		return err
	}
	m.servers[config.Name] = s
	return nil
}

func (m *Manager) Get(name string) (*Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.servers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return s, nil
}

// Names returns the backend names sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every backend and returns the first error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for name, s := range m.servers {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("error closing backend %s: %w", name, err)
		}
	}
	return first
}
