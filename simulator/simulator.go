// Package simulator is the public API of mimic: an in-process HTTP backend
// simulator that answers already-parsed requests from declarative schemas.
//
//	sim := simulator.New("users")
//	_ = sim.RegisterRoute("GET", "/users/:id", simulator.EndpointConfig{
//		Schema: map[string]any{"id": "params.id", "name": "{{fullName}}"},
//	})
//	resp, _ := sim.HandleRequest(ctx, "GET", "/users/42", nil)
package simulator

import (
	"fmt"

	"mimic/internal/config"
	"mimic/internal/generator"
	"mimic/internal/metrics"
	"mimic/internal/models"
	"mimic/internal/scenario"
	"mimic/internal/server"

	"github.com/SOLUCIONESSYCOM/scribe"
)

type (
	EndpointConfig  = models.EndpointConfig
	ErrorSimulation = models.ErrorSimulation
	Delay           = models.Delay
	Headers         = models.Headers
	StatusList      = models.StatusList
	Request         = models.Request
	Response        = models.Response
	Scenario        = scenario.Scenario
	Condition       = scenario.Condition
	ConditionFunc   = scenario.ConditionFunc
	Generator       = generator.Func
	Metrics         = metrics.Metrics
)

// GlobalScope activates a scenario on every endpoint.
const GlobalScope = scenario.GlobalScope

var (
	FixedDelay = models.FixedDelay
	RangeDelay = models.RangeDelay

	// Compile turns an expression over method, path, params, query, headers,
	// body and state(key) into a scenario condition.
	Compile = scenario.Compile

	ServerError  = scenario.ServerError
	NotFound     = scenario.NotFound
	Unauthorized = scenario.Unauthorized
	Maintenance  = scenario.Maintenance
	RateLimit    = scenario.RateLimit

	ErrInvalidDelay       = models.ErrInvalidDelay
	ErrInvalidProbability = models.ErrInvalidProbability
	ErrInvalidStatus      = models.ErrInvalidStatus
	ErrEmptyScenarioName  = scenario.ErrEmptyScenarioName
	ErrUnknownScenario    = scenario.ErrUnknownScenario
)

// Simulator is a single simulated backend.
type Simulator struct {
	*server.Server
}

type Option func(*server.Options)

func WithLogger(log *scribe.Scribe) Option {
	return func(o *server.Options) { o.Logger = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *server.Options) { o.Metrics = m }
}

// WithSeed makes delay sampling and error draws reproducible.
func WithSeed(seed uint64) Option {
	return func(o *server.Options) { o.Seed = &seed }
}

// WithHistorySize bounds the undo history of the state store.
func WithHistorySize(n int) Option {
	return func(o *server.Options) { o.HistorySize = n }
}

func New(name string, opts ...Option) *Simulator {
	s, err := server.New(models.Backend{Name: name}, buildOptions(opts))
	if err != nil {
		// an empty backend has nothing that can fail
		panic(err)
	}
	return &Simulator{Server: s}
}

// Load builds one simulator per backend found in the YAML files under dir.
func Load(dir string, opts ...Option) (*server.Manager, error) {
	configs, err := config.LoadConfigFromDir(dir)
	if err != nil {
		return nil, err
	}

	manager := server.NewManager(buildOptions(opts))
	for _, cfg := range configs {
		if err := manager.CreateServers(cfg); err != nil {
			manager.Close()
			return nil, fmt.Errorf("error loading %s: %w", dir, err)
		}
	}
	return manager, nil
}

func buildOptions(opts []Option) server.Options {
	var o server.Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
