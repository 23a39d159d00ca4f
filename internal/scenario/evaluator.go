package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mimic/internal/logger"
	"mimic/internal/models"

	"github.com/SOLUCIONESSYCOM/scribe"
)

// GlobalScope activates a scenario for every endpoint.
const GlobalScope = "*"

var (
	ErrEmptyScenarioName = errors.New("scenario name is empty")
	ErrUnknownScenario   = errors.New("unknown scenario")
)

// Scenario overrides the response of matching requests. Nil fields keep the
// endpoint defaults.
type Scenario struct {
	Name      string
	Condition Condition
	Status    *int
	Headers   models.Headers
	Body      any
}

// Evaluator holds scenario definitions and their activation per scope.
// Definitions survive Reset; activations do not.
type Evaluator struct {
	mu      sync.RWMutex
	defined map[string]*Scenario
	active  map[string][]string
	logger  *scribe.Scribe
}

func NewEvaluator(log *scribe.Scribe) *Evaluator {
	return &Evaluator{
		defined: make(map[string]*Scenario),
		active:  make(map[string][]string),
		logger:  logger.OrQuiet(log),
	}
}

// Define adds or replaces a scenario by name.
func (e *Evaluator) Define(s Scenario) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return ErrEmptyScenarioName
	}
	if s.Status != nil && (*s.Status < 100 || *s.Status > 599) {
		return fmt.Errorf("scenario %s: %w: %d", s.Name, models.ErrInvalidStatus, *s.Status)
	}
	s.Headers = s.Headers.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.defined[s.Name] = &s
	return nil
}

// Remove deletes a definition together with all of its activations.
func (e *Evaluator) Remove(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.defined[name]; !ok {
		return false
	}
	delete(e.defined, name)
	for scope, names := range e.active {
		e.active[scope] = without(names, name)
		if len(e.active[scope]) == 0 {
			delete(e.active, scope)
		}
	}
	return true
}

// Activate enables name for scope, which is GlobalScope or an endpoint key.
// Activating twice keeps the original position.
func (e *Evaluator) Activate(name, scope string) error {
	scope = normalizeScope(scope)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.defined[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}
	for _, existing := range e.active[scope] {
		if existing == name {
			return nil
		}
	}
	e.active[scope] = append(e.active[scope], name)
	return nil
}

func (e *Evaluator) Deactivate(name, scope string) {
	scope = normalizeScope(scope)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[scope] = without(e.active[scope], name)
	if len(e.active[scope]) == 0 {
		delete(e.active, scope)
	}
}

// Reset clears every activation.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = make(map[string][]string)
}

// List returns the defined scenario names, sorted.
func (e *Evaluator) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.defined))
	for name := range e.defined {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Active returns the names active in scope, in activation order.
func (e *Evaluator) Active(scope string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.active[normalizeScope(scope)]...)
}

// Evaluate returns the first active scenario whose condition holds for req.
// Global activations are checked before those of endpointKey. A condition
// that errors or panics counts as not matching.
func (e *Evaluator) Evaluate(ctx context.Context, endpointKey string, req *models.Request) *Scenario {
	candidates := e.candidates(normalizeScope(endpointKey))

	for _, s := range candidates {
		matched, err := evaluate(s.Condition, req)
		if err != nil {
			e.logger.WarnCtx(ctx).
				Str("scenario", s.Name).
				Str("endpoint", endpointKey).
				AnErr("error", err).
				Msg("Scenario condition failed, skipping")
			continue
		}
		if matched {
			return s
		}
	}
	return nil
}

func (e *Evaluator) candidates(endpointKey string) []*Scenario {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*Scenario
	for _, scope := range []string{GlobalScope, endpointKey} {
		for _, name := range e.active[scope] {
			if seen[name] {
				continue
			}
			seen[name] = true
			if s, ok := e.defined[name]; ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func evaluate(c Condition, req *models.Request) (matched bool, err error) {
	if c == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			matched, err = false, fmt.Errorf("condition panicked: %v", r)
		}
	}()
	return c.Evaluate(req)
}

// normalizeScope upper-cases the method part of an endpoint key.
func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" || scope == GlobalScope {
		return GlobalScope
	}
	method, path, found := strings.Cut(scope, " ")
	if !found {
		return scope
	}
	return strings.ToUpper(method) + " " + strings.TrimSpace(path)
}

func without(names []string, name string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
