package router

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"mimic/internal/models"
)

var (
	ErrEmptyTemplate      = errors.New("empty path template")
	ErrEmptyMethod        = errors.New("empty method")
	ErrDuplicateParameter = errors.New("duplicate path parameter")
)

// paramMarker finds `:name` parameter markers inside a path template.
var paramMarker = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// Route is a compiled (method, path template) binding.
type Route struct {
	Method   string
	Template string
	Params   []string
	Config   models.EndpointConfig

	matcher *regexp.Regexp
}

// Key identifies the endpoint for scenario scoping, e.g. "GET /users/:id".
func (r *Route) Key() string {
	return Key(r.Method, r.Template)
}

// Key builds an endpoint key from a method and a path template.
func Key(method, template string) string {
	return strings.ToUpper(method) + " " + template
}

// Match is a route that accepted a concrete path, with its bound parameters.
type Match struct {
	Route  *Route
	Params map[string]string
}

// Router keeps routes in registration order. The first registered route that
// accepts a path wins; there is no specificity ranking.
type Router struct {
	mu     sync.RWMutex
	routes []*Route
}

func New() *Router {
	return &Router{}
}

// Register compiles the template and stores the route. Registering the same
// method and template again replaces the previous entry in place.
func (r *Router) Register(method, template string, config models.EndpointConfig) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return ErrEmptyMethod
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("route %s %s: %w", method, template, err)
	}

	matcher, params, err := Compile(template)
	if err != nil {
		return err
	}

	route := &Route{
		Method:   method,
		Template: template,
		Params:   params,
		Config:   config,
		matcher:  matcher,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.routes {
		if existing.Method == method && existing.Template == template {
			r.routes[i] = route
			return nil
		}
	}
	r.routes = append(r.routes, route)
	return nil
}

// Compile turns a path template into an anchored matcher. Literal text is
// escaped and every :name becomes a group matching one or more non-slash
// characters. Parameter names are returned in template order.
func Compile(template string) (*regexp.Regexp, []string, error) {
	if strings.TrimSpace(template) == "" {
		return nil, nil, ErrEmptyTemplate
	}

	var (
		pattern strings.Builder
		params  []string
		last    int
	)
	seen := make(map[string]bool)

	pattern.WriteString("^")
	for _, loc := range paramMarker.FindAllStringSubmatchIndex(template, -1) {
		name := template[loc[2]:loc[3]]
		if seen[name] {
			return nil, nil, fmt.Errorf("%w %q in %s", ErrDuplicateParameter, name, template)
		}
		seen[name] = true
		params = append(params, name)

		pattern.WriteString(regexp.QuoteMeta(template[last:loc[0]]))
		pattern.WriteString(`([^/]+)`)
		last = loc[1]
	}
	pattern.WriteString(regexp.QuoteMeta(template[last:]))
	pattern.WriteString("$")

	matcher, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, nil, fmt.Errorf("error compiling path template %s: %w", template, err)
	}
	return matcher, params, nil
}

// Match returns the first route accepting method and path, or nil.
func (r *Router) Match(method, path string) *Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, route := range r.routes {
		if !strings.EqualFold(route.Method, method) {
			continue
		}
		groups := route.matcher.FindStringSubmatch(path)
		if groups == nil {
			continue
		}
		params := make(map[string]string, len(route.Params))
		for i, name := range route.Params {
			params[name] = groups[i+1]
		}
		return &Match{Route: route, Params: params}
	}
	return nil
}

// Unregister removes a route and reports whether it existed.
func (r *Router) Unregister(method, template string) bool {
	method = strings.ToUpper(strings.TrimSpace(method))

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, route := range r.routes {
		if route.Method == method && route.Template == template {
			r.routes = append(r.routes[:i:i], r.routes[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Router) Clear() {
	r.mu.Lock()
	r.routes = nil
	r.mu.Unlock()
}

// List returns the routes in registration order.
func (r *Router) List() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Route, len(r.routes))
	copy(out, r.routes)
	return out
}
