package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mimic/internal/chaos"
	"mimic/internal/generator"
	"mimic/internal/journal"
	"mimic/internal/logger"
	"mimic/internal/metrics"
	"mimic/internal/models"
	"mimic/internal/router"
	"mimic/internal/scenario"
	"mimic/internal/template"
	"mimic/internal/validation"

	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Outcomes of one pass through the pipeline, used as metric and journal labels.
const (
	OutcomeNotFound       = "not_found"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeScenario       = "scenario"
	OutcomeSimulatedError = "simulated_error"
	OutcomeGenerated      = "generated"
	OutcomeAborted        = "aborted"
)

const unmatchedEndpoint = "unmatched"

// Recorder receives one journal entry per answered request.
type Recorder interface {
	Record(entry *journal.Entry) error
}

// Options wires the collaborators of a Handler. Nil fields get defaults,
// except Metrics and Journal which stay disabled.
type Options struct {
	Backend   string
	Logger    *scribe.Scribe
	Registry  *generator.Registry
	Evaluator *scenario.Evaluator
	Chaos     *chaos.Engine
	Metrics   *metrics.Metrics
	Journal   Recorder
	State     models.StateStore
}

// Handler answers requests of one simulated backend.
type Handler struct {
	backend     string
	router      *router.Router
	interpreter *template.Interpreter
	scenarios   *scenario.Evaluator
	chaosEngine *chaos.Engine
	validator   *validation.Validator
	metrics     *metrics.Metrics
	journal     Recorder
	state       models.StateStore
	Logger      *scribe.Scribe
}

func NewHandler(opts Options) *Handler {
	log := logger.OrQuiet(opts.Logger)

	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = scenario.NewEvaluator(log)
	}
	engine := opts.Chaos
	if engine == nil {
		engine = chaos.NewEngine()
	}

	return &Handler{
		backend:     opts.Backend,
		router:      router.New(),
		interpreter: template.New(opts.Registry, log),
		scenarios:   evaluator,
		chaosEngine: engine,
		validator:   validation.New(),
		metrics:     opts.Metrics,
		journal:     opts.Journal,
		state:       opts.State,
		Logger:      log,
	}
}

func (h *Handler) Router() *router.Router {
	return h.router
}

func (h *Handler) Scenarios() *scenario.Evaluator {
	return h.scenarios
}

func (h *Handler) Interpreter() *template.Interpreter {
	return h.interpreter
}

// RegisterRoute validates config and binds it to method and template. All
// configuration problems are reported here, never while answering.
func (h *Handler) RegisterRoute(method, pathTemplate string, config models.EndpointConfig) error {
	h.Logger.Info().
		Str("path", pathTemplate).
		Str("method", method).
		Int("status_code", config.Status()).
		Msg("Registering endpoint")

	if err := config.Validate(); err != nil {
		return fmt.Errorf("route %s %s: %w", method, pathTemplate, err)
	}
	if err := template.Check(config.Schema); err != nil {
		return fmt.Errorf("error checking schema for %s %s: %w", method, pathTemplate, err)
	}
	if config.Error != nil {
		if err := template.Check(config.Error.Body); err != nil {
			return fmt.Errorf("error checking error body for %s %s: %w", method, pathTemplate, err)
		}
	}

	key := router.Key(method, pathTemplate)
	var schema *jsonschema.Schema
	if config.RequestSchema != nil {
		compiled, err := validation.Compile(config.RequestSchema)
		if err != nil {
			h.Logger.Error().
				Str("path", pathTemplate).
				Str("method", method).
				AnErr("error", err).
				Msg("Error compiling request schema")
			return fmt.Errorf("error compiling request schema for %s: %w", key, err)
		}
		schema = compiled
	}

	// the previous registration stays untouched until the router accepts this one
	if err := h.router.Register(method, pathTemplate, config); err != nil {
		return err
	}
	h.validator.Install(key, schema)
	return nil
}

// UnregisterRoute removes an endpoint and its request schema.
func (h *Handler) UnregisterRoute(method, pathTemplate string) bool {
	h.validator.Remove(router.Key(method, pathTemplate))
	return h.router.Unregister(method, pathTemplate)
}

// result is what a pipeline pass hands over to the recording step.
type result struct {
	endpoint string
	scenario string
	outcome  string
	response *models.Response
}

// HandleRequest runs one request through the pipeline. A nil req is an
// empty request. The only error is the cancellation of ctx while the
// response is being delayed.
func (h *Handler) HandleRequest(ctx context.Context, method, path string, req *models.Request) (*models.Response, error) {
	start := time.Now()
	ctx, traceID := logger.WithTrace(ctx)

	request := h.prepare(method, path, req)

	if h.metrics != nil {
		h.metrics.ActiveRequests.WithLabelValues(h.backend, request.Method).Inc()
		defer h.metrics.ActiveRequests.WithLabelValues(h.backend, request.Method).Dec()
	}

	h.Logger.DebugCtx(ctx).
		Str("method", request.Method).
		Str("path", request.Path).
		Msg("Handling request")

	res, err := h.run(ctx, request)
	if err != nil {
		h.Logger.WarnCtx(ctx).AnErr("error", err).Msg("Request aborted during delay")
		h.record(ctx, traceID, request, res, time.Since(start))
		return nil, err
	}

	h.Logger.InfoCtx(ctx).
		Str("endpoint", res.endpoint).
		Str("outcome", res.outcome).
		Int("status_code", res.response.StatusCode).
		Msg("Request completed")

	h.record(ctx, traceID, request, res, time.Since(start))
	return res.response, nil
}

func (h *Handler) run(ctx context.Context, req *models.Request) (*result, error) {
	match := h.router.Match(req.Method, req.Path)
	if match == nil {
		return &result{
			endpoint: unmatchedEndpoint,
			outcome:  OutcomeNotFound,
			response: notFound(req),
		}, nil
	}

	req.Params = match.Params
	route := match.Route
	config := route.Config
	res := &result{endpoint: route.Key()}

	if err := h.validator.Validate(res.endpoint, req.Body); err != nil {
		h.Logger.WarnCtx(ctx).AnErr("validation_error", err).Msg("Schema validation failed")
		res.outcome = OutcomeInvalidRequest
		res.response = jsonResponse(http.StatusBadRequest, nil, map[string]any{
			"error":   "Schema validation failed",
			"details": err.Error(),
		})
		return res, nil
	}

	if s := h.scenarios.Evaluate(ctx, res.endpoint, req); s != nil {
		h.Logger.InfoCtx(ctx).Str("scenario", s.Name).Msg("Scenario override applied")
		res.outcome = OutcomeScenario
		res.scenario = s.Name
		res.response = h.scenarioResponse(ctx, config, s, req)
		return res, nil
	}

	if status, failed := h.chaosEngine.ShouldFail(config.Error); failed {
		h.Logger.WarnCtx(ctx).Int("status_code", status).Msg("Simulated error injected")
		res.outcome = OutcomeSimulatedError
		res.response = h.errorResponse(ctx, config, status, req)
		return res, nil
	}

	if delay := h.chaosEngine.SampleDelay(config.Delay); delay > 0 {
		h.Logger.DebugCtx(ctx).Int("delay_ms", int(delay.Milliseconds())).Msg("Delaying response")
		if err := chaos.Wait(ctx, delay); err != nil {
			res.outcome = OutcomeAborted
			return res, err
		}
	}

	res.outcome = OutcomeGenerated
	res.response = jsonResponse(
		config.Status(),
		h.interpreter.RenderHeaders(ctx, config.Headers, req),
		h.renderBody(ctx, config, req),
	)
	return res, nil
}

// prepare copies req so the caller's value is never written to.
func (h *Handler) prepare(method, path string, req *models.Request) *models.Request {
	out := &models.Request{}
	if req != nil {
		*out = *req
	}
	out.Method = strings.ToUpper(method)
	out.Path = path
	if out.State == nil {
		out.State = h.state
	}
	return out
}

func (h *Handler) renderBody(ctx context.Context, config models.EndpointConfig, req *models.Request) any {
	if config.Repeat != nil {
		return h.interpreter.RenderRepeated(ctx, config.Schema, *config.Repeat, req)
	}
	return h.interpreter.Render(ctx, config.Schema, req)
}

func (h *Handler) scenarioResponse(ctx context.Context, config models.EndpointConfig, s *scenario.Scenario, req *models.Request) *models.Response {
	status := config.Status()
	if s.Status != nil {
		status = *s.Status
	}

	headers := h.interpreter.RenderHeaders(ctx, config.Headers, req)
	overrides := h.interpreter.RenderHeaders(ctx, s.Headers, req)
	if len(overrides) > 0 && headers == nil {
		headers = models.Headers{}
	}
	for k, v := range overrides {
		headers[k] = v
	}

	var body any
	if s.Body != nil {
		body = h.interpreter.Render(ctx, s.Body, req)
	} else {
		body = h.renderBody(ctx, config, req)
	}
	return jsonResponse(status, headers, body)
}

func (h *Handler) errorResponse(ctx context.Context, config models.EndpointConfig, status int, req *models.Request) *models.Response {
	var body any
	if config.Error != nil && config.Error.Body != nil {
		body = h.interpreter.Render(ctx, config.Error.Body, req)
	} else {
		body = chaos.ErrorBody(status)
	}
	return jsonResponse(status, h.interpreter.RenderHeaders(ctx, config.Headers, req), body)
}

func notFound(req *models.Request) *models.Response {
	return jsonResponse(http.StatusNotFound, nil, map[string]any{
		"error":  "Not Found",
		"method": req.Method,
		"path":   req.Path,
	})
}

// jsonResponse sets Content-Type to application/json unless headers
// already carry one.
func jsonResponse(status int, headers models.Headers, body any) *models.Response {
	if headers == nil {
		headers = models.Headers{}
	}
	if _, ok := headers.Get("Content-Type"); !ok {
		headers["Content-Type"] = "application/json"
	}
	return &models.Response{StatusCode: status, Headers: headers, Body: body}
}

// record updates metrics and the journal. Neither can change the response.
func (h *Handler) record(ctx context.Context, traceID string, req *models.Request, res *result, elapsed time.Duration) {
	status := 0
	if res.response != nil {
		status = res.response.StatusCode
	}

	if h.metrics != nil {
		code := strconv.Itoa(status)
		h.metrics.RequestsTotal.WithLabelValues(h.backend, res.endpoint, req.Method, code).Inc()
		h.metrics.RequestDuration.WithLabelValues(h.backend, res.endpoint, req.Method, code).Observe(elapsed.Seconds())
		h.metrics.OutcomesTotal.WithLabelValues(h.backend, res.endpoint, res.outcome).Inc()
	}

	if h.journal == nil {
		return
	}

	entry := &journal.Entry{
		TraceID:        traceID,
		Backend:        h.backend,
		Endpoint:       res.endpoint,
		Scenario:       res.scenario,
		Outcome:        res.outcome,
		RequestMethod:  req.Method,
		RequestPath:    req.Path,
		RequestHeaders: marshal(req.Headers),
		RequestBody:    marshal(req.Body),
		StatusCode:     status,
		DurationMs:     elapsed.Milliseconds(),
	}
	if res.response != nil {
		entry.ResponseHeaders = marshal(res.response.Headers)
		entry.ResponseBody = marshal(res.response.Body)
	}

	if err := h.journal.Record(entry); err != nil {
		h.Logger.ErrorCtx(ctx).AnErr("error", err).Msg("Error recording journal entry")
	}
}

func marshal(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
