package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"mimic/internal/generator"
	"mimic/internal/logger"
	"mimic/internal/models"

	"github.com/SOLUCIONESSYCOM/scribe"
)

const (
	DirectivePrefix   = "$"
	CountDirective    = "$count"
	TemplateDirective = "$template"

	// MaxRepeat bounds the instances one repeat expands to.
	MaxRepeat = 1000
)

var (
	ErrGeneratorPanic         = errors.New("generator panicked")
	ErrCountWithoutTemplate   = errors.New("$count directive without $template")
	ErrUnterminatedExpression = errors.New("unterminated {{ expression")
)

var (
	wholePlaceholder = regexp.MustCompile(`^\s*\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:\((.*)\))?\s*\}\}\s*$`)
	shorthand        = regexp.MustCompile(`^[$@]([A-Za-z_][A-Za-z0-9_]*)$`)
	embedded         = regexp.MustCompile(`\{\{(.*?)\}\}`)
	call             = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:\((.*)\))?\s*$`)
	contextRef       = regexp.MustCompile(`^(params|query|headers|body)\.(.+)$`)
	bracedRef        = regexp.MustCompile(`^\s*\{\{\s*(params|query|headers|body)\.([^{}]+?)\s*\}\}\s*$`)
)

// Interpreter materializes schema documents. It keeps no state between
// calls; every Render produces fresh values.
type Interpreter struct {
	registry *generator.Registry
	logger   *scribe.Scribe
}

func New(registry *generator.Registry, log *scribe.Scribe) *Interpreter {
	if registry == nil {
		registry = generator.NewRegistry()
	}
	return &Interpreter{
		registry: registry,
		logger:   logger.OrQuiet(log),
	}
}

func (in *Interpreter) Registry() *generator.Registry {
	return in.registry
}

// Render interprets node against req. Nodes are JSON-shaped: scalars,
// []any and map[string]any (YAML's map[any]any is accepted too).
func (in *Interpreter) Render(ctx context.Context, node any, req *models.Request) any {
	if req == nil {
		req = &models.Request{}
	}
	return in.render(ctx, node, req)
}

// RenderRepeated renders count independent instances of node. Counts below
// one produce a single instance and counts above MaxRepeat produce MaxRepeat.
func (in *Interpreter) RenderRepeated(ctx context.Context, node any, count int, req *models.Request) []any {
	if req == nil {
		req = &models.Request{}
	}
	count = clampRepeat(count)
	out := make([]any, count)
	for i := range out {
		out[i] = in.render(ctx, node, req)
	}
	return out
}

// RenderHeaders interpolates placeholders in header values.
func (in *Interpreter) RenderHeaders(ctx context.Context, headers models.Headers, req *models.Request) models.Headers {
	if headers == nil {
		return nil
	}
	if req == nil {
		req = &models.Request{}
	}
	out := make(models.Headers, len(headers))
	for k, v := range headers {
		out[k] = toString(in.renderString(ctx, v, req))
	}
	return out
}

func (in *Interpreter) render(ctx context.Context, node any, req *models.Request) any {
	switch v := node.(type) {
	case string:
		return in.renderString(ctx, v, req)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = in.render(ctx, item, req)
		}
		return out
	case map[string]any:
		return in.renderMapping(ctx, v, req)
	case map[any]any:
		return in.renderMapping(ctx, normalize(v).(map[string]any), req)
	default:
		return v
	}
}

func (in *Interpreter) renderMapping(ctx context.Context, m map[string]any, req *models.Request) any {
	if tmpl, ok := m[TemplateDirective]; ok {
		count := in.repeatCount(ctx, m[CountDirective], req)
		return in.RenderRepeated(ctx, tmpl, count, req)
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if strings.HasPrefix(k, DirectivePrefix) {
			continue
		}
		out[k] = in.render(ctx, v, req)
	}
	return out
}

func (in *Interpreter) repeatCount(ctx context.Context, node any, req *models.Request) int {
	switch v := in.render(ctx, node, req).(type) {
	case int:
		return clampRepeat(v)
	case int64:
		return clampRepeat(int(min(max(v, 0), MaxRepeat)))
	case float64:
		if math.IsNaN(v) {
			return 1
		}
		return clampRepeat(int(math.Min(math.Max(v, 0), MaxRepeat)))
	case string:
		v = strings.TrimSpace(v)
		n, err := strconv.Atoi(v)
		if err == nil {
			return clampRepeat(n)
		}
		if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(v, "-") {
			return MaxRepeat
		}
	}
	return 1
}

func clampRepeat(count int) int {
	if count < 1 {
		return 1
	}
	if count > MaxRepeat {
		return MaxRepeat
	}
	return count
}

func (in *Interpreter) renderString(ctx context.Context, s string, req *models.Request) any {
	if m := contextRef.FindStringSubmatch(s); m != nil {
		return in.resolveRef(ctx, m[1], m[2], req)
	}
	if m := bracedRef.FindStringSubmatch(s); m != nil {
		return in.resolveRef(ctx, m[1], m[2], req)
	}
	if m := wholePlaceholder.FindStringSubmatch(s); m != nil {
		return in.invoke(ctx, m[1], m[2], s, req)
	}
	if m := shorthand.FindStringSubmatch(s); m != nil {
		return in.invoke(ctx, m[1], "", s, req)
	}
	if !strings.Contains(s, "{{") {
		return s
	}

	return embedded.ReplaceAllStringFunc(s, func(expr string) string {
		inner := strings.TrimSpace(expr[2 : len(expr)-2])
		if ref := contextRef.FindStringSubmatch(inner); ref != nil {
			return toString(in.resolveRef(ctx, ref[1], ref[2], req))
		}
		m := call.FindStringSubmatch(inner)
		if m == nil {
			return expr
		}
		return toString(in.invoke(ctx, m[1], m[2], expr, req))
	})
}

func (in *Interpreter) resolveRef(ctx context.Context, source, name string, req *models.Request) any {
	switch source {
	case "params":
		if v, ok := req.Params[name]; ok {
			return v
		}
	case "query":
		if v, ok := req.Query[name]; ok {
			return v
		}
	case "headers":
		if v, ok := req.Headers.Get(name); ok {
			return v
		}
	case "body":
		v, err := generator.Query(req.Body, name)
		if err != nil {
			in.logger.WarnCtx(ctx).
				Str("path", name).
				AnErr("error", err).
				Msg("Invalid body reference")
			return nil
		}
		return v
	}
	return nil
}

// invoke runs a generator. Unknown names and failures resolve to literal so
// the problem stays visible in the output.
func (in *Interpreter) invoke(ctx context.Context, name, rawArgs, literal string, req *models.Request) any {
	fn, ok := in.registry.Lookup(name)
	if !ok {
		in.logger.DebugCtx(ctx).
			Str("generator", name).
			Msg("Unknown generator, echoing placeholder")
		return literal
	}

	value, err := safeCall(fn, req, ParseArgs(rawArgs))
	if err != nil {
		in.logger.WarnCtx(ctx).
			Str("generator", name).
			Str("args", rawArgs).
			AnErr("error", err).
			Msg("Generator failed, echoing placeholder")
		return literal
	}
	return value
}

func safeCall(fn generator.Func, req *models.Request, args []any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrGeneratorPanic, r)
		}
	}()
	return fn(req, args)
}

// Check reports schema mistakes that can be detected before any request.
func Check(node any) error {
	switch v := node.(type) {
	case string:
		if open := strings.Count(v, "{{"); open > strings.Count(v, "}}") {
			return fmt.Errorf("%w: %q", ErrUnterminatedExpression, v)
		}
	case []any:
		for i, item := range v {
			if err := Check(item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case map[any]any:
		return Check(normalize(v))
	case map[string]any:
		_, hasCount := v[CountDirective]
		_, hasTemplate := v[TemplateDirective]
		if hasCount && !hasTemplate {
			return ErrCountWithoutTemplate
		}
		for k, item := range v {
			if err := Check(item); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
	}
	return nil
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool, int, int64, float64:
		return fmt.Sprint(s)
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(data)
	}
}
