package scenario

import (
	"fmt"
	"strings"

	"mimic/internal/models"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Condition decides whether a scenario applies to a request.
type Condition interface {
	Evaluate(req *models.Request) (bool, error)
}

// ConditionFunc adapts a plain function to Condition.
type ConditionFunc func(req *models.Request) (bool, error)

func (f ConditionFunc) Evaluate(req *models.Request) (bool, error) {
	return f(req)
}

// Always matches every request.
var Always = ConditionFunc(func(*models.Request) (bool, error) { return true, nil })

type exprCondition struct {
	source  string
	program *vm.Program
}

// Compile builds a Condition from an expr-lang expression. The expression
// sees method, path, params, query, headers (lower-cased keys), body and a
// state(key) function, and must evaluate to a boolean.
func Compile(expression string) (Condition, error) {
	program, err := expr.Compile(expression, expr.Env(conditionEnv(&models.Request{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	return &exprCondition{source: expression, program: program}, nil
}

func (c *exprCondition) Evaluate(req *models.Request) (bool, error) {
	result, err := expr.Run(c.program, conditionEnv(req))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", c.source, err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: result %T is not a boolean", c.source, result)
	}
	return matched, nil
}

func (c *exprCondition) String() string {
	return c.source
}

func conditionEnv(req *models.Request) map[string]interface{} {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[strings.ToLower(k)] = v
	}
	params := req.Params
	if params == nil {
		params = map[string]string{}
	}
	query := req.Query
	if query == nil {
		query = map[string]string{}
	}

	return map[string]interface{}{
		"method":  strings.ToUpper(req.Method),
		"path":    req.Path,
		"params":  params,
		"query":   query,
		"headers": headers,
		"body":    req.Body,
		"state": func(key string) interface{} {
			if req.State == nil {
				return nil
			}
			value, _ := req.State.Get(key)
			return value
		},
	}
}
