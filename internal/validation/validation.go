package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var ErrInvalidBody = errors.New("request body does not match schema")

// Validator keeps the compiled request schemas of the registered endpoints.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

func New() *Validator {
	return &Validator{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schema for key. A nil schema removes any previous one.
func (v *Validator) Register(key string, schema any) error {
	if schema == nil {
		v.Remove(key)
		return nil
	}

	compiled, err := Compile(schema)
	if err != nil {
		return err
	}
	v.Install(key, compiled)
	return nil
}

// Install stores an already compiled schema for key. A nil schema removes
// any previous one.
func (v *Validator) Install(key string, compiled *jsonschema.Schema) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if compiled == nil {
		delete(v.schemas, key)
		return
	}
	v.schemas[key] = compiled
}

func (v *Validator) Remove(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.schemas, key)
}

func (v *Validator) Has(key string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.schemas[key]
	return ok
}

// Validate checks body against the schema of key. Keys without a schema
// always pass.
func (v *Validator) Validate(key string, body any) error {
	v.mu.RLock()
	schema, ok := v.schemas[key]
	v.mu.RUnlock()
	if !ok {
		return nil
	}

	data, err := normalize(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

// Compile compiles a JSON schema given either as a JSON string or as an
// already decoded document.
func Compile(schema any) (*jsonschema.Schema, error) {
	var document any
	if raw, ok := schema.(string); ok {
		parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("error parsing schema JSON: %w", err)
		}
		document = parsed
	} else {
		normalized, err := normalize(schema)
		if err != nil {
			return nil, fmt.Errorf("error converting schema: %w", err)
		}
		document = normalized
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", document); err != nil {
		return nil, fmt.Errorf("error adding schema resource: %w", err)
	}

	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("error compiling schema: %w", err)
	}
	return compiled, nil
}

// normalize round-trips value through JSON so YAML maps and Go numbers take
// the shapes the validator expects.
func normalize(value any) (any, error) {
	data, err := json.Marshal(toJSONCompatible(value))
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

func toJSONCompatible(value any) any {
	switch v := value.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = toJSONCompatible(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = toJSONCompatible(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = toJSONCompatible(item)
		}
		return out
	default:
		return v
	}
}
