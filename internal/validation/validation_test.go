package validation

import (
	"errors"
	"testing"
)

func TestSchemaValidation(t *testing.T) {
	schemaStr := `{
		"type": "object",
		"properties": {
			"name": { "type": "string" },
			"age": { "type": "integer", "minimum": 18 }
		},
		"required": ["name", "age"]
	}`

	v := New()
	if err := v.Register("POST /users", schemaStr); err != nil {
		t.Fatalf("Failed to register schema: %v", err)
	}

	tests := []struct {
		name      string
		body      any
		expectErr bool
	}{
		{name: "Valid body", body: map[string]any{"name": "John", "age": 25}},
		{name: "Missing required field", body: map[string]any{"name": "John"}, expectErr: true},
		{name: "Wrong type", body: map[string]any{"name": 123, "age": 25}, expectErr: true},
		{name: "Below minimum", body: map[string]any{"name": "John", "age": 17}, expectErr: true},
		{name: "Float age from JSON decoding", body: map[string]any{"name": "John", "age": 30.0}},
		{name: "Nil body", body: nil, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate("POST /users", tt.body)
			if tt.expectErr && !errors.Is(err, ErrInvalidBody) {
				t.Errorf("Expected ErrInvalidBody, got %v", err)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestYAMLDecodedSchema(t *testing.T) {
	v := New()
	schema := map[string]any{
		"type":     "object",
		"required": []any{"item"},
		"properties": map[any]any{
			"item": map[string]any{"type": "string"},
		},
	}
	if err := v.Register("POST /orders", schema); err != nil {
		t.Fatalf("Failed to register schema: %v", err)
	}

	if err := v.Validate("POST /orders", map[string]any{"item": "book"}); err != nil {
		t.Errorf("Expected valid body, got %v", err)
	}
	if err := v.Validate("POST /orders", map[string]any{}); err == nil {
		t.Error("Expected missing item to fail")
	}
}

func TestUnregisteredKeyPasses(t *testing.T) {
	v := New()
	if err := v.Validate("GET /anything", "whatever"); err != nil {
		t.Errorf("Expected no validation without a schema, got %v", err)
	}
}

func TestRegisterRejectsInvalidSchema(t *testing.T) {
	v := New()
	if err := v.Register("k", `{"type": 12}`); err == nil {
		t.Error("Expected compile error for invalid schema")
	}
	if err := v.Register("k", `{not json`); err == nil {
		t.Error("Expected parse error for malformed JSON")
	}
	if v.Has("k") {
		t.Error("Failed registration must not store a schema")
	}
}

func TestRegisterNilRemoves(t *testing.T) {
	v := New()
	_ = v.Register("k", `{"type": "string"}`)
	_ = v.Register("k", nil)
	if v.Has("k") {
		t.Error("Expected nil schema to remove the previous one")
	}
}

func TestInstallCompiledSchema(t *testing.T) {
	compiled, err := Compile(`{"type": "object", "required": ["id"]}`)
	if err != nil {
		t.Fatalf("Failed to compile schema: %v", err)
	}

	v := New()
	v.Install("PUT /items", compiled)
	if err := v.Validate("PUT /items", map[string]any{}); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("Expected ErrInvalidBody, got %v", err)
	}

	v.Install("PUT /items", nil)
	if v.Has("PUT /items") {
		t.Error("Expected nil schema to remove the key")
	}
}
