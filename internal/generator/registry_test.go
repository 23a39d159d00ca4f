package generator

import (
	"errors"
	"math"
	"sync"
	"testing"
	"unicode/utf8"

	"mimic/internal/models"
	"mimic/internal/store"
)

func TestRegisterRejectsBadRegistrations(t *testing.T) {
	noop := func(*models.Request, []any) (any, error) { return nil, nil }

	tests := []struct {
		name      string
		genName   string
		fn        Func
		expectErr error
	}{
		{name: "Empty name", genName: "  ", fn: noop, expectErr: ErrEmptyName},
		{name: "Nil func", genName: "custom", fn: nil, expectErr: ErrNilGenerator},
		{name: "Built-in name", genName: "uuid", fn: noop, expectErr: ErrBuiltinName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.genName, tt.fn)
			if !errors.Is(err, tt.expectErr) {
				t.Errorf("Expected error %v, got %v", tt.expectErr, err)
			}
		})
	}
}

func TestRegisterAndLookupExtension(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("answer", func(*models.Request, []any) (any, error) { return 42, nil }); err != nil {
		t.Fatalf("Failed to register generator: %v", err)
	}

	fn, ok := r.Lookup("answer")
	if !ok {
		t.Fatal("Expected extension to be found")
	}
	if v, _ := fn(nil, nil); v != 42 {
		t.Errorf("Expected 42, got %v", v)
	}

	if !r.Unregister("answer") {
		t.Error("Expected Unregister to succeed")
	}
	if _, ok := r.Lookup("answer"); ok {
		t.Error("Expected extension to be gone")
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Error("Expected unknown name to be unresolved")
	}
}

func TestEveryKindHasAGenerator(t *testing.T) {
	r := NewRegistry()
	for kind, name := range kindNames {
		if r.builtins[kind] == nil {
			t.Errorf("Kind %s has no generator", name)
		}
		if parsed, ok := ParseKind(name); !ok || parsed != kind {
			t.Errorf("ParseKind(%q) = %v, %v", name, parsed, ok)
		}
	}
}

func TestTextGeneratorsProduceStrings(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"uuid", "fullName", "firstName", "lastName", "email", "phone", "username", "word", "sentence", "city", "zip", "address", "country", "url", "ipv4", "date", "timestamp", "now"} {
		t.Run(name, func(t *testing.T) {
			fn, _ := r.Lookup(name)
			v, err := fn(&models.Request{}, nil)
			if err != nil {
				t.Fatalf("Generator failed: %v", err)
			}
			s, ok := v.(string)
			if !ok || s == "" {
				t.Errorf("Expected non-empty string, got %#v", v)
			}
		})
	}
}

func TestIntIsInclusive(t *testing.T) {
	fn, _ := NewRegistry().Lookup("int")
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		v, err := fn(nil, []any{10, 12})
		if err != nil {
			t.Fatalf("Generator failed: %v", err)
		}
		n := v.(int)
		if n < 10 || n > 12 {
			t.Fatalf("Value %d out of range", n)
		}
		seen[n] = true
	}
	if !seen[12] {
		t.Error("Upper bound was never produced")
	}

	if _, err := fn(nil, []any{"x", 3}); !errors.Is(err, ErrBadArgument) {
		t.Errorf("Expected ErrBadArgument, got %v", err)
	}
}

func TestFloatPrecision(t *testing.T) {
	fn, _ := NewRegistry().Lookup("float")
	for i := 0; i < 100; i++ {
		v, _ := fn(nil, []any{1, 2, 1})
		f := v.(float64)
		if f < 1 || f > 2 {
			t.Fatalf("Value %f out of range", f)
		}
		if math.Abs(f*10-math.Round(f*10)) > 1e-9 {
			t.Fatalf("Value %f has more than one decimal", f)
		}
	}
}

func TestPick(t *testing.T) {
	fn, _ := NewRegistry().Lookup("pick")

	v, err := fn(nil, []any{"a", "b"})
	if err != nil || (v != "a" && v != "b") {
		t.Errorf("Unexpected pick %v, %v", v, err)
	}

	v, _ = fn(nil, []any{[]any{"only"}})
	if v != "only" {
		t.Errorf("Expected pick from list literal, got %v", v)
	}

	if _, err := fn(nil, nil); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Expected ErrMissingArgument, got %v", err)
	}
}

func TestSequenceIsMonotonicUnderConcurrency(t *testing.T) {
	r := NewRegistry()
	fn, _ := r.Lookup("sequence")

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _ := fn(nil, []any{"orders", 1})
			mu.Lock()
			seen[v.(int)] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 100 {
		t.Fatalf("Expected 100 distinct values, got %d", len(seen))
	}
	for i := 1; i <= 100; i++ {
		if !seen[i] {
			t.Errorf("Missing sequence value %d", i)
		}
	}

	r.Sequences().Reset("orders")
	if v, _ := fn(nil, []any{"orders", 5}); v != 5 {
		t.Errorf("Expected restart at 5, got %v", v)
	}
}

func TestStringLengths(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"string", "numericString"} {
		fn, _ := r.Lookup(name)
		v, err := fn(nil, []any{8})
		if err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		if len(v.(string)) != 8 {
			t.Errorf("Expected %s of length 8, got %q", name, v)
		}
	}
}

func TestInvalidUTF8PrefersQuery(t *testing.T) {
	fn, _ := NewRegistry().Lookup("invalidUTF8")
	req := &models.Request{Query: map[string]string{"utf8_type": "overlong"}}

	v, _ := fn(req, nil)
	if v != "\xC0\x81" {
		t.Errorf("Expected overlong sequence from query, got %q", v)
	}

	v, _ = fn(&models.Request{}, []any{"surrogate"})
	if utf8.ValidString(v.(string)) {
		t.Errorf("Expected invalid UTF-8, got %q", v)
	}
}

func TestStateReadsStore(t *testing.T) {
	fn, _ := NewRegistry().Lookup("state")
	s := store.NewMemoryStore(5)
	s.Set("token", "abc")

	v, _ := fn(&models.Request{State: s}, []any{"token"})
	if v != "abc" {
		t.Errorf("Expected abc, got %v", v)
	}

	v, _ = fn(&models.Request{State: s}, []any{"missing", "fallback"})
	if v != "fallback" {
		t.Errorf("Expected fallback, got %v", v)
	}

	v, _ = fn(&models.Request{}, []any{"token", 0})
	if v != 0 {
		t.Errorf("Expected fallback without store, got %v", v)
	}
}

func TestJSONPath(t *testing.T) {
	fn, _ := NewRegistry().Lookup("jsonpath")
	req := &models.Request{Body: map[string]any{
		"user":  map[string]any{"name": "Ana"},
		"items": []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
	}}

	tests := []struct {
		expr     string
		expected any
	}{
		{expr: "user.name", expected: "Ana"},
		{expr: "$.user.name", expected: "Ana"},
		{expr: "user.missing", expected: nil},
	}
	for _, tt := range tests {
		v, err := fn(req, []any{tt.expr})
		if err != nil {
			t.Fatalf("jsonpath %s failed: %v", tt.expr, err)
		}
		if v != tt.expected {
			t.Errorf("jsonpath %s: expected %v, got %v", tt.expr, tt.expected, v)
		}
	}

	v, _ := fn(req, []any{"items[*].id"})
	if list, ok := v.([]any); !ok || len(list) != 2 {
		t.Errorf("Expected two ids, got %#v", v)
	}
}

func TestFakerFailureIsReturned(t *testing.T) {
	boom := errors.New("faker unavailable")
	original := fakeData
	fakeData = func(any) error { return boom }
	defer func() { fakeData = original }()

	r := NewRegistry()
	for _, name := range []string{"fullName", "email", "word", "url", "date"} {
		t.Run(name, func(t *testing.T) {
			fn, _ := r.Lookup(name)
			value, err := fn(nil, nil)
			if !errors.Is(err, boom) {
				t.Errorf("Expected faker error, got %v", err)
			}
			if value != nil {
				t.Errorf("Expected no value, got %v", value)
			}
		})
	}
}

func TestFakerEmptyValueIsAnError(t *testing.T) {
	original := fakeData
	fakeData = func(any) error { return nil }
	defer func() { fakeData = original }()

	fn, _ := NewRegistry().Lookup("fullName")
	if _, err := fn(nil, nil); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("Expected ErrEmptyValue, got %v", err)
	}
}
