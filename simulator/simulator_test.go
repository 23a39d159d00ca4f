package simulator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPublicSurface(t *testing.T) {
	sim := New("users", WithSeed(1))
	defer sim.Close()

	err := sim.RegisterRoute("GET", "/users/:id", EndpointConfig{
		Schema: map[string]any{"id": "params.id", "name": "{{fullName}}"},
	})
	if err != nil {
		t.Fatalf("RegisterRoute failed: %v", err)
	}

	resp, err := sim.HandleRequest(context.Background(), "GET", "/users/42", &Request{})
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	body := resp.Body.(map[string]any)
	if resp.StatusCode != 200 || body["id"] != "42" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if name, _ := body["name"].(string); name == "" {
		t.Error("Expected a generated name")
	}

	cond, err := Compile(`query.debug == "1"`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	status := 299
	if err := sim.DefineScenario(Scenario{Name: "debug", Condition: cond, Status: &status}); err != nil {
		t.Fatalf("DefineScenario failed: %v", err)
	}
	if err := sim.ActivateScenario("debug", GlobalScope); err != nil {
		t.Fatalf("ActivateScenario failed: %v", err)
	}

	resp, _ = sim.HandleRequest(context.Background(), "GET", "/users/1", &Request{Query: map[string]string{"debug": "1"}})
	if resp.StatusCode != 299 {
		t.Errorf("Expected scenario status, got %d", resp.StatusCode)
	}
	resp, _ = sim.HandleRequest(context.Background(), "GET", "/users/1", nil)
	if resp.StatusCode != 200 {
		t.Errorf("Expected condition to miss, got %d", resp.StatusCode)
	}

	sim.ResetScenarios()
	if err := sim.DefineScenario(Scenario{}); !errors.Is(err, ErrEmptyScenarioName) {
		t.Errorf("Expected ErrEmptyScenarioName, got %v", err)
	}
}

func TestRateLimitPreset(t *testing.T) {
	sim := New("limited")
	defer sim.Close()

	_ = sim.RegisterRoute("GET", "/search", EndpointConfig{Schema: "ok"})
	_ = sim.DefineScenario(RateLimit("throttle", 2, time.Minute))
	_ = sim.ActivateScenario("throttle", "GET /search")

	var codes []int
	for i := 0; i < 4; i++ {
		resp, _ := sim.HandleRequest(context.Background(), "GET", "/search", nil)
		codes = append(codes, resp.StatusCode)
	}

	expected := []int{200, 200, 429, 429}
	for i := range expected {
		if codes[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, codes)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	doc := `
backends:
  - name: catalog
    endpoints:
      - path: /products
        method: GET
        schema:
          $count: 3
          $template:
            sku: "{{string(8)}}"
`
	if err := os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	manager, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer manager.Close()

	catalog, err := manager.Get("catalog")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp, _ := catalog.HandleRequest(context.Background(), "GET", "/products", nil)
	items, ok := resp.Body.([]any)
	if !ok || len(items) != 3 {
		t.Fatalf("Expected 3 products, got %v", resp.Body)
	}
	sku, _ := items[0].(map[string]any)["sku"].(string)
	if len(sku) != 8 {
		t.Errorf("Expected 8 character sku, got %q", sku)
	}
}

func TestRegisterRouteRejectsBadDelay(t *testing.T) {
	sim := New("bad")
	defer sim.Close()

	err := sim.RegisterRoute("GET", "/x", EndpointConfig{Delay: RangeDelay(5, 1)})
	if !errors.Is(err, ErrInvalidDelay) {
		t.Errorf("Expected ErrInvalidDelay, got %v", err)
	}
}
