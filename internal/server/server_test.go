package server

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mimic/internal/config"
	"mimic/internal/models"
	"mimic/internal/scenario"
)

const backendsYAML = `
backends:
  - name: users
    endpoints:
      - path: /users/:id
        method: GET
        schema:
          id: params.id
          name: "{{fullName}}"
      - path: /users
        method: GET
        repeat: 2
        schema:
          id: "{{uuid}}"
    scenarios:
      - name: down
        preset: server_error
        endpoint: GET /users/:id
        when: params.id == "0"
        active: true
  - name: orders
    endpoints:
      - path: /orders
        method: POST
        status_code: 201
        schema:
          total: body.total
`

func loadManager(t *testing.T) *Manager {
	t.Helper()
	cfg, err := config.ParseConfig([]byte(backendsYAML))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	manager := NewManager(Options{})
	if err := manager.CreateServers(cfg); err != nil {
		t.Fatalf("Failed to create servers: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestCreateServers(t *testing.T) {
	manager := loadManager(t)

	names := manager.Names()
	if len(names) != 2 || names[0] != "orders" || names[1] != "users" {
		t.Fatalf("Expected backends [orders users], got %v", names)
	}

	users, err := manager.Get("users")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	routes := users.Routes()
	if len(routes) != 2 || routes[0] != "GET /users/:id" {
		t.Errorf("Unexpected routes %v", routes)
	}

	resp, err := users.HandleRequest(context.Background(), "GET", "/users/42", nil)
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if body := resp.Body.(map[string]any); resp.StatusCode != 200 || body["id"] != "42" {
		t.Errorf("Unexpected response %+v", resp)
	}

	resp, _ = users.HandleRequest(context.Background(), "GET", "/users/0", nil)
	if resp.StatusCode != 500 {
		t.Errorf("Expected configured scenario to fire, got %d", resp.StatusCode)
	}

	resp, _ = users.HandleRequest(context.Background(), "GET", "/users", nil)
	if items, ok := resp.Body.([]any); !ok || len(items) != 2 {
		t.Errorf("Expected 2 repeated items, got %v", resp.Body)
	}

	orders, _ := manager.Get("orders")
	resp, _ = orders.HandleRequest(context.Background(), "POST", "/orders", &models.Request{
		Body: map[string]any{"total": 12.5},
	})
	if body := resp.Body.(map[string]any); resp.StatusCode != 201 || body["total"] != 12.5 {
		t.Errorf("Unexpected orders response %+v", resp)
	}
}

func TestManagerErrors(t *testing.T) {
	manager := loadManager(t)

	err := manager.CreateServer(models.Backend{Name: "users"})
	if !errors.Is(err, ErrDuplicateBackend) {
		t.Errorf("Expected ErrDuplicateBackend, got %v", err)
	}

	if _, err := manager.Get("payments"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := New(models.Backend{
		Name: "broken",
		Endpoints: []models.Endpoint{{
			Path:           "/a",
			Method:         "GET",
			EndpointConfig: models.EndpointConfig{Delay: models.RangeDelay(10, 1)},
		}},
	}, Options{})
	if !errors.Is(err, models.ErrInvalidDelay) {
		t.Errorf("Expected ErrInvalidDelay, got %v", err)
	}
}

func TestScenarioLifecycle(t *testing.T) {
	s, err := New(models.Backend{Name: "svc"}, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if err := s.RegisterRoute("GET", "/ping", models.EndpointConfig{Schema: "pong"}); err != nil {
		t.Fatalf("RegisterRoute failed: %v", err)
	}

	if err := s.ActivateScenario("missing", scenario.GlobalScope); !errors.Is(err, scenario.ErrUnknownScenario) {
		t.Errorf("Expected ErrUnknownScenario, got %v", err)
	}

	if err := s.DefineScenario(scenario.Unauthorized("auth")); err != nil {
		t.Fatalf("DefineScenario failed: %v", err)
	}
	_ = s.ActivateScenario("auth", "get /ping")

	resp, _ := s.HandleRequest(context.Background(), "GET", "/ping", nil)
	if resp.StatusCode != 401 {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}

	s.DeactivateScenario("auth", "GET /ping")
	resp, _ = s.HandleRequest(context.Background(), "GET", "/ping", nil)
	if resp.StatusCode != 200 || resp.Body != "pong" {
		t.Errorf("Expected default response, got %+v", resp)
	}

	_ = s.ActivateScenario("auth", scenario.GlobalScope)
	s.ResetScenarios()
	resp, _ = s.HandleRequest(context.Background(), "GET", "/ping", nil)
	if resp.StatusCode != 200 {
		t.Errorf("Expected reset to clear activation, got %d", resp.StatusCode)
	}
	if len(s.Scenarios()) != 1 {
		t.Errorf("Expected definition to survive reset, got %v", s.Scenarios())
	}
}

func TestStateAndGenerators(t *testing.T) {
	s, _ := New(models.Backend{Name: "svc"}, Options{})
	defer s.Close()

	err := s.Generators().Register("tenant", func(*models.Request, []any) (any, error) {
		return "acme", nil
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_ = s.RegisterRoute("GET", "/whoami", models.EndpointConfig{
		Schema: map[string]any{"tenant": "$tenant", "plan": "{{state(plan, free)}}"},
	})

	resp, _ := s.HandleRequest(context.Background(), "GET", "/whoami", nil)
	body := resp.Body.(map[string]any)
	if body["tenant"] != "acme" || body["plan"] != "free" {
		t.Errorf("Unexpected body %v", body)
	}

	s.State().Set("plan", "pro")
	resp, _ = s.HandleRequest(context.Background(), "GET", "/whoami", nil)
	if body := resp.Body.(map[string]any); body["plan"] != "pro" {
		t.Errorf("Expected state value, got %v", body["plan"])
	}
}

func TestJournalHistory(t *testing.T) {
	s, err := New(models.Backend{
		Name: "audited",
		Journal: &models.JournalSettings{
			Path:            filepath.Join(t.TempDir(), "journal.db"),
			BatchSize:       2,
			FlushIntervalMs: 10,
		},
		Endpoints: []models.Endpoint{{
			Path:           "/items/:id",
			Method:         "GET",
			EndpointConfig: models.EndpointConfig{Schema: map[string]any{"id": "params.id"}},
		}},
	}, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, id := range []string{"1", "2", "3"} {
		_, _ = s.HandleRequest(context.Background(), "GET", "/items/"+id, nil)
	}

	deadline := time.Now().Add(2 * time.Second)
	var count int
	for time.Now().Before(deadline) {
		entries, err := s.History(context.Background(), 10)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if count = len(entries); count == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if count != 3 {
		t.Fatalf("Expected 3 journal entries, got %d", count)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestHistoryWithoutJournal(t *testing.T) {
	s, _ := New(models.Backend{Name: "plain"}, Options{})
	if _, err := s.History(context.Background(), 5); !errors.Is(err, ErrJournalDisabled) {
		t.Errorf("Expected ErrJournalDisabled, got %v", err)
	}
}

func TestHistoryDuringClose(t *testing.T) {
	s, err := New(models.Backend{
		Name:      "audited",
		Journal:   &models.JournalSettings{Path: filepath.Join(t.TempDir(), "journal.db")},
		Endpoints: []models.Endpoint{{Path: "/a", Method: "GET"}},
	}, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, _ = s.HandleRequest(context.Background(), "GET", "/a", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := s.History(context.Background(), 5); err != nil && !errors.Is(err, ErrJournalDisabled) {
					t.Errorf("Expected entries or ErrJournalDisabled, got %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	}()
	wg.Wait()

	if _, err := s.History(context.Background(), 5); !errors.Is(err, ErrJournalDisabled) {
		t.Errorf("Expected ErrJournalDisabled after close, got %v", err)
	}
}
