package scenario

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mimic/internal/models"
)

const (
	PresetServerError  = "server_error"
	PresetNotFound     = "not_found"
	PresetUnauthorized = "unauthorized"
	PresetMaintenance  = "maintenance"
	PresetRateLimit    = "rate_limit"
)

func statusScenario(name string, status int, headers models.Headers, message string) Scenario {
	return Scenario{
		Name:    name,
		Status:  &status,
		Headers: headers,
		Body: map[string]any{
			"error":   http.StatusText(status),
			"message": message,
			"status":  status,
		},
	}
}

func ServerError(name string) Scenario {
	return statusScenario(name, http.StatusInternalServerError, nil, "simulated internal failure")
}

func NotFound(name string) Scenario {
	return statusScenario(name, http.StatusNotFound, nil, "resource not found")
}

func Unauthorized(name string) Scenario {
	return statusScenario(name, http.StatusUnauthorized,
		models.Headers{"WWW-Authenticate": `Bearer realm="mimic"`}, "missing or invalid credentials")
}

func Maintenance(name string) Scenario {
	return statusScenario(name, http.StatusServiceUnavailable,
		models.Headers{"Retry-After": "120"}, "service under maintenance")
}

// RateLimit answers 429 once more than limit requests arrive within one
// fixed window. Only requests that reach the condition are counted.
func RateLimit(name string, limit int, window time.Duration) Scenario {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))
	s := statusScenario(name, http.StatusTooManyRequests,
		models.Headers{"Retry-After": retryAfter}, fmt.Sprintf("limit of %d requests per %s exceeded", limit, window))
	s.Condition = &windowCounter{limit: limit, window: window, now: time.Now}
	return s
}

type windowCounter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	start  time.Time
	count  int
	now    func() time.Time
}

func (w *windowCounter) Evaluate(*models.Request) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.start.IsZero() || now.Sub(w.start) >= w.window {
		w.start = now
		w.count = 0
	}
	w.count++
	return w.count > w.limit, nil
}

// All matches when every condition matches, evaluated in order.
func All(conditions ...Condition) Condition {
	return ConditionFunc(func(req *models.Request) (bool, error) {
		for _, c := range conditions {
			if c == nil {
				continue
			}
			ok, err := c.Evaluate(req)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// FromSpec builds a scenario from its configuration. An explicit status,
// headers or body override the preset.
func FromSpec(spec models.ScenarioSpec) (Scenario, error) {
	var s Scenario
	switch spec.Preset {
	case "":
		s = Scenario{Name: spec.Name}
	case PresetServerError:
		s = ServerError(spec.Name)
	case PresetNotFound:
		s = NotFound(spec.Name)
	case PresetUnauthorized:
		s = Unauthorized(spec.Name)
	case PresetMaintenance:
		s = Maintenance(spec.Name)
	case PresetRateLimit:
		s = RateLimit(spec.Name, spec.Limit, time.Duration(spec.WindowMs)*time.Millisecond)
	default:
		return Scenario{}, fmt.Errorf("scenario %s: unknown preset %q", spec.Name, spec.Preset)
	}

	if spec.When != "" {
		when, err := Compile(spec.When)
		if err != nil {
			return Scenario{}, fmt.Errorf("scenario %s: %w", spec.Name, err)
		}
		s.Condition = All(when, s.Condition)
	}
	if spec.StatusCode != nil {
		status := *spec.StatusCode
		s.Status = &status
	}
	if len(spec.Headers) > 0 {
		merged := s.Headers.Clone()
		if merged == nil {
			merged = models.Headers{}
		}
		for k, v := range spec.Headers {
			merged[k] = v
		}
		s.Headers = merged
	}
	if spec.Body != nil {
		s.Body = spec.Body
	}
	return s, nil
}
