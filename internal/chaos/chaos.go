package chaos

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"mimic/internal/models"
)

const DefaultErrorStatus = http.StatusInternalServerError

// Engine decides simulated latency and failures. The random source is the
// only state and is guarded by a mutex.
type Engine struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewEngine creates a new instance of the chaos engine
func NewEngine() *Engine {
	return &Engine{
		rand: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewEngineWithSeed returns an engine with a reproducible sequence.
func NewEngineWithSeed(seed uint64) *Engine {
	return &Engine{
		rand: rand.New(rand.NewPCG(seed, seed)),
	}
}

// SampleDelay draws the latency for one request. A nil delay is zero.
func (e *Engine) SampleDelay(delay *models.Delay) time.Duration {
	if delay == nil {
		return 0
	}
	ms := delay.Min
	if delay.Max > delay.Min {
		e.mu.Lock()
		ms += e.rand.IntN(delay.Max - delay.Min + 1)
		e.mu.Unlock()
	}
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Wait blocks for d or until ctx is done, whichever comes first. A zero
// duration returns immediately.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShouldFail performs the Bernoulli draw of an error simulation and returns
// the chosen status code.
func (e *Engine) ShouldFail(sim *models.ErrorSimulation) (int, bool) {
	if sim == nil || sim.Probability <= 0 {
		return 0, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if sim.Probability < 1 && e.rand.Float64() >= float64(sim.Probability) {
		return 0, false
	}

	switch len(sim.Status) {
	case 0:
		return DefaultErrorStatus, true
	case 1:
		return sim.Status[0], true
	default:
		return sim.Status[e.rand.IntN(len(sim.Status))], true
	}
}

// ErrorBody is the default body of a simulated failure.
func ErrorBody(status int) map[string]any {
	text := http.StatusText(status)
	if text == "" {
		text = "Simulated error"
	}
	return map[string]any{
		"error":  text,
		"status": status,
	}
}
