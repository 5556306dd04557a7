// Package resilience provides the per-target circuit breaker gate and the
// retry backoff schedule for generation attempts.
package resilience

import (
	"sync"
	"time"

	"github.com/structcache/structcache/internal/metrics"
)

// State represents the current state of one target's circuit.
type State int

const (
	// StateClosed allows attempts normally.
	StateClosed State = iota
	// StateOpen refuses attempts until the reset timeout elapses.
	StateOpen
	// StateHalfOpen allows a probe attempt after the reset timeout.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// DefaultTarget is the bucket used when no model/provider pair is known yet.
const DefaultTarget = "default"

// Config contains gate configuration.
type Config struct {
	// MaxFailures is the consecutive failure count that opens a circuit.
	MaxFailures int `yaml:"max_failures"`
	// ResetTimeout is how long a circuit stays open before a probe attempt
	// is allowed (open to half-open).
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	// BaseDelay is the first step of the exponential backoff schedule.
	BaseDelay time.Duration `yaml:"base_delay"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailures:  5,
		ResetTimeout: 60 * time.Second,
		BaseDelay:    time.Second,
	}
}

// target holds one circuit's state. Mutated only under the gate mutex.
type target struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Gate tracks failure state per target (model+provider pair). Targets are
// created lazily on first observed outcome and never removed; the table is
// bounded by the number of distinct targets seen.
type Gate struct {
	mu      sync.Mutex
	targets map[string]*target
	cfg     Config

	onStateChange func(target string, from, to State)
}

// NewGate creates a gate with the given config.
func NewGate(cfg Config) *Gate {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultConfig().MaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	return &Gate{
		targets: make(map[string]*target),
		cfg:     cfg,
	}
}

// OnStateChange sets a callback invoked after a state transition. The
// callback runs on its own goroutine so it cannot deadlock the gate.
func (g *Gate) OnStateChange(fn func(target string, from, to State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStateChange = fn
}

func (g *Gate) lookupLocked(name string) *target {
	if name == "" {
		name = DefaultTarget
	}
	t, ok := g.targets[name]
	if !ok {
		t = &target{state: StateClosed}
		g.targets[name] = t
	}
	return t
}

// ShouldAttempt reports whether a generation attempt may proceed for the
// target. An open circuit whose reset timeout has elapsed transitions to
// half-open as a side effect and admits the probe.
func (g *Gate) ShouldAttempt(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.lookupLocked(name)
	switch t.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(t.lastFailure) >= g.cfg.ResetTimeout {
			g.transitionLocked(name, t, StateHalfOpen)
			return true
		}
		metrics.BreakerRejections.WithLabelValues(g.canonical(name)).Inc()
		return false
	default:
		return false
	}
}

// RecordSuccess resets the target's failure count and closes its circuit.
func (g *Gate) RecordSuccess(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.lookupLocked(name)
	t.failures = 0
	if t.state != StateClosed {
		g.transitionLocked(name, t, StateClosed)
	}
}

// RecordFailure increments the failure count and stamps the failure time,
// opening the circuit once the threshold is reached. A failure observed in
// half-open state reopens immediately.
func (g *Gate) RecordFailure(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.lookupLocked(name)
	t.failures++
	t.lastFailure = time.Now()

	if t.state == StateHalfOpen || t.failures >= g.cfg.MaxFailures {
		if t.state != StateOpen {
			g.transitionLocked(name, t, StateOpen)
		}
	}
}

// State returns the target's current circuit state.
func (g *Gate) State(name string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookupLocked(name).state
}

// Failures returns the target's current consecutive failure count.
func (g *Gate) Failures(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookupLocked(name).failures
}

// BackoffDelay returns the retry delay for a zero-based attempt index:
// base * 2^attempt, capped at max when max is positive.
func (g *Gate) BackoffDelay(attempt int, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := g.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

func (g *Gate) transitionLocked(name string, t *target, to State) {
	from := t.state
	if from == to {
		return
	}
	t.state = to
	metrics.BreakerTransitions.WithLabelValues(g.canonical(name), to.String()).Inc()
	if g.onStateChange != nil {
		go g.onStateChange(g.canonical(name), from, to)
	}
}

func (g *Gate) canonical(name string) string {
	if name == "" {
		return DefaultTarget
	}
	return name
}
