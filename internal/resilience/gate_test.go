package resilience

import (
	"sync"
	"testing"
	"time"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGate_ClosedAllowsAttempts(t *testing.T) {
	g := NewGate(DefaultConfig())

	for i := 0; i < 10; i++ {
		if !g.ShouldAttempt("openai:gpt-4o") {
			t.Error("should allow attempts while closed")
		}
		g.RecordSuccess("openai:gpt-4o")
	}

	if g.State("openai:gpt-4o") != StateClosed {
		t.Errorf("State() = %v, want StateClosed", g.State("openai:gpt-4o"))
	}
}

func TestGate_OpensAfterMaxFailures(t *testing.T) {
	g := NewGate(Config{MaxFailures: 3, ResetTimeout: time.Minute, BaseDelay: time.Millisecond})

	for i := 0; i < 3; i++ {
		g.RecordFailure("t1")
	}

	if g.State("t1") != StateOpen {
		t.Fatalf("State() = %v, want StateOpen", g.State("t1"))
	}
	if g.ShouldAttempt("t1") {
		t.Error("should refuse attempts while open")
	}
}

func TestGate_TargetsAreIndependent(t *testing.T) {
	g := NewGate(Config{MaxFailures: 2, ResetTimeout: time.Minute, BaseDelay: time.Millisecond})

	g.RecordFailure("bad")
	g.RecordFailure("bad")

	if g.ShouldAttempt("bad") {
		t.Error("tripped target should refuse attempts")
	}
	if !g.ShouldAttempt("good") {
		t.Error("untouched target should allow attempts")
	}
}

func TestGate_HalfOpenAfterResetTimeout(t *testing.T) {
	g := NewGate(Config{MaxFailures: 1, ResetTimeout: 50 * time.Millisecond, BaseDelay: time.Millisecond})

	g.RecordFailure("t1")
	if g.ShouldAttempt("t1") {
		t.Fatal("should refuse immediately after opening")
	}

	time.Sleep(60 * time.Millisecond)

	if !g.ShouldAttempt("t1") {
		t.Fatal("should allow a probe after the reset timeout")
	}
	if g.State("t1") != StateHalfOpen {
		t.Errorf("State() = %v, want StateHalfOpen", g.State("t1"))
	}
}

func TestGate_SuccessClosesAndResets(t *testing.T) {
	g := NewGate(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, BaseDelay: time.Millisecond})

	g.RecordFailure("t1")
	time.Sleep(20 * time.Millisecond)
	g.ShouldAttempt("t1") // open -> half-open
	g.RecordSuccess("t1")

	if g.State("t1") != StateClosed {
		t.Errorf("State() = %v, want StateClosed", g.State("t1"))
	}
	if g.Failures("t1") != 0 {
		t.Errorf("Failures() = %d, want 0", g.Failures("t1"))
	}
}

func TestGate_HalfOpenFailureReopens(t *testing.T) {
	g := NewGate(Config{MaxFailures: 3, ResetTimeout: 10 * time.Millisecond, BaseDelay: time.Millisecond})

	for i := 0; i < 3; i++ {
		g.RecordFailure("t1")
	}
	time.Sleep(20 * time.Millisecond)
	if !g.ShouldAttempt("t1") {
		t.Fatal("probe should be admitted")
	}

	g.RecordFailure("t1")
	if g.State("t1") != StateOpen {
		t.Errorf("State() = %v, want StateOpen after half-open failure", g.State("t1"))
	}
}

func TestGate_EmptyTargetUsesDefaultBucket(t *testing.T) {
	g := NewGate(Config{MaxFailures: 1, ResetTimeout: time.Minute, BaseDelay: time.Millisecond})

	g.RecordFailure("")
	if g.ShouldAttempt("") {
		t.Error("default bucket should trip like any other target")
	}
	if g.State(DefaultTarget) != StateOpen {
		t.Errorf("State(DefaultTarget) = %v, want StateOpen", g.State(DefaultTarget))
	}
}

func TestGate_BackoffDelay(t *testing.T) {
	g := NewGate(Config{MaxFailures: 5, ResetTimeout: time.Minute, BaseDelay: 100 * time.Millisecond})

	tests := []struct {
		attempt int
		max     time.Duration
		want    time.Duration
	}{
		{0, 10 * time.Second, 100 * time.Millisecond},
		{1, 10 * time.Second, 200 * time.Millisecond},
		{2, 10 * time.Second, 400 * time.Millisecond},
		{3, 10 * time.Second, 800 * time.Millisecond},
		{10, time.Second, time.Second},
		{-1, 10 * time.Second, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := g.BackoffDelay(tt.attempt, tt.max); got != tt.want {
			t.Errorf("BackoffDelay(%d, %v) = %v, want %v", tt.attempt, tt.max, got, tt.want)
		}
	}
}

func TestGate_OnStateChange(t *testing.T) {
	g := NewGate(Config{MaxFailures: 1, ResetTimeout: time.Minute, BaseDelay: time.Millisecond})

	var mu sync.Mutex
	var transitions []State
	done := make(chan struct{})
	g.OnStateChange(func(name string, from, to State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
		close(done)
	})

	g.RecordFailure("t1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("state change callback not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("transitions = %v, want [StateOpen]", transitions)
	}
}

func TestGate_ConcurrentRecording(t *testing.T) {
	g := NewGate(Config{MaxFailures: 1000, ResetTimeout: time.Minute, BaseDelay: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g.RecordFailure("shared")
				g.ShouldAttempt("shared")
			}
		}()
	}
	wg.Wait()

	if got := g.Failures("shared"); got != 500 {
		t.Errorf("Failures() = %d, want 500", got)
	}
}
