package structcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structcache/structcache/internal/resilience"
	pkgerrors "github.com/structcache/structcache/pkg/errors"
)

type summary struct {
	Title  string   `json:"title"`
	Points []string `json:"points"`
}

const validSummary = `{"title":"Paris","points":["capital of France"]}`

func newTestClient(t *testing.T, stub *stubInvoker, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithInvoker(stub),
		WithRetry(0, time.Millisecond),
	}, opts...)
	client, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func summaryRequest() *Request {
	return &Request{
		Prompt:   "What is the capital of France?",
		Schema:   NewSchema("summary", new(summary)),
		TaskType: TaskFactual,
	}
}

func TestNew_RequiresInvoker(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoker")
}

func TestGenerate_CacheRoundTrip(t *testing.T) {
	stub := newStubInvoker(stubReply{text: validSummary})
	client := newTestClient(t, stub)
	req := summaryRequest()

	first, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, first.Attempts)
	assert.Equal(t, "stub", first.Provider)

	value, ok := first.Value.(*summary)
	require.True(t, ok)
	assert.Equal(t, "Paris", value.Title)

	// Factual results live a full day in the cache.
	info, ok := client.CacheEntry(req)
	require.True(t, ok)
	assert.Equal(t, 86400*time.Second, info.TTL)

	second, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 0, second.Attempts)
	assert.Equal(t, "Paris", second.Value.(*summary).Title)

	assert.Equal(t, 1, stub.callCount(), "second request must be served from cache")
}

func TestGenerate_TaskTypeTTLs(t *testing.T) {
	tests := []struct {
		task TaskType
		ttl  time.Duration
	}{
		{TaskGeneral, 3600 * time.Second},
		{TaskAnalysis, 7200 * time.Second},
		{TaskCode, 1800 * time.Second},
		{TaskCreative, 1800 * time.Second},
		{TaskFactual, 86400 * time.Second},
		{TaskSearch, 3600 * time.Second},
		{"", 3600 * time.Second}, // defaults to general
	}

	for _, tt := range tests {
		t.Run(string(tt.task), func(t *testing.T) {
			stub := newStubInvoker(stubReply{text: validSummary})
			client := newTestClient(t, stub)
			req := summaryRequest()
			req.TaskType = tt.task

			_, err := client.Generate(context.Background(), req)
			require.NoError(t, err)

			info, ok := client.CacheEntry(req)
			require.True(t, ok)
			assert.Equal(t, tt.ttl, info.TTL)
		})
	}
}

func TestGenerate_TTLOverride(t *testing.T) {
	stub := newStubInvoker(stubReply{text: validSummary})
	client := newTestClient(t, stub)
	req := summaryRequest()
	req.CacheControl = &CacheControl{TTL: 5 * time.Minute}

	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	info, ok := client.CacheEntry(req)
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, info.TTL)
}

func TestGenerate_CacheControl(t *testing.T) {
	t.Run("no-store skips the cache write", func(t *testing.T) {
		stub := newStubInvoker(stubReply{text: validSummary})
		client := newTestClient(t, stub)
		req := summaryRequest()
		req.CacheControl = &CacheControl{NoStore: true}

		_, err := client.Generate(context.Background(), req)
		require.NoError(t, err)

		_, ok := client.CacheEntry(req)
		assert.False(t, ok)
	})

	t.Run("no-cache forces a fresh generation", func(t *testing.T) {
		stub := newStubInvoker(stubReply{text: validSummary})
		client := newTestClient(t, stub)
		req := summaryRequest()

		_, err := client.Generate(context.Background(), req)
		require.NoError(t, err)

		req.CacheControl = &CacheControl{NoCache: true}
		res, err := client.Generate(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.Cached)
		assert.Equal(t, 2, stub.callCount())
	})
}

func TestGenerate_BreakerOpens(t *testing.T) {
	stub := newStubInvoker(stubReply{err: fmt.Errorf("request timed out")})
	client := newTestClient(t, stub, WithGateConfig(resilience.Config{
		MaxFailures:  3,
		ResetTimeout: time.Hour,
		BaseDelay:    time.Millisecond,
	}))
	req := summaryRequest()

	for i := 0; i < 3; i++ {
		_, err := client.Generate(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, CategoryTimeout, pkgerrors.Classify(err))
	}

	assert.Equal(t, resilience.StateOpen, client.GateState(""))

	// The open circuit refuses the next request without spending attempts.
	_, err := client.Generate(context.Background(), req)
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, CategoryBreakerOpen, genErr.Category)
	assert.Equal(t, 0, genErr.Attempts)
	assert.Equal(t, 3, stub.callCount())
}

func TestGenerate_BreakerRecovers(t *testing.T) {
	stub := newStubInvoker(
		stubReply{err: fmt.Errorf("request timed out")},
		stubReply{err: fmt.Errorf("request timed out")},
		stubReply{text: validSummary},
	)
	client := newTestClient(t, stub, WithGateConfig(resilience.Config{
		MaxFailures:  2,
		ResetTimeout: 20 * time.Millisecond,
		BaseDelay:    time.Millisecond,
	}))
	req := summaryRequest()

	for i := 0; i < 2; i++ {
		_, err := client.Generate(context.Background(), req)
		require.Error(t, err)
	}
	require.Equal(t, resilience.StateOpen, client.GateState(""))

	time.Sleep(30 * time.Millisecond)

	// The elapsed reset timeout admits a probe; its success closes the
	// circuit again.
	res, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, resilience.StateClosed, client.GateState(""))
}

func TestGenerate_ExampleEnhancementRecovers(t *testing.T) {
	stub := newStubInvoker(
		stubReply{text: "Sure, here you go: ```json\n{broken"},
		stubReply{text: "```json\n" + validSummary + "\n```"},
	)
	client := newTestClient(t, stub)
	req := summaryRequest()
	req.MaxRetries = 1

	res, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "Paris", res.Value.(*summary).Title)

	// First attempt embeds the schema shape, the retry a concrete example.
	require.Equal(t, 2, stub.callCount())
	assert.Contains(t, stub.call(0).Prompt, "JSON Schema")
	assert.Contains(t, stub.call(1).Prompt, "example")

	// The recovered result is cached.
	_, ok := client.CacheEntry(req)
	assert.True(t, ok)
	assert.Equal(t, resilience.StateClosed, client.GateState(""))
}

func TestGenerate_ValidationFailureRetries(t *testing.T) {
	stub := newStubInvoker(
		stubReply{text: `{"points":["missing title"]}`},
		stubReply{text: validSummary},
	)
	client := newTestClient(t, stub)
	req := summaryRequest()
	req.MaxRetries = 1

	res, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestGenerate_ValidationFailureTerminal(t *testing.T) {
	stub := newStubInvoker(stubReply{text: `{"points":[]}`})
	client := newTestClient(t, stub)
	req := summaryRequest()
	req.MaxRetries = 1

	_, err := client.Generate(context.Background(), req)
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, CategoryValidation, genErr.Category)
	assert.Equal(t, 2, genErr.Attempts)
	assert.Equal(t, `{"points":[]}`, genErr.RawOutput)
}

func TestGenerate_UnknownErrorIsTerminal(t *testing.T) {
	stub := newStubInvoker(stubReply{err: fmt.Errorf("something exploded")})
	client := newTestClient(t, stub)
	req := summaryRequest()
	req.MaxRetries = 3

	_, err := client.Generate(context.Background(), req)
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, CategoryUnknown, genErr.Category)
	assert.Equal(t, 1, genErr.Attempts, "unknown failures must not be retried")
	assert.Equal(t, 1, stub.callCount())
}

func TestGenerate_NativePathFallsBack(t *testing.T) {
	stub := newStubInvoker(
		stubReply{err: fmt.Errorf("connection reset by peer")},
		stubReply{text: validSummary},
	)
	stub.structured = map[string]bool{"gpt-test": true}

	client := newTestClient(t, stub)
	req := summaryRequest()
	req.Model = "gpt-test"
	req.MaxRetries = 1

	res, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)

	require.Equal(t, 2, stub.callCount())
	assert.True(t, stub.call(0).Structured)
	assert.NotEmpty(t, stub.call(0).SchemaJSON)
	assert.False(t, stub.call(1).Structured, "transport failure degrades to the prompt path")
	assert.Contains(t, stub.call(1).Prompt, "example")
}

func TestGenerate_ContextCancellation(t *testing.T) {
	stub := newStubInvoker()
	stub.blocking = true
	client := newTestClient(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Generate(ctx, summaryRequest())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Generate did not return after cancellation")
	}
}

func TestGenerate_CancellationDoesNotTripBreaker(t *testing.T) {
	stub := newStubInvoker(stubReply{text: validSummary})
	stub.blocking = true
	client := newTestClient(t, stub, WithGateConfig(resilience.Config{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
		BaseDelay:    time.Millisecond,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Generate(ctx, summaryRequest())
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return stub.callCount() == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Generate did not return after cancellation")
	}

	// With a single-failure threshold the circuit would now be open if the
	// cancellation had been recorded against the target.
	assert.Equal(t, resilience.StateClosed, client.GateState(""))

	stub.setBlocking(false)
	res, err := client.Generate(context.Background(), summaryRequest())
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestGenerate_InvalidSchema(t *testing.T) {
	stub := newStubInvoker(stubReply{text: validSummary})
	client := newTestClient(t, stub)
	req := summaryRequest()
	req.Schema = Schema{Name: "bad", Prototype: 42}

	_, err := client.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pointer to a struct")
	assert.Equal(t, 0, stub.callCount())
}

func TestClient_InvalidateAndFlush(t *testing.T) {
	stub := newStubInvoker(stubReply{text: validSummary})
	client := newTestClient(t, stub)
	req := summaryRequest()

	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, client.Invalidate(req))
	assert.False(t, client.Invalidate(req))

	_, err = client.Generate(context.Background(), req)
	require.NoError(t, err)
	client.Flush()
	_, ok := client.CacheEntry(req)
	assert.False(t, ok)
}

func TestClient_ConfigFileLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "structcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"cache:\n  default_ttl_seconds: 60\norchestrator:\n  max_retries: 0\n",
	), 0o600))

	stub := newStubInvoker(stubReply{text: "not json at all"})
	client := newTestClient(t, stub,
		WithRetry(3, time.Millisecond),
		WithConfigFile(path),
	)

	// The file's retry budget wins over the option value.
	req := summaryRequest()
	req.MaxRetries = -1

	_, err := client.Generate(context.Background(), req)
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, 1, genErr.Attempts)
	assert.Equal(t, 1, stub.callCount())
}

func TestClient_CacheKeyStable(t *testing.T) {
	stub := newStubInvoker(stubReply{text: validSummary})
	client := newTestClient(t, stub, WithKeyPrefix("sc"))

	key := client.CacheKey(summaryRequest())
	assert.Equal(t, key, client.CacheKey(summaryRequest()))
	assert.Contains(t, key, "sc:")
}
