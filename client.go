package structcache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"

	"github.com/structcache/structcache/internal/cache"
	"github.com/structcache/structcache/internal/config"
	"github.com/structcache/structcache/internal/metrics"
	"github.com/structcache/structcache/internal/observability"
	"github.com/structcache/structcache/internal/resilience"
	"github.com/structcache/structcache/pkg/errors"
	"github.com/structcache/structcache/pkg/invoker"
	"github.com/structcache/structcache/pkg/schema"
	"github.com/structcache/structcache/pkg/types"
)

// taskTTLs maps task types to cache lifetimes for successful results.
// Factual answers age slowly; code and creative output goes stale fast.
var taskTTLs = map[types.TaskType]time.Duration{
	types.TaskGeneral:  3600 * time.Second,
	types.TaskAnalysis: 7200 * time.Second,
	types.TaskCode:     1800 * time.Second,
	types.TaskCreative: 1800 * time.Second,
	types.TaskFactual:  86400 * time.Second,
	types.TaskSearch:   3600 * time.Second,
}

// streamTTLCap bounds the cache lifetime of results produced through the
// streaming surface.
const streamTTLCap = 1800 * time.Second

// Client is the main entry point for structcache. It orchestrates cache
// lookup, circuit gating, generation with retries, validation, and the
// cache write for every request.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	invoker   invoker.Invoker
	validator schema.Validator
	cache     *cache.ResponseCache
	keys      *cache.Generator
	gate      *resilience.Gate
	logger    *observability.Logger
	config    *ClientConfig

	maxRetries atomic.Int32

	confMgr    *config.Manager
	confCancel context.CancelFunc

	closeOnce sync.Once
}

// New creates a new structcache client with the given options.
//
// Example:
//
//	client, err := structcache.New(
//	    structcache.WithInvoker(myInvoker),
//	    structcache.WithRetry(2, time.Second),
//	    structcache.WithCacheTTL(time.Hour),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Invoker == nil {
		return nil, fmt.Errorf("an invoker is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = schema.NewValidator()
	}

	c := &Client{
		invoker:   cfg.Invoker,
		validator: cfg.Validator,
		logger:    observability.Wrap(cfg.Logger),
		config:    cfg,
	}
	c.maxRetries.Store(int32(cfg.MaxRetries))

	// Layer the config file over the option values when one is given.
	if cfg.ConfigFile != "" {
		mgr, err := config.NewManager(cfg.ConfigFile, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		c.confMgr = mgr
		c.applyFileConfig(mgr.Get())

		if cfg.WatchConfig {
			mgr.OnChange(func(fc *config.Config) {
				if fc.Orchestrator.MaxRetries != nil {
					c.maxRetries.Store(int32(*fc.Orchestrator.MaxRetries))
				}
			})
			watchCtx, cancel := context.WithCancel(context.Background())
			c.confCancel = cancel
			if err := mgr.Watch(watchCtx); err != nil {
				cancel()
				return nil, fmt.Errorf("watch config file: %w", err)
			}
		}
	}

	c.cache = cache.New(cfg.Cache, cfg.Logger)
	c.keys = cache.NewGenerator(cfg.KeyPrefix)
	c.gate = resilience.NewGate(cfg.Gate)
	c.gate.OnStateChange(func(target string, from, to resilience.State) {
		c.logger.Slog().Info("circuit state changed",
			"target", target,
			"from", from.String(),
			"to", to.String(),
		)
	})

	c.logger.Slog().Info("structcache client initialized",
		"invoker", cfg.Invoker.Name(),
		"max_retries", c.maxRetries.Load(),
		"cache_ttl", cfg.Cache.DefaultTTL,
	)

	return c, nil
}

// applyFileConfig folds file values into the in-memory config before the
// cache and gate are constructed.
func (c *Client) applyFileConfig(fc *config.Config) {
	c.config.Cache = fc.CacheConfig()
	c.config.Gate = fc.GateConfig()
	if fc.Orchestrator.MaxRetries != nil {
		c.maxRetries.Store(int32(*fc.Orchestrator.MaxRetries))
	}
}

// Generate produces a schema-conforming answer for the request, serving it
// from the cache when possible. On failure it returns a *GenerationError
// carrying the failure category, the attempt count, and the last raw output.
func (c *Client) Generate(ctx context.Context, req *types.Request) (*types.Result, error) {
	return c.generate(ctx, req, nil, 0)
}

// progressFn receives attempt-level progress notifications during
// generation. Used by the streaming surface; nil for plain Generate.
type progressFn func(stage string, attempt int)

func (c *Client) generate(ctx context.Context, req *types.Request, progress progressFn, ttlCap time.Duration) (*types.Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	// Reject unusable schemas before any attempt is spent on them.
	shape, err := req.Schema.ShapeJSON()
	if err != nil {
		return nil, err
	}

	ctx, _ = observability.GetOrCreateRequestID(ctx)
	logger := c.logger.WithRequestID(ctx)
	task := req.EffectiveTaskType()

	ctx, span := observability.StartRequestSpan(ctx, "structcache.Generate", string(task), req.ModelOrAuto())
	start := time.Now()

	result, genErr := c.doGenerate(ctx, req, shape, logger, progress, ttlCap)

	cacheHit := result != nil && result.Cached
	metrics.RequestLatency.WithLabelValues(string(task), strconv.FormatBool(cacheHit)).
		Observe(time.Since(start).Seconds())
	observability.EndSpan(span, genErr,
		attribute.Bool("structcache.cache_hit", cacheHit),
	)

	if genErr != nil {
		logger.Slog().Warn("generation failed",
			"category", string(errors.Classify(genErr)),
			"error", genErr,
		)
		return nil, genErr
	}
	return result, nil
}

func (c *Client) doGenerate(
	ctx context.Context,
	req *types.Request,
	shape []byte,
	logger *observability.Logger,
	progress progressFn,
	ttlCap time.Duration,
) (*types.Result, error) {
	key := c.keys.Key(req)
	cc := req.CacheControl
	task := req.EffectiveTaskType()
	notify := func(stage string, attempt int) {
		if progress != nil {
			progress(stage, attempt)
		}
	}

	notify("cache_check", 0)
	if cc == nil || !cc.NoCache {
		if result, ok := c.fromCache(key, req); ok {
			logger.Slog().Debug("cache hit", "key", key, "task_type", string(task))
			return result, nil
		}
	}

	target := c.target(req)
	if !c.gate.ShouldAttempt(target) {
		state := c.gate.State(target)
		return nil, errors.NewBreakerOpenError(c.invoker.Name(), req.ModelOrAuto(), state.String())
	}

	maxRetries := int(c.maxRetries.Load())
	if req.MaxRetries >= 0 {
		maxRetries = req.MaxRetries
	}
	maxAttempts := maxRetries + 1

	native := c.invoker.SupportsStructured(req.Model)
	var lastErr error
	attemptsMade := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.gate.BackoffDelay(attempt-2, c.config.MaxBackoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		path := "fallback"
		if native {
			path = "native"
		}
		notify("generating", attempt)
		attemptsMade = attempt
		metrics.GenerationAttempts.WithLabelValues(string(task), path).Inc()

		resp, err := c.invoker.Invoke(ctx, c.buildInvocation(req, shape, native, attempt))
		if err != nil {
			// Caller cancellation is not a target failure and must not
			// count toward tripping the breaker.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.gate.RecordFailure(target)

			category := errors.Classify(err)
			lastErr = err
			logger.Slog().Debug("invocation failed",
				"attempt", attempt,
				"category", string(category),
				"path", path,
				"error", err,
			)

			if native {
				// A native-path failure degrades the remaining attempts to
				// the prompt-based fallback path.
				native = false
			}
			if !errors.IsRetryable(category) {
				break
			}
			continue
		}

		notify("validating", attempt)
		raw := schema.ExtractJSON(resp.Text)
		value, verr := c.validator.ParseAndValidate([]byte(raw), req.Schema)
		if verr != nil {
			c.gate.RecordFailure(target)
			category := errors.Classify(verr)
			lastErr = c.wrapOutputError(verr, category, resp, raw)
			logger.Slog().Debug("output rejected",
				"attempt", attempt,
				"category", string(category),
			)
			// Both malformed and non-conforming output retry; the next
			// attempt carries a concrete example instead of the bare shape.
			continue
		}

		c.gate.RecordSuccess(target)

		canonical, err := json.Marshal(value)
		if err != nil {
			return nil, errors.NewUnknownError(resp.Provider, resp.Model, fmt.Sprintf("serialize result: %v", err))
		}

		if (cc == nil || !cc.NoStore) && ctx.Err() == nil {
			ttl := c.ttlFor(req)
			if ttlCap > 0 {
				// The cap is a ceiling, so a zero "use the cache default"
				// TTL must be resolved before comparing against it.
				if ttl <= 0 {
					ttl = c.config.Cache.DefaultTTL
				}
				if ttl <= 0 || ttl > ttlCap {
					ttl = ttlCap
				}
			}
			c.cache.Set(key, canonical, ttl)
		}

		return &types.Result{
			Value:    value,
			Raw:      canonical,
			Model:    resp.Model,
			Provider: resp.Provider,
			Attempts: attempt,
		}, nil
	}

	failure := c.asGenerationError(lastErr, req, attemptsMade)
	metrics.GenerationFailures.WithLabelValues(string(failure.Category)).Inc()
	return nil, failure
}

// fromCache attempts to serve the request from the cache, decoding the
// stored bytes into a fresh instance of the schema's type. A stored value
// that no longer decodes is dropped and treated as a miss.
func (c *Client) fromCache(key string, req *types.Request) (*types.Result, bool) {
	raw, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}

	instance, err := req.Schema.NewInstance()
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal(raw, instance); err != nil {
		c.logger.Slog().Warn("dropping undecodable cache entry", "key", key, "error", err)
		c.cache.Invalidate(key)
		return nil, false
	}

	return &types.Result{
		Value:  instance,
		Raw:    raw,
		Cached: true,
	}, true
}

// buildInvocation assembles the outbound request for one attempt. The first
// fallback attempt embeds the schema shape; later attempts embed a concrete
// filled-in example, which models follow more reliably after a rejection.
func (c *Client) buildInvocation(req *types.Request, shape []byte, native bool, attempt int) *invoker.Request {
	out := &invoker.Request{
		TaskType: string(req.EffectiveTaskType()),
		Model:    req.Model,
		Options:  req.ProviderOptions,
	}

	if native {
		out.Prompt = req.Prompt
		out.Structured = true
		out.SchemaJSON = shape
		return out
	}

	if attempt <= 1 {
		out.Prompt = fmt.Sprintf(
			"%s\n\nRespond with a single JSON object conforming to this JSON Schema, with no surrounding text:\n%s",
			req.Prompt, shape,
		)
		return out
	}

	if example, err := schema.ExampleJSON(req.Schema); err == nil {
		out.Prompt = fmt.Sprintf(
			"%s\n\nRespond with a single JSON object shaped exactly like this example, with no surrounding text:\n%s",
			req.Prompt, example,
		)
	} else {
		out.Prompt = fmt.Sprintf(
			"%s\n\nRespond with a single JSON object conforming to this JSON Schema, with no surrounding text:\n%s",
			req.Prompt, shape,
		)
	}
	return out
}

// target derives the circuit breaker bucket for the request.
func (c *Client) target(req *types.Request) string {
	return c.invoker.Name() + ":" + req.ModelOrAuto()
}

// ttlFor returns the cache TTL for a successful result: the per-request
// override when set, otherwise the task-type lifetime, otherwise zero so
// the cache default applies.
func (c *Client) ttlFor(req *types.Request) time.Duration {
	if cc := req.CacheControl; cc != nil && cc.TTL > 0 {
		return cc.TTL
	}
	if ttl, ok := taskTTLs[req.EffectiveTaskType()]; ok {
		return ttl
	}
	return 0
}

// wrapOutputError converts a validator rejection into a GenerationError
// carrying the raw output that was rejected.
func (c *Client) wrapOutputError(err error, category errors.Category, resp *invoker.Response, raw string) *errors.GenerationError {
	var gen *errors.GenerationError
	if category == errors.CategoryParsing {
		gen = errors.NewParsingError(resp.Provider, resp.Model, err.Error())
	} else {
		gen = errors.NewValidationError(resp.Provider, resp.Model, err.Error())
	}
	gen.RawOutput = raw
	return gen
}

// asGenerationError normalizes the terminal failure of the retry loop.
func (c *Client) asGenerationError(err error, req *types.Request, attempts int) *errors.GenerationError {
	if err == nil {
		err = fmt.Errorf("all attempts failed")
	}

	var gen *errors.GenerationError
	switch e := err.(type) {
	case *errors.GenerationError:
		gen = e
	default:
		category := errors.Classify(err)
		gen = &errors.GenerationError{
			Category:  category,
			Message:   err.Error(),
			Provider:  c.invoker.Name(),
			Model:     req.ModelOrAuto(),
			Retryable: errors.IsRetryable(category),
		}
	}
	gen.Attempts = attempts
	return gen
}

// CacheKey returns the cache key the client would use for the request,
// letting callers invalidate or inspect entries directly.
func (c *Client) CacheKey(req *types.Request) string {
	return c.keys.Key(req)
}

// Invalidate removes the cached result for the request, reporting whether
// an entry was present.
func (c *Client) Invalidate(req *types.Request) bool {
	return c.cache.Invalidate(c.keys.Key(req))
}

// Flush empties the response cache.
func (c *Client) Flush() {
	c.cache.Flush()
}

// CacheStats returns cache hit/miss/eviction counters.
func (c *Client) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// CacheSize returns cache occupancy against the configured limits.
func (c *Client) CacheSize() cache.SizeInfo {
	return c.cache.SizeInfo()
}

// CacheEntry returns metadata for the entry the request maps to, without
// refreshing its access time.
func (c *Client) CacheEntry(req *types.Request) (cache.EntryInfo, bool) {
	return c.cache.Info(c.keys.Key(req))
}

// Health reports the cache's derived health status.
func (c *Client) Health() cache.HealthReport {
	return c.cache.Health()
}

// GateState returns the circuit state for the given model (or the auto
// bucket when empty).
func (c *Client) GateState(model string) resilience.State {
	if model == "" {
		model = types.ModelAuto
	}
	return c.gate.State(c.invoker.Name() + ":" + model)
}

// Close releases all resources held by the client.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cache.Close()
		if c.confCancel != nil {
			c.confCancel()
		}
		if c.confMgr != nil {
			_ = c.confMgr.Close()
		}
		c.logger.Slog().Info("structcache client closed")
	})
	return nil
}
