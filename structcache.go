// Package structcache caches and hardens schema-conforming model output.
// It sits between an application and a model-invocation service, adding a
// validated-response cache, a per-target circuit breaker, retries with
// prompt enhancement, and typed failures.
//
// Basic usage:
//
//	client, err := structcache.New(
//	    structcache.WithInvoker(myInvoker),
//	    structcache.WithRetry(2, time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	result, err := client.Generate(ctx, &structcache.Request{
//	    Prompt:   "Summarize the quarterly report",
//	    Schema:   structcache.NewSchema("Summary", new(Summary)),
//	    TaskType: structcache.TaskAnalysis,
//	})
package structcache

import (
	"github.com/structcache/structcache/pkg/errors"
	"github.com/structcache/structcache/pkg/schema"
	"github.com/structcache/structcache/pkg/types"
)

// Version is the current version of structcache.
const Version = "1.0.0"

// Re-export core request/result types for convenience.
// Users can use structcache.Request instead of types.Request.
type (
	// Request describes one validated-generation request.
	Request = types.Request

	// Result is the typed outcome of a successful request.
	Result = types.Result

	// TaskType tags a request with the kind of work being asked.
	TaskType = types.TaskType

	// CacheControl customizes cache behavior for a single request.
	CacheControl = types.CacheControl
)

// Re-export schema types.
type (
	// Schema describes the shape a generated answer must conform to.
	Schema = schema.Schema

	// Validator parses and validates raw model output.
	Validator = schema.Validator
)

// Re-export error types.
type (
	// GenerationError is the typed failure returned by Generate.
	GenerationError = errors.GenerationError

	// Category classifies a generation failure.
	Category = errors.Category
)

// Re-export task type constants.
const (
	TaskGeneral  = types.TaskGeneral
	TaskAnalysis = types.TaskAnalysis
	TaskCode     = types.TaskCode
	TaskCreative = types.TaskCreative
	TaskFactual  = types.TaskFactual
	TaskSearch   = types.TaskSearch
)

// Re-export failure category constants.
const (
	CategoryRateLimit   = errors.CategoryRateLimit
	CategoryTimeout     = errors.CategoryTimeout
	CategoryValidation  = errors.CategoryValidation
	CategoryParsing     = errors.CategoryParsing
	CategoryUnknown     = errors.CategoryUnknown
	CategoryBreakerOpen = errors.CategoryBreakerOpen
)

// NewSchema builds a schema descriptor from a display name and a pointer to
// the target struct type.
var NewSchema = schema.New
