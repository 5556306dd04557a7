// Package types defines the request and result types shared between the
// orchestrator and its callers.
package types

import (
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/structcache/structcache/pkg/schema"
)

// TaskType tags a request with the kind of work being asked of the model.
// It drives the cache TTL chosen for successful results.
type TaskType string

const (
	TaskGeneral  TaskType = "general"
	TaskAnalysis TaskType = "analysis"
	TaskCode     TaskType = "code"
	TaskCreative TaskType = "creative"
	TaskFactual  TaskType = "factual"
	TaskSearch   TaskType = "search"
)

// ModelAuto is the sentinel used in cache keys when no explicit model is set.
const ModelAuto = "auto"

// CacheControl customizes cache behavior for a single request.
type CacheControl struct {
	// TTL overrides the task-type TTL when positive.
	TTL time.Duration `json:"ttl,omitempty"`
	// NoCache skips the cache read (forces a fresh generation).
	NoCache bool `json:"no-cache,omitempty"`
	// NoStore skips the cache write.
	NoStore bool `json:"no-store,omitempty"`
}

// Request describes one validated-generation request. It is immutable once
// constructed; the orchestrator never mutates it.
type Request struct {
	// Prompt is the caller's prompt text.
	Prompt string

	// Schema is the target shape the answer must conform to.
	Schema schema.Schema

	// TaskType selects the default cache TTL. Empty means general.
	TaskType TaskType

	// Model is an explicit model identifier, or empty for auto-selection.
	Model string

	// ProviderOptions is an opaque key-value bag forwarded to the invoker.
	// It participates in cache-key generation via a canonical serialization
	// but is never used for typed dispatch.
	ProviderOptions map[string]any

	// MaxRetries bounds the retry loop for this request. Negative means use
	// the client default.
	MaxRetries int

	// CacheControl optionally customizes caching for this request.
	CacheControl *CacheControl
}

// NormalizedPrompt returns the prompt with whitespace collapsed and case
// folded, the form that participates in the cache key.
func (r *Request) NormalizedPrompt() string {
	return strings.ToLower(strings.Join(strings.Fields(r.Prompt), " "))
}

// EffectiveTaskType returns the task type, defaulting to general.
func (r *Request) EffectiveTaskType() TaskType {
	if r.TaskType == "" {
		return TaskGeneral
	}
	return r.TaskType
}

// ModelOrAuto returns the explicit model or the auto sentinel.
func (r *Request) ModelOrAuto() string {
	if r.Model == "" {
		return ModelAuto
	}
	return r.Model
}

// CanonicalOptions serializes the provider-options bag deterministically:
// keys sorted, values JSON-encoded. Used for key generation and logging
// only. Values that fail to serialize fall back to their Go string form so
// key generation cannot fail.
func (r *Request) CanonicalOptions() string {
	if len(r.ProviderOptions) == 0 {
		return ""
	}

	keys := make([]string, 0, len(r.ProviderOptions))
	for k := range r.ProviderOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		if data, err := json.Marshal(r.ProviderOptions[k]); err == nil {
			sb.Write(data)
		} else {
			sb.WriteString("?")
		}
	}
	return sb.String()
}
