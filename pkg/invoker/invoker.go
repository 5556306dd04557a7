// Package invoker defines the model-invocation collaborator boundary. The
// orchestrator treats the invoker as a single opaque call: it hands over a
// prompt and hints, and receives raw text or an error. Provider routing,
// transport, and credentials live behind this interface and are out of
// scope for this module.
package invoker

import "context"

// Request is the outbound payload for one generation attempt.
type Request struct {
	// Prompt is the full prompt text, including any schema or example
	// enhancement applied by the orchestrator.
	Prompt string

	// TaskType is the caller's task-type tag, passed through as a hint.
	TaskType string

	// Model is the explicit model identifier, or empty for auto-selection.
	Model string

	// Options is the opaque provider-options bag, passed through untouched.
	Options map[string]any

	// Structured asks the invoker to emit schema-shaped output natively.
	// SchemaJSON carries the serialized target schema when Structured is set.
	Structured bool
	SchemaJSON []byte
}

// Response is the result of a successful invocation.
type Response struct {
	// Text is the raw model output.
	Text string

	// Model and Provider identify the deployment that actually served the
	// request; they feed the resilience gate's target key.
	Model    string
	Provider string
}

// Invoker is implemented by the model-invocation service.
type Invoker interface {
	// Invoke performs one generation call. A non-nil error covers any
	// non-success status; the orchestrator classifies it.
	Invoke(ctx context.Context, req *Request) (*Response, error)

	// SupportsStructured reports whether the given model can emit
	// schema-shaped output natively, enabling the native structured path.
	SupportsStructured(model string) bool

	// Name identifies the provider for gate targeting and logs.
	Name() string
}
