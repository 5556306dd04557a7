package observability

import (
	"context"

	"github.com/google/uuid"
)

// requestIDKey is the context key for request IDs.
type requestIDKey struct{}

// GenerateRequestID generates a new unique request ID.
func GenerateRequestID() string {
	return uuid.NewString()
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetOrCreateRequestID gets the existing request ID or creates a new one.
func GetOrCreateRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := GenerateRequestID()
	return ContextWithRequestID(ctx, id), id
}
