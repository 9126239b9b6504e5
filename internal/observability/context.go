package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	contextIDKey contextKey = "context_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithContextID adds an external context identifier to the context.
func WithContextID(ctx context.Context, contextID string) context.Context {
	return context.WithValue(ctx, contextIDKey, contextID)
}

// ContextIDFromContext retrieves the external context identifier from context.
// Returns empty string if not present.
func ContextIDFromContext(ctx context.Context) string {
	if v := ctx.Value(contextIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
