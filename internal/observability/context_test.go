package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestContextIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextIDFromContext(ctx))

	ctx = WithContextID(ctx, "event-42")
	assert.Equal(t, "event-42", ContextIDFromContext(ctx))
}
