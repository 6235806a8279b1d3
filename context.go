package authsession

import (
	"context"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}

// WithRequestID attaches the X-Request-ID the client sends for requests made
// with ctx. Without one every logical request gets a fresh UUID; a replay
// after renewal reuses the id of the rejected attempt.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return uuid.NewString()
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	if id == "" {
		return uuid.NewString()
	}
	return id
}
