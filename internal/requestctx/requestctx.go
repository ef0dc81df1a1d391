// Package requestctx carries the request id from the HTTP edge into audit entries and background jobs.
package requestctx

import "context"

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey{}).(string); ok {
		return value
	}
	return ""
}

// Carry copies the request id of origin onto ctx, for work that outlives the request.
func Carry(ctx, origin context.Context) context.Context {
	if id := RequestID(origin); id != "" {
		return WithRequestID(ctx, id)
	}
	return ctx
}
