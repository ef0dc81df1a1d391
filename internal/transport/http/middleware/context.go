package middleware

import (
	"context"

	"hrassist/internal/domain/identity"
	"hrassist/internal/requestctx"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// WithUser stores the authenticated caller on ctx.
func WithUser(ctx context.Context, caller identity.Caller) context.Context {
	return context.WithValue(ctx, ctxKeyUser, caller)
}

func GetUser(ctx context.Context) (identity.Caller, bool) {
	caller, ok := ctx.Value(ctxKeyUser).(identity.Caller)
	return caller, ok
}

func GetRequestID(ctx context.Context) string {
	return requestctx.RequestID(ctx)
}
