package credential

import (
	"context"
	"time"

	"hrassist/internal/domain/audit"
)

// CheckFunc inspects the locked challenge; found is false when none exists.
// A non-nil error aborts the consume without writing.
type CheckFunc func(ch Challenge, found bool) error

type StoreAPI interface {
	// Replace stores ch as the identity's only challenge and appends entry in the same commit.
	Replace(ctx context.Context, ch Challenge, entry audit.Entry) error
	// Consume locks the identity's challenge, runs check, then marks it consumed and appends entry.
	Consume(ctx context.Context, identityKey string, check CheckFunc, entry audit.Entry) error
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
