package identity

import (
	"context"

	"hrassist/internal/domain/audit"
)

type Reader interface {
	Get(ctx context.Context, id string) (Identity, error)
}

type StoreAPI interface {
	Reader
	List(ctx context.Context, limit, offset int) ([]Identity, error)
	// Import upserts rows and appends entry in the same commit.
	Import(ctx context.Context, rows []Identity, entry audit.Entry) (int, error)
	Ensure(ctx context.Context, ident Identity) error
}
