package db

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hrassist/internal/domain/identity"
	"hrassist/internal/platform/config"
)

// Seeder is satisfied by identity.Store and identity.MemoryStore.
type Seeder interface {
	Ensure(ctx context.Context, ident identity.Identity) error
}

// Seed creates the shared HR administrator identity if it does not exist yet.
func Seed(ctx context.Context, store Seeder, cfg config.Config) error {
	key := strings.TrimSpace(cfg.AdminIdentityKey)
	if key == "" {
		return nil
	}
	admin := identity.Identity{
		ID:         key,
		Role:       identity.RoleAdmin,
		Name:       cfg.AdminName,
		Email:      cfg.AdminEmail,
		Department: "Human Resources",
	}
	if err := admin.Validate(); err != nil {
		return err
	}
	if err := store.Ensure(ctx, admin); err != nil {
		return fmt.Errorf("seed admin identity: %w", err)
	}
	zap.L().Info("admin identity ensured", zap.String("identityKey", key))
	return nil
}
