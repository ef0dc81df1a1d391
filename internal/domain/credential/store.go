package credential

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/identity"
	"hrassist/internal/platform/querier"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Replace(ctx context.Context, ch Challenge, entry audit.Entry) error {
	return querier.RunInTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
      INSERT INTO otp_challenges (identity_key, role, code_hash, issued_at, expires_at, consumed, consumed_at)
      VALUES ($1,$2,$3,$4,$5,false,NULL)
      ON CONFLICT (identity_key) DO UPDATE
        SET role = EXCLUDED.role,
            code_hash = EXCLUDED.code_hash,
            issued_at = EXCLUDED.issued_at,
            expires_at = EXCLUDED.expires_at,
            consumed = false,
            consumed_at = NULL
    `, ch.IdentityKey, string(ch.Role), ch.CodeHash, ch.IssuedAt, ch.ExpiresAt); err != nil {
			return err
		}
		_, err := audit.Insert(ctx, tx, entry)
		return err
	})
}

func (s *Store) Consume(ctx context.Context, identityKey string, check CheckFunc, entry audit.Entry) error {
	return querier.RunInTx(ctx, s.DB, func(tx pgx.Tx) error {
		var ch Challenge
		var role string
		err := tx.QueryRow(ctx, `
      SELECT identity_key, role, code_hash, issued_at, expires_at, consumed
      FROM otp_challenges
      WHERE identity_key = $1
      FOR UPDATE
    `, identityKey).Scan(&ch.IdentityKey, &role, &ch.CodeHash, &ch.IssuedAt, &ch.ExpiresAt, &ch.Consumed)
		found := true
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
		} else if err != nil {
			return err
		}
		ch.Role = identity.Role(role)
		if err := check(ch, found); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
      UPDATE otp_challenges SET consumed = true, consumed_at = now()
      WHERE identity_key = $1
    `, identityKey); err != nil {
			return err
		}
		_, err = audit.Insert(ctx, tx, entry)
		return err
	})
}

func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1 OR consumed`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
