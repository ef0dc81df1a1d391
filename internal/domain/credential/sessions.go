package credential

import (
	"time"

	"hrassist/internal/domain/auth"
	"hrassist/internal/domain/identity"
)

// Sessions mints and parses HS256 bearer tokens carrying {sub, role}.
type Sessions struct {
	secret string
	ttl    time.Duration
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Sessions{secret: secret, ttl: ttl}
}

func (s *Sessions) Mint(ident identity.Identity) (string, time.Time, error) {
	return auth.GenerateToken(s.secret, ident.ID, string(ident.Role), s.ttl)
}

func (s *Sessions) Parse(token string) (identity.Caller, error) {
	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		return identity.Caller{}, err
	}
	role, err := identity.ParseRole(claims.Role)
	if err != nil {
		return identity.Caller{}, err
	}
	return identity.Caller{ID: claims.Subject, Role: role}, nil
}
