package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"go.uber.org/zap"

	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/auth"
	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/notifications"
	"hrassist/internal/platform/email"
	"hrassist/internal/platform/keylock"
	"hrassist/internal/platform/metrics"
)

type GateOptions struct {
	TTL    time.Duration
	Mailer notifications.Mailer
	From   string
	// ExposeCode returns the plain code to the caller; only for simulated email delivery.
	ExposeCode bool
	Metrics    *metrics.Collector
}

// Gate issues and verifies single-use codes. Each identity has at most one live challenge.
type Gate struct {
	store      StoreAPI
	identities identity.Reader
	locks      *keylock.Map
	opts       GateOptions
	now        func() time.Time
}

func NewGate(store StoreAPI, identities identity.Reader, opts GateOptions) *Gate {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Gate{store: store, identities: identities, locks: keylock.New(), opts: opts, now: time.Now}
}

func (g *Gate) Issue(ctx context.Context, identityKey string, role identity.Role) (IssueResult, error) {
	ident, err := g.lookup(ctx, identityKey, role)
	if err != nil {
		return IssueResult{}, err
	}

	unlock := g.locks.Lock(identityKey)
	defer unlock()

	now := g.now().UTC()
	code, err := generateCode(identityKey, now)
	if err != nil {
		return IssueResult{}, err
	}
	hash, err := auth.HashCode(code)
	if err != nil {
		return IssueResult{}, err
	}
	ch := Challenge{
		IdentityKey: identityKey,
		Role:        role,
		CodeHash:    hash,
		IssuedAt:    now,
		ExpiresAt:   now.Add(g.opts.TTL),
	}
	entry := audit.NewEntry(ctx, identityKey, audit.ActionLogin, "identity:"+identityKey, map[string]any{"role": string(role)})
	if err := g.store.Replace(ctx, ch, entry); err != nil {
		return IssueResult{}, err
	}

	result := IssueResult{ExpiresAt: ch.ExpiresAt, Destination: email.MaskAddress(ident.Email)}
	if g.opts.ExposeCode {
		result.DevCode = code
	}
	if g.opts.Mailer != nil && ident.Email != "" {
		body := fmt.Sprintf("Your HR assistant access code is %s. It expires in %d minutes.", code, int(g.opts.TTL.Minutes()))
		if err := g.opts.Mailer.Send(ctx, g.opts.From, ident.Email, "Your access code", body); err != nil {
			zap.L().Warn("otp email send failed", zap.String("identity", identityKey), zap.Error(err))
		}
	}
	zap.L().Info("otp issued", zap.String("identity", identityKey), zap.String("role", string(role)))
	return result, nil
}

// Verify consumes the identity's challenge when code matches. The checks run under the
// per-identity lock and the store's row lock, so one code verifies at most once.
func (g *Gate) Verify(ctx context.Context, identityKey string, role identity.Role, code string) (identity.Identity, error) {
	unlock := g.locks.Lock(identityKey)
	defer unlock()

	now := g.now().UTC()
	entry := audit.NewEntry(ctx, identityKey, audit.ActionOTPVerify, "identity:"+identityKey, map[string]any{"role": string(role)})
	err := g.store.Consume(ctx, identityKey, func(ch Challenge, found bool) error {
		return checkChallenge(ch, found, role, code, now)
	}, entry)
	g.opts.Metrics.OTPOutcome(outcome(err))
	if err != nil {
		return identity.Identity{}, err
	}
	return g.identities.Get(ctx, identityKey)
}

func (g *Gate) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return g.store.PurgeExpired(ctx, before)
}

func (g *Gate) lookup(ctx context.Context, identityKey string, role identity.Role) (identity.Identity, error) {
	if identityKey == "" {
		return identity.Identity{}, ErrUnknownIdentity
	}
	ident, err := g.identities.Get(ctx, identityKey)
	if errors.Is(err, identity.ErrNotFound) {
		return identity.Identity{}, ErrUnknownIdentity
	}
	if err != nil {
		return identity.Identity{}, err
	}
	if ident.Role != role {
		return identity.Identity{}, ErrUnknownIdentity
	}
	return ident, nil
}

func checkChallenge(ch Challenge, found bool, role identity.Role, code string, now time.Time) error {
	if !found || ch.Role != role || code == "" {
		return ErrOTPInvalid
	}
	if err := auth.CheckCode(ch.CodeHash, code); err != nil {
		return ErrOTPInvalid
	}
	if ch.Consumed {
		return ErrOTPAlreadyConsumed
	}
	if now.After(ch.ExpiresAt) {
		return ErrOTPExpired
	}
	return nil
}

// generateCode derives a six digit HOTP code from a fresh random secret.
func generateCode(identityKey string, now time.Time) (string, error) {
	key, err := hotp.Generate(hotp.GenerateOpts{
		Issuer:      "hrassist",
		AccountName: identityKey,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate otp secret: %w", err)
	}
	return hotp.GenerateCodeCustom(key.Secret(), uint64(now.UnixNano()), hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOTPInvalid):
		return "invalid"
	case errors.Is(err, ErrOTPExpired):
		return "expired"
	case errors.Is(err, ErrOTPAlreadyConsumed):
		return "consumed"
	default:
		return "error"
	}
}
