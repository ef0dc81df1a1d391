package credential

import (
	"errors"
	"time"

	"hrassist/internal/domain/identity"
)

const DefaultTTL = 10 * time.Minute

var (
	ErrUnknownIdentity    = errors.New("unknown identity for role")
	ErrOTPInvalid         = errors.New("invalid code")
	ErrOTPExpired         = errors.New("code expired")
	ErrOTPAlreadyConsumed = errors.New("code already used")
)

// Challenge is the single live OTP for an identity. Only the bcrypt hash of the code is kept.
type Challenge struct {
	IdentityKey string
	Role        identity.Role
	CodeHash    string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Consumed    bool
}

type IssueResult struct {
	ExpiresAt time.Time
	// Destination is the masked delivery address.
	Destination string
	// DevCode is set only when email sending is simulated.
	DevCode string
}
