package domain

import "time"

// ChallengeType is the kind of step-up verification demanded from the user.
type ChallengeType string

const (
	ChallengePIN       ChallengeType = "pin"
	ChallengeBiometric ChallengeType = "biometric"
	ChallengeOutOfBand ChallengeType = "out_of_band"
)

// ValidChallengeType reports whether t names a known challenge type.
func ValidChallengeType(t ChallengeType) bool {
	switch t {
	case ChallengePIN, ChallengeBiometric, ChallengeOutOfBand:
		return true
	default:
		return false
	}
}

// Challenge is a pending step-up request. Terminal states (completed or
// expired) are immutable; at most one outcome is ever recorded.
type Challenge struct {
	ID                string
	Type              ChallengeType
	UserID            string
	SessionID         string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int
	IsCompleted       bool
	IsSuccessful      bool

	// SecretHash holds the SHA-256 digest of the delivered out-of-band code.
	// Empty for PIN and biometric challenges.
	SecretHash string
}

// IsExpired reports whether the challenge window has passed.
func (c Challenge) IsExpired(at time.Time) bool {
	return at.After(c.ExpiresAt)
}

// Complete records the single allowed outcome. Returns false when an outcome
// was already recorded.
func (c *Challenge) Complete(successful bool) bool {
	if c.IsCompleted {
		return false
	}
	c.IsCompleted = true
	c.IsSuccessful = successful
	return true
}

// ChallengeAnswer carries the caller's response to a pending challenge. Only
// the field matching the challenge type is consulted.
type ChallengeAnswer struct {
	PIN                 *string
	BiometricConfidence *float64
	Code                *string
}
