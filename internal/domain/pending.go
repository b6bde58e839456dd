package domain

import (
	"math"
	"time"
)

// Verification flow constants. These are load-bearing for interop: the TTLs
// and caps must match what clients and the storefront UI expect.
const (
	OTPExpiry       = 600 * time.Second
	MaxOTPAttempts  = 5
	ResendCooldown  = 60 * time.Second
	VerifiedHoldTTL = 1800 * time.Second
	TokenLifetime   = 7 * 24 * time.Hour
)

// PendingVerification is the cached state of an in-progress email verification
// for the registration flow. Exactly one record exists per flow and normalized
// email; a new Initiate overwrites the old record. CreatedAt is epoch
// milliseconds and drives both expiry and resend-cooldown arithmetic.
type PendingVerification struct {
	Email     string `json:"email"`
	OTP       string `json:"otp"`
	Verified  bool   `json:"verified"`
	Attempts  int    `json:"attempts"`
	CreatedAt int64  `json:"createdAt"`
}

// PendingAuthVerification is the unified login/registration variant.
// IsNewUser is decided at Initiate time and determines whether a successful
// Verify logs the customer in directly or holds for profile completion.
type PendingAuthVerification struct {
	PendingVerification
	IsNewUser bool `json:"isNewUser"`
}

// NewPendingVerification builds a fresh record with zero attempts.
func NewPendingVerification(email, code string, now time.Time) PendingVerification {
	return PendingVerification{
		Email:     email,
		OTP:       code,
		CreatedAt: now.UnixMilli(),
	}
}

// Exhausted reports whether the attempt cap has been reached.
func (p *PendingVerification) Exhausted() bool {
	return p.Attempts >= MaxOTPAttempts
}

// ResendWait returns the whole seconds remaining in the resend cooldown,
// rounded up. Zero means a resend is allowed.
func (p *PendingVerification) ResendWait(now time.Time) int {
	elapsed := float64(now.UnixMilli()-p.CreatedAt) / 1000
	remaining := ResendCooldown.Seconds() - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining))
}

// Reset replaces the code and clears attempts and the verified flag, as if the
// record had just been created.
func (p *PendingVerification) Reset(code string, now time.Time) {
	p.OTP = code
	p.Attempts = 0
	p.Verified = false
	p.CreatedAt = now.UnixMilli()
}
