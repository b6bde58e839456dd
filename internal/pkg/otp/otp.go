// Package otp generates one-time passcodes and builds the cache keys that
// scope a pending verification to one flow and one normalized email.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	registerKeyPrefix = "otp:register:"
	authKeyPrefix     = "otp:auth:"
)

var (
	codePattern = regexp.MustCompile(`^[0-9]{6}$`)
	// Deliberately loose: local@domain.tld. Full RFC 5322 rejection is left
	// to the mail provider bouncing the message.
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Generate returns a 6-digit numeric code drawn from a CSPRNG.
// The code is uniform over [100000, 999999].
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// ValidCode reports whether s is exactly six ASCII digits.
func ValidCode(s string) bool { return codePattern.MatchString(s) }

// NormalizeEmail lowercases and trims an email address. All cache keys and
// stored records use the normalized form.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// ValidEmail reports whether s looks like an email address after normalization.
func ValidEmail(s string) bool { return emailPattern.MatchString(NormalizeEmail(s)) }

// RegisterKey is the cache key for a registration-flow pending record.
func RegisterKey(email string) string { return registerKeyPrefix + NormalizeEmail(email) }

// AuthKey is the cache key for a unified login/registration pending record.
// The prefix keeps the two flows from ever colliding on the same email.
func AuthKey(email string) string { return authKeyPrefix + NormalizeEmail(email) }
