package jwtinfra

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/storefront-auth-api/internal/config"
	"github.com/storefront-auth-api/internal/domain"
)

// Claims holds the bearer-token payload issued to storefront customers.
type Claims struct {
	ActorType      string `json:"actor_type"`
	ActorID        string `json:"actor_id"`
	AuthIdentityID string `json:"auth_identity_id"`
	Provider       string `json:"provider"`
	Email          string `json:"email"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 JWTs with a shared server secret.
type Provider struct {
	secret []byte
	expiry time.Duration
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	return &Provider{secret: []byte(cfg.JWTSecret), expiry: domain.TokenLifetime}, nil
}

// Sign issues a customer bearer token valid for seven days.
func (p *Provider) Sign(actorID, authIdentityID, provider, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		ActorType:      "customer",
		ActorID:        actorID,
		AuthIdentityID: authIdentityID,
		Provider:       provider,
		Email:          email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// Verify parses and validates a bearer token, rejecting any signing method
// other than HMAC.
func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
