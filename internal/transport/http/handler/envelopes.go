package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/storefront-auth-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Email   string `json:"email,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RateLimitEnvelope is the 429 wrapper carrying the retry hint in seconds.
type RateLimitEnvelope struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// VerifyEnvelope wraps register/verify and the new-user branch of
// auth/otp/verify.
type VerifyEnvelope struct {
	Success         bool   `json:"success"`
	Verified        bool   `json:"verified"`
	Message         string `json:"message,omitempty"`
	RequiresProfile *bool  `json:"requiresProfile,omitempty"`
}

// AuthEnvelope wraps responses that issue a bearer token.
type AuthEnvelope struct {
	Success         bool             `json:"success"`
	Token           string           `json:"token,omitempty"`
	Customer        *CustomerSummary `json:"customer,omitempty"`
	RequiresProfile *bool            `json:"requiresProfile,omitempty"`
}

// InitiateAuthEnvelope wraps auth/otp/initiate responses.
type InitiateAuthEnvelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Email     string `json:"email"`
	IsNewUser bool   `json:"isNewUser"`
}

// CustomerSummary is the customer shape returned to clients. Credential
// material and identity internals never leave the service.
type CustomerSummary struct {
	CustomerID string  `json:"customer_id"`
	Email      string  `json:"email"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Phone      *string `json:"phone,omitempty"`
}

func toCustomerSummary(c *domain.Customer) *CustomerSummary {
	if c == nil {
		return nil
	}
	return &CustomerSummary{
		CustomerID: c.CustomerID,
		Email:      c.Email,
		FirstName:  c.FirstName,
		LastName:   c.LastName,
		Phone:      c.Phone,
	}
}

func boolPtr(b bool) *bool { return &b }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// writeServiceError maps domain sentinel errors to HTTP status codes. Unknown
// errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var rl *domain.RateLimitedError
	switch {
	case errors.As(err, &rl):
		writeJSON(w, http.StatusTooManyRequests, RateLimitEnvelope{
			Error:      err.Error(),
			RetryAfter: rl.RetryAfter,
		})
	case errors.Is(err, domain.ErrTooManyRequests):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		slog.Error("unhandled service error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
