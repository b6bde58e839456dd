// Package otpauth implements the unified OTP login/registration flow: one
// initiate endpoint for both new and returning customers, with the record
// deciding at verify time whether to log in or hold for profile completion.
package otpauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storefront-auth-api/internal/domain"
	"github.com/storefront-auth-api/internal/infrastructure/notify"
	"github.com/storefront-auth-api/internal/pkg/id"
	"github.com/storefront-auth-api/internal/pkg/kv"
	"github.com/storefront-auth-api/internal/pkg/otp"
)

// CompleteRequest finalizes a verified new-user login flow. No password:
// OTP-only accounts get a passwordless provider identity keyed by email.
type CompleteRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Phone     *string `json:"phone"`
}

// AuthResult carries the issued bearer token and the customer.
type AuthResult struct {
	Token    string
	Customer *domain.Customer
}

// VerifyResult distinguishes the two success shapes of Verify: a returning
// customer gets a token immediately, a new one is asked for profile data.
type VerifyResult struct {
	RequiresProfile bool
	Token           string
	Customer        *domain.Customer
}

type Service interface {
	Initiate(ctx context.Context, email string) (isNewUser bool, err error)
	Resend(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) (*VerifyResult, error)
	Complete(ctx context.Context, req CompleteRequest) (*AuthResult, error)
}

type pendingStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Update(ctx context.Context, key string, fn kv.UpdateFunc) error
}

type customerStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
	Put(ctx context.Context, c *domain.Customer) error
}

type identityStore interface {
	Create(ctx context.Context, identity *domain.AuthIdentity) error
	FindProviderIdentity(ctx context.Context, provider, entityID string) (*domain.AuthIdentity, error)
}

type tokenSigner interface {
	Sign(actorID, authIdentityID, provider, email string) (string, error)
}

var (
	errBadEmail         = fmt.Errorf("a valid email is required: %w", domain.ErrBadRequest)
	errBadCode          = fmt.Errorf("verification code must be 6 digits: %w", domain.ErrBadRequest)
	errExpiredOrInvalid = fmt.Errorf("verification code expired or invalid: %w", domain.ErrBadRequest)
	errTooManyAttempts  = fmt.Errorf("too many failed attempts, request a new code: %w", domain.ErrBadRequest)
	errNotVerified      = fmt.Errorf("email not verified, complete verification first: %w", domain.ErrBadRequest)
	errEmailTaken       = fmt.Errorf("an account with this email already exists: %w", domain.ErrConflict)
	errAccountGone      = fmt.Errorf("account no longer exists: %w", domain.ErrBadRequest)
)

type service struct {
	store      pendingStore
	customers  customerStore
	identities identityStore
	notifier   notify.Dispatcher
	signer     tokenSigner
}

type ServiceDeps struct {
	Store        pendingStore
	CustomerRepo customerStore
	IdentityRepo identityStore
	Notifier     notify.Dispatcher
	JWTProvider  tokenSigner
}

func NewService(deps ServiceDeps) Service {
	return &service{
		store:      deps.Store,
		customers:  deps.CustomerRepo,
		identities: deps.IdentityRepo,
		notifier:   deps.Notifier,
		signer:     deps.JWTProvider,
	}
}

func (s *service) Initiate(ctx context.Context, email string) (bool, error) {
	if !otp.ValidEmail(email) {
		return false, errBadEmail
	}
	norm := otp.NormalizeEmail(email)

	isNew := false
	if _, err := s.customers.GetByEmail(ctx, norm); errors.Is(err, domain.ErrNotFound) {
		isNew = true
	} else if err != nil {
		return false, err
	}

	code, err := otp.Generate()
	if err != nil {
		return false, err
	}
	rec := domain.PendingAuthVerification{
		PendingVerification: domain.NewPendingVerification(norm, code, time.Now()),
		IsNewUser:           isNew,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := s.store.Set(ctx, otp.AuthKey(norm), string(payload), domain.OTPExpiry); err != nil {
		return false, err
	}

	if err := s.sendCode(ctx, norm, code); err != nil {
		return false, fmt.Errorf("send verification email: %w", err)
	}
	return isNew, nil
}

func (s *service) Resend(ctx context.Context, email string) error {
	if !otp.ValidEmail(email) {
		return errBadEmail
	}
	norm := otp.NormalizeEmail(email)

	var failure error
	var newCode string
	err := s.store.Update(ctx, otp.AuthKey(norm), func(value string, _ time.Duration) (kv.Mutation, error) {
		failure, newCode = nil, ""

		var rec domain.PendingAuthVerification
		if jerr := json.Unmarshal([]byte(value), &rec); jerr != nil {
			failure = errExpiredOrInvalid
			return kv.Mutation{Op: kv.OpDelete}, nil
		}
		// Cap beats cooldown: an exhausted record is useless, drop it now.
		if rec.Exhausted() {
			failure = errTooManyAttempts
			return kv.Mutation{Op: kv.OpDelete}, nil
		}
		if wait := rec.ResendWait(time.Now()); wait > 0 {
			failure = &domain.RateLimitedError{RetryAfter: wait}
			return kv.Mutation{Op: kv.OpNone}, nil
		}

		code, gerr := otp.Generate()
		if gerr != nil {
			return kv.Mutation{}, gerr
		}
		rec.Reset(code, time.Now())
		payload, merr := json.Marshal(rec)
		if merr != nil {
			return kv.Mutation{}, merr
		}
		newCode = code
		return kv.Mutation{Op: kv.OpWrite, Value: string(payload), TTL: domain.OTPExpiry}, nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return errExpiredOrInvalid
	}
	if err != nil {
		return err
	}
	if failure != nil {
		return failure
	}

	if err := s.sendCode(ctx, norm, newCode); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (s *service) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	if !otp.ValidEmail(email) {
		return nil, errBadEmail
	}
	if !otp.ValidCode(code) {
		return nil, errBadCode
	}
	norm := otp.NormalizeEmail(email)

	var failure error
	var login bool
	err := s.store.Update(ctx, otp.AuthKey(norm), func(value string, ttl time.Duration) (kv.Mutation, error) {
		failure, login = nil, false

		var rec domain.PendingAuthVerification
		if jerr := json.Unmarshal([]byte(value), &rec); jerr != nil {
			failure = errExpiredOrInvalid
			return kv.Mutation{Op: kv.OpDelete}, nil
		}
		// Already verified new-user record: succeed again, still waiting
		// for profile completion.
		if rec.Verified {
			return kv.Mutation{Op: kv.OpNone}, nil
		}
		if rec.Exhausted() {
			failure = errTooManyAttempts
			return kv.Mutation{Op: kv.OpDelete}, nil
		}
		if subtle.ConstantTimeCompare([]byte(rec.OTP), []byte(code)) != 1 {
			rec.Attempts++
			if rec.Exhausted() {
				failure = errTooManyAttempts
				return kv.Mutation{Op: kv.OpDelete}, nil
			}
			failure = fmt.Errorf("invalid verification code, %d attempts remaining: %w",
				domain.MaxOTPAttempts-rec.Attempts, domain.ErrBadRequest)
			if ttl <= 0 {
				ttl = domain.OTPExpiry
			}
			payload, merr := json.Marshal(rec)
			if merr != nil {
				return kv.Mutation{}, merr
			}
			return kv.Mutation{Op: kv.OpWrite, Value: string(payload), TTL: ttl}, nil
		}

		if !rec.IsNewUser {
			// Login path: the record is single-use, consume it here.
			login = true
			return kv.Mutation{Op: kv.OpDelete}, nil
		}
		rec.Verified = true
		payload, merr := json.Marshal(rec)
		if merr != nil {
			return kv.Mutation{}, merr
		}
		return kv.Mutation{Op: kv.OpWrite, Value: string(payload), TTL: domain.VerifiedHoldTTL}, nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errExpiredOrInvalid
	}
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	if !login {
		return &VerifyResult{RequiresProfile: true}, nil
	}

	cust, err := s.customers.GetByEmail(ctx, norm)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errAccountGone
	}
	if err != nil {
		return nil, err
	}

	identity, err := s.findOrCreateOTPIdentity(ctx, cust)
	if err != nil {
		return nil, err
	}
	token, err := s.signer.Sign(cust.CustomerID, identity.IdentityID, domain.ProviderOTP, norm)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Token: token, Customer: cust}, nil
}

func (s *service) Complete(ctx context.Context, req CompleteRequest) (*AuthResult, error) {
	norm := otp.NormalizeEmail(req.Email)
	key := otp.AuthKey(norm)

	value, err := s.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errNotVerified
	}
	if err != nil {
		return nil, err
	}
	var rec domain.PendingAuthVerification
	if jerr := json.Unmarshal([]byte(value), &rec); jerr != nil {
		s.deleteRecord(ctx, key, norm)
		return nil, errExpiredOrInvalid
	}
	if !rec.Verified {
		return nil, errNotVerified
	}

	// Race guard: a concurrent signup may have created this customer since
	// Initiate decided the email was new.
	if _, err := s.customers.GetByEmail(ctx, norm); err == nil {
		s.deleteRecord(ctx, key, norm)
		return nil, errEmailTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	cust := &domain.Customer{
		CustomerID: id.New(),
		Email:      norm,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		HasAccount: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.customers.Put(ctx, cust); err != nil {
		return nil, err
	}

	identity := newOTPIdentity(cust, now)
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}

	s.deleteRecord(ctx, key, norm)

	token, err := s.signer.Sign(cust.CustomerID, identity.IdentityID, domain.ProviderOTP, norm)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Customer: cust}, nil
}

// findOrCreateOTPIdentity returns the customer's passwordless identity,
// creating one on first OTP login for accounts that predate the flow.
func (s *service) findOrCreateOTPIdentity(ctx context.Context, cust *domain.Customer) (*domain.AuthIdentity, error) {
	identity, err := s.identities.FindProviderIdentity(ctx, domain.ProviderOTP, cust.Email)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	identity = newOTPIdentity(cust, time.Now().UTC())
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func newOTPIdentity(cust *domain.Customer, now time.Time) *domain.AuthIdentity {
	return &domain.AuthIdentity{
		IdentityID:  id.New(),
		AppMetadata: map[string]string{"customer_id": cust.CustomerID},
		ProviderIdentities: []domain.ProviderIdentity{{
			ProviderIdentityID: id.New(),
			Provider:           domain.ProviderOTP,
			EntityID:           cust.Email,
		}},
		CreatedAt: now,
	}
}

func (s *service) sendCode(ctx context.Context, email, code string) error {
	return s.notifier.Send(ctx, notify.Notification{
		To:       email,
		Channel:  notify.ChannelEmail,
		Template: notify.TemplateOTPVerification,
		Data:     map[string]string{"email": email, "otp_code": code},
	})
}

func (s *service) deleteRecord(ctx context.Context, key, email string) {
	if err := s.store.Delete(ctx, key); err != nil {
		slog.Warn("failed to delete pending verification record", "email", email, "err", err)
	}
}
