// Package register implements the OTP email-verification flow for new
// account registration: initiate, resend, verify, complete.
package register

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
	"github.com/storefront-auth-api/internal/pkg/password"
)

// CompleteRequest finalizes a verified registration.
type CompleteRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Phone     *string `json:"phone"`
}

// AuthResult carries the issued bearer token and the created customer.
type AuthResult struct {
	Token    string
	Customer *domain.Customer
}

type Service interface {
	Initiate(ctx context.Context, email string) error
	Resend(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) error
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

func (s *service) Initiate(ctx context.Context, email string) error {
	if !otp.ValidEmail(email) {
		return errBadEmail
	}
	norm := otp.NormalizeEmail(email)

	if _, err := s.customers.GetByEmail(ctx, norm); err == nil {
		return errEmailTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	code, err := otp.Generate()
	if err != nil {
		return err
	}
	rec := domain.NewPendingVerification(norm, code, time.Now())
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, otp.RegisterKey(norm), string(payload), domain.OTPExpiry); err != nil {
		return err
	}

	// The record stays in place if the send fails; a later Resend recovers
	// with a fresh code once the cooldown passes.
	if err := s.sendCode(ctx, norm, code); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (s *service) Resend(ctx context.Context, email string) error {
	if !otp.ValidEmail(email) {
		return errBadEmail
	}
	norm := otp.NormalizeEmail(email)

	var failure error
	var newCode string
	err := s.store.Update(ctx, otp.RegisterKey(norm), func(value string, _ time.Duration) (kv.Mutation, error) {
		failure, newCode = nil, ""

		var rec domain.PendingVerification
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

func (s *service) Verify(ctx context.Context, email, code string) error {
	if !otp.ValidEmail(email) {
		return errBadEmail
	}
	if !otp.ValidCode(code) {
		return errBadCode
	}
	norm := otp.NormalizeEmail(email)

	var failure error
	err := s.store.Update(ctx, otp.RegisterKey(norm), func(value string, ttl time.Duration) (kv.Mutation, error) {
		failure = nil

		var rec domain.PendingVerification
		if jerr := json.Unmarshal([]byte(value), &rec); jerr != nil {
			failure = errExpiredOrInvalid
			return kv.Mutation{Op: kv.OpDelete}, nil
		}
		// Already verified: succeed again without touching attempts.
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

		rec.Verified = true
		payload, merr := json.Marshal(rec)
		if merr != nil {
			return kv.Mutation{}, merr
		}
		return kv.Mutation{Op: kv.OpWrite, Value: string(payload), TTL: domain.VerifiedHoldTTL}, nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return errExpiredOrInvalid
	}
	if err != nil {
		return err
	}
	return failure
}

func (s *service) Complete(ctx context.Context, req CompleteRequest) (*AuthResult, error) {
	norm := otp.NormalizeEmail(req.Email)
	key := otp.RegisterKey(norm)

	value, err := s.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errNotVerified
	}
	if err != nil {
		return nil, err
	}
	var rec domain.PendingVerification
	if jerr := json.Unmarshal([]byte(value), &rec); jerr != nil {
		s.deleteRecord(ctx, key, norm)
		return nil, errExpiredOrInvalid
	}
	if !rec.Verified {
		return nil, errNotVerified
	}

	// Race guard: another registration may have landed since Verify.
	if _, err := s.customers.GetByEmail(ctx, norm); err == nil {
		s.deleteRecord(ctx, key, norm)
		return nil, errEmailTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
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

	identity := &domain.AuthIdentity{
		IdentityID:  id.New(),
		AppMetadata: map[string]string{"customer_id": cust.CustomerID},
		ProviderIdentities: []domain.ProviderIdentity{{
			ProviderIdentityID: id.New(),
			Provider:           domain.ProviderEmailPass,
			EntityID:           norm,
			ProviderMetadata:   map[string]string{"password_hash": hash},
		}},
		CreatedAt: now,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}

	s.deleteRecord(ctx, key, norm)

	token, err := s.signer.Sign(cust.CustomerID, identity.IdentityID, domain.ProviderEmailPass, norm)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Customer: cust}, nil
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
