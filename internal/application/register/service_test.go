package register

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/storefront-auth-api/internal/domain"
	"github.com/storefront-auth-api/internal/infrastructure/notify"
	"github.com/storefront-auth-api/internal/pkg/kv"
	"github.com/storefront-auth-api/internal/pkg/otp"
	"github.com/storefront-auth-api/internal/pkg/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// fakeKV is a map-backed stand-in for the Redis store that records the TTL
// of every write so tests can assert expiry handling.
type fakeKV struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", fmt.Errorf("get %s: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Delete(_ context.Context, key string) error {
	delete(f.values, key)
	delete(f.ttls, key)
	return nil
}

func (f *fakeKV) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	v, ok := f.values[key]
	if !ok {
		return fmt.Errorf("update %s: %w", key, domain.ErrNotFound)
	}
	m, err := fn(v, f.ttls[key])
	if err != nil {
		return err
	}
	switch m.Op {
	case kv.OpWrite:
		return f.Set(ctx, key, m.Value, m.TTL)
	case kv.OpDelete:
		return f.Delete(ctx, key)
	}
	return nil
}

type mockCustomerStore struct{ mock.Mock }

func (m *mockCustomerStore) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	args := m.Called(ctx, email)
	if c, _ := args.Get(0).(*domain.Customer); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockCustomerStore) Put(ctx context.Context, c *domain.Customer) error {
	return m.Called(ctx, c).Error(0)
}

type mockIdentityStore struct{ mock.Mock }

func (m *mockIdentityStore) Create(ctx context.Context, identity *domain.AuthIdentity) error {
	return m.Called(ctx, identity).Error(0)
}

// mockNotifier captures the last notification so tests can read the code
// that was "sent".
type mockNotifier struct {
	mock.Mock
	last notify.Notification
}

func (m *mockNotifier) Send(ctx context.Context, n notify.Notification) error {
	m.last = n
	return m.Called(ctx, n).Error(0)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(actorID, authIdentityID, provider, email string) (string, error) {
	args := m.Called(actorID, authIdentityID, provider, email)
	return args.String(0), args.Error(1)
}

// --- helpers ---

func newTestService(store *fakeKV, cs *mockCustomerStore, is *mockIdentityStore, nt *mockNotifier, sg *mockSigner) Service {
	return NewService(ServiceDeps{
		Store:        store,
		CustomerRepo: cs,
		IdentityRepo: is,
		Notifier:     nt,
		JWTProvider:  sg,
	})
}

func seedRecord(t *testing.T, store *fakeKV, rec domain.PendingVerification, ttl time.Duration) string {
	t.Helper()
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	key := otp.RegisterKey(rec.Email)
	require.NoError(t, store.Set(context.Background(), key, string(payload), ttl))
	return key
}

func readRecord(t *testing.T, store *fakeKV, key string) domain.PendingVerification {
	t.Helper()
	var rec domain.PendingVerification
	require.NoError(t, json.Unmarshal([]byte(store.values[key]), &rec))
	return rec
}

// --- Initiate ---

func TestInitiate_InvalidEmail(t *testing.T) {
	svc := newTestService(newFakeKV(), nil, nil, nil, nil)
	err := svc.Initiate(context.Background(), "not-an-email")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestInitiate_EmailTaken(t *testing.T) {
	cs := &mockCustomerStore{}
	cs.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.Customer{CustomerID: "c1"}, nil)

	svc := newTestService(newFakeKV(), cs, nil, nil, nil)
	err := svc.Initiate(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestInitiate_HappyPath(t *testing.T) {
	store := newFakeKV()
	cs := &mockCustomerStore{}
	nt := &mockNotifier{}
	cs.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, domain.ErrNotFound)
	nt.On("Send", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, cs, nil, nt, nil)
	err := svc.Initiate(context.Background(), "  A@B.com ")
	require.NoError(t, err)

	key := otp.RegisterKey("a@b.com")
	rec := readRecord(t, store, key)
	assert.Equal(t, "a@b.com", rec.Email)
	assert.True(t, otp.ValidCode(rec.OTP))
	assert.False(t, rec.Verified)
	assert.Equal(t, 0, rec.Attempts)
	assert.Equal(t, domain.OTPExpiry, store.ttls[key])

	assert.Equal(t, "a@b.com", nt.last.To)
	assert.Equal(t, rec.OTP, nt.last.Data["otp_code"])
	cs.AssertExpectations(t)
	nt.AssertExpectations(t)
}

func TestInitiate_SendFailureLeavesRecord(t *testing.T) {
	store := newFakeKV()
	cs := &mockCustomerStore{}
	nt := &mockNotifier{}
	cs.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, domain.ErrNotFound)
	nt.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	svc := newTestService(store, cs, nil, nt, nil)
	err := svc.Initiate(context.Background(), "a@b.com")
	require.Error(t, err)

	// The record stays so a later resend can recover.
	_, ok := store.values[otp.RegisterKey("a@b.com")]
	assert.True(t, ok)
}

// --- Resend ---

func TestResend_NoRecord(t *testing.T) {
	svc := newTestService(newFakeKV(), nil, nil, nil, nil)
	err := svc.Resend(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestResend_WithinCooldown(t *testing.T) {
	store := newFakeKV()
	seedRecord(t, store, domain.NewPendingVerification("a@b.com", "111111", time.Now()), domain.OTPExpiry)

	svc := newTestService(store, nil, nil, nil, nil)
	err := svc.Resend(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTooManyRequests))

	var rl *domain.RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Greater(t, rl.RetryAfter, 0)
	assert.LessOrEqual(t, rl.RetryAfter, 60)

	// Record untouched.
	rec := readRecord(t, store, otp.RegisterKey("a@b.com"))
	assert.Equal(t, "111111", rec.OTP)
}

func TestResend_AfterCooldown_ResetsRecord(t *testing.T) {
	store := newFakeKV()
	old := domain.NewPendingVerification("a@b.com", "111111", time.Now().Add(-2*time.Minute))
	old.Attempts = 3
	key := seedRecord(t, store, old, 8*time.Minute)

	nt := &mockNotifier{}
	nt.On("Send", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, nil, nil, nt, nil)
	require.NoError(t, svc.Resend(context.Background(), "a@b.com"))

	rec := readRecord(t, store, key)
	assert.NotEqual(t, "111111", rec.OTP)
	assert.True(t, otp.ValidCode(rec.OTP))
	assert.Equal(t, 0, rec.Attempts)
	assert.False(t, rec.Verified)
	assert.Equal(t, domain.OTPExpiry, store.ttls[key])
	assert.Equal(t, rec.OTP, nt.last.Data["otp_code"])
}

func TestResend_ExhaustedDeletesRecord(t *testing.T) {
	store := newFakeKV()
	rec := domain.NewPendingVerification("a@b.com", "111111", time.Now().Add(-2*time.Minute))
	rec.Attempts = domain.MaxOTPAttempts
	key := seedRecord(t, store, rec, domain.OTPExpiry)

	svc := newTestService(store, nil, nil, nil, nil)
	err := svc.Resend(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	_, ok := store.values[key]
	assert.False(t, ok)
}

// --- Verify ---

func TestVerify_BadCodeFormat(t *testing.T) {
	svc := newTestService(newFakeKV(), nil, nil, nil, nil)
	err := svc.Verify(context.Background(), "a@b.com", "12345")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestVerify_NoRecord(t *testing.T) {
	svc := newTestService(newFakeKV(), nil, nil, nil, nil)
	err := svc.Verify(context.Background(), "a@b.com", "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestVerify_WrongCodeIncrementsAttempts(t *testing.T) {
	store := newFakeKV()
	key := seedRecord(t, store, domain.NewPendingVerification("a@b.com", "111111", time.Now()), 5*time.Minute)

	svc := newTestService(store, nil, nil, nil, nil)
	err := svc.Verify(context.Background(), "a@b.com", "222222")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	assert.Contains(t, err.Error(), "4 attempts remaining")

	rec := readRecord(t, store, key)
	assert.Equal(t, 1, rec.Attempts)
	assert.False(t, rec.Verified)
	// Failed attempts must not extend the record's life.
	assert.Equal(t, 5*time.Minute, store.ttls[key])
}

func TestVerify_FifthWrongCodeDeletesRecord(t *testing.T) {
	store := newFakeKV()
	rec := domain.NewPendingVerification("a@b.com", "111111", time.Now())
	rec.Attempts = domain.MaxOTPAttempts - 1
	key := seedRecord(t, store, rec, domain.OTPExpiry)

	svc := newTestService(store, nil, nil, nil, nil)
	err := svc.Verify(context.Background(), "a@b.com", "222222")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	assert.Contains(t, err.Error(), "too many failed attempts")

	_, ok := store.values[key]
	assert.False(t, ok)

	// The record is gone; even the right code is now rejected.
	err = svc.Verify(context.Background(), "a@b.com", "111111")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired or invalid")
}

func TestVerify_Match_MarksVerifiedAndExtendsHold(t *testing.T) {
	store := newFakeKV()
	key := seedRecord(t, store, domain.NewPendingVerification("a@b.com", "111111", time.Now()), domain.OTPExpiry)

	svc := newTestService(store, nil, nil, nil, nil)
	require.NoError(t, svc.Verify(context.Background(), "a@b.com", "111111"))

	rec := readRecord(t, store, key)
	assert.True(t, rec.Verified)
	assert.Equal(t, domain.VerifiedHoldTTL, store.ttls[key])
}

func TestVerify_Idempotent(t *testing.T) {
	store := newFakeKV()
	rec := domain.NewPendingVerification("a@b.com", "111111", time.Now())
	rec.Verified = true
	key := seedRecord(t, store, rec, domain.VerifiedHoldTTL)

	svc := newTestService(store, nil, nil, nil, nil)
	require.NoError(t, svc.Verify(context.Background(), "a@b.com", "111111"))
	// Even a wrong code succeeds once verified; the state is terminal.
	require.NoError(t, svc.Verify(context.Background(), "a@b.com", "999999"))

	got := readRecord(t, store, key)
	assert.Equal(t, 0, got.Attempts)
	assert.True(t, got.Verified)
}

// --- Complete ---

func completeReq() CompleteRequest {
	return CompleteRequest{
		Email:     "a@b.com",
		Password:  "supersecret1",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
}

func TestComplete_NoRecord(t *testing.T) {
	svc := newTestService(newFakeKV(), nil, nil, nil, nil)
	_, err := svc.Complete(context.Background(), completeReq())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	assert.Contains(t, err.Error(), "not verified")
}

func TestComplete_NotVerified(t *testing.T) {
	store := newFakeKV()
	seedRecord(t, store, domain.NewPendingVerification("a@b.com", "111111", time.Now()), domain.OTPExpiry)

	svc := newTestService(store, nil, nil, nil, nil)
	_, err := svc.Complete(context.Background(), completeReq())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestComplete_RaceWithConcurrentSignup(t *testing.T) {
	store := newFakeKV()
	rec := domain.NewPendingVerification("a@b.com", "111111", time.Now())
	rec.Verified = true
	key := seedRecord(t, store, rec, domain.VerifiedHoldTTL)

	cs := &mockCustomerStore{}
	cs.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.Customer{CustomerID: "c1"}, nil)

	svc := newTestService(store, cs, nil, nil, nil)
	_, err := svc.Complete(context.Background(), completeReq())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	_, ok := store.values[key]
	assert.False(t, ok)
}

func TestComplete_HappyPath(t *testing.T) {
	store := newFakeKV()
	rec := domain.NewPendingVerification("a@b.com", "111111", time.Now())
	rec.Verified = true
	key := seedRecord(t, store, rec, domain.VerifiedHoldTTL)

	cs := &mockCustomerStore{}
	is := &mockIdentityStore{}
	sg := &mockSigner{}
	cs.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, domain.ErrNotFound)
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.Customer")).Return(nil)
	is.On("Create", mock.Anything, mock.AnythingOfType("*domain.AuthIdentity")).Return(nil)
	sg.On("Sign", mock.Anything, mock.Anything, domain.ProviderEmailPass, "a@b.com").Return("token-123", nil)

	svc := newTestService(store, cs, is, nil, sg)
	res, err := svc.Complete(context.Background(), completeReq())
	require.NoError(t, err)
	assert.Equal(t, "token-123", res.Token)
	assert.Equal(t, "a@b.com", res.Customer.Email)
	assert.Equal(t, "Ada", res.Customer.FirstName)
	assert.True(t, res.Customer.HasAccount)

	// Record consumed.
	_, ok := store.values[key]
	assert.False(t, ok)

	// The stored identity carries a working password hash.
	identity := is.Calls[0].Arguments.Get(1).(*domain.AuthIdentity)
	require.Len(t, identity.ProviderIdentities, 1)
	pi := identity.ProviderIdentities[0]
	assert.Equal(t, domain.ProviderEmailPass, pi.Provider)
	assert.Equal(t, "a@b.com", pi.EntityID)
	assert.Equal(t, res.Customer.CustomerID, identity.AppMetadata["customer_id"])
	ok, err = password.Verify("supersecret1", pi.ProviderMetadata["password_hash"])
	require.NoError(t, err)
	assert.True(t, ok)

	cs.AssertExpectations(t)
	is.AssertExpectations(t)
	sg.AssertExpectations(t)
}
