package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rostergate/internal/config"
	"rostergate/internal/hashing"
	"rostergate/internal/model"
	"rostergate/internal/otp"
	"rostergate/internal/repository/memory"
	"rostergate/internal/service"
)

const testPhone = "+972501234567"

// capturingGateway records the last code handed to the SMS boundary so tests
// can replay it.
type capturingGateway struct {
	mu       sync.Mutex
	lastCode string
	fail     bool
	sent     int
}

func (g *capturingGateway) SendCode(ctx context.Context, phoneNumber, code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errors.New("provider unreachable")
	}
	g.lastCode = code
	g.sent++
	return nil
}

func (g *capturingGateway) code() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastCode
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event model.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

type otpFixture struct {
	svc      *service.OTPService
	gateway  *capturingGateway
	auditor  *capturingPublisher
	sessions *memory.SessionStore
	now      time.Time
}

func newOTPFixture(t *testing.T, limit int) *otpFixture {
	t.Helper()

	f := &otpFixture{
		gateway:  &capturingGateway{},
		auditor:  &capturingPublisher{},
		sessions: memory.NewSessionStore(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	cfg := config.OTPConfig{
		CodeLength:        6,
		Lifetime:          5 * time.Minute,
		MaxVerifyAttempts: 5,
		SMSSendTimeout:    time.Second,
		CodePepper:        "test-pepper",
	}

	clock := func() time.Time { return f.now }
	limiter := memory.NewRateLimiter(limit, 10*time.Minute).WithClock(clock)

	f.svc = service.NewOTPService(
		f.sessions,
		limiter,
		otp.NewCodeGenerator(cfg.CodeLength),
		hashing.NewHasher("test-secret", cfg.CodePepper),
		f.gateway,
		f.auditor,
		cfg,
	).WithClock(clock)

	return f
}

func TestRequestThenVerifySucceedsOnce(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 3)

	res, err := f.svc.RequestCode(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, testPhone, res.PhoneNumber)
	assert.Equal(t, 2, res.AttemptsRemaining)
	assert.Equal(t, 5, res.ExpiresInMinutes)
	require.NotEmpty(t, f.gateway.code())

	got, err := f.svc.VerifyCode(ctx, testPhone, f.gateway.code())
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, testPhone, got.PhoneNumber)

	// The session is consumed; replaying the same code fails.
	_, err = f.svc.VerifyCode(ctx, testPhone, f.gateway.code())
	assert.ErrorIs(t, err, service.ErrCodeAlreadyUsed)
}

func TestVerifyWithoutSession(t *testing.T) {
	f := newOTPFixture(t, 3)

	_, err := f.svc.VerifyCode(context.Background(), testPhone, "123456")
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}

func TestVerifyExpiredCode(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 3)

	_, err := f.svc.RequestCode(ctx, testPhone)
	require.NoError(t, err)

	f.now = f.now.Add(5*time.Minute + time.Second)

	_, err = f.svc.VerifyCode(ctx, testPhone, f.gateway.code())
	assert.ErrorIs(t, err, service.ErrCodeExpired)
}

func TestVerifyAtExactExpiryStillValid(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 3)

	_, err := f.svc.RequestCode(ctx, testPhone)
	require.NoError(t, err)

	// Expiry is strictly now > expiresAt.
	f.now = f.now.Add(5 * time.Minute)

	got, err := f.svc.VerifyCode(ctx, testPhone, f.gateway.code())
	require.NoError(t, err)
	assert.True(t, got.Verified)
}

func TestVerifyMismatchIncrementsAttempts(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 3)

	_, err := f.svc.RequestCode(ctx, testPhone)
	require.NoError(t, err)

	wrong := "000000"
	if f.gateway.code() == wrong {
		wrong = "000001"
	}

	_, err = f.svc.VerifyCode(ctx, testPhone, wrong)
	assert.ErrorIs(t, err, service.ErrCodeMismatch)

	sess, err := f.sessions.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Attempts)

	// The right code still works after a mismatch.
	got, err := f.svc.VerifyCode(ctx, testPhone, f.gateway.code())
	require.NoError(t, err)
	assert.True(t, got.Verified)
}

func TestVerifyExhaustedAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 3)

	_, err := f.svc.RequestCode(ctx, testPhone)
	require.NoError(t, err)

	wrong := "000000"
	if f.gateway.code() == wrong {
		wrong = "000001"
	}

	for i := 0; i < 5; i++ {
		_, err = f.svc.VerifyCode(ctx, testPhone, wrong)
		assert.ErrorIs(t, err, service.ErrCodeMismatch)
	}

	// Even the correct code is rejected once the session is exhausted.
	_, err = f.svc.VerifyCode(ctx, testPhone, f.gateway.code())
	assert.ErrorIs(t, err, service.ErrTooManyAttempts)
}

func TestNewRequestSupersedesPriorSession(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 3)

	_, err := f.svc.RequestCode(ctx, testPhone)
	require.NoError(t, err)
	firstCode := f.gateway.code()

	_, err = f.svc.RequestCode(ctx, testPhone)
	require.NoError(t, err)
	secondCode := f.gateway.code()

	if firstCode != secondCode {
		_, err = f.svc.VerifyCode(ctx, testPhone, firstCode)
		assert.ErrorIs(t, err, service.ErrCodeMismatch, "the superseded code must no longer verify")
	}

	got, err := f.svc.VerifyCode(ctx, testPhone, secondCode)
	require.NoError(t, err)
	assert.True(t, got.Verified)
}

func TestRequestRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 2)

	for i := 0; i < 2; i++ {
		_, err := f.svc.RequestCode(ctx, testPhone)
		require.NoError(t, err)
	}

	_, err := f.svc.RequestCode(ctx, testPhone)
	rle, ok := service.AsRateLimited(err)
	require.True(t, ok, "expected RateLimitedError, got %v", err)
	assert.True(t, rle.ResetTime.After(f.now))

	// Only the allowed requests reached the gateway.
	assert.Equal(t, 2, f.gateway.sent)
}

func TestRequestInvalidPhone(t *testing.T) {
	f := newOTPFixture(t, 3)

	for _, phone := range []string{"", "12345", "0501234567", "+9725abc4567", "+972"} {
		_, err := f.svc.RequestCode(context.Background(), phone)
		assert.ErrorIs(t, err, service.ErrInvalidInput, "phone %q", phone)
	}
	// Validation rejects before any session or SMS side effect.
	assert.Equal(t, 0, f.gateway.sent)
}

func TestVerifyMalformedCode(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 3)

	_, err := f.svc.RequestCode(ctx, testPhone)
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		_, err := f.svc.VerifyCode(ctx, testPhone, code)
		assert.ErrorIs(t, err, service.ErrInvalidInput, "code %q", code)
	}

	sess, err := f.sessions.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Attempts, "malformed codes must not burn attempts")
}

func TestGatewayFailureSurfaced(t *testing.T) {
	f := newOTPFixture(t, 3)
	f.gateway.fail = true

	_, err := f.svc.RequestCode(context.Background(), testPhone)
	assert.ErrorIs(t, err, service.ErrGatewayFailure)
}

func TestPhoneNormalizationSharedAcrossOps(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 3)

	_, err := f.svc.RequestCode(ctx, "+972 50-123-4567")
	require.NoError(t, err)

	got, err := f.svc.VerifyCode(ctx, "+972501234567", f.gateway.code())
	require.NoError(t, err)
	assert.True(t, got.Verified)
}

func TestAuditEventsEmitted(t *testing.T) {
	ctx := context.Background()
	f := newOTPFixture(t, 3)

	_, err := f.svc.RequestCode(ctx, testPhone)
	require.NoError(t, err)
	_, err = f.svc.VerifyCode(ctx, testPhone, f.gateway.code())
	require.NoError(t, err)

	require.Len(t, f.auditor.events, 2)
	assert.Equal(t, model.AuditOTPRequested, f.auditor.events[0].Type)
	assert.Equal(t, model.AuditOTPVerified, f.auditor.events[1].Type)
	assert.Equal(t, testPhone, f.auditor.events[1].Subject)
}
