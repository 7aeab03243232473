package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rostergate/internal/audit"
	"rostergate/internal/config"
	"rostergate/internal/hashing"
	"rostergate/internal/model"
	"rostergate/internal/otp"
	"rostergate/internal/sms"
	"rostergate/internal/util"
)

// OTPService orchestrates the verification state machine: rate limiting, code
// generation, session lifecycle and SMS dispatch. Per phone number a session
// moves Pending -> Verified | Expired | Exhausted, and a new request
// supersedes whatever was pending.
type OTPService struct {
	sessions  SessionStore
	limiter   RateLimiter
	generator *otp.CodeGenerator
	hasher    *hashing.Hasher
	gateway   sms.Gateway
	auditor   audit.Publisher
	cfg       config.OTPConfig
	now       func() time.Time
}

func NewOTPService(
	sessions SessionStore,
	limiter RateLimiter,
	generator *otp.CodeGenerator,
	hasher *hashing.Hasher,
	gateway sms.Gateway,
	auditor audit.Publisher,
	cfg config.OTPConfig,
) *OTPService {
	return &OTPService{
		sessions:  sessions,
		limiter:   limiter,
		generator: generator,
		hasher:    hasher,
		gateway:   gateway,
		auditor:   auditor,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	return s
}

// RequestResult is returned to the caller after a successful OTP request.
type RequestResult struct {
	PhoneNumber       string `json:"phone_number"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	ExpiresInMinutes  int    `json:"expires_in_minutes"`
}

// VerifyResult is returned after a successful verification.
type VerifyResult struct {
	PhoneNumber string `json:"phone_number"`
	Verified    bool   `json:"verified"`
}

// RequestCode validates the phone, enforces the per-phone rate limit,
// generates and stores a fresh session (superseding any prior one) and
// dispatches the code. Validation happens before any store access.
func (s *OTPService) RequestCode(ctx context.Context, rawPhone string) (*RequestResult, error) {
	phone, err := util.NormalizePhone(rawPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	decision, err := s.limiter.Check(ctx, phone)
	if err != nil {
		return nil, infraError("rate limit check", err)
	}
	if !decision.Allowed {
		return nil, &RateLimitedError{ResetTime: decision.ResetTime}
	}

	code, err := s.generator.Generate()
	if err != nil {
		return nil, infraError("code generation", err)
	}

	codeHash, codeSalt, err := s.hasher.HashCode(code)
	if err != nil {
		return nil, infraError("code hashing", err)
	}

	now := s.now().UTC()
	session := &model.OTPSession{
		SessionID:   uuid.New().String(),
		PhoneNumber: phone,
		CodeHash:    codeHash,
		CodeSalt:    codeSalt,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.Lifetime),
		Attempts:    0,
		Used:        false,
	}

	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, infraError("session store", err)
	}

	if err := s.gateway.SendCode(ctx, phone, code); err != nil {
		util.Error("SMS dispatch failed",
			zap.String("phone_number", phone),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}

	s.publishAudit(ctx, model.AuditEvent{
		Type:    model.AuditOTPRequested,
		Subject: phone,
		At:      now,
	})

	util.Info("OTP session created",
		zap.String("phone_number", phone),
		zap.String("session_id", session.SessionID),
		zap.Time("expires_at", session.ExpiresAt))

	return &RequestResult{
		PhoneNumber:       phone,
		AttemptsRemaining: decision.AttemptsRemaining,
		ExpiresInMinutes:  int(s.cfg.Lifetime.Minutes()),
	}, nil
}

// VerifyCode checks a submitted code against the phone's active session.
// Failure order: no session, already used, expired, attempts exhausted, then
// mismatch. A mismatch increments the attempt counter; a match consumes the
// session irreversibly.
func (s *OTPService) VerifyCode(ctx context.Context, rawPhone, submittedCode string) (*VerifyResult, error) {
	phone, err := util.NormalizePhone(rawPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !util.IsNumericCode(submittedCode, s.cfg.CodeLength) {
		return nil, fmt.Errorf("%w: code must be %d digits", ErrInvalidInput, s.cfg.CodeLength)
	}

	session, err := s.sessions.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, infraError("session load", err)
	}

	if session.Used {
		return nil, ErrCodeAlreadyUsed
	}
	if session.Expired(s.now().UTC()) {
		return nil, ErrCodeExpired
	}
	if session.Attempts >= s.cfg.MaxVerifyAttempts {
		return nil, ErrTooManyAttempts
	}

	match, err := s.hasher.VerifyCode(submittedCode, session.CodeHash, session.CodeSalt)
	if err != nil {
		return nil, infraError("code verification", err)
	}
	if !match {
		if incErr := s.sessions.IncrementAttempts(ctx, phone); incErr != nil {
			util.Warn("Failed to record verification attempt",
				zap.String("phone_number", phone),
				zap.Error(incErr))
		}
		return nil, ErrCodeMismatch
	}

	if err := s.sessions.MarkUsed(ctx, phone, session.SessionID); err != nil {
		return nil, infraError("session consume", err)
	}

	s.publishAudit(ctx, model.AuditEvent{
		Type:    model.AuditOTPVerified,
		Subject: phone,
		At:      s.now().UTC(),
	})

	util.Info("OTP verified",
		zap.String("phone_number", phone),
		zap.String("session_id", session.SessionID))

	return &VerifyResult{PhoneNumber: phone, Verified: true}, nil
}

func (s *OTPService) publishAudit(ctx context.Context, event model.AuditEvent) {
	if err := s.auditor.Publish(ctx, event); err != nil {
		util.Warn("Audit publish failed",
			zap.String("event_type", event.Type),
			zap.Error(err))
	}
}

