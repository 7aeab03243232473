package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"rostergate/internal/model"
	"rostergate/internal/service"
	"rostergate/internal/util"
)

// SessionRepository persists verification sessions in the otp_sessions table,
// one row per phone number.
type SessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient) *SessionRepository {
	return &SessionRepository{client: client}
}

func (r *SessionRepository) Put(ctx context.Context, session *model.OTPSession) error {
	query := r.client.Prepared.PutSession.WithContext(ctx).Bind(
		session.PhoneNumber, session.SessionID, session.CodeHash, session.CodeSalt,
		session.CreatedAt, session.ExpiresAt, session.Attempts, session.Used)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to put OTP session",
			zap.String("phone_number", session.PhoneNumber),
			zap.String("session_id", session.SessionID),
			zap.Error(err))
		return fmt.Errorf("failed to put OTP session: %w", err)
	}

	util.Debug("OTP session stored",
		zap.String("phone_number", session.PhoneNumber),
		zap.String("session_id", session.SessionID),
		zap.Time("expires_at", session.ExpiresAt))

	return nil
}

func (r *SessionRepository) Get(ctx context.Context, phoneNumber string) (*model.OTPSession, error) {
	session := &model.OTPSession{}

	query := r.client.Prepared.GetSession.WithContext(ctx).Bind(phoneNumber)

	err := r.client.ScanWithRetry(query,
		&session.PhoneNumber, &session.SessionID, &session.CodeHash, &session.CodeSalt,
		&session.CreatedAt, &session.ExpiresAt, &session.Attempts, &session.Used)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, service.ErrSessionNotFound
		}
		util.Error("Failed to get OTP session",
			zap.String("phone_number", phoneNumber),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get OTP session: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) IncrementAttempts(ctx context.Context, phoneNumber string) error {
	// Attempts are read then conditionally written so a superseding session
	// created in between is left untouched.
	session, err := r.Get(ctx, phoneNumber)
	if err != nil {
		return err
	}

	query := r.client.Prepared.IncrementAttempts.WithContext(ctx).Bind(
		session.Attempts+1, phoneNumber, session.SessionID)

	applied, err := query.MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to increment OTP attempts",
			zap.String("phone_number", phoneNumber),
			zap.Error(err))
		return fmt.Errorf("failed to increment OTP attempts: %w", err)
	}
	if !applied {
		return service.ErrSessionNotFound
	}

	return nil
}

func (r *SessionRepository) MarkUsed(ctx context.Context, phoneNumber, sessionID string) error {
	query := r.client.Prepared.MarkSessionUsed.WithContext(ctx).Bind(phoneNumber, sessionID)

	applied, err := query.MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to mark OTP session used",
			zap.String("phone_number", phoneNumber),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("failed to mark OTP session used: %w", err)
	}
	if !applied {
		return service.ErrSessionNotFound
	}

	util.Info("OTP session marked used",
		zap.String("phone_number", phoneNumber),
		zap.String("session_id", sessionID))

	return nil
}
