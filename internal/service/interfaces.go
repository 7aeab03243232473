package service

import (
	"context"
	"errors"

	"rostergate/internal/model"
)

// SessionStore persists at most one verification session per phone number.
// Put overwrites any existing session for the same phone (last-writer-wins
// supersede semantics).
type SessionStore interface {
	Put(ctx context.Context, session *model.OTPSession) error
	// Get returns ErrSessionNotFound when no session exists for the phone.
	Get(ctx context.Context, phoneNumber string) (*model.OTPSession, error)
	IncrementAttempts(ctx context.Context, phoneNumber string) error
	// MarkUsed flips the used flag for the given session. The session ID
	// guards against marking a superseding session by accident.
	MarkUsed(ctx context.Context, phoneNumber, sessionID string) error
}

// RateLimiter performs an atomic check-and-increment on a phone's request
// window. Two concurrent checks for the same phone must never both pass when
// only one slot remains.
type RateLimiter interface {
	Check(ctx context.Context, phoneNumber string) (model.RateLimitDecision, error)
}

// Directory is the authorized-personnel store, queried by hashed key only.
type Directory interface {
	GetByKey(ctx context.Context, key string) (*model.PersonnelRecord, error)
	// MarkRegistered flips registered from false to true exactly once;
	// returns ErrAlreadyRegistered if the flip already happened.
	MarkRegistered(ctx context.Context, bucket int, key string) error
	Insert(ctx context.Context, record *model.PersonnelRecord) error
	ListAll(ctx context.Context) ([]model.RosterEntry, error)
}

// ErrRecordNotFound is what Directory implementations return on a miss; the
// service translates it into ErrNotAuthorized at the boundary.
var ErrRecordNotFound = errors.New("record not found")
