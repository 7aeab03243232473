// Package memory provides mutex-guarded in-memory implementations of the
// registration stores. They back development runs without Redis/Scylla and
// serve as fakes in tests; semantics match the production implementations.
package memory

import (
	"context"
	"sync"
	"time"

	"rostergate/internal/model"
	"rostergate/internal/service"
)

// -------------------- SESSION STORE --------------------

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.OTPSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*model.OTPSession)}
}

func (s *SessionStore) Put(ctx context.Context, session *model.OTPSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.PhoneNumber] = &cp
	return nil
}

func (s *SessionStore) Get(ctx context.Context, phoneNumber string) (*model.OTPSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[phoneNumber]
	if !ok {
		return nil, service.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *SessionStore) IncrementAttempts(ctx context.Context, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[phoneNumber]
	if !ok {
		return service.ErrSessionNotFound
	}
	sess.Attempts++
	return nil
}

func (s *SessionStore) MarkUsed(ctx context.Context, phoneNumber, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[phoneNumber]
	if !ok || sess.SessionID != sessionID {
		return service.ErrSessionNotFound
	}
	sess.Used = true
	return nil
}

// -------------------- RATE LIMITER --------------------

type window struct {
	start time.Time
	count int
}

// RateLimiter implements a fixed counting window per phone number. The mutex
// makes check-and-increment atomic, matching the Lua script of the Redis
// implementation.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// WithClock overrides the time source for tests.
func (r *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	r.now = now
	return r
}

func (r *RateLimiter) Check(ctx context.Context, phoneNumber string) (model.RateLimitDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[phoneNumber]
	if !ok || !now.Before(w.start.Add(r.period)) {
		w = &window{start: now}
		r.windows[phoneNumber] = w
	}

	reset := w.start.Add(r.period)
	if w.count >= r.limit {
		return model.RateLimitDecision{
			Allowed:           false,
			AttemptsRemaining: 0,
			ResetTime:         reset,
		}, nil
	}

	w.count++
	return model.RateLimitDecision{
		Allowed:           true,
		AttemptsRemaining: r.limit - w.count,
		ResetTime:         reset,
	}, nil
}

// -------------------- DIRECTORY --------------------

type Directory struct {
	mu      sync.Mutex
	records map[string]*model.PersonnelRecord
}

func NewDirectory() *Directory {
	return &Directory{records: make(map[string]*model.PersonnelRecord)}
}

func (d *Directory) GetByKey(ctx context.Context, key string) (*model.PersonnelRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[key]
	if !ok {
		return nil, service.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (d *Directory) MarkRegistered(ctx context.Context, bucket int, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[key]
	if !ok {
		return service.ErrRecordNotFound
	}
	if rec.Registered {
		return service.ErrAlreadyRegistered
	}
	now := time.Now().UTC()
	rec.Registered = true
	rec.RegisteredAt = &now
	return nil
}

func (d *Directory) Insert(ctx context.Context, record *model.PersonnelRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *record
	d.records[record.IDHash] = &cp
	return nil
}

func (d *Directory) ListAll(ctx context.Context) ([]model.RosterEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := make([]model.RosterEntry, 0, len(d.records))
	for _, rec := range d.records {
		entries = append(entries, model.RosterEntry{
			PhoneNumber: rec.PhoneNumber,
			FirstName:   rec.FirstName,
			LastName:    rec.LastName,
			Rank:        rec.Rank,
		})
	}
	return entries, nil
}
