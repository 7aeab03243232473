package model

import "time"

// -------------------- OTP SESSION MODEL --------------------

// OTPSession is the single active verification session for a phone number.
// Creating a new session for the same phone supersedes the previous one; the
// store keeps at most one row per phone_number.
type OTPSession struct {
	SessionID   string    `json:"session_id" db:"session_id"`     // UUID
	PhoneNumber string    `json:"phone_number" db:"phone_number"` // E.164 format, owning key
	CodeHash    string    `json:"-" db:"code_hash"`               // argon2id hash, never the raw code
	CodeSalt    string    `json:"-" db:"code_salt"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
	Attempts    int       `json:"attempts" db:"attempts"`
	Used        bool      `json:"used" db:"used"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *OTPSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// -------------------- RATE LIMIT MODEL --------------------

// RateLimitDecision is the outcome of an atomic check-and-increment on a
// phone's request window. ResetTime is exposed so denials can tell the caller
// when to retry.
type RateLimitDecision struct {
	Allowed           bool      `json:"allowed"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	ResetTime         time.Time `json:"reset_time"`
}

// -------------------- PERSONNEL MODELS --------------------

// PersonnelRecord is one pre-authorized roster entry, keyed by the keyed hash
// of the normalized military ID. The raw identifier is never stored.
type PersonnelRecord struct {
	Bucket       int        `json:"bucket" db:"bucket"`   // murmur3 partition bucket
	IDHash       string     `json:"id_hash" db:"id_hash"` // HMAC-SHA256 lookup key, hex
	Salt         string     `json:"-" db:"salt"`          // per-record randomness for the profile checksum
	Checksum     string     `json:"-" db:"checksum"`      // HMAC of the profile fields under Salt
	PhoneNumber  string     `json:"phone_number" db:"phone_number"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Rank         string     `json:"rank" db:"rank"`
	Registered   bool       `json:"registered" db:"registered"`
	ImportedAt   time.Time  `json:"imported_at" db:"imported_at"`
	RegisteredAt *time.Time `json:"registered_at,omitempty" db:"registered_at"`
}

// RosterEntry is the profile subset released to a verified candidate. The
// lookup key and salt never leave the server.
type RosterEntry struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Rank        string `json:"rank"`
}

// -------------------- AUDIT MODEL --------------------

const (
	AuditOTPRequested          = "otp.requested"
	AuditOTPVerified           = "otp.verified"
	AuditRegistrationCompleted = "registration.completed"
	AuditRosterImported        = "roster.imported"
)

// AuditEvent records a security-relevant action. Subject carries only derived
// references (phone number or lookup key), never a raw identifier.
type AuditEvent struct {
	Type    string            `json:"type"`
	Subject string            `json:"subject"`
	At      time.Time         `json:"at"`
	Fields  map[string]string `json:"fields,omitempty"`
}
