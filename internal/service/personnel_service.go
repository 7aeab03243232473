package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rostergate/internal/audit"
	"rostergate/internal/cache"
	"rostergate/internal/config"
	"rostergate/internal/hashing"
	"rostergate/internal/model"
	"rostergate/internal/util"
)

// PersonnelService answers roster lookups by hashed identifier and manages
// the roster's lifecycle: administrative import, registration consumption,
// and the cached snapshot.
type PersonnelService struct {
	directory   Directory
	hasher      *hashing.Hasher
	rosterCache *cache.RosterCache
	auditor     audit.Publisher
	cfg         config.LookupConfig
	bucketFor   func(key string) int
}

func NewPersonnelService(
	directory Directory,
	hasher *hashing.Hasher,
	rosterCache *cache.RosterCache,
	auditor audit.Publisher,
	cfg config.LookupConfig,
	bucketFor func(key string) int,
) *PersonnelService {
	return &PersonnelService{
		directory:   directory,
		hasher:      hasher,
		rosterCache: rosterCache,
		auditor:     auditor,
		cfg:         cfg,
		bucketFor:   bucketFor,
	}
}

// Lookup resolves an identifier to the profile subset released for
// registration pre-fill. The identifier is normalized and length-validated
// before hashing; the hash and salt never leave the server.
func (s *PersonnelService) Lookup(ctx context.Context, rawID string) (*model.RosterEntry, error) {
	id, err := util.NormalizeIdentifier(rawID, s.cfg.MinIDDigits, s.cfg.MaxIDDigits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	key := s.hasher.IdentifierKey(id)

	rec, err := s.directory.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, infraError("directory lookup", err)
	}

	if rec.Registered {
		return nil, ErrAlreadyRegistered
	}

	return &model.RosterEntry{
		PhoneNumber: rec.PhoneNumber,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		Rank:        rec.Rank,
	}, nil
}

// CompleteRegistration consumes the roster entry for an identifier, flipping
// registered exactly once. A second completion returns ErrAlreadyRegistered.
func (s *PersonnelService) CompleteRegistration(ctx context.Context, rawID string) error {
	id, err := util.NormalizeIdentifier(rawID, s.cfg.MinIDDigits, s.cfg.MaxIDDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	key := s.hasher.IdentifierKey(id)

	if err := s.directory.MarkRegistered(ctx, s.bucketFor(key), key); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			return ErrAlreadyRegistered
		}
		if errors.Is(err, ErrRecordNotFound) {
			return ErrNotAuthorized
		}
		return infraError("registration consume", err)
	}

	s.publishAudit(ctx, model.AuditEvent{
		Type:    model.AuditRegistrationCompleted,
		Subject: key,
		At:      time.Now().UTC(),
	})

	return nil
}

// RosterImportEntry is one row of an administrative roster import. The raw
// identifier is hashed on ingest and discarded.
type RosterImportEntry struct {
	Identifier  string `json:"identifier" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Rank        string `json:"rank" validate:"required"`
}

// ImportResult reports the outcome of a batch import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportRoster inserts a batch of roster entries concurrently. Individual
// failures are collected rather than aborting the batch, matching how
// operators re-run imports with the failed subset.
func (s *PersonnelService) ImportRoster(ctx context.Context, entries []RosterImportEntry) (*ImportResult, error) {
	if len(entries) == 0 {
		return &ImportResult{}, nil
	}

	result := &ImportResult{}
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	now := time.Now().UTC()

	for i, e := range entries {
		i, e := i, e

		g.Go(func() error {
			if err := s.importOne(ctx, e, now); err != nil {
				mu.Lock()
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", i, err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			result.Imported++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, infraError("roster import", err)
	}

	s.publishAudit(ctx, model.AuditEvent{
		Type:    model.AuditRosterImported,
		Subject: "roster",
		At:      now,
		Fields: map[string]string{
			"imported": fmt.Sprintf("%d", result.Imported),
			"failed":   fmt.Sprintf("%d", result.Failed),
		},
	})

	util.Info("Roster import completed",
		zap.Int("imported", result.Imported),
		zap.Int("failed", result.Failed))

	// The stored snapshot no longer reflects the directory.
	if err := s.rosterCache.Clear(); err != nil {
		util.Warn("Failed to clear roster cache after import", zap.Error(err))
	}

	return result, nil
}

func (s *PersonnelService) importOne(ctx context.Context, e RosterImportEntry, now time.Time) error {
	id, err := util.NormalizeIdentifier(e.Identifier, s.cfg.MinIDDigits, s.cfg.MaxIDDigits)
	if err != nil {
		return err
	}
	phone, err := util.NormalizePhone(e.PhoneNumber)
	if err != nil {
		return err
	}

	key := s.hasher.IdentifierKey(id)

	salt, err := hashing.NewRecordSalt()
	if err != nil {
		return err
	}

	rec := &model.PersonnelRecord{
		Bucket:      s.bucketFor(key),
		IDHash:      key,
		Salt:        salt,
		Checksum:    hashing.ProfileChecksum(salt, phone, e.FirstName, e.LastName, e.Rank),
		PhoneNumber: phone,
		FirstName:   e.FirstName,
		LastName:    e.LastName,
		Rank:        e.Rank,
		Registered:  false,
		ImportedAt:  now,
	}

	return s.directory.Insert(ctx, rec)
}

// Roster returns the roster snapshot, served from the cache when fresh. A
// manual refresh bypasses the cached copy and stamps the refresh time.
func (s *PersonnelService) Roster(ctx context.Context, manualRefresh bool) ([]model.RosterEntry, error) {
	if !manualRefresh {
		if data, ok, err := s.rosterCache.Get(); err == nil && ok {
			return data, nil
		} else if err != nil {
			util.Warn("Roster cache read failed, falling through to directory", zap.Error(err))
		}
	}

	entries, err := s.directory.ListAll(ctx)
	if err != nil {
		return nil, infraError("roster fetch", err)
	}

	if err := s.rosterCache.Set(entries, manualRefresh); err != nil {
		util.Warn("Failed to cache roster snapshot", zap.Error(err))
	}

	return entries, nil
}

// RosterCacheAge exposes the snapshot age for operator UIs.
func (s *PersonnelService) RosterCacheAge() (time.Duration, bool) {
	return s.rosterCache.Age()
}

func (s *PersonnelService) publishAudit(ctx context.Context, event model.AuditEvent) {
	if err := s.auditor.Publish(ctx, event); err != nil {
		util.Warn("Audit publish failed",
			zap.String("event_type", event.Type),
			zap.Error(err))
	}
}
