// Package cache implements the TTL roster cache that fronts the personnel
// directory. The storage medium is injected, so the same freshness rules
// apply whether the entry lives in Redis, a browser-like local store, or a
// test map.
package cache

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"rostergate/internal/model"
	"rostergate/internal/util"
)

const rosterKey = "roster_snapshot"

// Storage is the minimal string key-value capability the cache needs.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

type entry struct {
	Data              []model.RosterEntry `json:"data"`
	Timestamp         time.Time           `json:"timestamp"`
	LastManualRefresh *time.Time          `json:"last_manual_refresh,omitempty"`
}

// RosterCache caches the personnel roster snapshot with lazy TTL eviction.
// An entry older than the TTL, or one that fails to parse, is cleared and
// reported absent rather than served.
type RosterCache struct {
	storage Storage
	ttl     time.Duration
	now     func() time.Time
}

func NewRosterCache(storage Storage, ttl time.Duration) *RosterCache {
	return &RosterCache{
		storage: storage,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the time source for tests.
func (c *RosterCache) WithClock(now func() time.Time) *RosterCache {
	c.now = now
	return c
}

// Get returns the cached roster, or ok=false when the cache is empty, stale,
// or corrupt. Stale and corrupt entries are removed as a side effect.
func (c *RosterCache) Get() ([]model.RosterEntry, bool, error) {
	raw, ok, err := c.storage.Get(rosterKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		util.Warn("Roster cache entry corrupt, clearing", zap.Error(err))
		_ = c.storage.Remove(rosterKey)
		return nil, false, nil
	}

	if c.now().Sub(e.Timestamp) > c.ttl {
		util.Debug("Roster cache entry stale, clearing",
			zap.Time("cached_at", e.Timestamp),
			zap.Duration("ttl", c.ttl))
		_ = c.storage.Remove(rosterKey)
		return nil, false, nil
	}

	return e.Data, true, nil
}

// Set stores a fresh snapshot. The manual-refresh stamp is only advanced for
// operator-initiated refreshes, so a routine refetch does not mask when an
// administrator last forced one.
func (c *RosterCache) Set(data []model.RosterEntry, isManualRefresh bool) error {
	now := c.now()

	e := entry{
		Data:      data,
		Timestamp: now,
	}

	if prev, ok, _ := c.rawEntry(); ok && prev.LastManualRefresh != nil {
		e.LastManualRefresh = prev.LastManualRefresh
	}
	if isManualRefresh {
		e.LastManualRefresh = &now
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.storage.Set(rosterKey, string(raw))
}

// Clear drops the cached snapshot.
func (c *RosterCache) Clear() error {
	return c.storage.Remove(rosterKey)
}

// Age returns how old the cached snapshot is; ok=false when there is no
// parseable entry.
func (c *RosterCache) Age() (time.Duration, bool) {
	e, ok, _ := c.rawEntry()
	if !ok {
		return 0, false
	}
	return c.now().Sub(e.Timestamp), true
}

// LastManualRefresh returns when an operator last forced a refresh.
func (c *RosterCache) LastManualRefresh() (time.Time, bool) {
	e, ok, _ := c.rawEntry()
	if !ok || e.LastManualRefresh == nil {
		return time.Time{}, false
	}
	return *e.LastManualRefresh, true
}

// rawEntry reads the stored entry without TTL enforcement.
func (c *RosterCache) rawEntry() (entry, bool, error) {
	raw, ok, err := c.storage.Get(rosterKey)
	if err != nil || !ok {
		return entry{}, false, err
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return entry{}, false, nil
	}
	return e, true, nil
}

// MemoryStorage is a map-backed Storage for tests and single-process use.
type MemoryStorage struct {
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	delete(m.values, key)
	return nil
}
