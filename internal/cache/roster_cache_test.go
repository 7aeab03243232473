package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rostergate/internal/model"
)

var sampleRoster = []model.RosterEntry{
	{PhoneNumber: "+972501234567", FirstName: "Noa", LastName: "Levi", Rank: "Sergeant"},
	{PhoneNumber: "+972507654321", FirstName: "Amit", LastName: "Cohen", Rank: "Corporal"},
}

func newTestCache(ttl time.Duration, now *time.Time) (*RosterCache, *MemoryStorage) {
	storage := NewMemoryStorage()
	c := NewRosterCache(storage, ttl).WithClock(func() time.Time { return *now })
	return c, storage
}

func TestGetWithinTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c, _ := newTestCache(24*time.Hour, &now)

	require.NoError(t, c.Set(sampleRoster, false))

	now = now.Add(23 * time.Hour)
	data, ok, err := c.Get()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleRoster, data)
}

func TestGetAfterTTLClearsEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c, storage := newTestCache(24*time.Hour, &now)

	require.NoError(t, c.Set(sampleRoster, false))

	now = now.Add(24*time.Hour + time.Minute)
	_, ok, err := c.Get()
	require.NoError(t, err)
	assert.False(t, ok)

	_, stillThere, _ := storage.Get("roster_snapshot")
	assert.False(t, stillThere, "stale entry should be evicted on access")
}

func TestGetCorruptEntryClearedAndAbsent(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c, storage := newTestCache(24*time.Hour, &now)

	require.NoError(t, storage.Set("roster_snapshot", "{not json"))

	_, ok, err := c.Get()
	require.NoError(t, err)
	assert.False(t, ok)

	_, stillThere, _ := storage.Get("roster_snapshot")
	assert.False(t, stillThere)
}

func TestGetEmpty(t *testing.T) {
	now := time.Now()
	c, _ := newTestCache(time.Hour, &now)

	_, ok, err := c.Get()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManualRefreshStamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c, _ := newTestCache(24*time.Hour, &now)

	require.NoError(t, c.Set(sampleRoster, false))
	_, ok := c.LastManualRefresh()
	assert.False(t, ok, "routine refetch must not stamp a manual refresh")

	manualAt := now.Add(time.Hour)
	now = manualAt
	require.NoError(t, c.Set(sampleRoster, true))

	got, ok := c.LastManualRefresh()
	require.True(t, ok)
	assert.Equal(t, manualAt, got)

	// A later routine refetch keeps the old manual stamp.
	now = now.Add(time.Hour)
	require.NoError(t, c.Set(sampleRoster, false))

	got, ok = c.LastManualRefresh()
	require.True(t, ok)
	assert.Equal(t, manualAt, got)
}

func TestAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c, _ := newTestCache(24*time.Hour, &now)

	_, ok := c.Age()
	assert.False(t, ok)

	require.NoError(t, c.Set(sampleRoster, false))
	now = now.Add(90 * time.Minute)

	age, ok := c.Age()
	require.True(t, ok)
	assert.Equal(t, 90*time.Minute, age)
}

func TestClear(t *testing.T) {
	now := time.Now()
	c, _ := newTestCache(time.Hour, &now)

	require.NoError(t, c.Set(sampleRoster, false))
	require.NoError(t, c.Clear())

	_, ok, err := c.Get()
	require.NoError(t, err)
	assert.False(t, ok)
}
