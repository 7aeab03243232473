package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/spaolacci/murmur3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rostergate/internal/cache"
	"rostergate/internal/config"
	"rostergate/internal/hashing"
	"rostergate/internal/model"
	"rostergate/internal/repository/memory"
	"rostergate/internal/service"
)

type personnelFixture struct {
	svc     *service.PersonnelService
	dir     *memory.Directory
	auditor *capturingPublisher
	cache   *cache.RosterCache
}

func newPersonnelFixture(t *testing.T) *personnelFixture {
	t.Helper()

	f := &personnelFixture{
		dir:     memory.NewDirectory(),
		auditor: &capturingPublisher{},
		cache:   cache.NewRosterCache(cache.NewMemoryStorage(), 24*time.Hour),
	}

	cfg := config.LookupConfig{
		HMACSecret:    "test-secret",
		MinIDDigits:   5,
		MaxIDDigits:   7,
		RosterBuckets: 16,
	}

	f.svc = service.NewPersonnelService(
		f.dir,
		hashing.NewHasher(cfg.HMACSecret, "test-pepper"),
		f.cache,
		f.auditor,
		cfg,
		func(key string) int { return int(murmur3.Sum64([]byte(key)) % 16) },
	)

	return f
}

func (f *personnelFixture) importEntry(t *testing.T, id string) {
	t.Helper()
	res, err := f.svc.ImportRoster(context.Background(), []service.RosterImportEntry{{
		Identifier:  id,
		PhoneNumber: "+972501234567",
		FirstName:   "Noa",
		LastName:    "Levi",
		Rank:        "Sergeant",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)
	require.Equal(t, 0, res.Failed)
}

func TestLookupReleasesProfileFields(t *testing.T) {
	ctx := context.Background()
	f := newPersonnelFixture(t)
	f.importEntry(t, "1234567")

	entry, err := f.svc.Lookup(ctx, "1234567")
	require.NoError(t, err)
	assert.Equal(t, "+972501234567", entry.PhoneNumber)
	assert.Equal(t, "Noa", entry.FirstName)
	assert.Equal(t, "Levi", entry.LastName)
	assert.Equal(t, "Sergeant", entry.Rank)
}

func TestLookupNormalizesIdentifier(t *testing.T) {
	ctx := context.Background()
	f := newPersonnelFixture(t)
	f.importEntry(t, "1234567")

	entry, err := f.svc.Lookup(ctx, " 123-45 67 ")
	require.NoError(t, err)
	assert.Equal(t, "Noa", entry.FirstName)
}

func TestLookupUnknownIdentifier(t *testing.T) {
	f := newPersonnelFixture(t)
	f.importEntry(t, "1234567")

	_, err := f.svc.Lookup(context.Background(), "7654321")
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
}

func TestLookupInvalidIdentifier(t *testing.T) {
	f := newPersonnelFixture(t)

	for _, id := range []string{"", "1234", "12345678", "abc"} {
		_, err := f.svc.Lookup(context.Background(), id)
		assert.ErrorIs(t, err, service.ErrInvalidInput, "identifier %q", id)
	}
}

func TestLookupConsumedEntryReportsAlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	f := newPersonnelFixture(t)
	f.importEntry(t, "1234567")

	require.NoError(t, f.svc.CompleteRegistration(ctx, "1234567"))

	_, err := f.svc.Lookup(ctx, "1234567")
	assert.ErrorIs(t, err, service.ErrAlreadyRegistered)
}

func TestCompleteRegistrationIsSingleShot(t *testing.T) {
	ctx := context.Background()
	f := newPersonnelFixture(t)
	f.importEntry(t, "1234567")

	require.NoError(t, f.svc.CompleteRegistration(ctx, "1234567"))

	err := f.svc.CompleteRegistration(ctx, "1234567")
	assert.ErrorIs(t, err, service.ErrAlreadyRegistered)
}

func TestCompleteRegistrationUnknownIdentifier(t *testing.T) {
	f := newPersonnelFixture(t)

	err := f.svc.CompleteRegistration(context.Background(), "9999999")
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
}

func TestImportRosterCollectsPerEntryFailures(t *testing.T) {
	f := newPersonnelFixture(t)

	res, err := f.svc.ImportRoster(context.Background(), []service.RosterImportEntry{
		{Identifier: "1234567", PhoneNumber: "+972501234567", FirstName: "Noa", LastName: "Levi", Rank: "Sergeant"},
		{Identifier: "12", PhoneNumber: "+972501111111", FirstName: "Bad", LastName: "ID", Rank: "Private"},
		{Identifier: "7654321", PhoneNumber: "not-a-phone", FirstName: "Bad", LastName: "Phone", Rank: "Private"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Errors, 2)
}

func TestRosterServedFromCache(t *testing.T) {
	ctx := context.Background()
	f := newPersonnelFixture(t)
	f.importEntry(t, "1234567")

	first, err := f.svc.Roster(ctx, false)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A direct directory write bypassing the import path is invisible until
	// the cache expires or an operator forces a refresh.
	f.importEntryDirect(t, "7654321")

	cached, err := f.svc.Roster(ctx, false)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	refreshed, err := f.svc.Roster(ctx, true)
	require.NoError(t, err)
	assert.Len(t, refreshed, 2)
}

// importEntryDirect inserts into the directory without going through
// ImportRoster, so the roster cache is left untouched.
func (f *personnelFixture) importEntryDirect(t *testing.T, id string) {
	t.Helper()
	h := hashing.NewHasher("test-secret", "test-pepper")
	key := h.IdentifierKey(id)
	salt, err := hashing.NewRecordSalt()
	require.NoError(t, err)

	require.NoError(t, f.dir.Insert(context.Background(), &model.PersonnelRecord{
		Bucket:      int(murmur3.Sum64([]byte(key)) % 16),
		IDHash:      key,
		Salt:        salt,
		Checksum:    hashing.ProfileChecksum(salt, "+972502222222", "Amit", "Cohen", "Corporal"),
		PhoneNumber: "+972502222222",
		FirstName:   "Amit",
		LastName:    "Cohen",
		Rank:        "Corporal",
		ImportedAt:  time.Now().UTC(),
	}))
}

func TestImportClearsRosterCache(t *testing.T) {
	ctx := context.Background()
	f := newPersonnelFixture(t)
	f.importEntry(t, "1234567")

	_, err := f.svc.Roster(ctx, false)
	require.NoError(t, err)
	_, ok := f.cache.Age()
	require.True(t, ok)

	f.importEntry(t, "7654321")
	_, ok = f.cache.Age()
	assert.False(t, ok, "import must invalidate the cached snapshot")

	roster, err := f.svc.Roster(ctx, false)
	require.NoError(t, err)
	assert.Len(t, roster, 2)
}
