package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"rostergate/internal/hashing"
	"rostergate/internal/model"
	"rostergate/internal/service"
	"rostergate/internal/util"
)

// PersonnelRepository is the authorized-personnel directory backed by the
// authorized_personnel table, partitioned by (bucket, id_hash). The bucket is
// a murmur3 hash of the lookup key, which keeps partitions small and lets the
// roster snapshot scan per bucket instead of a full-table scan.
type PersonnelRepository struct {
	client  *ScyllaClient
	buckets int
}

func NewPersonnelRepository(client *ScyllaClient, buckets int) *PersonnelRepository {
	return &PersonnelRepository{
		client:  client,
		buckets: buckets,
	}
}

// BucketFor returns the partition bucket for a lookup key.
func (r *PersonnelRepository) BucketFor(key string) int {
	return int(murmur3.Sum64([]byte(key)) % uint64(r.buckets))
}

func (r *PersonnelRepository) GetByKey(ctx context.Context, key string) (*model.PersonnelRecord, error) {
	rec := &model.PersonnelRecord{}

	query := r.client.Prepared.GetPersonnelByKey.WithContext(ctx).Bind(r.BucketFor(key), key)

	err := r.client.ScanWithRetry(query,
		&rec.Bucket, &rec.IDHash, &rec.Salt, &rec.Checksum,
		&rec.PhoneNumber, &rec.FirstName, &rec.LastName, &rec.Rank,
		&rec.Registered, &rec.ImportedAt, &rec.RegisteredAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, service.ErrRecordNotFound
		}
		util.Error("Failed to get personnel record", zap.Error(err))
		return nil, fmt.Errorf("failed to get personnel record: %w", err)
	}

	if !hashing.VerifyProfileChecksum(rec.Checksum, rec.Salt,
		rec.PhoneNumber, rec.FirstName, rec.LastName, rec.Rank) {
		util.Warn("Personnel record failed checksum verification",
			zap.Int("bucket", rec.Bucket))
		return nil, fmt.Errorf("personnel record corrupt: checksum mismatch")
	}

	return rec, nil
}

func (r *PersonnelRepository) MarkRegistered(ctx context.Context, bucket int, key string) error {
	now := time.Now().UTC()
	query := r.client.Prepared.MarkRegistered.WithContext(ctx).Bind(now, bucket, key)

	applied, err := query.MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to mark roster entry registered", zap.Error(err))
		return fmt.Errorf("failed to mark roster entry registered: %w", err)
	}
	if !applied {
		return service.ErrAlreadyRegistered
	}

	util.Info("Roster entry consumed by registration", zap.Int("bucket", bucket))
	return nil
}

func (r *PersonnelRepository) Insert(ctx context.Context, record *model.PersonnelRecord) error {
	query := r.client.Prepared.InsertPersonnel.WithContext(ctx).Bind(
		record.Bucket, record.IDHash, record.Salt, record.Checksum,
		record.PhoneNumber, record.FirstName, record.LastName, record.Rank,
		record.Registered, record.ImportedAt, record.RegisteredAt)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to insert personnel record", zap.Error(err))
		return fmt.Errorf("failed to insert personnel record: %w", err)
	}

	return nil
}

func (r *PersonnelRepository) ListAll(ctx context.Context) ([]model.RosterEntry, error) {
	var entries []model.RosterEntry

	for bucket := 0; bucket < r.buckets; bucket++ {
		iter := r.client.Prepared.ListPersonnelBucket.WithContext(ctx).Bind(bucket).Iter()

		var e model.RosterEntry
		for iter.Scan(&e.PhoneNumber, &e.FirstName, &e.LastName, &e.Rank) {
			entries = append(entries, e)
		}
		if err := iter.Close(); err != nil {
			util.Error("Failed to list personnel bucket",
				zap.Int("bucket", bucket),
				zap.Error(err))
			return nil, fmt.Errorf("failed to list personnel bucket %d: %w", bucket, err)
		}
	}

	return entries, nil
}
