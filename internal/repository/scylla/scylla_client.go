package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"rostergate/internal/config"
	"rostergate/internal/util"
)

// PreparedStatements holds the statements the repositories bind at runtime
type PreparedStatements struct {
	PutSession          *gocql.Query
	GetSession          *gocql.Query
	IncrementAttempts   *gocql.Query
	MarkSessionUsed     *gocql.Query
	GetPersonnelByKey   *gocql.Query
	InsertPersonnel     *gocql.Query
	MarkRegistered      *gocql.Query
	ListPersonnelBucket *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	// Sessions are keyed by phone_number alone; INSERT overwrites the row,
	// which is the supersede semantic the OTP manager relies on.
	prepared.PutSession = s.Session.Query(`
        INSERT INTO otp_sessions (
            phone_number, session_id, code_hash, code_salt,
            created_at, expires_at, attempts, used
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetSession = s.Session.Query(`
        SELECT phone_number, session_id, code_hash, code_salt,
            created_at, expires_at, attempts, used
        FROM otp_sessions WHERE phone_number = ?`)

	prepared.IncrementAttempts = s.Session.Query(`
        UPDATE otp_sessions SET attempts = ? WHERE phone_number = ? IF session_id = ?`)

	prepared.MarkSessionUsed = s.Session.Query(`
        UPDATE otp_sessions SET used = true WHERE phone_number = ? IF session_id = ?`)

	prepared.GetPersonnelByKey = s.Session.Query(`
        SELECT bucket, id_hash, salt, checksum, phone_number, first_name, last_name,
            rank, registered, imported_at, registered_at
        FROM authorized_personnel WHERE bucket = ? AND id_hash = ?`)

	prepared.InsertPersonnel = s.Session.Query(`
        INSERT INTO authorized_personnel (
            bucket, id_hash, salt, checksum, phone_number, first_name, last_name,
            rank, registered, imported_at, registered_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.MarkRegistered = s.Session.Query(`
        UPDATE authorized_personnel SET registered = true, registered_at = ?
        WHERE bucket = ? AND id_hash = ? IF registered = false`)

	prepared.ListPersonnelBucket = s.Session.Query(`
        SELECT phone_number, first_name, last_name, rank
        FROM authorized_personnel WHERE bucket = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 && err != gocql.ErrNotFound {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
			return lastErr
		}
		return nil
	}
	return lastErr
}
