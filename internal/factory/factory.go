package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rostergate/internal/audit"
	"rostergate/internal/cache"
	"rostergate/internal/client"
	"rostergate/internal/config"
	"rostergate/internal/hashing"
	"rostergate/internal/otp"
	"rostergate/internal/repository/memory"
	redisrepo "rostergate/internal/repository/redis"
	"rostergate/internal/repository/scylla"
	"rostergate/internal/service"
	"rostergate/internal/sms"
	"rostergate/internal/util"

	"github.com/spaolacci/murmur3"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient  *client.RedisClient
	scyllaClient *scylla.ScyllaClient

	// Infrastructure
	hasher      *hashing.Hasher
	sessions    service.SessionStore
	limiter     service.RateLimiter
	directory   service.Directory
	bucketFor   func(key string) int
	rosterCache *cache.RosterCache
	gateway     sms.Gateway
	auditor     audit.Publisher

	// Services
	otpService       *service.OTPService
	personnelService *service.PersonnelService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeInfrastructure()
	factory.initializeServices()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("redis_enabled", cfg.Redis.Enabled),
		util.Bool("scylla_enabled", cfg.Scylla.Enabled),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("twilio_enabled", cfg.Twilio.Enabled),
	)

	return factory, nil
}

// initializeClients connects the configured backing stores with health checks.
// In development a failed or disabled backend falls back to the in-memory
// implementation; in production any failure is fatal.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Redis.Enabled {
		if redisClient, err := client.NewRedisClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = redisClient
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			} else {
				util.Info("Redis client initialized and healthy")
			}
		}
	}

	if f.config.Scylla.Enabled {
		if scyllaClient, err := scylla.NewScyllaClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = scyllaClient
			if err := f.scyllaClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			} else {
				util.Info("ScyllaDB client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeInfrastructure builds the stores, limiter, cache, SMS gateway and
// audit publisher on top of whichever clients came up.
func (f *Factory) initializeInfrastructure() {
	cfg := f.config

	f.hasher = hashing.NewHasher(cfg.Lookup.HMACSecret, cfg.OTP.CodePepper)

	if f.scyllaClient != nil {
		f.sessions = scylla.NewSessionRepository(f.scyllaClient)
		personnelRepo := scylla.NewPersonnelRepository(f.scyllaClient, cfg.Lookup.RosterBuckets)
		f.directory = personnelRepo
		f.bucketFor = personnelRepo.BucketFor
	} else {
		util.Warn("ScyllaDB unavailable, using in-memory session store and directory")
		f.sessions = memory.NewSessionStore()
		f.directory = memory.NewDirectory()
		buckets := uint64(cfg.Lookup.RosterBuckets)
		f.bucketFor = func(key string) int {
			return int(murmur3.Sum64([]byte(key)) % buckets)
		}
	}

	if f.redisClient != nil {
		f.limiter = redisrepo.NewRateLimiter(f.redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window)
		f.rosterCache = cache.NewRosterCache(redisrepo.NewStorage(f.redisClient, "roster:"), cfg.Cache.RosterTTL)
	} else {
		util.Warn("Redis unavailable, using in-memory rate limiter and cache storage")
		f.limiter = memory.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
		f.rosterCache = cache.NewRosterCache(cache.NewMemoryStorage(), cfg.Cache.RosterTTL)
	}

	if cfg.Twilio.Enabled {
		f.gateway = sms.NewTwilioGateway(cfg)
	} else {
		util.Warn("Twilio disabled, SMS codes are logged instead of sent")
		f.gateway = sms.NewNoopGateway()
	}

	if cfg.Kafka.Enabled {
		f.auditor = audit.NewKafkaPublisher(cfg)
	} else {
		f.auditor = audit.NewNoopPublisher()
	}
}

func (f *Factory) initializeServices() {
	f.otpService = service.NewOTPService(
		f.sessions,
		f.limiter,
		otp.NewCodeGenerator(f.config.OTP.CodeLength),
		f.hasher,
		f.gateway,
		f.auditor,
		f.config.OTP,
	)

	f.personnelService = service.NewPersonnelService(
		f.directory,
		f.hasher,
		f.rosterCache,
		f.auditor,
		f.config.Lookup,
		f.bucketFor,
	)
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.Redis.Enabled {
		if f.redisClient != nil {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				healthErrors["redis"] = err
			}
		} else {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		}
	}

	if f.config.Scylla.Enabled {
		if f.scyllaClient != nil {
			if err := f.scyllaClient.HealthCheck(ctx); err != nil {
				healthErrors["scylla"] = err
			}
		} else {
			healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.HealthCheck(ctx)) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.auditor != nil {
			if err := f.auditor.Close(); err != nil {
				util.Error("Failed to close audit publisher", util.ErrorField(err))
			} else {
				util.Info("Audit publisher closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) OTPService() *service.OTPService {
	return f.otpService
}

func (f *Factory) PersonnelService() *service.PersonnelService {
	return f.personnelService
}
