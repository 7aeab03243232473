package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting for the service. Values are read from
// the environment, with a .env file honored in development.
type Config struct {
	Environment string

	Server    ServerConfig
	Redis     RedisConfig
	Scylla    ScyllaConfig
	Kafka     KafkaConfig
	Twilio    TwilioConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
	Lookup    LookupConfig
	Cache     CacheConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
	AdminToken   string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Enabled  bool
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	AuditTopic string
}

type TwilioConfig struct {
	Enabled    bool
	AccountSID string
	AuthToken  string
	FromNumber string
}

// OTPConfig controls code generation and verification.
type OTPConfig struct {
	CodeLength        int
	Lifetime          time.Duration
	MaxVerifyAttempts int
	SMSSendTimeout    time.Duration
	CodePepper        string
}

// RateLimitConfig controls the per-phone send limit.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// LookupConfig controls identifier normalization and the keyed roster lookup.
type LookupConfig struct {
	HMACSecret    string
	MinIDDigits   int
	MaxIDDigits   int
	RosterBuckets int
}

type CacheConfig struct {
	RosterTTL time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment. A .env file is loaded
// first if present so local runs need no exported variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TLSCertFile:  getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:   getEnv("TLS_KEY_FILE", ""),
			AdminToken:   getEnv("ADMIN_TOKEN", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Scylla: ScyllaConfig{
			Enabled:  getEnvBool("SCYLLA_ENABLED", false),
			Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "rostergate"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled:    getEnvBool("KAFKA_ENABLED", false),
			Brokers:    getEnvList("KAFKA_BROKERS", "localhost:9092"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "rostergate.audit"),
		},
		Twilio: TwilioConfig{
			Enabled:    getEnvBool("TWILIO_ENABLED", false),
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		},
		OTP: OTPConfig{
			CodeLength:        getEnvInt("OTP_CODE_LENGTH", 6),
			Lifetime:          getEnvDuration("OTP_LIFETIME", 5*time.Minute),
			MaxVerifyAttempts: getEnvInt("OTP_MAX_VERIFY_ATTEMPTS", 5),
			SMSSendTimeout:    getEnvDuration("OTP_SMS_SEND_TIMEOUT", 10*time.Second),
			CodePepper:        getEnv("OTP_CODE_PEPPER", ""),
		},
		RateLimit: RateLimitConfig{
			Limit:  getEnvInt("RATE_LIMIT_MAX_SENDS", 3),
			Window: getEnvDuration("RATE_LIMIT_WINDOW", 10*time.Minute),
		},
		Lookup: LookupConfig{
			HMACSecret:    getEnv("LOOKUP_HMAC_SECRET", ""),
			MinIDDigits:   getEnvInt("LOOKUP_MIN_ID_DIGITS", 5),
			MaxIDDigits:   getEnvInt("LOOKUP_MAX_ID_DIGITS", 7),
			RosterBuckets: getEnvInt("LOOKUP_ROSTER_BUCKETS", 16),
		},
		Cache: CacheConfig{
			RosterTTL: getEnvDuration("ROSTER_CACHE_TTL", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IsProduction() {
		if c.Lookup.HMACSecret == "" {
			return fmt.Errorf("LOOKUP_HMAC_SECRET is required in production")
		}
		if c.OTP.CodePepper == "" {
			return fmt.Errorf("OTP_CODE_PEPPER is required in production")
		}
		if c.Server.AdminToken == "" {
			return fmt.Errorf("ADMIN_TOKEN is required in production")
		}
		if c.Twilio.Enabled && (c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.FromNumber == "") {
			return fmt.Errorf("twilio credentials are incomplete")
		}
	} else {
		// Local development falls back to fixed, obviously insecure values.
		if c.Lookup.HMACSecret == "" {
			c.Lookup.HMACSecret = "dev-insecure-lookup-secret"
		}
		if c.OTP.CodePepper == "" {
			c.OTP.CodePepper = "dev-insecure-pepper"
		}
		if c.Server.AdminToken == "" {
			c.Server.AdminToken = "dev-admin-token"
		}
	}

	if c.OTP.CodeLength < 4 || c.OTP.CodeLength > 10 {
		return fmt.Errorf("OTP_CODE_LENGTH must be between 4 and 10, got %d", c.OTP.CodeLength)
	}
	if c.Lookup.MinIDDigits < 1 || c.Lookup.MaxIDDigits < c.Lookup.MinIDDigits {
		return fmt.Errorf("invalid identifier digit bounds: min=%d max=%d", c.Lookup.MinIDDigits, c.Lookup.MaxIDDigits)
	}
	if c.Lookup.RosterBuckets < 1 {
		return fmt.Errorf("LOOKUP_ROSTER_BUCKETS must be positive, got %d", c.Lookup.RosterBuckets)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
