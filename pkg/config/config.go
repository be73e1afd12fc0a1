package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"licensedesk/pkg/client"
	"licensedesk/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port        string
	StoreDriver string

	RedisAddr     string
	RedisPassword string

	KafkaEnabled bool

	JWTSecret string

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PublicBaseURL   string
	S3AccessKeyID     string
	S3SecretAccessKey string

	SlotTimeZone        string
	SlotLocation        *time.Location
	DefaultHoldDuration time.Duration
	SoonThreshold       time.Duration
	UrgentThreshold     time.Duration
	CountdownInterval   time.Duration
	SweepInterval       time.Duration

	CheckoutBaseURL           string
	VoucherCheckoutStorageKey string
	PendingActionTTL          time.Duration
	MaxUploadSize             int64

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

// Load reads configuration from the environment, optionally seeded from a
// .env file in the working directory. Invalid configuration is fatal.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := FromEnv()
	cfg.Log = logger.New(logger.Config{
		Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from environment variables without validating it
// or attaching a logger.
func FromEnv() *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port:        getEnvStr(EnvPort, DefaultPort),
		StoreDriver: strings.ToLower(getEnvStr(EnvStoreDriver, DefaultStoreDriver)),

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),

		KafkaEnabled: getEnvBool(EnvKafkaEnabled, false),

		JWTSecret: getEnvStr(EnvJWTSecret, ""),

		S3Bucket:          getEnvStr(EnvS3Bucket, ""),
		S3Region:          getEnvStr(EnvS3Region, DefaultS3Region),
		S3Endpoint:        getEnvStr(EnvS3Endpoint, ""),
		S3PublicBaseURL:   strings.TrimRight(getEnvStr(EnvS3PublicBaseURL, ""), "/"),
		S3AccessKeyID:     getEnvStr(EnvS3AccessKeyID, ""),
		S3SecretAccessKey: getEnvStr(EnvS3SecretAccessKey, ""),

		SlotTimeZone:        getEnvStr(EnvSlotTimeZone, DefaultSlotTimeZone),
		DefaultHoldDuration: getEnvDuration(EnvDefaultHoldDuration, DefaultHoldDuration),
		SoonThreshold:       getEnvDuration(EnvSoonThreshold, DefaultSoonThreshold),
		UrgentThreshold:     getEnvDuration(EnvUrgentThreshold, DefaultUrgentThreshold),
		CountdownInterval:   getEnvDuration(EnvCountdownInterval, DefaultCountdownInterval),
		SweepInterval:       getEnvDuration(EnvSweepInterval, DefaultSweepInterval),

		CheckoutBaseURL:           getEnvStr(EnvCheckoutBaseURL, DefaultCheckoutBaseURL),
		VoucherCheckoutStorageKey: getEnvStr(EnvVoucherCheckoutStorageKey, DefaultVoucherCheckoutKey),
		PendingActionTTL:          getEnvDuration(EnvPendingActionTTL, DefaultPendingActionTTL),
		MaxUploadSize:             int64(getEnvNum(EnvMaxUploadSize, DefaultMaxUploadSize)),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Client: client.NewClient(),
	}

	if loc, err := time.LoadLocation(cfg.SlotTimeZone); err == nil {
		cfg.SlotLocation = loc
	}
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, DefaultRedisTimeout)
}

// SetS3 is a no-op when no bucket is configured; uploads are then disabled.
func (cfg *Config) SetS3() {
	if cfg.S3Bucket == "" {
		cfg.Log.Warn("S3_BUCKET not set, uploads disabled")
		return
	}
	cfg.Client.SetS3(cfg.Log, client.S3Settings{
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
}

func (cfg *Config) UsesMongo() bool {
	return cfg.StoreDriver == StoreDriverMongo
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreDriver {
	case StoreDriverMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	case StoreDriverMemory:
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be %q or %q, got: %s", StoreDriverMongo, StoreDriverMemory, cfg.StoreDriver))
	}

	if len(cfg.JWTSecret) < 32 {
		errors = append(errors, "JWTSecret must be at least 32 characters")
	}

	if cfg.SlotLocation == nil {
		errors = append(errors, fmt.Sprintf("SlotTimeZone must be a valid IANA time zone, got: %s", cfg.SlotTimeZone))
	}
	if cfg.DefaultHoldDuration <= 0 {
		errors = append(errors, fmt.Sprintf("DefaultHoldDuration must be positive, got: %s", cfg.DefaultHoldDuration))
	}
	if cfg.UrgentThreshold <= 0 {
		errors = append(errors, fmt.Sprintf("UrgentThreshold must be positive, got: %s", cfg.UrgentThreshold))
	}
	if cfg.SoonThreshold <= cfg.UrgentThreshold {
		errors = append(errors, fmt.Sprintf("SoonThreshold (%s) must be greater than UrgentThreshold (%s)", cfg.SoonThreshold, cfg.UrgentThreshold))
	}
	if cfg.CountdownInterval <= 0 {
		errors = append(errors, fmt.Sprintf("CountdownInterval must be positive, got: %s", cfg.CountdownInterval))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}

	if u, err := url.Parse(cfg.CheckoutBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("CheckoutBaseURL must be an absolute URL, got: %s", cfg.CheckoutBaseURL))
	}
	if strings.TrimSpace(cfg.VoucherCheckoutStorageKey) == "" {
		errors = append(errors, "VoucherCheckoutStorageKey cannot be empty")
	}
	if cfg.PendingActionTTL <= 0 {
		errors = append(errors, fmt.Sprintf("PendingActionTTL must be positive, got: %s", cfg.PendingActionTTL))
	}
	if cfg.MaxUploadSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxUploadSize must be positive, got: %d", cfg.MaxUploadSize))
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_driver", cfg.StoreDriver,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"kafka_enabled", cfg.KafkaEnabled,
		"port", cfg.Port,
		"jwt_secret_set", cfg.JWTSecret != "",
		"s3_bucket", cfg.S3Bucket,
		"s3_region", cfg.S3Region,
		"s3_endpoint", cfg.S3Endpoint,
		"slot_time_zone", cfg.SlotTimeZone,
		"default_hold_duration", cfg.DefaultHoldDuration,
		"soon_threshold", cfg.SoonThreshold,
		"urgent_threshold", cfg.UrgentThreshold,
		"countdown_interval", cfg.CountdownInterval,
		"sweep_interval", cfg.SweepInterval,
		"checkout_base_url", cfg.CheckoutBaseURL,
		"pending_action_ttl", cfg.PendingActionTTL,
		"max_upload_size", cfg.MaxUploadSize,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultPaginationPageLimit
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
