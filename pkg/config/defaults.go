package config

import "time"

const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "licensedesk"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort        = "8080"
	DefaultLogLevel    = "info"
	DefaultStoreDriver = StoreDriverMongo

	DefaultRedisTimeout = 3 * time.Second

	DefaultS3Region = "us-east-1"

	DefaultSlotTimeZone        = "UTC"
	DefaultHoldDuration        = 10 * time.Minute
	DefaultSoonThreshold       = 24 * time.Hour
	DefaultUrgentThreshold     = 2 * time.Hour
	DefaultCountdownInterval   = 1 * time.Second
	DefaultSweepInterval       = 1 * time.Minute
	DefaultPendingActionTTL    = 15 * time.Minute
	DefaultMaxUploadSize       = 5 * 1024 * 1024 // 5MB
	DefaultCheckoutBaseURL     = "http://localhost:3000/checkout"
	DefaultVoucherCheckoutKey  = "pending_voucher_checkout"
	DefaultPaginationLimit     = 100
	DefaultPaginationPageLimit = 10
	DefaultCatalogLimit        = 200
	MaxCatalogLimit            = 500

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)
