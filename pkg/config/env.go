package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort        = "PORT"
	EnvLogLevel    = "LOG_LEVEL"
	EnvStoreDriver = "STORE_DRIVER"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"

	EnvKafkaEnabled = "KAFKA_ENABLED"

	EnvJWTSecret = "JWT_SECRET"

	EnvS3Bucket          = "S3_BUCKET"
	EnvS3Region          = "S3_REGION"
	EnvS3Endpoint        = "S3_ENDPOINT"
	EnvS3PublicBaseURL   = "S3_PUBLIC_BASE_URL"
	EnvS3AccessKeyID     = "S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "S3_SECRET_ACCESS_KEY"

	EnvSlotTimeZone        = "SLOT_TIME_ZONE"
	EnvDefaultHoldDuration = "DEFAULT_HOLD_DURATION"
	EnvSoonThreshold       = "SOON_THRESHOLD"
	EnvUrgentThreshold     = "URGENT_THRESHOLD"
	EnvCountdownInterval   = "COUNTDOWN_INTERVAL"
	EnvSweepInterval       = "SWEEP_INTERVAL"

	EnvCheckoutBaseURL           = "CHECKOUT_BASE_URL"
	EnvVoucherCheckoutStorageKey = "VOUCHER_CHECKOUT_STORAGE_KEY"
	EnvPendingActionTTL          = "PENDING_ACTION_TTL"
	EnvMaxUploadSize             = "MAX_UPLOAD_SIZE"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
