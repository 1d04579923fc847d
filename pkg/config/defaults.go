package config

import "time"

const (
	StoreBackendMongo  = "mongo"
	StoreBackendMemory = "memory"
	LockBackendRedis   = "redis"
	LockBackendMemory  = "memory"
)

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "appointease"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisAddr = "localhost:6379"

	DefaultStoreBackend = StoreBackendMongo
	DefaultLockBackend  = LockBackendRedis

	DefaultEventsTopic    = "appointease.events"
	DefaultEventsDLQTopic = "appointease.events.dlq"
	DefaultNotifierGroup  = "appointease-notifier"

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 120
	DefaultRateLimitWindow   = 1 * time.Minute
	DefaultLockRateLimit     = 5
	DefaultLockRateWindow    = 1 * time.Minute
	DefaultBookingRateLimit  = 3
	DefaultBookingRateWindow = 5 * time.Minute
	DefaultOTPRateLimit      = 5
	DefaultOTPRateWindow     = 10 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultTimeZone              = "UTC"
	DefaultBusinessStart         = "09:00"
	DefaultBusinessEnd           = "17:00"
	DefaultSlotDuration          = 60 * time.Minute
	DefaultAdvanceBookingDays    = 30
	DefaultPastGrace             = 60 * time.Second
	DefaultSuggestionCount       = 3
	DefaultSuggestionHorizonDays = 7
	DefaultBookingTimeout        = 5 * time.Second

	DefaultLockTTL    = 10 * time.Second
	DefaultLockMaxTTL = 30 * time.Second

	DefaultOTPLength      = 6
	DefaultOTPTTL         = 10 * time.Minute
	DefaultOTPMaxAttempts = 5
	DefaultOTPTimeout     = 3 * time.Second
	DefaultOTPHashCost    = 4
)

// DefaultWorkingDays are Monday through Friday as time.Weekday values.
var DefaultWorkingDays = []int{1, 2, 3, 4, 5}
