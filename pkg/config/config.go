package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"sync"
	"time"

	"appointease/pkg/client"
	"appointease/pkg/logger"
	"appointease/pkg/model"

	"github.com/kelseyhightower/envconfig"
)

var (
	timeOfDayRegex  = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	mongoURIRegex   = regexp.MustCompile(`^mongodb(\+srv)?://`)
	credentialRegex = regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
)

type Config struct {
	MongoURI          string        `envconfig:"MONGO_URI"`
	MongoDatabaseName string        `envconfig:"MONGO_DATABASE_NAME"`
	MongoConnTimeout  time.Duration `envconfig:"MONGO_CONN_TIMEOUT"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`

	StoreBackend string `envconfig:"STORE_BACKEND"`
	LockBackend  string `envconfig:"LOCK_BACKEND"`

	EventsEnabled  bool   `envconfig:"EVENTS_ENABLED"`
	EventsTopic    string `envconfig:"APPOINTMENT_EVENTS_TOPIC"`
	EventsDLQTopic string `envconfig:"APPOINTMENT_EVENTS_DLQ_TOPIC"`
	NotifierGroup  string `envconfig:"NOTIFIER_GROUP_ID"`
	WebhookURL     string `envconfig:"WEBHOOK_URL"`

	Port           string `envconfig:"PORT"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED"`

	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW"`
	LockRateLimit     int           `envconfig:"LOCK_RATE_LIMIT"`
	LockRateWindow    time.Duration `envconfig:"LOCK_RATE_WINDOW"`
	BookingRateLimit  int           `envconfig:"BOOKING_RATE_LIMIT"`
	BookingRateWindow time.Duration `envconfig:"BOOKING_RATE_WINDOW"`
	OTPRateLimit      int           `envconfig:"OTP_RATE_LIMIT"`
	OTPRateWindow     time.Duration `envconfig:"OTP_RATE_WINDOW"`

	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the peer address is used.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL"`
	MaxRequestSize int           `envconfig:"MAX_REQUEST_SIZE"`

	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`

	TimeZone              string        `envconfig:"TIMEZONE"`
	BusinessStart         string        `envconfig:"BUSINESS_START"`
	BusinessEnd           string        `envconfig:"BUSINESS_END"`
	SlotDuration          time.Duration `envconfig:"SLOT_DURATION"`
	WorkingDays           []int         `envconfig:"WORKING_DAYS"`
	AdvanceBookingDays    int           `envconfig:"ADVANCE_BOOKING_DAYS"`
	PastGrace             time.Duration `envconfig:"PAST_GRACE"`
	SuggestionCount       int           `envconfig:"SUGGESTION_COUNT"`
	SuggestionHorizonDays int           `envconfig:"SUGGESTION_HORIZON_DAYS"`
	BookingTimeout        time.Duration `envconfig:"BOOKING_TIMEOUT"`

	LockTTL    time.Duration `envconfig:"LOCK_TTL"`
	LockMaxTTL time.Duration `envconfig:"LOCK_MAX_TTL"`

	OTPLength      int           `envconfig:"OTP_LENGTH"`
	OTPTTL         time.Duration `envconfig:"OTP_TTL"`
	OTPMaxAttempts int           `envconfig:"OTP_MAX_ATTEMPTS"`
	OTPTimeout     time.Duration `envconfig:"OTP_TIMEOUT"`
	OTPHashCost    int           `envconfig:"OTP_HASH_COST"`
	OTPDemoMode    bool          `envconfig:"OTP_DEMO_MODE"`

	Log    *logger.Logger `ignored:"true"`
	Client *client.Client `ignored:"true"`

	locOnce  sync.Once
	location *time.Location
}

// Defaults returns a configuration populated only from the Default* values.
func Defaults() *Config {
	return &Config{
		MongoURI:          DefaultMongoURI,
		MongoDatabaseName: DefaultMongoDatabaseName,
		MongoConnTimeout:  DefaultMongoConnTimeout,

		RedisAddr: DefaultRedisAddr,

		StoreBackend: DefaultStoreBackend,
		LockBackend:  DefaultLockBackend,

		EventsEnabled:  true,
		EventsTopic:    DefaultEventsTopic,
		EventsDLQTopic: DefaultEventsDLQTopic,
		NotifierGroup:  DefaultNotifierGroup,

		Port:           DefaultPort,
		LogLevel:       DefaultLogLevel,
		MetricsEnabled: true,

		RateLimitRequests: DefaultRateLimitRequests,
		RateLimitWindow:   DefaultRateLimitWindow,
		LockRateLimit:     DefaultLockRateLimit,
		LockRateWindow:    DefaultLockRateWindow,
		BookingRateLimit:  DefaultBookingRateLimit,
		OTPRateLimit:      DefaultOTPRateLimit,
		OTPRateWindow:     DefaultOTPRateWindow,
		BookingRateWindow: DefaultBookingRateWindow,

		RequestTimeout: DefaultRequestTimeout,
		IdempotencyTTL: DefaultIdempotencyTTL,
		MaxRequestSize: DefaultMaxRequestSize,

		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,

		TimeZone:              DefaultTimeZone,
		BusinessStart:         DefaultBusinessStart,
		BusinessEnd:           DefaultBusinessEnd,
		SlotDuration:          DefaultSlotDuration,
		WorkingDays:           append([]int(nil), DefaultWorkingDays...),
		AdvanceBookingDays:    DefaultAdvanceBookingDays,
		PastGrace:             DefaultPastGrace,
		SuggestionCount:       DefaultSuggestionCount,
		SuggestionHorizonDays: DefaultSuggestionHorizonDays,
		BookingTimeout:        DefaultBookingTimeout,

		LockTTL:    DefaultLockTTL,
		LockMaxTTL: DefaultLockMaxTTL,

		OTPLength:      DefaultOTPLength,
		OTPTTL:         DefaultOTPTTL,
		OTPMaxAttempts: DefaultOTPMaxAttempts,
		OTPTimeout:     DefaultOTPTimeout,
		OTPHashCost:    DefaultOTPHashCost,

		Log:    logger.Discard(),
		Client: client.NewClient(),
	}
}

// Load reads the environment over Defaults, validates, and logs the result.
// It exits the process on invalid configuration.
func Load(serviceName string) *Config {
	cfg := Defaults()
	err := envconfig.Process("", cfg)

	cfg.Log = logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})
	if err != nil {
		cfg.Log.Fatal("Failed to read configuration from environment", "error", err)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreBackend {
	case StoreBackendMongo:
		if !mongoURIRegex.MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	case StoreBackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("StoreBackend must be one of [mongo, memory], got: %s", cfg.StoreBackend))
	}

	switch cfg.LockBackend {
	case LockBackendRedis:
		if cfg.RedisAddr == "" {
			errors = append(errors, "RedisAddr cannot be empty when LockBackend is redis")
		}
	case LockBackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("LockBackend must be one of [redis, memory], got: %s", cfg.LockBackend))
	}

	if cfg.EventsEnabled && cfg.EventsTopic == "" {
		errors = append(errors, "EventsTopic cannot be empty when events are enabled")
	}

	if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
		errors = append(errors, fmt.Sprintf("TimeZone is not a valid IANA zone, got: %s", cfg.TimeZone))
	}
	if !timeOfDayRegex.MatchString(cfg.BusinessStart) {
		errors = append(errors, fmt.Sprintf("BusinessStart must be in HH:MM format (00:00-23:59), got: %s", cfg.BusinessStart))
	}
	if !timeOfDayRegex.MatchString(cfg.BusinessEnd) {
		errors = append(errors, fmt.Sprintf("BusinessEnd must be in HH:MM format (00:00-23:59), got: %s", cfg.BusinessEnd))
	}
	if timeOfDayRegex.MatchString(cfg.BusinessStart) && timeOfDayRegex.MatchString(cfg.BusinessEnd) && cfg.BusinessEnd <= cfg.BusinessStart {
		errors = append(errors, fmt.Sprintf("BusinessEnd (%s) must be after BusinessStart (%s)", cfg.BusinessEnd, cfg.BusinessStart))
	}
	if cfg.SlotDuration < time.Minute || cfg.SlotDuration%time.Minute != 0 {
		errors = append(errors, fmt.Sprintf("SlotDuration must be a positive whole number of minutes, got: %s", cfg.SlotDuration))
	}
	if len(cfg.WorkingDays) == 0 {
		errors = append(errors, "WorkingDays must contain at least one day")
	}
	for _, d := range cfg.WorkingDays {
		if d < 0 || d > 7 {
			errors = append(errors, fmt.Sprintf("WorkingDays entries must be between 0 and 7, got: %d", d))
		}
	}
	if cfg.AdvanceBookingDays <= 0 {
		errors = append(errors, fmt.Sprintf("AdvanceBookingDays must be positive, got: %d", cfg.AdvanceBookingDays))
	}
	if cfg.PastGrace < 0 {
		errors = append(errors, fmt.Sprintf("PastGrace cannot be negative, got: %s", cfg.PastGrace))
	}
	if cfg.SuggestionCount < 0 {
		errors = append(errors, fmt.Sprintf("SuggestionCount cannot be negative, got: %d", cfg.SuggestionCount))
	}
	if cfg.SuggestionHorizonDays < 0 {
		errors = append(errors, fmt.Sprintf("SuggestionHorizonDays cannot be negative, got: %d", cfg.SuggestionHorizonDays))
	}

	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"LockRateWindow", cfg.LockRateWindow},
		{"BookingRateWindow", cfg.BookingRateWindow},
		{"OTPRateWindow", cfg.OTPRateWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"BookingTimeout", cfg.BookingTimeout},
		{"LockTTL", cfg.LockTTL},
		{"LockMaxTTL", cfg.LockMaxTTL},
		{"OTPTTL", cfg.OTPTTL},
		{"OTPTimeout", cfg.OTPTimeout},
	}
	for _, d := range positiveDurations {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}
	if cfg.LockMaxTTL < cfg.LockTTL {
		errors = append(errors, fmt.Sprintf("LockMaxTTL (%s) must be >= LockTTL (%s)", cfg.LockMaxTTL, cfg.LockTTL))
	}

	positiveInts := []struct {
		name  string
		value int
	}{
		{"RateLimitRequests", cfg.RateLimitRequests},
		{"LockRateLimit", cfg.LockRateLimit},
		{"BookingRateLimit", cfg.BookingRateLimit},
		{"OTPRateLimit", cfg.OTPRateLimit},
		{"MaxRequestSize", cfg.MaxRequestSize},
		{"OTPMaxAttempts", cfg.OTPMaxAttempts},
	}
	for _, n := range positiveInts {
		if n.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %d", n.name, n.value))
		}
	}
	for _, proxy := range cfg.TrustedProxies {
		if _, err := parseProxy(proxy); err != nil {
			errors = append(errors, fmt.Sprintf("TrustedProxies entry must be an IP or CIDR, got: %s", proxy))
		}
	}
	if cfg.OTPLength < 4 || cfg.OTPLength > 10 {
		errors = append(errors, fmt.Sprintf("OTPLength must be between 4 and 10, got: %d", cfg.OTPLength))
	}
	if cfg.OTPHashCost < 4 || cfg.OTPHashCost > 31 {
		errors = append(errors, fmt.Sprintf("OTPHashCost must be between 4 and 31, got: %d", cfg.OTPHashCost))
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
		"store_backend", cfg.StoreBackend,
		"lock_backend", cfg.LockBackend,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"redis_addr", cfg.RedisAddr,
		"events_enabled", cfg.EventsEnabled,
		"events_topic", cfg.EventsTopic,
		"webhook_set", cfg.WebhookURL != "",
		"port", cfg.Port,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"time_zone", cfg.TimeZone,
		"business_hours", cfg.BusinessStart+"-"+cfg.BusinessEnd,
		"slot_duration", cfg.SlotDuration,
		"working_days", cfg.WorkingDays,
		"advance_booking_days", cfg.AdvanceBookingDays,
		"booking_timeout", cfg.BookingTimeout,
		"booking_rate_limit", cfg.BookingRateLimit,
		"booking_rate_window", cfg.BookingRateWindow,
		"otp_rate_limit", cfg.OTPRateLimit,
		"otp_rate_window", cfg.OTPRateWindow,
		"trusted_proxies", cfg.TrustedProxies,
		"lock_ttl", cfg.LockTTL,
		"lock_max_ttl", cfg.LockMaxTTL,
		"otp_ttl", cfg.OTPTTL,
		"otp_max_attempts", cfg.OTPMaxAttempts,
		"otp_demo_mode", cfg.OTPDemoMode,
	)
}

// Location returns the zone slot dates are interpreted in.
func (cfg *Config) Location() *time.Location {
	cfg.locOnce.Do(func() {
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			loc = time.UTC
		}
		cfg.location = loc
	})
	return cfg.location
}

// BusinessHours builds the bookable calendar from the configured hours and days.
func (cfg *Config) BusinessHours() model.BusinessHours {
	days := make([]time.Weekday, 0, len(cfg.WorkingDays))
	for _, d := range cfg.WorkingDays {
		days = append(days, time.Weekday(d%7))
	}
	start, _ := model.ParseClock(cfg.BusinessStart)
	end, _ := model.ParseClock(cfg.BusinessEnd)
	return model.BusinessHours{
		Start:        start,
		End:          end,
		SlotDuration: cfg.SlotDuration,
		WorkingDays:  days,
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func redactMongoURI(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

// TrustedProxyNets parses TrustedProxies. Invalid entries are skipped;
// Validate reports them.
func (cfg *Config) TrustedProxyNets() []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cfg.TrustedProxies))
	for _, proxy := range cfg.TrustedProxies {
		if n, err := parseProxy(proxy); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

func parseProxy(s string) (*net.IPNet, error) {
	if _, n, err := net.ParseCIDR(s); err == nil {
		return n, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid proxy %q", s)
	}
	bits := 8 * net.IPv6len
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, 8*net.IPv4len
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}
