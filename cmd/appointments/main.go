package main

import (
	"net/http"

	appointmenthandler "appointease/internal/appointments/handler"
	appointmentrepository "appointease/internal/appointments/repository"
	appointmentservice "appointease/internal/appointments/service"
	"appointease/internal/appointments/validator"
	"appointease/internal/availability"
	availabilityhandler "appointease/internal/availability/handler"
	availabilityservice "appointease/internal/availability/service"
	"appointease/internal/conflicts"
	"appointease/internal/events"
	"appointease/internal/idempotency"
	otphandler "appointease/internal/otp/handler"
	otprepository "appointease/internal/otp/repository"
	otpservice "appointease/internal/otp/service"
	lockhandler "appointease/internal/slotlocks/handler"
	lockrepository "appointease/internal/slotlocks/repository"
	lockservice "appointease/internal/slotlocks/service"
	"appointease/pkg/app"
	"appointease/pkg/clock"
	"appointease/pkg/config"
	httputil "appointease/pkg/http"
	"appointease/pkg/kafka"
	kafka_config "appointease/pkg/kafka/config"
	kafkamiddleware "appointease/pkg/kafka/middleware"
	"appointease/pkg/metrics"
	"appointease/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const ServiceName = "appointments"

// routes mounts every API handler. Lock and OTP endpoints get their own
// per-IP limiter on top of the global one.
type routes struct {
	appointments *appointmenthandler.AppointmentHandler
	availability *availabilityhandler.AvailabilityHandler
	locks        *lockhandler.LockHandler
	otp          *otphandler.OtpHandler
	lockLimit    func(http.Handler) http.Handler
	otpLimit     func(http.Handler) http.Handler
}

func (r *routes) RegisterRoutes(router *httprouter.Router) {
	r.appointments.RegisterRoutes(router)
	r.availability.RegisterRoutes(router)
	r.locks.RegisterRoutes(router, r.lockLimit)
	r.otp.RegisterRoutes(router, r.otpLimit)
}

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Appointments service")
	serverApp := app.NewApplication(cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	serverApp.SetApp(initServices(cfg, serverApp, recorder), registry)
	serverApp.Run()
}

func initServices(cfg *config.Config, serverApp *app.Application, recorder metrics.Recorder) *routes {
	clk := clock.NewRealClock()
	calendar := availability.NewCalendar(cfg, clk)

	var (
		appointmentRepo appointmentrepository.AppointmentRepository
		challengeRepo   otprepository.ChallengeRepository
		store           idempotency.Store
		lockRepo        lockrepository.LockRepository
	)

	switch cfg.StoreBackend {
	case config.StoreBackendMongo:
		cfg.SetMongo()
		appointmentRepo = appointmentrepository.NewMongoAppointmentRepository(cfg)
		challengeRepo = otprepository.NewMongoChallengeRepository(cfg)
		store = idempotency.NewMongoStore(cfg, clk)
	default:
		appointmentRepo = appointmentrepository.NewMemoryAppointmentRepository()
		challengeRepo = otprepository.NewMemoryChallengeRepository()
		store = idempotency.NewMemoryStore(cfg.IdempotencyTTL, clk)
	}

	switch cfg.LockBackend {
	case config.LockBackendRedis:
		cfg.SetRedis()
		lockRepo = lockrepository.NewRedisLockRepository(cfg.Client.Redis, clk)
	default:
		lockRepo = lockrepository.NewMemoryLockRepository(clk)
	}

	publisher := initPublisher(cfg, recorder)

	locks := lockservice.NewLockService(lockRepo, calendar, cfg, recorder)
	appointments := appointmentservice.NewAppointmentService(
		appointmentRepo,
		store,
		validator.NewAppointmentValidator(calendar, cfg.Log),
		conflicts.NewResolver(appointmentRepo, calendar, cfg.SuggestionHorizonDays),
		locks,
		publisher,
		cfg,
		clk,
		recorder,
	)
	availabilitySvc := availabilityservice.NewAvailabilityService(appointmentRepo, locks, calendar, cfg)
	otp := otpservice.NewOtpService(challengeRepo, publisher, cfg, clk, recorder)

	clientIP := httputil.NewClientIPResolver(cfg.TrustedProxyNets())
	lockLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Name:     "slot_locks",
		Requests: cfg.LockRateLimit,
		Window:   cfg.LockRateWindow,
		Key:      clientIP.ClientIP,
	}, cfg.Log)
	otpLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Name:     "otp",
		Requests: cfg.OTPRateLimit,
		Window:   cfg.OTPRateWindow,
		Key:      clientIP.ClientIP,
	}, cfg.Log)

	serverApp.OnShutdown(lockLimiter.Stop)
	serverApp.OnShutdown(otpLimiter.Stop)
	serverApp.OnShutdown(appointments.Stop)
	serverApp.OnShutdown(locks.Stop)
	serverApp.OnShutdown(store.Stop)
	serverApp.OnShutdown(func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close event publisher", "error", err)
		}
	})
	serverApp.OnShutdown(cfg.GracefulShutdown)

	cfg.Log.Info("Appointment services initialized",
		"store_backend", cfg.StoreBackend,
		"lock_backend", cfg.LockBackend,
		"events_enabled", cfg.EventsEnabled,
	)

	return &routes{
		appointments: appointmenthandler.NewAppointmentHandler(appointments, cfg.Log),
		availability: availabilityhandler.NewAvailabilityHandler(availabilitySvc, cfg.Log),
		locks:        lockhandler.NewLockHandler(locks, cfg.Log),
		otp:          otphandler.NewOtpHandler(otp, cfg.Log),
		lockLimit:    lockLimiter.Middleware(),
		otpLimit:     otpLimiter.Middleware(),
	}
}

func initPublisher(cfg *config.Config, recorder metrics.Recorder) events.Publisher {
	if !cfg.EventsEnabled {
		cfg.Log.Info("Event publishing disabled")
		return events.NoopPublisher{}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log, cfg.EventsTopic, cfg.EventsDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafkamiddleware.MetricsProducerMiddleware(recorder))

	cfg.Log.Info("Publishing events to Kafka", "topic", cfg.EventsTopic)
	return events.NewKafkaPublisher(producer, cfg.Log)
}
