package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"appointease/internal/health"
	"appointease/pkg/config"
	httputil "appointease/pkg/http"
	"appointease/pkg/metrics"
	"appointease/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
)

// Routes mounts the API endpoints of a service.
type Routes interface {
	RegisterRoutes(*httprouter.Router)
}

type Application struct {
	cfg            *config.Config
	server         *http.Server
	rateLimiter    *middleware.RateLimiter
	healthHandler  http.Handler
	metricsHandler http.Handler
	appHTTPHandler http.Handler
	stoppers       []func()
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// OnShutdown registers fn to run after the server has drained, in
// registration order.
func (a *Application) OnShutdown(fn func()) {
	a.stoppers = append(a.stoppers, fn)
}

// SetApp builds the handler chains. gatherer may be nil to skip /metrics.
func (a *Application) SetApp(routes Routes, gatherer prometheus.Gatherer) {
	a.setHealthHandler()
	a.setMetricsHandler(gatherer)
	a.setAppHandler(routes)
	a.setAppServer()
}

func (a *Application) setHealthHandler() {
	healthRouter := httprouter.New()
	health.NewHealthHandler(a.cfg.Client.Mongo, a.cfg.Client.Redis, a.cfg.Log).RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setMetricsHandler(gatherer prometheus.Gatherer) {
	if gatherer == nil || !a.cfg.MetricsEnabled {
		return
	}
	a.metricsHandler = middleware.Recovery(a.cfg.Log)(metrics.Handler(gatherer))
	a.cfg.Log.Info("Metrics endpoint enabled", "path", "/metrics")
}

func (a *Application) setAppHandler(routes Routes) {
	appRouter := httprouter.New()
	routes.RegisterRoutes(appRouter)

	a.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Name:     "api",
		Requests: a.cfg.RateLimitRequests,
		Window:   a.cfg.RateLimitWindow,
		Key:      httputil.NewClientIPResolver(a.cfg.TrustedProxyNets()).ClientIP,
	}, a.cfg.Log)

	var appHTTPHandler http.Handler = appRouter
	appHTTPHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHTTPHandler)
	appHTTPHandler = a.rateLimiter.Middleware()(appHTTPHandler)
	appHTTPHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHTTPHandler)
	appHTTPHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHTTPHandler)
	appHTTPHandler = middleware.RequestLogging(a.cfg.Log)(appHTTPHandler)
	appHTTPHandler = middleware.Recovery(a.cfg.Log)(appHTTPHandler)
	a.appHTTPHandler = appHTTPHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setAppServer() {
	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

// Handler is the root mux: health, metrics and the API.
func (a *Application) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	if a.metricsHandler != nil {
		mux.Handle("/metrics", a.metricsHandler)
	}
	mux.Handle("/", a.appHTTPHandler)
	return mux
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.stop()
			a.cfg.Log.Fatal("HTTP server failed", "error", err)
		}

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.stop()
	a.cfg.Log.Info("Server stopped gracefully")
}

func (a *Application) stop() {
	a.cfg.Log.Info("Stopping background workers...")
	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
	for _, fn := range a.stoppers {
		fn()
	}
	a.cfg.Log.Info("Background workers stopped")
}
