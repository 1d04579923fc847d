package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"appointease/internal/events"
	"appointease/pkg/config"
	"appointease/pkg/kafka"
	kafka_config "appointease/pkg/kafka/config"
	kafkamiddleware "appointease/pkg/kafka/middleware"
	"appointease/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

const ServiceName = "notifier"

func main() {
	cfg := config.Load(ServiceName)

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewCollector(registry)

	notifier := events.NewNotifier(cfg.WebhookURL, nil, cfg.Log)
	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.Log, cfg.EventsTopic, cfg.NotifierGroup, cfg.EventsDLQTopic, notifier.Handle)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(kafkamiddleware.MetricsConsumerMiddleware(recorder))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		server = &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadTimeout,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				cfg.Log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	cfg.Log.Info("Starting notifier",
		"topic", cfg.EventsTopic,
		"group", cfg.NotifierGroup,
		"webhook_enabled", cfg.WebhookURL != "",
	)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Consumer stopped", "error", err)
	}

	cfg.Log.Info("Shutting down notifier")
	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close consumer", "error", err)
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			cfg.Log.Error("Failed to stop metrics server", "error", err)
		}
	}
}
