package main

import (
	"context"
	"os"
	"time"

	"appointease/internal/probe"
	"appointease/pkg/client"
	"appointease/pkg/logger"

	"github.com/kelseyhightower/envconfig"
)

const ServiceName = "probe"

func main() {
	log := logger.New(logger.Config{
		Level:   logger.INFO,
		Format:  logger.JSON,
		Service: ServiceName,
	})

	var cfg probe.Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Failed to read probe configuration", "error", err)
	}
	if cfg.Date == "" {
		cfg.Date = nextWeekday(time.Now()).Format("2006-01-02")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	api := client.NewAppointmentsClient(cfg.BaseURL)
	if err := api.HTTP().WaitForHealthy(ctx, 10*time.Second); err != nil {
		log.Fatal("API is not healthy", "base_url", cfg.BaseURL, "error", err)
	}

	log.Info("Starting booking probe",
		"base_url", cfg.BaseURL,
		"concurrency", cfg.Concurrency,
		"employee_id", cfg.EmployeeID,
		"date", cfg.Date,
		"time", cfg.Time,
		"shared_key", cfg.SharedKey,
	)

	report, err := probe.Run(ctx, api, cfg)
	if err != nil {
		log.Fatal("Probe failed", "error", err)
	}

	for _, e := range report.Errors {
		log.Warn("Probe error", "error", e)
	}
	if !report.Healthy() {
		log.Error("Probe found a problem", "report", report.String())
		os.Exit(1)
	}
	log.Info("Probe passed", "report", report.String())
}

// nextWeekday is the first Monday-to-Friday date after t.
func nextWeekday(t time.Time) time.Time {
	d := t.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
