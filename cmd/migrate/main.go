package main

import (
	"context"
	"time"

	mongoMigration "appointease/internal/migrations/mongo"
	"appointease/pkg/config"
)

const (
	JobName = "mongo-migration"

	migrationTimeout = 120 * time.Second
)

func main() {
	cfg := config.Load(JobName)
	if cfg.StoreBackend != config.StoreBackendMongo {
		cfg.Log.Info("Store backend is not Mongo, nothing to migrate", "store_backend", cfg.StoreBackend)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()

	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Mongo migration job")
	if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
		cfg.Log.Error("Migration failed", "error", err)
		cancel()
		cfg.GracefulShutdown()
		cfg.Log.Fatal("Migration job aborted")
	}
	cfg.Log.Info("Migration completed successfully")
}
