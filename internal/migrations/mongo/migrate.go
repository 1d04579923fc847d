package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appointmentsrepository "appointease/internal/appointments/repository"
	"appointease/internal/idempotency"
	"appointease/internal/migrations/mongo/validators"
	otprepository "appointease/internal/otp/repository"
	"appointease/pkg/logger"
)

var (
	// AppointmentsIndexes carry the occupancy guarantee: at most one
	// confirmed appointment per (employee, date, time).
	AppointmentsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "employee_id", Value: 1},
				{Key: "date", Value: 1},
				{Key: "time", Value: 1},
			},
			Options: options.Index().
				SetName("uniq_confirmed_slot").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "confirmed"}),
		},
		{
			Keys:    bson.D{{Key: "strong_id", Value: 1}},
			Options: options.Index().SetName("uniq_strong_id").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "customer.email", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("customer_email_created"),
		},
	}

	IdempotencyIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
		},
	}

	OtpChallengesIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
		},
	}
)

type CollectionDef struct {
	Name      string
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// Collections lists everything the service stores in Mongo.
func Collections() []CollectionDef {
	return []CollectionDef{
		{
			Name:      appointmentsrepository.CollectionName,
			Indexes:   AppointmentsIndexes,
			Validator: validators.AppointmentValidator,
		},
		{
			Name: appointmentsrepository.CountersCollection,
		},
		{
			Name:      idempotency.CollectionName,
			Indexes:   IdempotencyIndexes,
			Validator: validators.IdempotencyKeyValidator,
		},
		{
			Name:      otprepository.CollectionName,
			Indexes:   OtpChallengesIndexes,
			Validator: validators.OtpChallengeValidator,
		},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for _, def := range Collections() {
		if err := ensureCollection(ctx, db, def.Name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.Name, err)
		}
		if err := ensureIndexes(ctx, db, def.Name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.Name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator == nil {
		return nil
	}
	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
