package idempotency

import (
	"context"
	"time"

	"appointease/pkg/clock"
	"appointease/pkg/config"
	mongodb "appointease/pkg/db/mongo"
	"appointease/pkg/model"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const CollectionName = "idempotency_keys"

// mongoStore claims keys by inserting on the unique _id. Expired documents
// are removed by the TTL index on expires_at and ignored on read before that.
type mongoStore struct {
	cfg        *config.Config
	collection *mongo.Collection
	ttl        time.Duration
	clock      clock.Clock
}

func NewMongoStore(cfg *config.Config, clk clock.Clock) Store {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &mongoStore{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
		ttl:        cfg.IdempotencyTTL,
		clock:      clk,
	}
}

func (s *mongoStore) GetOrCreate(ctx context.Context, key, fingerprint string) (*model.IdempotencyRecord, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		claimed, err := s.tryClaim(ctx, key, fingerprint)
		if err != nil {
			return nil, err
		}
		if claimed {
			return nil, nil
		}

		record, err := s.find(ctx, key)
		if err != nil {
			return nil, err
		}
		switch {
		case record == nil:
			// abandoned between the insert and the read
			continue
		case record.Expired(s.clock.Now()):
			if err := s.deleteExpired(ctx, key); err != nil {
				return nil, err
			}
			continue
		case record.Fingerprint != fingerprint:
			return nil, ErrFingerprintMismatch
		case record.Completed():
			return record, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ErrInProgress
		}
	}
}

func (s *mongoStore) tryClaim(ctx context.Context, key, fingerprint string) (bool, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	now := s.clock.Now()
	_, err := s.collection.InsertOne(ctx, model.IdempotencyRecord{
		Key:         key,
		Fingerprint: fingerprint,
		State:       model.IdempotencyPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(PendingLease),
	})
	if err == nil {
		return true, nil
	}
	if mongodb.IsDuplicateKey(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "claim idempotency key")
}

func (s *mongoStore) find(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var record model.IdempotencyRecord
	if err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find idempotency record")
	}
	return &record, nil
}

func (s *mongoStore) deleteExpired(ctx context.Context, key string) error {
	ctx, cancel := mongodb.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	_, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":        key,
		"expires_at": bson.M{"$lte": s.clock.Now()},
	})
	return errors.Wrap(err, "delete expired idempotency record")
}

func (s *mongoStore) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	ctx, cancel := mongodb.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": key, "state": model.IdempotencyPending},
		bson.M{"$set": bson.M{
			"state":       model.IdempotencyCompleted,
			"status_code": statusCode,
			"body":        body,
			"expires_at":  s.clock.Now().Add(s.ttl),
		}},
	)
	if err != nil {
		return errors.Wrap(err, "complete idempotency record")
	}
	if res.MatchedCount == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *mongoStore) Abandon(ctx context.Context, key string) error {
	ctx, cancel := mongodb.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": key, "state": model.IdempotencyPending})
	return errors.Wrap(err, "abandon idempotency record")
}

func (s *mongoStore) Stop() {}
