package repository

import (
	"context"
	"time"

	otperrors "appointease/internal/otp/errors"
	"appointease/pkg/config"
	mongodb "appointease/pkg/db/mongo"
	"appointease/pkg/model"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "otp_challenges"

// mongoChallengeRepository keys challenges by email. The TTL index on
// expires_at removes stale ones.
type mongoChallengeRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoChallengeRepository(cfg *config.Config) ChallengeRepository {
	return &mongoChallengeRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

func (r *mongoChallengeRepository) Put(ctx context.Context, challenge *model.OtpChallenge) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": challenge.Email},
		challenge,
		options.Replace().SetUpsert(true),
	)
	return errors.Wrap(err, "store otp challenge")
}

func (r *mongoChallengeRepository) IncrementAttempts(ctx context.Context, email string) (*model.OtpChallenge, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var challenge model.OtpChallenge
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": email},
		bson.M{"$inc": bson.M{"attempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&challenge)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, otperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "increment otp attempts")
	}
	return &challenge, nil
}

func (r *mongoChallengeRepository) Consume(ctx context.Context, email string, issuedAt time.Time) (bool, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": email, "issued_at": issuedAt})
	if err != nil {
		return false, errors.Wrap(err, "consume otp challenge")
	}
	return res.DeletedCount == 1, nil
}

func (r *mongoChallengeRepository) Delete(ctx context.Context, email string) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": email})
	return errors.Wrap(err, "delete otp challenge")
}
