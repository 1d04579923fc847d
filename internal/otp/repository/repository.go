package repository

import (
	"context"
	"time"

	"appointease/pkg/model"
)

// ChallengeRepository keeps at most one challenge per email.
type ChallengeRepository interface {
	// Put replaces any previous challenge for the email.
	Put(ctx context.Context, challenge *model.OtpChallenge) error
	// IncrementAttempts atomically counts an attempt and returns the updated challenge.
	IncrementAttempts(ctx context.Context, email string) (*model.OtpChallenge, error)
	// Consume deletes the challenge issued at issuedAt and reports whether
	// this caller removed it.
	Consume(ctx context.Context, email string, issuedAt time.Time) (bool, error)
	Delete(ctx context.Context, email string) error
}
