package repository

import (
	"context"
	"sync"
	"time"

	otperrors "appointease/internal/otp/errors"
	"appointease/pkg/model"
)

type memoryChallengeRepository struct {
	mu         sync.Mutex
	challenges map[string]model.OtpChallenge
}

func NewMemoryChallengeRepository() ChallengeRepository {
	return &memoryChallengeRepository{
		challenges: make(map[string]model.OtpChallenge),
	}
}

func (r *memoryChallengeRepository) Put(_ context.Context, challenge *model.OtpChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *challenge
	c.CodeHash = append([]byte(nil), challenge.CodeHash...)
	r.challenges[c.Email] = c
	return nil
}

func (r *memoryChallengeRepository) IncrementAttempts(_ context.Context, email string) (*model.OtpChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[email]
	if !ok {
		return nil, otperrors.ErrNotFound
	}
	c.Attempts++
	r.challenges[email] = c
	return &c, nil
}

func (r *memoryChallengeRepository) Consume(_ context.Context, email string, issuedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[email]
	if !ok || !c.IssuedAt.Equal(issuedAt) {
		return false, nil
	}
	delete(r.challenges, email)
	return true, nil
}

func (r *memoryChallengeRepository) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.challenges, email)
	return nil
}
