package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"appointease/pkg/model"
)

var (
	// ErrFingerprintMismatch means the key was first used with a different request.
	ErrFingerprintMismatch = errors.New("idempotency key reused with a different request")

	// ErrInProgress means another request still holds the key.
	ErrInProgress = errors.New("idempotency key is held by an in-flight request")

	// ErrNotClaimed is returned by Complete when no pending claim exists.
	ErrNotClaimed = errors.New("idempotency key is not claimed")
)

// PendingLease bounds how long a claim survives a holder that never
// completes or abandons it.
const PendingLease = 30 * time.Second

// pollInterval is how often a waiter re-reads a pending claim it cannot be
// notified about.
const pollInterval = 25 * time.Millisecond

// Store maps idempotency keys to the first completed outcome.
type Store interface {
	// GetOrCreate claims key for the caller and returns nil, or returns the
	// completed record for a matching fingerprint. A pending claim held by
	// someone else is waited on until ctx is done, then ErrInProgress.
	GetOrCreate(ctx context.Context, key, fingerprint string) (*model.IdempotencyRecord, error)
	Complete(ctx context.Context, key string, statusCode int, body []byte) error
	// Abandon drops a pending claim so a retry executes again.
	Abandon(ctx context.Context, key string) error
	Stop()
}

// Fingerprint hashes the canonical JSON form of request.
func Fingerprint(request any) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
