package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	slotlockserrors "appointease/internal/slotlocks/errors"
	"appointease/pkg/clock"
	"appointease/pkg/model"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const (
	KeyPrefix = "appointease:slot_lock:"
	scanCount = 100
)

// Values are "<acquired unix ms>|<holder>" so a refresh keeps the original
// acquisition time.
var (
	releaseScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
if string.match(v, '^%d+|(.*)$') ~= ARGV[1] then return -1 end
return redis.call('DEL', KEYS[1])
`)

	refreshScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return false end
if string.match(v, '^%d+|(.*)$') ~= ARGV[1] then return false end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return v
`)
)

type redisLockRepository struct {
	rdb   *redis.Client
	clock clock.Clock
}

func NewRedisLockRepository(rdb *redis.Client, clk clock.Clock) LockRepository {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &redisLockRepository{rdb: rdb, clock: clk}
}

func (r *redisLockRepository) Backend() string {
	return "redis"
}

func redisKey(slot model.Slot) string {
	return KeyPrefix + lockKey(slot)
}

func encodeValue(acquiredAt time.Time, holder string) string {
	return strconv.FormatInt(acquiredAt.UnixMilli(), 10) + "|" + holder
}

func decodeValue(v string) (time.Time, string, error) {
	ms, holder, ok := strings.Cut(v, "|")
	if !ok {
		return time.Time{}, "", errors.Newf("malformed slot lock value %q", v)
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, "", errors.Wrapf(err, "malformed slot lock timestamp %q", ms)
	}
	return time.UnixMilli(n), holder, nil
}

// parseKey recovers the slot from a key built by redisKey.
func parseKey(key string) (model.Slot, error) {
	parts := strings.SplitN(strings.TrimPrefix(key, KeyPrefix), ":", 3)
	if len(parts) != 3 {
		return model.Slot{}, errors.Newf("malformed slot lock key %q", key)
	}
	employeeID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return model.Slot{}, errors.Wrapf(err, "malformed employee in slot lock key %q", key)
	}
	return model.Slot{EmployeeID: employeeID, Date: parts[1], Time: parts[2]}, nil
}

func (r *redisLockRepository) Acquire(ctx context.Context, slot model.Slot, holder string, ttl time.Duration) (*model.SlotLock, error) {
	key := redisKey(slot)

	// Two rounds cover a foreign lock expiring between SET and the lookup.
	for range 2 {
		now := r.clock.Now()
		err := r.rdb.Do(ctx, "SET", key, encodeValue(now, holder), "NX", "PX", ttl.Milliseconds()).Err()
		if err == nil {
			return &model.SlotLock{Slot: slot, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}, nil
		}
		if !errors.Is(err, redis.Nil) {
			return nil, errors.Wrap(err, "set slot lock")
		}

		v, err := refreshScript.Run(ctx, r.rdb, []string{key}, holder, ttl.Milliseconds()).Text()
		if err == nil {
			acquiredAt, _, decodeErr := decodeValue(v)
			if decodeErr != nil {
				return nil, decodeErr
			}
			return &model.SlotLock{Slot: slot, Holder: holder, AcquiredAt: acquiredAt, ExpiresAt: now.Add(ttl)}, nil
		}
		if !errors.Is(err, redis.Nil) {
			return nil, errors.Wrap(err, "refresh slot lock")
		}

		current, err := r.Get(ctx, slot)
		if err != nil {
			return nil, err
		}
		if current != nil {
			return nil, &slotlockserrors.LockedError{Lock: *current}
		}
	}
	return nil, errors.Newf("slot lock for %s kept changing hands", slot)
}

func (r *redisLockRepository) Release(ctx context.Context, slot model.Slot, holder string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.rdb, []string{redisKey(slot)}, holder).Int()
	if err != nil {
		return false, errors.Wrap(err, "release slot lock")
	}
	switch n {
	case 1:
		return true, nil
	case -1:
		return false, slotlockserrors.ErrNotHolder
	default:
		return false, nil
	}
}

func (r *redisLockRepository) Get(ctx context.Context, slot model.Slot) (*model.SlotLock, error) {
	return r.load(ctx, redisKey(slot), slot)
}

func (r *redisLockRepository) load(ctx context.Context, key string, slot model.Slot) (*model.SlotLock, error) {
	pipe := r.rdb.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "load slot lock")
	}

	v, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get slot lock")
	}
	remaining := ttlCmd.Val()
	if remaining <= 0 {
		// expired between GET and PTTL, or a key without expiry that we never write
		return nil, nil
	}

	acquiredAt, holder, err := decodeValue(v)
	if err != nil {
		return nil, err
	}
	return &model.SlotLock{
		Slot:       slot,
		Holder:     holder,
		AcquiredAt: acquiredAt,
		ExpiresAt:  r.clock.Now().Add(remaining),
	}, nil
}

func (r *redisLockRepository) scan(ctx context.Context, match string, fn func(key string) error) error {
	iter := r.rdb.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Err(), "scan slot locks")
}

func (r *redisLockRepository) Active(ctx context.Context, employeeID int64, date string) ([]model.SlotLock, error) {
	match := fmt.Sprintf("%s%d:%s:*", KeyPrefix, employeeID, date)

	out := []model.SlotLock{}
	err := r.scan(ctx, match, func(key string) error {
		slot, err := parseKey(key)
		if err != nil {
			return err
		}
		lock, err := r.load(ctx, key, slot)
		if err != nil {
			return err
		}
		if lock != nil {
			out = append(out, *lock)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.Time < out[j].Slot.Time })
	return out, nil
}

func (r *redisLockRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.scan(ctx, KeyPrefix+"*", func(string) error {
		n++
		return nil
	})
	return n, err
}

func (r *redisLockRepository) Stop() {}
