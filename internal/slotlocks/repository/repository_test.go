package repository

import (
	"context"
	"testing"
	"time"

	slotlockserrors "appointease/internal/slotlocks/errors"
	"appointease/pkg/clock"
	"appointease/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendFixture struct {
	repo    LockRepository
	advance func(d time.Duration)
}

func memoryFixture(t *testing.T) backendFixture {
	clk := clock.NewMockClock(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	repo := NewMemoryLockRepository(clk)
	t.Cleanup(repo.Stop)
	return backendFixture{repo: repo, advance: clk.Add}
}

func redisFixture(t *testing.T) backendFixture {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return backendFixture{repo: NewRedisLockRepository(rdb, nil), advance: mr.FastForward}
}

var fixtures = map[string]func(t *testing.T) backendFixture{
	"memory": memoryFixture,
	"redis":  redisFixture,
}

var slot = model.Slot{EmployeeID: 1, Date: "2025-01-16", Time: "10:00"}

func TestLockRepository_HeldLockBlocksOthers(t *testing.T) {
	for name, newFixture := range fixtures {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			lock, err := f.repo.Acquire(ctx, slot, "client-a", 10*time.Second)
			require.NoError(t, err)
			assert.Equal(t, "client-a", lock.Holder)

			_, err = f.repo.Acquire(ctx, slot, "client-b", 10*time.Second)
			var locked *slotlockserrors.LockedError
			require.ErrorAs(t, err, &locked)
			assert.Equal(t, slot.Time, locked.Lock.Slot.Time)
			assert.False(t, locked.Lock.ExpiresAt.IsZero())

			got, err := f.repo.Get(ctx, slot)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "client-a", got.Holder)
		})
	}
}

func TestLockRepository_ExpiredLockCanBeTaken(t *testing.T) {
	for name, newFixture := range fixtures {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.repo.Acquire(ctx, slot, "client-a", 10*time.Second)
			require.NoError(t, err)

			f.advance(11 * time.Second)

			got, err := f.repo.Get(ctx, slot)
			require.NoError(t, err)
			assert.Nil(t, got)

			lock, err := f.repo.Acquire(ctx, slot, "client-b", 10*time.Second)
			require.NoError(t, err)
			assert.Equal(t, "client-b", lock.Holder)
		})
	}
}

func TestLockRepository_SameHolderRefreshes(t *testing.T) {
	for name, newFixture := range fixtures {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			first, err := f.repo.Acquire(ctx, slot, "client-a", 10*time.Second)
			require.NoError(t, err)

			f.advance(8 * time.Second)
			_, err = f.repo.Acquire(ctx, slot, "client-a", 10*time.Second)
			require.NoError(t, err)

			f.advance(8 * time.Second)
			got, err := f.repo.Get(ctx, slot)
			require.NoError(t, err)
			require.NotNil(t, got, "refresh extended the lock")
			assert.Equal(t, first.AcquiredAt.UnixMilli(), got.AcquiredAt.UnixMilli())
		})
	}
}

func TestLockRepository_OnlyHolderReleases(t *testing.T) {
	for name, newFixture := range fixtures {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			released, err := f.repo.Release(ctx, slot, "client-a")
			require.NoError(t, err)
			assert.False(t, released, "missing lock is a no-op")

			_, err = f.repo.Acquire(ctx, slot, "client-a", 10*time.Second)
			require.NoError(t, err)

			_, err = f.repo.Release(ctx, slot, "client-b")
			assert.ErrorIs(t, err, slotlockserrors.ErrNotHolder)

			released, err = f.repo.Release(ctx, slot, "client-a")
			require.NoError(t, err)
			assert.True(t, released)

			got, err := f.repo.Get(ctx, slot)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestLockRepository_ActiveAndCount(t *testing.T) {
	for name, newFixture := range fixtures {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			for _, s := range []model.Slot{
				{EmployeeID: 1, Date: "2025-01-16", Time: "14:00"},
				{EmployeeID: 1, Date: "2025-01-16", Time: "10:00"},
				{EmployeeID: 1, Date: "2025-01-17", Time: "10:00"},
				{EmployeeID: 2, Date: "2025-01-16", Time: "10:00"},
			} {
				_, err := f.repo.Acquire(ctx, s, "client", 10*time.Second)
				require.NoError(t, err)
			}

			active, err := f.repo.Active(ctx, 1, "2025-01-16")
			require.NoError(t, err)
			require.Len(t, active, 2)
			assert.Equal(t, "10:00", active[0].Slot.Time)
			assert.Equal(t, "14:00", active[1].Slot.Time)

			n, err := f.repo.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(4), n)
		})
	}
}

func TestParseKey(t *testing.T) {
	got, err := parseKey(KeyPrefix + "7:2025-01-16:10:00")
	require.NoError(t, err)
	assert.Equal(t, model.Slot{EmployeeID: 7, Date: "2025-01-16", Time: "10:00"}, got)

	_, err = parseKey(KeyPrefix + "x:2025-01-16:10:00")
	assert.Error(t, err)
}
