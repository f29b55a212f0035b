package distlock

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLock_Exclusive(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	f := NewFactory(client, nil, time.Minute)

	a := f.New(CampaignKey("c-1"))
	b := f.New(CampaignKey("c-1"))

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:campaign:c-1"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Release(ctx), ErrNotOwned)
	assert.True(t, mr.Exists("lock:campaign:c-1"), "a non-owner release leaves the lock")

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiresAndExtends(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	l := NewRedisLock(client, CampaignKey("c-2"), time.Minute)

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, 10*time.Minute))
	assert.Equal(t, 10*time.Minute, mr.TTL(l.Key()))

	mr.FastForward(11 * time.Minute)
	assert.ErrorIs(t, l.Extend(ctx, time.Minute), ErrNotOwned)

	other := NewRedisLock(client, CampaignKey("c-2"), time.Minute)
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewLock_FallsBackToAdvisoryLock(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, isPG := NewLock(nil, db, "campaign:c-3", time.Minute).(*PGAdvisoryLock)
	assert.True(t, isPG)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	l := NewPGAdvisoryLock(db, CampaignKey("c-4"))
	assert.Equal(t, l.lockID, NewPGAdvisoryLock((*sql.DB)(nil), CampaignKey("c-4")).lockID)

	mock.ExpectQuery("SELECT pg_try_advisory_lock").WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery("SELECT pg_advisory_unlock").WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(ctx))
	assert.ErrorIs(t, l.Release(ctx), ErrNotOwned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_Held(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, CampaignKey("c-5"))
	mock.ExpectQuery("SELECT pg_try_advisory_lock").WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeepAlive_ExtendsPastOriginalTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ttl := 300 * time.Millisecond
	l := NewRedisLock(client, CampaignKey("c-keep"), ttl)

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, stop := KeepAlive(context.Background(), l, ttl)
	defer stop()

	mr.FastForward(200 * time.Millisecond)
	require.Eventually(t, func() bool { return mr.TTL(l.Key()) > 200*time.Millisecond },
		time.Second, 10*time.Millisecond, "lock refreshed")

	mr.FastForward(200 * time.Millisecond)
	assert.True(t, mr.Exists(l.Key()), "held beyond the original ttl")
	assert.NoError(t, ctx.Err())
}

func TestKeepAlive_CancelsWhenLockLost(t *testing.T) {
	mr, client := setupTestRedis(t)
	ttl := 90 * time.Millisecond
	l := NewRedisLock(client, CampaignKey("c-lost"), ttl)

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, stop := KeepAlive(context.Background(), l, ttl)
	defer stop()

	mr.Set(l.Key(), "another-holder")

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, context.Cause(ctx), ErrNotOwned)
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after losing the lock")
	}
}

func TestKeepAlive_NoopForSessionLocks(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	parent := context.Background()
	ctx, stop := KeepAlive(parent, NewPGAdvisoryLock(db, "campaign:c-pg"), time.Minute)
	stop()
	assert.Equal(t, parent, ctx)
}
