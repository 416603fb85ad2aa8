package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestClaimOnlyOnce(t *testing.T) {
	_, rdb := setupRedis(t)
	repo := NewRequestClaimRepository(rdb, time.Minute)
	ctx := context.Background()

	ok, err := repo.Claim(ctx, 42, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, 42, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Claim(ctx, 42, 2)
	require.NoError(t, err)
	assert.True(t, ok, "different request in the same chat")
}

func TestClaimExpires(t *testing.T) {
	mr, rdb := setupRedis(t)
	repo := NewRequestClaimRepository(rdb, time.Minute)
	ctx := context.Background()

	ok, err := repo.Claim(ctx, 42, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("relay:42:1"))

	mr.FastForward(2 * time.Minute)

	ok, err = repo.Claim(ctx, 42, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimRelease(t *testing.T) {
	mr, rdb := setupRedis(t)
	repo := NewRequestClaimRepository(rdb, time.Minute)
	ctx := context.Background()

	_, err := repo.Claim(ctx, 7, 3)
	require.NoError(t, err)
	require.NoError(t, repo.Release(ctx, 7, 3))
	assert.False(t, mr.Exists("relay:7:3"))
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
