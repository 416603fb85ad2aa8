package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RequestClaimRepository interface {
	Claim(ctx context.Context, chatID int64, requestID int) (bool, error)
	Release(ctx context.Context, chatID int64, requestID int) error
}

type requestClaimRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func NewRequestClaimRepository(rdb *redis.Client, ttl time.Duration) RequestClaimRepository {
	return &requestClaimRepository{rdb: rdb, ttl: ttl}
}

func claimKey(chatID int64, requestID int) string {
	return fmt.Sprintf("relay:%d:%d", chatID, requestID)
}

// Claim returns true only for the first caller of a (chat, request) pair
// until the claim expires.
func (r *requestClaimRepository) Claim(ctx context.Context, chatID int64, requestID int) (bool, error) {
	return r.rdb.SetNX(ctx, claimKey(chatID, requestID), time.Now().Unix(), r.ttl).Result()
}

func (r *requestClaimRepository) Release(ctx context.Context, chatID int64, requestID int) error {
	return r.rdb.Del(ctx, claimKey(chatID, requestID)).Err()
}
