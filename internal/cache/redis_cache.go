package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"

	"shiftrecon/backend/internal/domain"
)

// Redis backs both the analysis cache and the recompute lock.
type Redis struct {
	client *redis.Client
	locker *redislock.Client
}

func NewRedis(addr string, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{client: client, locker: redislock.New(client)}
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) Get(ctx context.Context, shiftDate string) (*domain.ReconciliationRecord, bool, error) {
	val, err := c.client.Get(ctx, analysisKey(shiftDate)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var record domain.ReconciliationRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (c *Redis) Set(ctx context.Context, record *domain.ReconciliationRecord, ttl time.Duration) error {
	if record == nil {
		return nil
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, analysisKey(record.ShiftDate), payload, ttl).Err()
}

func (c *Redis) Delete(ctx context.Context, shiftDate string) error {
	return c.client.Del(ctx, analysisKey(shiftDate)).Err()
}

// Lock retries for up to a few seconds before giving up with ErrLockBusy.
func (c *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (Unlocker, error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(200*time.Millisecond), 25),
	}
	lock, err := c.locker.Obtain(ctx, lockKey(key), ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockBusy
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
