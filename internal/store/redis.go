package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix  = "alert:"
	redisExpiresKey = "alerts:expires"
)

// Redis keeps each alert under alert:<id> (written with SETNX) and indexes
// expiries in a sorted set scored by Unix milliseconds.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// OpenRedis parses a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, uri string) (*Redis, error) {
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: domain.Now}
}

func (r *Redis) TryInsert(ctx context.Context, f domain.Feature) (InsertResult, error) {
	alert, rejected := Admit(f, r.now())
	if rejected != nil {
		return *rejected, nil
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return InsertResult{}, fmt.Errorf("marshal alert %s: %w", alert.ID, err)
	}

	ok, err := r.client.SetNX(ctx, redisKeyPrefix+alert.ID, data, 0).Result()
	if err != nil {
		return InsertResult{}, fmt.Errorf("insert alert %s: %w", alert.ID, err)
	}
	if !ok {
		return InsertResult{Outcome: AlreadyExists, Alert: alert}, nil
	}

	score := float64(alert.Expires.UnixMilli())
	if err := r.client.ZAdd(ctx, redisExpiresKey, &redis.Z{Score: score, Member: alert.ID}).Err(); err != nil {
		// Without an expiry entry the record would never be cleaned up.
		err = fmt.Errorf("index alert %s expiry: %w", alert.ID, err)
		if delErr := r.client.Del(ctx, redisKeyPrefix+alert.ID).Err(); delErr != nil {
			err = errors.Join(err, fmt.Errorf("roll back alert %s: %w", alert.ID, delErr))
		}
		return InsertResult{}, err
	}
	return InsertResult{Outcome: Inserted, Alert: alert}, nil
}

func (r *Redis) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ids, err := r.client.ZRangeByScore(ctx, redisExpiresKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired alerts: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = redisKeyPrefix + id
		members[i] = id
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, redisExpiresKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired alerts: %w", err)
	}
	return deleted.Val(), nil
}

func (r *Redis) Count(ctx context.Context) (int64, error) {
	n, err := r.client.ZCard(ctx, redisExpiresKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

// Close closes the client.
func (r *Redis) Close(_ context.Context) error {
	return r.client.Close()
}
