package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sprite-ai/solaudit/internal/model"
)

const (
	reportKeyPrefix = "solaudit:report:"
	historyKey      = "solaudit:audits"
	historyLimit    = 1000
)

// Redis caches reports under their audit key and keeps a capped list of
// recent audit records.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(addr, password string, db int, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{rdb: rdb, ttl: ttl}, nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key string) (model.ConsolidatedReport, error) {
	var rep model.ConsolidatedReport
	data, err := r.rdb.Get(ctx, reportKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return rep, ErrCacheMiss
	}
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(data, &rep); err != nil {
		return rep, fmt.Errorf("decode cached report: %w", err)
	}
	return rep, nil
}

func (r *Redis) Put(ctx context.Context, key string, rep model.ConsolidatedReport) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, reportKeyPrefix+key, data, r.ttl).Err()
}

// Save pushes rec onto the recent-audits list.
func (r *Redis) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, historyKey, data)
	pipe.LTrim(ctx, historyKey, 0, historyLimit-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n of the most recently saved records.
func (r *Redis) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := r.rdb.LRange(ctx, historyKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
