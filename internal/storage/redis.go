package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

// redisStore keeps every result as a JSON field of one hash.
type redisStore struct {
	rdb *redis.Client
	key string
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "envpool"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Debug("redis store opened", logx.String("addr", addr), logx.String("key", prefix+":results"))
	return &redisStore{rdb: rdb, key: prefix + ":results", log: log}, nil
}

func (s *redisStore) MarkDone(ctx context.Context, id job.Identity, status string) error {
	key := strings.TrimSpace(id.Key)
	b, err := json.Marshal(Result{Key: key, Row: id.Row, Status: status, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.key, key, b).Err()
}

func (s *redisStore) Lookup(ctx context.Context, key string) (Result, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.key, strings.TrimSpace(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, false, err
	}
	return r, true, nil
}

func (s *redisStore) Results(ctx context.Context) ([]Result, error) {
	all, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(all))
	for _, v := range all {
		var r Result
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	sortResults(out)
	return out, nil
}

func (s *redisStore) Close() error { return s.rdb.Close() }
