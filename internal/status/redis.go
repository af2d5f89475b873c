package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nni-keeper/internal/model"

	"github.com/redis/go-redis/v9"
)

// RedisStore 状态保存在 Redis，多个进程可共享查询
// 每个 run 一个 key，另用一个 set 记录全部 run id
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 状态存储，连接失败直接返回错误
func NewRedisStore(addr, password string, db int, prefix string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreFromClient(client, prefix, ttl), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "nni-keeper"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(runID string) string {
	return s.prefix + ":watch:" + runID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":watches"
}

func (s *RedisStore) Save(ctx context.Context, st model.WatchStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal watch status: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(st.RunID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), st.RunID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save watch status: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, runID string) (*model.WatchStatus, error) {
	data, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get watch status: %w", err)
	}

	var st model.WatchStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal watch status: %w", err)
	}
	return &st, nil
}

// List 顺带清理索引中已过期的 run id
func (s *RedisStore) List(ctx context.Context) ([]model.WatchStatus, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list watch status: %w", err)
	}

	out := make([]model.WatchStatus, 0, len(ids))
	for _, id := range ids {
		st, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}

	sortByStart(out)
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
