package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ledgerScope/internal/model"
)

const (
	redisKeyPrefix  = "ledgerscope:contract:"
	defaultCacheTTL = 24 * time.Hour
)

// Store persists resolved contract metadata between runs.
type Store interface {
	Load(ctx context.Context, address string) (model.ContractInfo, bool, error)
	Save(ctx context.Context, info model.ContractInfo) error
}

// RedisConfig enables the Redis store when Addr is set. A zero TTL uses the default.
type RedisConfig struct {
	Addr string
	TTL  time.Duration
}

// RedisStore keeps contract metadata as JSON under ledgerscope:contract:<address>.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis. An empty address disables the store and returns nil.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Load(ctx context.Context, address string) (model.ContractInfo, bool, error) {
	raw, err := s.client.Get(ctx, redisKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ContractInfo{}, false, nil
	}
	if err != nil {
		return model.ContractInfo{}, false, fmt.Errorf("redis get: %w", err)
	}
	var info model.ContractInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return model.ContractInfo{}, false, fmt.Errorf("decode cached contract: %w", err)
	}
	return info, true, nil
}

func (s *RedisStore) Save(ctx context.Context, info model.ContractInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode contract: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(info.Address), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func redisKey(address string) string {
	return redisKeyPrefix + model.NormalizeAddress(address)
}
