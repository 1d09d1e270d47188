package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL bounds how long a document is kept. Zero keeps documents forever.
	TTL time.Duration
}

// LoadRedisConfigFromEnv reads REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_KEY_PREFIX and REDIS_TTL.
func LoadRedisConfigFromEnv() *RedisConfig {
	cfg := &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "workflow:message:",
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	cfg.Password = os.Getenv("REDIS_PASSWORD")
	if db := os.Getenv("REDIS_DB"); db != "" {
		if val, err := strconv.Atoi(db); err == nil {
			cfg.DB = val
		}
	}
	if prefix := os.Getenv("REDIS_KEY_PREFIX"); prefix != "" {
		cfg.KeyPrefix = prefix
	}
	if ttl := os.Getenv("REDIS_TTL"); ttl != "" {
		if val, err := time.ParseDuration(ttl); err == nil {
			cfg.TTL = val
		}
	}
	return cfg
}

// RedisStore is a generic Store implementation using Redis. Values are stored as JSON.
type RedisStore[K comparable, V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	keyPrefix   string
	ttl         time.Duration
}

// NewRedisStore creates and connects a new generic RedisStore.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisStore[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
) (*RedisStore[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisStore[K, V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		keyPrefix:   cfg.KeyPrefix,
		ttl:         cfg.TTL,
	}, nil
}

func (s *RedisStore[K, V]) key(key K) string {
	return fmt.Sprintf("%s%v", s.keyPrefix, key)
}

// Put marshals the value to JSON and stores it with the configured TTL.
func (s *RedisStore[K, V]) Put(ctx context.Context, key K, value V) error {
	stringKey := s.key(key)
	jsonData, err := json.Marshal(value)
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to marshal document.")
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := s.redisClient.Set(ctx, stringKey, jsonData, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to set document in Redis.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Successfully stored document in Redis.")
	return nil
}

// Get retrieves and unmarshals a value from Redis.
func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := s.key(key)
	data, err := s.redisClient.Get(ctx, stringKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("key '%s': %w", stringKey, ErrNotFound)
		}
		return zero, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}

	var value V
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal stored document.")
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return value, nil
}

// Close closes the Redis client connection.
func (s *RedisStore[K, V]) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
