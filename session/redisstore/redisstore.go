// Package redisstore persists sessions in Redis. Values are msgpack-encoded
// and expire after a fixed TTL that is refreshed on every save.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/JeanGrijp/csrfguard/session"
)

const (
	DefaultPrefix = "session:"
	DefaultTTL    = 24 * time.Hour
)

var _ session.Store = (*Store)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int

	Prefix string
	TTL    time.Duration
}

// Store is a Redis-backed session store.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// New creates a new Redis session store instance.
func New(cfg Config, logger *zap.SugaredLogger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	return NewWithClient(client, cfg.Prefix, cfg.TTL, logger)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration, logger *zap.SugaredLogger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Ping tests the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Load(ctx context.Context, id string) (session.Values, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.Values{}, nil
		}
		s.logger.Errorf("Failed to load session %s: %v", id, err)
		return nil, fmt.Errorf("redisstore: get: %w", err)
	}

	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil || m == nil {
		// An undecodable session is dropped rather than failing every request.
		s.logger.Warnf("Discarding undecodable session %s: %v", id, err)
		return session.Values{}, nil
	}
	return session.Values(m), nil
}

func (s *Store) Save(ctx context.Context, id string, v session.Values) error {
	data, err := msgpack.Marshal(map[string]any(v))
	if err != nil {
		return fmt.Errorf("redisstore: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *Store) key(id string) string {
	return s.prefix + id
}
