// Package redisstore keeps the whole inventory table as one JSON document
// under a single Redis key.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/pantry-pilot/internal/config"
	"github.com/fairyhunter13/pantry-pilot/internal/model"
)

const defaultKey = "pantry:table:inventory"

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
}

// Store implements the remote table contract on one Redis key.
type Store struct {
	store cmdable
	raw   *redis.Client
	key   string
}

// Open connects to Redis and verifies connectivity.
func Open(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{store: raw, raw: raw, key: keyOrDefault(cfg.Key)}, nil
}

func keyOrDefault(k string) string {
	if k = strings.TrimSpace(k); k != "" {
		return k
	}
	return defaultKey
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Read decodes the stored document. A missing key reads as an empty table.
func (s *Store) Read(ctx context.Context) (model.Table, error) {
	if s.store == nil {
		return model.Table{}, errors.New("redis client not initialized")
	}
	raw, err := s.store.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return model.Table{}, nil
	}
	if err != nil {
		return model.Table{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	var t model.Table
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return model.Table{}, fmt.Errorf("decoding table at %s: %w", s.key, err)
	}
	for i := range t.Rows {
		t.Rows[i].ItemQuantity = max(t.Rows[i].ItemQuantity, 0)
	}
	return t, nil
}

// Write stores t under the key without expiry.
func (s *Store) Write(ctx context.Context, t model.Table) error {
	if s.store == nil {
		return errors.New("redis client not initialized")
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding table: %w", err)
	}
	if err := s.store.Set(ctx, s.key, string(b), 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.store == nil {
		return errors.New("redis client not initialized")
	}
	return s.store.Ping(ctx).Err()
}

// Close releases the client, if one was opened.
func (s *Store) Close() error {
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}
