// Package docstore stores JSON documents in Redis: one key per document, a set or sorted
// set per collection index.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/config"
)

// ErrNotFound is returned when a document key does not exist.
var ErrNotFound = errors.New("document not found")

// Client wraps a Redis connection with document-level operations.
type Client struct {
	rdb *redis.Client
}

var (
	sharedOnce   sync.Once
	sharedClient *Client
)

// Shared returns the process-wide client, creating it on first use.
// Later calls ignore cfg and return the same handle.
func Shared(cfg config.RedisConfig) *Client {
	sharedOnce.Do(func() {
		sharedClient = New(cfg)
		log.Info().Str("addr", cfg.Address).Int("db", cfg.DB).Msg("Document store client initialized")
	})
	return sharedClient
}

// New creates a client from config. No connection is made until the first command.
func New(cfg config.RedisConfig) *Client {
	return NewFromRedis(redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout.Duration(),
		// No client-side retries: a failed call surfaces to the caller.
		MaxRetries: -1,
	}))
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get returns the raw document stored at key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	startTime := time.Now()

	data, err := c.rdb.Get(ctx, key).Bytes()

	log.Debug().
		Str("key", key).
		Int64("duration_ms", time.Since(startTime).Milliseconds()).
		Bool("hit", err == nil).
		Msg("docstore get")

	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// GetMany returns the documents stored at keys, in order. Missing keys yield nil entries.
func (c *Client) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget %d keys: %w", len(keys), err)
	}

	docs := make([][]byte, len(values))
	for i, v := range values {
		switch s := v.(type) {
		case string:
			docs[i] = []byte(s)
		case nil:
		default:
			return nil, fmt.Errorf("mget %s: unexpected value type %T", keys[i], v)
		}
	}
	return docs, nil
}

// Put stores a document at key and, when collection is not empty, adds id to the
// collection's member set. Both writes are applied in one MULTI/EXEC.
func (c *Client) Put(ctx context.Context, key string, data []byte, collection, id string) error {
	startTime := time.Now()

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		if collection != "" {
			pipe.SAdd(ctx, collection, id)
		}
		return nil
	})

	log.Debug().
		Str("key", key).
		Int64("duration_ms", time.Since(startTime).Milliseconds()).
		Bool("success", err == nil).
		Msg("docstore put")

	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Members returns the ids in a collection member set.
func (c *Client) Members(ctx context.Context, collection string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, collection).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", collection, err)
	}
	return ids, nil
}

// Lookup returns the value of field in the hash at key, or ErrNotFound.
func (c *Client) Lookup(ctx context.Context, key, field string) (string, error) {
	value, err := c.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("hget %s %s: %w", key, field, err)
	}
	return value, nil
}

// Reserve sets field to value in the hash at key unless it is already set.
// It returns the value that holds after the call and whether this call set it.
func (c *Client) Reserve(ctx context.Context, key, field, value string) (string, bool, error) {
	set, err := c.rdb.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return "", false, fmt.Errorf("hsetnx %s %s: %w", key, field, err)
	}
	if set {
		return value, true, nil
	}

	current, err := c.Lookup(ctx, key, field)
	if err != nil {
		return "", false, err
	}
	return current, false, nil
}

// Append stores an immutable document and records id in every sorted-set index.
// Index order follows a store-wide sequence so ties between documents are impossible.
func (c *Client) Append(ctx context.Context, key, id string, data []byte, sequence string, indexes ...string) error {
	seq, err := c.rdb.Incr(ctx, sequence).Result()
	if err != nil {
		return fmt.Errorf("incr %s: %w", sequence, err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		for _, index := range indexes {
			pipe.ZAdd(ctx, index, redis.Z{Score: float64(seq), Member: id})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

// Latest returns up to limit ids from a sorted-set index, highest score first.
func (c *Client) Latest(ctx context.Context, index string, limit int64) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := c.rdb.ZRevRange(ctx, index, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", index, err)
	}
	return ids, nil
}
