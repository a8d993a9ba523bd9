// Package redis provides a query cache store shared between processes
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

const (
	// DefaultNamespace prefixes every key written by the store
	DefaultNamespace = "riskdesk:query:"

	scanCount = 100
)

// CacheStore keeps query results in Redis
type CacheStore struct {
	client    *redis.Client
	namespace string
	owned     bool
}

var _ interfaces.CacheStore = &CacheStore{}

type Option func(*CacheStore)

// WithNamespace sets the key prefix, isolating several caches in one database
func WithNamespace(ns string) Option {
	return func(s *CacheStore) {
		s.namespace = ns
	}
}

// New connects to redisURL (redis://host:port/db) and checks the connection
func New(ctx context.Context, redisURL string, opts ...Option) (*CacheStore, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse redis URL")
	}

	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", redisOpts.Addr))
	}

	s := NewWithClient(client, opts...)
	s.owned = true
	return s, nil
}

// NewWithClient creates a store on an existing client. Close leaves the
// client open.
func NewWithClient(client *redis.Client, opts ...Option) *CacheStore {
	s := &CacheStore{
		client:    client,
		namespace: DefaultNamespace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CacheStore) key(k string) string {
	return s.namespace + k
}

func (s *CacheStore) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get cache entry", goerr.V("key", key))
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, goerr.Wrap(err, "failed to decode cache entry", goerr.V("key", key))
	}
	return &entry, nil
}

func (s *CacheStore) Put(ctx context.Context, key string, entry *model.CacheEntry, ttl time.Duration) error {
	if entry == nil {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return goerr.Wrap(err, "failed to encode cache entry", goerr.V("key", key))
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), raw, ttl).Err(); err != nil {
		return goerr.Wrap(err, "failed to put cache entry", goerr.V("key", key))
	}
	return nil
}

// Invalidate marks matching entries stale, keeping their remaining TTL
func (s *CacheStore) Invalidate(ctx context.Context, prefix string) (int, error) {
	count := 0
	err := s.scan(ctx, prefix, func(fullKey string) error {
		key := strings.TrimPrefix(fullKey, s.namespace)
		if !model.KeyHasPrefix(key, prefix) {
			return nil
		}

		marked, err := s.markInvalidated(ctx, fullKey)
		if err != nil {
			return goerr.Wrap(err, "failed to invalidate cache entry", goerr.V("key", key))
		}
		if marked {
			count++
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

// markInvalidated rewrites one entry under WATCH so that a concurrent Put is
// never overwritten with the older payload. When a Put wins the race the entry
// is left as written: that Put is ordered after this invalidation.
func (s *CacheStore) markInvalidated(ctx context.Context, fullKey string) (bool, error) {
	marked := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, fullKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var entry model.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return goerr.Wrap(err, "failed to decode cache entry")
		}
		entry.Invalidated = true
		updated, err := json.Marshal(&entry)
		if err != nil {
			return goerr.Wrap(err, "failed to encode cache entry")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, updated, redis.KeepTTL)
			return nil
		})
		if err == nil {
			marked = true
		}
		return err
	}, fullKey)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return marked, err
}

func (s *CacheStore) Clear(ctx context.Context) error {
	return s.scan(ctx, "", func(fullKey string) error {
		if err := s.client.Del(ctx, fullKey).Err(); err != nil {
			return goerr.Wrap(err, "failed to delete cache entry", goerr.V("key", fullKey))
		}
		return nil
	})
}

func (s *CacheStore) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close redis client")
	}
	return nil
}

func (s *CacheStore) scan(ctx context.Context, prefix string, fn func(fullKey string) error) error {
	pattern := s.key(escapeGlob(prefix)) + "*"
	iter := s.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return goerr.Wrap(err, "failed to scan cache keys", goerr.V("prefix", prefix))
	}
	return nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
