// Package query caches API reads by key, shares in-flight reads between
// callers, retries failed requests and invalidates cached data after writes.
package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/repository/memory"
	"github.com/secmon-lab/riskdesk/pkg/utils/errutil"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultStaleTime is how long a result is served without refetching
	DefaultStaleTime = 30 * time.Second
	// DefaultGCTime is how long a result is retained for instant redisplay
	DefaultGCTime = 5 * time.Minute
)

// Client is the query cache shared by the use cases of one process
type Client struct {
	store        interfaces.CacheStore
	group        singleflight.Group
	staleTime    time.Duration
	gcTime       time.Duration
	readRetries  int
	writeRetries int
	backoff      Backoff
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithStaleTime(d time.Duration) Option {
	return func(c *Client) { c.staleTime = d }
}

func WithGCTime(d time.Duration) Option {
	return func(c *Client) { c.gcTime = d }
}

// WithRetry sets how many times failed reads and writes are retried
func WithRetry(reads, writes int) Option {
	return func(c *Client) {
		c.readRetries = max(reads, 0)
		c.writeRetries = max(writes, 0)
	}
}

func WithBackoff(base, maxDelay time.Duration) Option {
	return func(c *Client) { c.backoff = Backoff{Base: base, Max: maxDelay} }
}

// WithClock replaces the clock used for freshness
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a query client on store. A nil store keeps results in memory.
func New(store interfaces.CacheStore, opts ...Option) *Client {
	if store == nil {
		store = memory.NewCacheStore()
	}
	c := &Client{
		store:        store,
		staleTime:    DefaultStaleTime,
		gcTime:       DefaultGCTime,
		readRetries:  DefaultReadRetries,
		writeRetries: DefaultWriteRetries,
		backoff:      Backoff{Base: DefaultBackoffBase, Max: DefaultBackoffMax},
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the cached value of key while it is fresh. Otherwise it calls
// fn, sharing one call between concurrent callers of the same key, and caches
// the result. Failed calls are retried per the read policy.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	k := key.String()

	if entry := c.lookup(ctx, k); entry.IsFresh(c.now(), c.staleTime) {
		var cached T
		if err := json.Unmarshal(entry.Data, &cached); err == nil {
			return cached, nil
		}
		logging.From(ctx).Warn("discarding undecodable cache entry", "key", k)
	}

	// The shared call outlives any single caller; each caller still stops
	// waiting when its own ctx is done.
	sharedCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k, func() (any, error) {
		ctx := sharedCtx
		var result T
		err := c.run(ctx, c.readRetries, "read", k, func(ctx context.Context) error {
			var err error
			result, err = fn(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(result)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode query result", goerr.V("key", k))
		}
		entry := &model.CacheEntry{Data: data, FetchedAt: c.now()}
		if err := c.store.Put(ctx, k, entry, c.gcTime); err != nil {
			_ = errutil.Handle(ctx, err, "failed to cache query result")
		}
		return json.RawMessage(data), nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return zero, goerr.Wrap(ctx.Err(), "query cancelled", goerr.V("key", k))
	}
	if res.Err != nil {
		return zero, res.Err
	}
	if res.Shared {
		logging.From(ctx).Debug("shared in-flight query", "key", k)
	}

	var result T
	if err := json.Unmarshal(res.Val.(json.RawMessage), &result); err != nil {
		return zero, goerr.Wrap(err, "failed to decode query result", goerr.V("key", k))
	}
	return result, nil
}

// Peek returns the retained value of key without fetching, even when stale
func Peek[T any](ctx context.Context, c *Client, key Key) (T, bool) {
	var result T
	entry := c.lookup(ctx, key.String())
	if entry == nil {
		return result, false
	}
	if err := json.Unmarshal(entry.Data, &result); err != nil {
		return result, false
	}
	return result, true
}

// Mutate calls fn with the write retry policy and, on success, invalidates
// every key in invalidate. Invalidation failures are logged, not returned:
// the write itself succeeded.
func Mutate[T any](ctx context.Context, c *Client, fn func(ctx context.Context) (T, error), invalidate ...Key) (T, error) {
	var result T
	err := c.run(ctx, c.writeRetries, "write", "", func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}

	if err := c.Invalidate(ctx, invalidate...); err != nil {
		_ = errutil.Handle(ctx, err, "failed to invalidate queries after write")
	}
	return result, nil
}

// Invalidate marks every cached query under keys as stale
func (c *Client) Invalidate(ctx context.Context, keys ...Key) error {
	for _, key := range keys {
		n, err := c.store.Invalidate(ctx, key.String())
		if err != nil {
			return goerr.Wrap(err, "failed to invalidate queries", goerr.V("key", key.String()))
		}
		logging.From(ctx).Debug("invalidated queries", "key", key.String(), "count", n)
	}
	return nil
}

// Clear drops every cached query
func (c *Client) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return goerr.Wrap(err, "failed to clear query cache")
	}
	return nil
}

func (c *Client) Close() error {
	return c.store.Close()
}

func (c *Client) lookup(ctx context.Context, key string) *model.CacheEntry {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		_ = errutil.Handle(ctx, err, "failed to read query cache")
		return nil
	}
	return entry
}

func (c *Client) run(ctx context.Context, retries int, kind, key string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= retries || !IsRetryable(err) || ctx.Err() != nil {
			return err
		}

		delay := c.backoff.Delay(attempt)
		logging.From(ctx).Debug("retrying request",
			"kind", kind,
			"key", key,
			"attempt", attempt+1,
			"delay", delay,
			"error", err.Error(),
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}
