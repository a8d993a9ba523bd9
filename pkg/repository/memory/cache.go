package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

type cacheItem struct {
	entry     model.CacheEntry
	expiresAt time.Time
}

// CacheStore keeps query results in process memory
type CacheStore struct {
	mu      sync.Mutex
	entries map[string]*cacheItem
	now     func() time.Time
}

var _ interfaces.CacheStore = &CacheStore{}

type CacheOption func(*CacheStore)

// WithClock replaces the clock used for expiry
func WithClock(now func() time.Time) CacheOption {
	return func(s *CacheStore) {
		s.now = now
	}
}

func NewCacheStore(opts ...CacheOption) *CacheStore {
	s := &CacheStore{
		entries: make(map[string]*cacheItem),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CacheStore) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	return copyEntry(&item.entry), nil
}

func (s *CacheStore) Put(ctx context.Context, key string, entry *model.CacheEntry, ttl time.Duration) error {
	if entry == nil {
		return nil
	}

	item := &cacheItem{entry: *copyEntry(entry)}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = item
	return nil
}

func (s *CacheStore) Invalidate(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for key, item := range s.entries {
		if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
			delete(s.entries, key)
			continue
		}
		if model.KeyHasPrefix(key, prefix) {
			item.entry.Invalidated = true
			count++
		}
	}
	return count, nil
}

func (s *CacheStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*cacheItem)
	return nil
}

// Len returns the number of retained entries, expired ones included until
// they are next touched
func (s *CacheStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *CacheStore) Close() error {
	return nil
}

func copyEntry(e *model.CacheEntry) *model.CacheEntry {
	copied := *e
	copied.Data = slices.Clone(e.Data)
	return &copied
}
