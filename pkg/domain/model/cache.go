package model

import (
	"encoding/json"
	"strings"
	"time"
)

// CacheEntry is a cached query result
type CacheEntry struct {
	Data        json.RawMessage `json:"data"`
	FetchedAt   time.Time       `json:"fetched_at"`
	Invalidated bool            `json:"invalidated,omitempty"`
}

// IsFresh reports whether the entry can be served without refetching
func (e *CacheEntry) IsFresh(now time.Time, staleTime time.Duration) bool {
	if e == nil || e.Invalidated {
		return false
	}
	return now.Sub(e.FetchedAt) < staleTime
}

// KeySeparator joins the segments of a flattened query key
const KeySeparator = "/"

// KeyHasPrefix reports whether key starts with prefix on a segment boundary,
// so "risks/detail/1" covers "risks/detail/1/documents" but not
// "risks/detail/10".
func KeyHasPrefix(key, prefix string) bool {
	if prefix == "" || key == prefix {
		return true
	}
	return strings.HasPrefix(key, prefix+KeySeparator)
}
