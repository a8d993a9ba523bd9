package riskapi

import (
	"log/slog"
	"sync"
)

// Session holds the access key used by a Client. The key is written by the
// login flow and read on every outbound request.
type Session struct {
	mu     sync.RWMutex
	apiKey string
}

// NewSession creates a session, already logged in when apiKey is not empty
func NewSession(apiKey string) *Session {
	return &Session{apiKey: apiKey}
}

// Login replaces the current key
func (s *Session) Login(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = apiKey
}

// Logout forgets the key; following requests are unauthenticated
func (s *Session) Logout() {
	s.Login("")
}

// APIKey returns a snapshot of the current key
func (s *Session) APIKey() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

func (s *Session) IsAuthenticated() bool {
	return s.APIKey() != ""
}

func (s *Session) LogValue() slog.Value {
	key := s.APIKey()
	return slog.GroupValue(
		slog.Bool("authenticated", key != ""),
		slog.Int("api-key.len", len(key)),
	)
}
