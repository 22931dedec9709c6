package versionstore

import (
	"context"
	"sync"
	"time"
)

// Local keeps the marker in-process.
type Local struct {
	mu      sync.RWMutex
	version string
	set     bool
	savedAt time.Time
}

var _ Store = (*Local)(nil)

func NewLocal() *Local { return &Local{} }

func (s *Local) Load(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, s.set, nil
}

func (s *Local) Save(_ context.Context, version string) error {
	s.mu.Lock()
	s.version = version
	s.set = true
	s.savedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// SavedAt reports when the marker was last saved (zero if never).
func (s *Local) SavedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.savedAt
}

func (s *Local) Close(_ context.Context) error { return nil }
