// Package memory is an in-process storage.Store used by tests and by the
// "memory" storage driver.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/frahmantamala/travel-requests/internal/storage"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time

	// FailWrites makes Set and Delete return WriteErr, for exercising best-effort callers.
	FailWrites bool
	WriteErr   error
}

func New() *Store {
	return &Store{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// WithClock replaces the clock used for expiry.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return s.writeErr()
	}

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return s.writeErr()
	}
	delete(s.data, key)
	return nil
}

func (s *Store) Close() error {
	return nil
}

// TTL reports the remaining lifetime of key; zero for missing or non-expiring keys.
func (s *Store) TTL(key string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok || e.expiresAt.IsZero() {
		return 0
	}
	return e.expiresAt.Sub(s.now())
}

func (s *Store) writeErr() error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	return errors.New("memory: writes disabled")
}
