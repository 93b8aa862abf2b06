// Package memstore provides an in-process sessionbuffer.Store used when
// SESSION_BUFFER_URL is not configured. It is not shared across processes
// and is intended for single-instance or development deployments.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/sessionbuffer"
)

type entry struct {
	chunks    []string
	expiresAt time.Time
	createdAt time.Time
}

// Store is an in-memory sessionbuffer.Store guarded by a single mutex. A
// background goroutine is not required; expired entries read as empty and are
// replaced on the next Append to the same key.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

var _ sessionbuffer.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *Store) Append(_ context.Context, key string, chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = &entry{createdAt: now}
		s.entries[key] = e
	}
	e.chunks = append(e.chunks, chunk)

	ttl := sessionbuffer.DefaultTTL
	if now.Sub(e.createdAt)+ttl > sessionbuffer.MaxTTL {
		ttl = sessionbuffer.MaxTTL - now.Sub(e.createdAt)
		if ttl < 0 {
			ttl = 0
		}
	}
	e.expiresAt = now.Add(ttl)
	return nil
}

func (s *Store) Range(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		return []string{}, nil
	}
	out := make([]string, len(e.chunks))
	copy(out, e.chunks)
	return out, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
