// Package otp issues and verifies short-lived numeric codes delivered over WhatsApp.
//
// Each customer key holds at most one pending entry. Issuing overwrites it; a successful
// verification or an expired read deletes it. Wrong guesses leave the entry in place.
package otp

import (
	"context"
	"sync"
	"time"
)

// Entry is one pending code.
type Entry struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether now is past the entry's expiry.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Store holds pending entries by customer key. Get returns the entry as stored, expired or not;
// the engine decides what to do with stale entries.
type Store interface {
	Put(ctx context.Context, key string, e Entry) error
	Get(ctx context.Context, key string) (Entry, bool, error)
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]Entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]Entry),
		nowF: time.Now,
	}
}

// Put stores e under key, replacing any prior entry.
func (s *MemoryStore) Put(ctx context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = e
	return nil
}

// Get returns the entry under key.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[key]
	return e, ok, nil
}

// Delete removes the entry under key. Missing keys are not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.m {
		if e.Expired(now) {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries held, expired included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
