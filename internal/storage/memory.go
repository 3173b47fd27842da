package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	subs   map[string]time.Time
	ledger map[string]time.Time
	closed bool
}

// NewMemory returns a process-local store. State is lost on exit.
func NewMemory() Store {
	return &memoryStore{subs: map[string]time.Time{}, ledger: map[string]time.Time{}}
}

func (s *memoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) FindSubscriber(_ context.Context, address string) (Subscriber, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Subscriber{}, false, ErrClosed
	}
	at, ok := s.subs[address]
	if !ok {
		return Subscriber{}, false, nil
	}
	return Subscriber{Address: address, CreatedAt: at}, true, nil
}

func (s *memoryStore) ListSubscribers(context.Context) ([]Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return sortedSubscribers(s.subs), nil
}

func (s *memoryStore) InsertSubscriber(_ context.Context, address string) (bool, error) {
	return s.put(s.subs, address)
}

func (s *memoryStore) DeleteSubscriber(_ context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.subs[address]; !ok {
		return false, nil
	}
	delete(s.subs, address)
	return true, nil
}

func (s *memoryStore) FindContent(_ context.Context, contentID string) (LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return LedgerEntry{}, false, ErrClosed
	}
	at, ok := s.ledger[contentID]
	if !ok {
		return LedgerEntry{}, false, nil
	}
	return LedgerEntry{ContentID: contentID, RecordedAt: at}, true, nil
}

func (s *memoryStore) RecordContent(_ context.Context, contentID string) (bool, error) {
	return s.put(s.ledger, contentID)
}

func (s *memoryStore) put(m map[string]time.Time, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, errEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key] = time.Now().UTC()
	return true, nil
}

// sortedSubscribers orders by creation time, then address, matching the SQL drivers.
func sortedSubscribers(m map[string]time.Time) []Subscriber {
	out := make([]Subscriber, 0, len(m))
	for addr, at := range m {
		out = append(out, Subscriber{Address: addr, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Address < out[j].Address
	})
	return out
}
