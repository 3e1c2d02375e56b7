package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Used by tests and single-instance local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key Key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *Record
	if record, ok := s.records[key.ID()]; ok {
		existing = &record
	}
	state, record, err := reserve(existing, fingerprint, now.UTC(), ttl)
	if err != nil {
		return 0, Record{}, err
	}
	if state == StateNew {
		s.records[key.ID()] = record
	}
	return state, record, nil
}

func (s *MemoryStore) Complete(_ context.Context, key Key, fingerprint string, record Record, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[key.ID()]
	if ok && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	record.Fingerprint = fingerprint
	record.Completed = true
	record.Header = storableHeader(record.Header)
	record.Body = append([]byte(nil), record.Body...)
	record.CreatedAt = existing.CreatedAt
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now.UTC()
	}
	record.ExpiresAt = now.UTC().Add(ttl)
	s.records[key.ID()] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.records, key.ID())
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.expired(now.UTC()) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}
