package videostore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"toonlab/internal/domain"
)

// MemoryStore is a process-local Store. Records expire ttl after creation
// and the oldest record is evicted once maxEntries is reached.
type MemoryStore struct {
	mu         sync.Mutex
	records    map[string]Record
	claims     map[string]claim
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore builds an empty store. A zero ttl or maxEntries disables
// that bound.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]Record),
		claims:     make(map[string]claim),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: video %s", domain.ErrNotFound, id)
	}
	if s.expired(rec) {
		delete(s.records, id)
		return Record{}, fmt.Errorf("%w: video %s expired", domain.ErrNotFound, id)
	}
	return rec, nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record id is required", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if _, exists := s.records[rec.ID]; !exists {
		s.sweep()
		for s.maxEntries > 0 && len(s.records) >= s.maxEntries {
			s.evictOldest()
		}
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

type claim struct {
	videoID string
	at      time.Time
}

func (s *MemoryStore) ClaimTransaction(_ context.Context, hash, videoID string) error {
	if err := validateClaim(hash, videoID); err != nil {
		return err
	}
	key := claimKey(hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if c, ok := s.claims[key]; ok && now.Sub(c.at) < ClaimTTL {
		if c.videoID != videoID {
			return errClaimed(hash, c.videoID)
		}
		return nil
	}
	for k, c := range s.claims {
		if now.Sub(c.at) >= ClaimTTL {
			delete(s.claims, k)
		}
	}
	s.claims[key] = claim{videoID: videoID, at: now}
	return nil
}

// Len reports the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) expired(rec Record) bool {
	return s.ttl > 0 && remaining(rec, s.ttl, s.now()) <= 0
}

func (s *MemoryStore) sweep() {
	for id, rec := range s.records {
		if s.expired(rec) {
			delete(s.records, id)
		}
	}
}

func (s *MemoryStore) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, rec := range s.records {
		if oldestID == "" || rec.CreatedAt.Before(oldest) {
			oldestID, oldest = id, rec.CreatedAt
		}
	}
	delete(s.records, oldestID)
}

var _ Store = (*MemoryStore)(nil)
