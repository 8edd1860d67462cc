package videostore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"toonlab/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(ttl time.Duration, max int) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(ttl, max)
	s.now = clock.Now
	return s, clock
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(time.Hour, 0)
	if err := s.Put(ctx, Record{ID: "v1", Video: []byte("mp4"), Prompt: "p"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec, err := s.Get(ctx, "v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(rec.Video) != "mp4" || rec.Paid || !rec.CreatedAt.Equal(clock.Now()) {
		t.Fatalf("record = %+v", rec)
	}

	rec.Paid = true
	rec.TransactionHash = "0xabc"
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put update: %v", err)
	}
	got, _ := s.Get(ctx, "v1")
	if !got.Paid || got.TransactionHash != "0xabc" {
		t.Fatalf("update lost: %+v", got)
	}

	if err := s.Delete(ctx, "v1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "v1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(10*time.Minute, 0)
	if err := s.Put(ctx, Record{ID: "v1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	clock.Advance(9 * time.Minute)
	if _, err := s.Get(ctx, "v1"); err != nil {
		t.Fatalf("record expired early: %v", err)
	}
	// updating a record does not extend its lifetime
	rec, _ := s.Get(ctx, "v1")
	rec.Paid = true
	_ = s.Put(ctx, rec)
	clock.Advance(2 * time.Minute)
	if _, err := s.Get(ctx, "v1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after ttl", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expired record not removed")
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(0, 3)
	for i := 0; i < 5; i++ {
		if err := s.Put(ctx, Record{ID: fmt.Sprintf("v%d", i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
		clock.Advance(time.Second)
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	for _, id := range []string{"v0", "v1"} {
		if _, err := s.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("%s should have been evicted", id)
		}
	}
	for _, id := range []string{"v2", "v3", "v4"} {
		if _, err := s.Get(ctx, id); err != nil {
			t.Fatalf("%s missing: %v", id, err)
		}
	}
}

func TestMemoryStoreRejectsEmptyID(t *testing.T) {
	s, _ := newTestStore(0, 0)
	if err := s.Put(context.Background(), Record{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute, 50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("v%d", i)
			for j := 0; j < 50; j++ {
				_ = s.Put(ctx, Record{ID: id, Prompt: "p"})
				_, _ = s.Get(ctx, id)
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 20 {
		t.Fatalf("len = %d, want 20", s.Len())
	}
}

func TestRemaining(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := Record{CreatedAt: now.Add(-5 * time.Minute)}
	if got := remaining(rec, 30*time.Minute, now); got != 25*time.Minute {
		t.Fatalf("remaining = %v", got)
	}
	if got := remaining(rec, 0, now); got != 0 {
		t.Fatalf("remaining without ttl = %v", got)
	}
}

func TestMemoryStoreClaimTransaction(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(time.Hour, 0)
	hash := "0xABC"
	if err := s.ClaimTransaction(ctx, hash, "v1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.ClaimTransaction(ctx, "0xabc", "v1"); err != nil {
		t.Fatalf("repeat claim for the same video: %v", err)
	}
	if err := s.ClaimTransaction(ctx, hash, "v2"); !errors.Is(err, domain.ErrPaymentRequired) {
		t.Fatalf("claim for another video err = %v, want ErrPaymentRequired", err)
	}
	if err := s.ClaimTransaction(ctx, "", "v1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty hash err = %v, want ErrValidation", err)
	}

	clock.Advance(ClaimTTL)
	if err := s.ClaimTransaction(ctx, hash, "v2"); err != nil {
		t.Fatalf("claim after ClaimTTL: %v", err)
	}
}
