package videostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"toonlab/internal/domain"
)

const (
	keyPrefix   = "video:"
	claimPrefix = "payment:"
)

// RedisStore keeps records as JSON values that expire ttl after creation.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore connects lazily to addr.
func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, fmt.Errorf("%w: video %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("videostore: get %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("videostore: decode %s: %w", id, err)
	}
	return rec, nil
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record id is required", domain.ErrValidation)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	expiry := time.Duration(0)
	if s.ttl > 0 {
		expiry = remaining(rec, s.ttl, s.now())
		if expiry <= 0 {
			return s.Delete(ctx, rec.ID)
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("videostore: encode %s: %w", rec.ID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+rec.ID, data, expiry).Err(); err != nil {
		return fmt.Errorf("videostore: set %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("videostore: delete %s: %w", id, err)
	}
	return nil
}

// ClaimTransaction stores the binding with SETNX so concurrent claims for
// one hash have a single winner.
func (s *RedisStore) ClaimTransaction(ctx context.Context, hash, videoID string) error {
	if err := validateClaim(hash, videoID); err != nil {
		return err
	}
	key := claimPrefix + claimKey(hash)
	ok, err := s.client.SetNX(ctx, key, videoID, ClaimTTL).Result()
	if err != nil {
		return fmt.Errorf("videostore: claim %s: %w", key, err)
	}
	if ok {
		return nil
	}
	owner, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.ClaimTransaction(ctx, hash, videoID)
	}
	if err != nil {
		return fmt.Errorf("videostore: claim %s: %w", key, err)
	}
	if owner != videoID {
		return errClaimed(hash, owner)
	}
	return nil
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
