// Package videostore keeps generated videos until they are paid for and
// downloaded.
package videostore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"toonlab/internal/domain"
)

// ClaimTTL is how long a transaction hash stays bound to the video it paid for.
const ClaimTTL = 30 * 24 * time.Hour

// Record is one generated video and its payment state.
type Record struct {
	ID              string    `json:"id"`
	Video           []byte    `json:"video"`
	Prompt          string    `json:"prompt"`
	Paid            bool      `json:"paid"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store is the key-value contract used by the video handlers. Get returns
// domain.ErrNotFound for missing or expired records.
//
// ClaimTransaction binds a transaction hash to one video. Repeating the
// claim for the same video succeeds; claiming a bound hash for another video
// fails with domain.ErrPaymentRequired.
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
	ClaimTransaction(ctx context.Context, hash, videoID string) error
}

func claimKey(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

func validateClaim(hash, videoID string) error {
	if claimKey(hash) == "" || videoID == "" {
		return fmt.Errorf("%w: transaction hash and video id are required", domain.ErrValidation)
	}
	return nil
}

func errClaimed(hash, owner string) error {
	return fmt.Errorf("%w: transaction %s already unlocked video %s", domain.ErrPaymentRequired, claimKey(hash), owner)
}

// remaining reports how long rec may still live under ttl.
func remaining(rec Record, ttl time.Duration, now time.Time) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return rec.CreatedAt.Add(ttl).Sub(now)
}
