package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRunLocked indicates another reconciliation run holds the receipt lock.
var ErrRunLocked = errors.New("reconciliation already in progress for receipt")

// ReceiptLockKey builds the redis key guarding a receipt's reconciliation.
func ReceiptLockKey(receiptID string) string {
	return fmt.Sprintf("recon:receipt:%s:lock", receiptID)
}

// RunLock serialises reconciliation runs per terminal receipt. The lock only
// guards against concurrent duplicate runs; the database unique index on
// receipt_id remains the source of truth for completed runs.
type RunLock struct {
	client *redis.Client
}

// NewRunLock constructs a RunLock.
func NewRunLock(client *redis.Client) *RunLock {
	return &RunLock{client: client}
}

// Acquire takes the receipt lock for ttl and returns a release function.
func (l *RunLock) Acquire(ctx context.Context, receiptID string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := ReceiptLockKey(receiptID)
	ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunLocked
	}
	release := func() {
		_ = l.client.Del(context.Background(), key).Err()
	}
	return release, nil
}
