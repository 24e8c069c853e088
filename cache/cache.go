/*
Package cache provides processed-key stores used to make at-least-once
consumers idempotent.

USAGE:

	store := cache.NewMemory(24 * time.Hour)
	defer store.Close()

	if done, _ := store.IsProcessed(ctx, receiptID); done {
		return nil
	}
	// ... process ...
	store.MarkProcessed(ctx, receiptID)

A processed-key store is a fast path only. The durable guard is a primary
key in the ledger store; entries may expire or be lost.
*/
package cache

import "context"

// ProcessedStore remembers keys that have been handled.
type ProcessedStore interface {
	// MarkProcessed records key and reports whether it was newly marked.
	MarkProcessed(ctx context.Context, key string) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
}
