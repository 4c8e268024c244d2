// Package kv defines the key-value store contract the coordination state
// lives in, plus its Redis and in-memory implementations.
//
// The contract is deliberately narrow: single-key reads and writes, key
// scans, and a score-indexed set. There are no transactions and no
// compare-and-swap, so callers must be written to converge under duplicated
// and reordered writes. A SetIfAbsent primitive would close the
// duplicate-create race in the session router; until the contract grows one,
// that race is documented rather than eliminated.
package kv

import "context"

// Store is the key-value client consumed by the coordination services.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Del removes key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error
	// ScanKeys returns all keys matching the glob pattern.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	// AddToIndex adds member to the sorted set at key with the given score.
	AddToIndex(ctx context.Context, key string, score int64, member string) error
	// RangeByScore returns members of the sorted set at key whose score is
	// within [min, max], in ascending score order.
	RangeByScore(ctx context.Context, key string, min, max int64) ([]string, error)
}
