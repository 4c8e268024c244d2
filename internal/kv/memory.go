package kv

import (
	"context"
	"path"
	"sort"
	"sync"
)

type scoredMember struct {
	score  int64
	member string
}

// Memory is an in-process Store for tests and local development. It matches
// the Redis semantics the services rely on: no transactions, plain overwrite
// on Set, glob patterns for ScanKeys.
type Memory struct {
	mu      sync.Mutex
	values  map[string]string
	indexes map[string][]scoredMember
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values:  map[string]string{},
		indexes: map[string][]scoredMember{},
	}
}

// Get returns the value for key and whether it exists.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.values[key]
	return val, ok, nil
}

// Set writes value under key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Del removes key.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// ScanKeys returns all keys matching the glob pattern.
func (m *Memory) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.values {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// AddToIndex adds member to the sorted set at key with the given score.
func (m *Memory) AddToIndex(_ context.Context, key string, score int64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[key] = append(m.indexes[key], scoredMember{score: score, member: member})
	return nil
}

// RangeByScore returns sorted-set members with scores within [min, max].
func (m *Memory) RangeByScore(_ context.Context, key string, min, max int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := append([]scoredMember(nil), m.indexes[key]...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].score < entries[j].score })
	var members []string
	for _, entry := range entries {
		if entry.score >= min && entry.score <= max {
			members = append(members, entry.member)
		}
	}
	return members, nil
}
