// Package memory provides a process-local progress medium for development,
// tests and deployments without a shared store.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrKeyEmpty is returned when an empty key or prefix is provided.
var ErrKeyEmpty = errors.New("memory: key cannot be empty")

// ProgressMedium is a map guarded by a RWMutex.
// It implements progress.Medium, progress.Deleter and progress.Pinger.
type ProgressMedium struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewProgressMedium creates an empty medium.
func NewProgressMedium() *ProgressMedium {
	return &ProgressMedium{data: make(map[string]string)}
}

// Get returns the stored value and whether the key exists.
func (m *ProgressMedium) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if key == "" {
		return "", false, ErrKeyEmpty
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	return v, ok, nil
}

// Set overwrites the value of a key.
func (m *ProgressMedium) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrKeyEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *ProgressMedium) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if prefix == "" {
		return 0, ErrKeyEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds unless the context is done.
func (m *ProgressMedium) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Keys returns the stored keys in sorted order.
func (m *ProgressMedium) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (m *ProgressMedium) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
