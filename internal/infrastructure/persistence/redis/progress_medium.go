package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// commander is the subset of redis.Cmdable the medium needs.
// *redis.Client and *redis.ClusterClient satisfy it.
type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// scanBatch is the COUNT hint for SCAN and the DEL batch size.
const scanBatch = 100

// ProgressMedium stores progress records as plain string keys without TTL.
type ProgressMedium struct {
	client commander
	prefix string
}

// NewProgressMedium creates a medium over the given client.
func NewProgressMedium(client commander, keyPrefix string) *ProgressMedium {
	return &ProgressMedium{client: client, prefix: keyPrefix}
}

func (m *ProgressMedium) key(k string) string {
	return m.prefix + k
}

// Get returns the stored value and whether the key exists.
func (m *ProgressMedium) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrKeyEmpty
	}

	val, err := m.client.Get(ctx, m.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

// Set overwrites the value of a key.
func (m *ProgressMedium) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrKeyEmpty
	}
	return m.client.Set(ctx, m.key(key), value, 0).Err()
}

// DeletePrefix deletes every key starting with prefix using SCAN + DEL.
func (m *ProgressMedium) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, ErrKeyEmpty
	}

	pattern := escapeGlob(m.key(prefix)) + "*"
	var (
		cursor  uint64
		deleted int64
	)

	for {
		keys, next, err := m.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := m.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Ping checks if Redis is reachable.
func (m *ProgressMedium) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
