package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITLEMENT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// EntitlementStore is the authoritative purchase store, usually PostgreSQL.
type EntitlementStore interface {
	HasAccess(ctx context.Context, user shared.UserID) (bool, error)
	Grant(ctx context.Context, user shared.UserID, source string) error
	Revoke(ctx context.Context, user shared.UserID) (bool, error)
}

// EntitlementCache answers HasAccess from Redis and falls through to the
// store on a miss. Grant and Revoke write the store first, then drop the
// cached answer. A Redis failure never changes an answer, it only costs a
// store round trip.
type EntitlementCache struct {
	client commander
	store  EntitlementStore
	prefix string
	ttl    time.Duration

	// onError is told about Redis failures. May be nil.
	onError func(op string, err error)
}

// NewEntitlementCache wraps store. ttl bounds how long a revoke made
// elsewhere can go unnoticed.
func NewEntitlementCache(client commander, store EntitlementStore, keyPrefix string, ttl time.Duration) *EntitlementCache {
	return &EntitlementCache{
		client: client,
		store:  store,
		prefix: keyPrefix + "entitlement:",
		ttl:    ttl,
	}
}

// OnError sets the Redis failure callback.
func (c *EntitlementCache) OnError(fn func(op string, err error)) {
	c.onError = fn
}

func (c *EntitlementCache) key(user shared.UserID) string {
	return c.prefix + user.String()
}

func (c *EntitlementCache) report(op string, err error) {
	if c.onError != nil {
		c.onError(op, err)
	}
}

// HasAccess reports whether the user holds an active entitlement.
func (c *EntitlementCache) HasAccess(ctx context.Context, user shared.UserID) (bool, error) {
	val, err := c.client.Get(ctx, c.key(user)).Result()
	switch {
	case err == nil:
		return val == "1", nil
	case !errors.Is(err, redis.Nil):
		c.report("get", err)
	}

	has, err := c.store.HasAccess(ctx, user)
	if err != nil {
		return false, err
	}

	flag := "0"
	if has {
		flag = "1"
	}
	if err := c.client.Set(ctx, c.key(user), flag, c.ttl).Err(); err != nil {
		c.report("set", err)
	}
	return has, nil
}

// Grant records the purchase and invalidates the cached answer.
func (c *EntitlementCache) Grant(ctx context.Context, user shared.UserID, source string) error {
	if err := c.store.Grant(ctx, user, source); err != nil {
		return err
	}
	c.invalidate(ctx, user)
	return nil
}

// Revoke removes access and invalidates the cached answer.
func (c *EntitlementCache) Revoke(ctx context.Context, user shared.UserID) (bool, error) {
	revoked, err := c.store.Revoke(ctx, user)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, user)
	return revoked, nil
}

func (c *EntitlementCache) invalidate(ctx context.Context, user shared.UserID) {
	if err := c.client.Del(ctx, c.key(user)).Err(); err != nil {
		c.report("del", err)
	}
}
