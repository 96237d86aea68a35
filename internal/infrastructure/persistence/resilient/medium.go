// Package resilient guards a progress medium with a circuit breaker.
//
// While the breaker is open every Get and Set fails at once with
// circuitbreaker.ErrCircuitOpen, so the progress store falls back to its
// in-memory overlay without waiting out the medium timeout per request.
package resilient

import (
	"context"

	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/pkg/circuitbreaker"
)

// Medium wraps a progress.Medium. It also satisfies progress.Deleter and
// progress.Pinger when the wrapped medium does.
type Medium struct {
	inner   progress.Medium
	breaker *circuitbreaker.CircuitBreaker
}

// Wrap returns inner guarded by cb.
func Wrap(inner progress.Medium, cb *circuitbreaker.CircuitBreaker) *Medium {
	return &Medium{inner: inner, breaker: cb}
}

// Get reads through the breaker.
func (m *Medium) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := m.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		value, found, err = m.inner.Get(ctx, key)
		return err
	})
	return value, found, err
}

// Set writes through the breaker.
func (m *Medium) Set(ctx context.Context, key, value string) error {
	return m.breaker.Execute(ctx, func(ctx context.Context) error {
		return m.inner.Set(ctx, key, value)
	})
}

// DeletePrefix bypasses the breaker: resets are rare admin calls that must
// report the real medium error.
func (m *Medium) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	d, ok := m.inner.(progress.Deleter)
	if !ok {
		return 0, progress.ErrResetUnsupported
	}
	return d.DeletePrefix(ctx, prefix)
}

// Ping checks the wrapped medium directly so health reflects the medium,
// not the breaker.
func (m *Medium) Ping(ctx context.Context) error {
	p, ok := m.inner.(progress.Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

// State returns the breaker state.
func (m *Medium) State() circuitbreaker.State {
	return m.breaker.State()
}
