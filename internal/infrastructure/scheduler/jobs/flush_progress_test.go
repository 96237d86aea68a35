package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

// switchMedium refuses writes until up is set.
type switchMedium struct {
	mu   sync.Mutex
	up   bool
	data map[string]string
}

func (m *switchMedium) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.up {
		return "", false, errors.New("medium down")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *switchMedium) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.up {
		return errors.New("medium down")
	}
	m.data[key] = value
	return nil
}

type counter struct{ n int }

func (c *counter) Flushed(n int) { c.n += n }

func TestFlushProgressJob(t *testing.T) {
	ctx := context.Background()
	medium := &switchMedium{data: map[string]string{}}
	store := progress.NewStore(medium)

	_, err := store.MarkSessionComplete(ctx, shared.UserID("alice"), "1")
	require.NoError(t, err)
	require.Equal(t, 1, store.Pending())

	rec := &counter{}
	job := NewFlushProgressJob(store, rec, nil)
	assert.Equal(t, "flush-pending-progress", job.Name())

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 0, rec.n, "medium still down")
	assert.Equal(t, 1, store.Pending())

	medium.mu.Lock()
	medium.up = true
	medium.mu.Unlock()

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, rec.n)
	assert.Equal(t, 0, store.Pending())
	assert.Len(t, medium.data, 1)
}

func TestFlushProgressJob_NothingPending(t *testing.T) {
	job := NewFlushProgressJob(progress.NewStore(nil), nil, nil)
	assert.NoError(t, job.Run(context.Background()))
}
