package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellness-escape/vitality-hub/internal/domain/catalog"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

func TestGate_FirstSessionAlwaysUnlocked(t *testing.T) {
	g := NewGate(catalog.MustLoadDefault(), true)

	u := g.Evaluate("1", nil)
	assert.True(t, u.Unlocked)
	assert.Equal(t, ReasonFirstSession, u.Reason)
	assert.False(t, u.FellBack)
}

func TestGate_SequentialUnlock(t *testing.T) {
	c := catalog.MustLoadDefault()
	g := NewGate(c, true)

	var done progress.SessionSet
	for i, s := range c.Sessions() {
		u := g.Evaluate(s.ID, done)
		assert.True(t, u.Unlocked, "session %s unlocked once its predecessor is done", s.ID)

		if i+1 < c.SessionCount() {
			next := c.Sessions()[i+1]
			locked := g.Evaluate(next.ID, done)
			assert.False(t, locked.Unlocked)
			assert.Equal(t, s.ID, locked.Requires)
			assert.True(t, shared.IsSessionLocked(g.Check(next.ID, done)))
		}
		done = append(done, s.ID)
	}
}

func TestGate_OnlyDirectPredecessorMatters(t *testing.T) {
	g := NewGate(catalog.MustLoadDefault(), true)

	// Session 5 needs 4, not 1..4.
	u := g.Evaluate("5", progress.SessionSet{"4"})
	assert.True(t, u.Unlocked)
	assert.Equal(t, ReasonPreviousComplete, u.Reason)

	u = g.Evaluate("5", progress.SessionSet{"1", "2", "3"})
	assert.False(t, u.Unlocked)
	assert.Equal(t, "4", u.Requires)
}

func TestGate_UnknownFallsBackToFirst(t *testing.T) {
	g := NewGate(catalog.MustLoadDefault(), true)

	u := g.Evaluate("does-not-exist", nil)
	assert.True(t, u.Unlocked)
	assert.True(t, u.FellBack)
	assert.Equal(t, "1", u.SessionID)
	assert.NoError(t, g.Check("does-not-exist", nil))
}

func TestGate_Disabled(t *testing.T) {
	g := NewGate(catalog.MustLoadDefault(), false)

	u := g.Evaluate("8", nil)
	assert.True(t, u.Unlocked)
	assert.Equal(t, ReasonGateDisabled, u.Reason)
	assert.False(t, g.Enabled())
}

func TestGate_Next(t *testing.T) {
	c := catalog.MustLoadDefault()
	g := NewGate(c, true)

	next, ok := g.Next(nil)
	require.True(t, ok)
	assert.Equal(t, "1", next.ID)

	next, ok = g.Next(progress.SessionSet{"1", "2"})
	require.True(t, ok)
	assert.Equal(t, "3", next.ID)

	var all progress.SessionSet
	for _, s := range c.Sessions() {
		all = append(all, s.ID)
	}
	_, ok = g.Next(all)
	assert.False(t, ok)
	assert.Equal(t, 8, g.CompletedCount(append(all, "legacy")))
}
