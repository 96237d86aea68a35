package progress

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/timeutil"
)

// ──────────────────────────────────────────────────────────────────────────────
// Test mediums
// ──────────────────────────────────────────────────────────────────────────────

type mapMedium struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapMedium() *mapMedium {
	return &mapMedium{data: make(map[string]string)}
}

func (m *mapMedium) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapMedium) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapMedium) DeletePrefix(_ context.Context, prefix string) (int64, error) {
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

var errMediumDown = errors.New("medium down")

type failingMedium struct {
	failGet bool
	failSet bool
	inner   *mapMedium
}

func (f *failingMedium) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errMediumDown
	}
	return f.inner.Get(ctx, key)
}

func (f *failingMedium) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errMediumDown
	}
	return f.inner.Set(ctx, key, value)
}

type failures struct {
	mu  sync.Mutex
	ops []Op
	err []error
}

func (f *failures) handle(op Op, _ string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	f.err = append(f.err, err)
}

const alice = shared.UserID("alice")

// ──────────────────────────────────────────────────────────────────────────────
// Keys
// ──────────────────────────────────────────────────────────────────────────────

func TestNewKey(t *testing.T) {
	k, err := NewKey(alice, NamespaceWeek, "3")
	require.NoError(t, err)
	assert.Equal(t, "progress:alice:week:3", k.String())
	assert.True(t, strings.HasPrefix(k.String(), UserPrefix(alice)))

	_, err = NewKey("", NamespaceWeek, "3")
	assert.True(t, shared.IsValidation(err))

	_, err = NewKey(alice, NamespaceWeek, "a:b")
	assert.True(t, shared.IsValidation(err))

	_, err = NewKey(alice, Namespace("other"), "3")
	assert.True(t, shared.IsValidation(err))
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("progress:alice:habit:hydration")
	require.NoError(t, err)
	assert.Equal(t, alice, k.User())
	assert.Equal(t, NamespaceHabit, k.Namespace())
	assert.Equal(t, shared.ContentID("hydration"), k.Content())

	for _, bad := range []string{"", "progress:alice:week", "other:alice:week:1", "progress:alice:week:1:x"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Load / Save
// ──────────────────────────────────────────────────────────────────────────────

func TestStore_LoadDefaults(t *testing.T) {
	ctx := context.Background()
	m := newMapMedium()
	f := &failures{}
	s := NewStore(m, WithFailureHandler(f.handle))

	assert.Empty(t, s.CompletedSessions(ctx, alice))

	m.data["progress:alice:sessions:completed"] = "{not json"
	assert.Empty(t, s.CompletedSessions(ctx, alice), "corrupt value reads as default")
	require.Len(t, f.ops, 1)
	assert.Equal(t, OpParse, f.ops[0])
	assert.True(t, errors.Is(f.err[0], shared.ErrCorruptData))
}

func TestStore_NilMedium(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	changed, err := s.MarkSessionComplete(ctx, alice, "1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, s.IsComplete(ctx, alice, "1"))
	assert.Equal(t, 0, s.Pending())
	assert.NoError(t, s.Ping(ctx))
}

func TestStore_SaveFailureKeepsValueInMemory(t *testing.T) {
	ctx := context.Background()
	inner := newMapMedium()
	m := &failingMedium{failSet: true, inner: inner}
	f := &failures{}
	s := NewStore(m, WithFailureHandler(f.handle))

	changed, err := s.MarkSessionComplete(ctx, alice, "1")
	require.NoError(t, err, "medium failure never surfaces")
	assert.True(t, changed)
	assert.True(t, s.IsComplete(ctx, alice, "1"))
	assert.Equal(t, 1, s.Pending())
	require.Len(t, f.ops, 1)
	assert.Equal(t, OpSave, f.ops[0])
	assert.True(t, shared.IsStorage(f.err[0]))

	m.failSet = false
	assert.Equal(t, 1, s.Flush(ctx))
	assert.Equal(t, 0, s.Pending())
	assert.Contains(t, inner.data, "progress:alice:sessions:completed")
}

func TestStore_ReadFailureReturnsDefault(t *testing.T) {
	ctx := context.Background()
	f := &failures{}
	s := NewStore(&failingMedium{failGet: true, inner: newMapMedium()}, WithFailureHandler(f.handle))

	assert.False(t, s.IsComplete(ctx, alice, "1"))
	assert.Equal(t, WeekProgress{}, s.WeekProgress(ctx, alice, "1"))
	assert.Len(t, f.ops, 2)
}

func TestStore_ReadOutageNeverOverwritesDurableRecord(t *testing.T) {
	ctx := context.Background()
	inner := newMapMedium()
	m := &failingMedium{inner: inner}
	s := NewStore(m)

	for _, id := range []string{"1", "2", "3"} {
		_, err := s.MarkSessionComplete(ctx, alice, id)
		require.NoError(t, err)
	}
	_, err := s.SaveWorksheetAnswers(ctx, alice, "1", map[string]string{"why": "energy"})
	require.NoError(t, err)

	m.failGet, m.failSet = true, true

	changed, err := s.MarkSessionComplete(ctx, alice, "4")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, s.IsComplete(ctx, alice, "4"))
	_, err = s.SaveWorksheetAnswers(ctx, alice, "1", map[string]string{"energy": "7"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Pending())

	m.failSet = false
	assert.Equal(t, 0, s.Flush(ctx), "nothing is written while stored values are unreadable")
	assert.Equal(t, `["1","2","3"]`, inner.data["progress:alice:sessions:completed"])

	m.failGet = false
	assert.Equal(t, 2, s.Flush(ctx))
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, `["1","2","3","4"]`, inner.data["progress:alice:sessions:completed"])
	assert.Equal(t, WorksheetAnswers{"why": "energy", "energy": "7"}, s.WorksheetAnswers(ctx, alice, "1"))
}

func TestStore_ReadAfterOutageMergesPendingChange(t *testing.T) {
	ctx := context.Background()
	inner := newMapMedium()
	m := &failingMedium{inner: inner}
	s := NewStore(m)

	_, err := s.MarkSessionComplete(ctx, alice, "1")
	require.NoError(t, err)
	_, err = s.ToggleActionStep(ctx, alice, "1", 2, 4)
	require.NoError(t, err)

	m.failGet = true
	_, err = s.MarkSessionComplete(ctx, alice, "2")
	require.NoError(t, err)
	wp, err := s.ToggleActionStep(ctx, alice, "1", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, wp.CompletedSteps, "toggled from the default while unreadable")

	m.failGet = false
	assert.Equal(t, SessionSet{"1", "2"}, s.CompletedSessions(ctx, alice))
	assert.Equal(t, []int{2}, s.WeekProgress(ctx, alice, "1").CompletedSteps, "the step keeps the state the user chose")
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, `["1","2"]`, inner.data["progress:alice:sessions:completed"])
}

// gatedMedium может задержать следующую запись до release.
type gatedMedium struct {
	*mapMedium
	mu      sync.Mutex
	failSet bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedMedium) Set(ctx context.Context, key, value string) error {
	g.mu.Lock()
	fail, entered, release := g.failSet, g.entered, g.release
	g.entered = nil
	g.mu.Unlock()

	if fail {
		return errMediumDown
	}
	if entered != nil {
		close(entered)
		<-release
	}
	return g.mapMedium.Set(ctx, key, value)
}

func TestStore_FlushDoesNotOverwriteNewerWrite(t *testing.T) {
	ctx := context.Background()
	m := &gatedMedium{mapMedium: newMapMedium(), failSet: true}
	s := NewStore(m, WithTimeout(time.Minute))

	_, err := s.MarkSessionComplete(ctx, alice, "1")
	require.NoError(t, err)
	require.Equal(t, 1, s.Pending())

	entered, release := make(chan struct{}), make(chan struct{})
	m.mu.Lock()
	m.failSet, m.entered, m.release = false, entered, release
	m.mu.Unlock()

	flushed := make(chan int, 1)
	go func() { flushed <- s.Flush(ctx) }()
	<-entered

	marked := make(chan struct{})
	go func() {
		_, _ = s.MarkSessionComplete(ctx, alice, "2")
		close(marked)
	}()

	close(release)
	assert.Equal(t, 1, <-flushed)
	<-marked

	assert.Equal(t, 0, s.Pending())
	v, _, _ := m.Get(ctx, "progress:alice:sessions:completed")
	assert.Equal(t, `["1","2"]`, v)
}

type slowMedium struct{}

func (slowMedium) Get(ctx context.Context, _ string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func (slowMedium) Set(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStore_MediumTimeout(t *testing.T) {
	ctx := context.Background()
	s := NewStore(slowMedium{}, WithTimeout(10*time.Millisecond))

	start := time.Now()
	_, err := s.MarkSessionComplete(ctx, alice, "1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, s.IsComplete(ctx, alice, "1"))
}

// ──────────────────────────────────────────────────────────────────────────────
// Typed operations
// ──────────────────────────────────────────────────────────────────────────────

func TestStore_MarkSessionCompleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMapMedium())

	first, err := s.MarkSessionComplete(ctx, alice, "2")
	require.NoError(t, err)
	second, err := s.MarkSessionComplete(ctx, alice, "2")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, SessionSet{"2"}, s.CompletedSessions(ctx, alice))
	assert.False(t, s.IsComplete(ctx, "bob", "2"), "progress is per user")
}

func TestStore_ToggleActionStep(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMapMedium())

	wp, err := s.ToggleActionStep(ctx, alice, "1", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, wp.CompletedSteps)

	wp, err = s.ToggleActionStep(ctx, alice, "1", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, wp.CompletedSteps)

	wp, err = s.ToggleActionStep(ctx, alice, "1", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, wp.CompletedSteps, "toggling twice restores the set")

	_, err = s.ToggleActionStep(ctx, alice, "1", 4, 4)
	assert.ErrorIs(t, err, shared.ErrInvalidStepIndex)
	_, err = s.ToggleActionStep(ctx, alice, "1", -1, 4)
	assert.ErrorIs(t, err, shared.ErrInvalidStepIndex)
}

func TestStore_ToggleActionStepNormalizesStoredValue(t *testing.T) {
	ctx := context.Background()
	m := newMapMedium()
	m.data["progress:alice:week:1"] = `{"completed_steps":[3,3,9,-1,1],"journal_entry":"x"}`
	s := NewStore(m)

	wp, err := s.ToggleActionStep(ctx, alice, "1", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, wp.CompletedSteps)
	assert.Equal(t, "x", wp.JournalEntry)
}

func TestStore_ReflectionAndWeekComplete(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMapMedium())

	_, err := s.ToggleActionStep(ctx, alice, "2", 1, 4)
	require.NoError(t, err)

	wp, err := s.SaveReflection(ctx, alice, "2", "moving more")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, wp.CompletedSteps, "reflection keeps steps")

	wp, err = s.MarkWeekComplete(ctx, alice, "2")
	require.NoError(t, err)
	assert.True(t, wp.IsComplete)
	assert.Equal(t, "moving more", wp.JournalEntry)

	_, err = s.SaveReflection(ctx, alice, "2", strings.Repeat("a", MaxReflectionRunes+1))
	assert.ErrorIs(t, err, shared.ErrReflectionTooLarge)
}

func TestStore_WorksheetMerge(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMapMedium())

	_, err := s.SaveWorksheetAnswers(ctx, alice, "1", map[string]string{"why": "energy", "energy": "4"})
	require.NoError(t, err)

	got, err := s.SaveWorksheetAnswers(ctx, alice, "1", map[string]string{"energy": "7", "success": "run 5k"})
	require.NoError(t, err)
	assert.Equal(t, WorksheetAnswers{"why": "energy", "energy": "7", "success": "run 5k"}, got)

	got, err = s.SaveWorksheetAnswers(ctx, alice, "1", map[string]string{"why": ""})
	require.NoError(t, err)
	assert.Equal(t, WorksheetAnswers{"energy": "7", "success": "run 5k"}, got)
	assert.Equal(t, got, s.WorksheetAnswers(ctx, alice, "1"))
}

func TestStore_HabitStreak(t *testing.T) {
	timeutil.SetLocation(time.UTC)
	ctx := context.Background()
	s := NewStore(newMapMedium())

	day := func(d int) time.Time { return time.Date(2024, 5, d, 8, 0, 0, 0, time.UTC) }

	for _, d := range []int{1, 2, 3} {
		_, recorded, err := s.RecordHabitCheckIn(ctx, alice, "hydration", CheckIn{ID: "c", At: day(d)})
		require.NoError(t, err)
		assert.True(t, recorded)
	}

	_, recorded, err := s.RecordHabitCheckIn(ctx, alice, "hydration", CheckIn{At: day(3).Add(6 * time.Hour)})
	require.NoError(t, err)
	assert.False(t, recorded, "one check-in per calendar day")

	st := s.HabitStreak(ctx, alice, "hydration", day(3))
	assert.Equal(t, 3, st.Current)
	assert.Equal(t, 3, st.Best)
	assert.Equal(t, "2024-05-01", st.StartedOn)

	assert.Equal(t, 3, s.HabitStreak(ctx, alice, "hydration", day(4)).Current, "yesterday keeps the streak alive")
	assert.Equal(t, 0, s.HabitStreak(ctx, alice, "hydration", day(5)).Current)

	log, recorded, err := s.RecordHabitCheckIn(ctx, alice, "hydration", CheckIn{At: day(6)})
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, 1, log.Streak.Current, "a gap resets the streak")
	assert.Equal(t, 3, log.Streak.Best)
	assert.Len(t, log.CheckIns, 4)
}

func TestStore_OrientationFlag(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMapMedium())

	assert.False(t, s.OrientationSeen(ctx, alice))
	require.NoError(t, s.MarkOrientationSeen(ctx, alice))
	assert.True(t, s.OrientationSeen(ctx, alice))
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	m := newMapMedium()
	s := NewStore(m)

	_, _ = s.MarkSessionComplete(ctx, alice, "1")
	_, _ = s.MarkSessionComplete(ctx, "bob", "1")
	require.NoError(t, s.MarkOrientationSeen(ctx, alice))

	n, err := s.Reset(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.False(t, s.IsComplete(ctx, alice, "1"))
	assert.True(t, s.IsComplete(ctx, "bob", "1"))

	noDelete := NewStore(&failingMedium{inner: newMapMedium()})
	_, err = noDelete.Reset(ctx, alice)
	assert.ErrorIs(t, err, ErrResetUnsupported)
}
