package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/catalog"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/progression"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

var (
	member = access.Principal{Authenticated: true, UserID: "alice", DisplayName: "Alice", HasAccess: true}
	viewer = access.Principal{Authenticated: true, UserID: "bob", Email: "bob@example.com"}
	admin  = access.Principal{Authenticated: true, UserID: "coach", IsAdmin: true}
)

type fixture struct {
	nav   *Navigator
	store *progress.Store
	cat   *catalog.Catalog
}

func newFixture(t *testing.T, gateEnabled bool) fixture {
	t.Helper()
	cat, err := catalog.LoadDefault()
	require.NoError(t, err)
	store := progress.NewStore(nil)
	nav := NewNavigator(cat, store, progression.NewGate(cat, gateEnabled), NavigatorConfig{
		SchedulingURL: "https://calendly.com/wellness-escape",
		HabitTracking: true,
	})
	return fixture{nav: nav, store: store, cat: cat}
}

// ──────────────────────────────────────────────────────────────────────────────
// Describe
// ──────────────────────────────────────────────────────────────────────────────

func TestDescribe_EntitledFirstSession(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	v := f.nav.Describe(ctx, "1", member)
	assert.False(t, v.FellBack)
	assert.Equal(t, "1", v.Session.ID)
	assert.Equal(t, "1", v.Week.ID)
	assert.True(t, v.Unlock.Unlocked)
	assert.Equal(t, progression.ReasonFirstSession, v.Unlock.Reason)
	assert.Equal(t, access.VisibleInteractive, v.Access.Video)
	assert.NotEmpty(t, v.Session.VideoURL)
	require.NotNil(t, v.Session.Worksheet)
	assert.Len(t, v.Session.Worksheet.Questions, 4)
	assert.NotEmpty(t, v.Session.Assignments[0].Steps)
	assert.Nil(t, v.Previous)
	require.NotNil(t, v.Next)
	assert.Equal(t, "2", v.Next.ID)
	assert.False(t, v.Next.Unlocked)
	assert.Nil(t, v.Links)
}

func TestDescribe_PreviewRedactsSubstance(t *testing.T) {
	f := newFixture(t, true)

	for name, p := range map[string]access.Principal{
		"anonymous":             access.Anonymous,
		"not entitled":          viewer,
		"unauthenticated flags": {HasAccess: true, IsAdmin: true},
	} {
		t.Run(name, func(t *testing.T) {
			v := f.nav.Describe(context.Background(), "1", p)
			assert.Equal(t, access.VisiblePreviewOnly, v.Access.Description)
			assert.Equal(t, access.Locked, v.Access.Video)
			assert.Empty(t, v.Session.VideoURL)
			assert.Empty(t, v.Session.JournalPrompt)
			require.NotNil(t, v.Session.Worksheet)
			assert.Empty(t, v.Session.Worksheet.Questions)
			for _, a := range v.Session.Assignments {
				assert.NotEmpty(t, a.Title)
				assert.Empty(t, a.Steps)
				assert.Empty(t, a.Description)
			}
			assert.Equal(t, UnlockURL, v.Links["unlock"])

			raw, err := json.Marshal(v)
			require.NoError(t, err)
			assert.NotContains(t, string(raw), "youtu.be")
		})
	}
}

func TestDescribe_UnknownSessionFallsBack(t *testing.T) {
	f := newFixture(t, true)

	v := f.nav.Describe(context.Background(), "does-not-exist", member)
	assert.True(t, v.FellBack)
	assert.Equal(t, "1", v.Session.ID)
	assert.True(t, v.Unlock.Unlocked)
}

func TestDescribe_GateHidesVideoUntilPreviousComplete(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	v := f.nav.Describe(ctx, "2", member)
	assert.False(t, v.Unlock.Unlocked)
	assert.Equal(t, "1", v.Unlock.Requires)
	assert.Empty(t, v.Session.VideoURL)
	assert.Equal(t, access.VisibleInteractive, v.Access.Video, "policy and gate are independent")

	_, err := f.store.MarkSessionComplete(ctx, member.UserID, "1")
	require.NoError(t, err)

	v = f.nav.Describe(ctx, "2", member)
	assert.True(t, v.Unlock.Unlocked)
	assert.NotEmpty(t, v.Session.VideoURL)
	require.NotNil(t, v.Previous)
	assert.True(t, v.Previous.Completed)
}

func TestDescribe_AdminIsNotExemptFromGate(t *testing.T) {
	f := newFixture(t, true)

	v := f.nav.Describe(context.Background(), "3", admin)
	assert.Equal(t, access.VisibleInteractive, v.Access.Video)
	assert.False(t, v.Unlock.Unlocked)
}

func TestDescribe_GateDisabled(t *testing.T) {
	f := newFixture(t, false)

	v := f.nav.Describe(context.Background(), "8", member)
	assert.True(t, v.Unlock.Unlocked)
	assert.Equal(t, progression.ReasonGateDisabled, v.Unlock.Reason)
	assert.Nil(t, v.Next)
}

func TestDescribe_WorksheetAnswers(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.store.SaveWorksheetAnswers(ctx, member.UserID, "1", map[string]string{"why": "energy"})
	require.NoError(t, err)

	v := f.nav.Describe(ctx, "1", member)
	assert.Equal(t, "energy", v.Progress.Answers["why"])

	// Answers are part of the locked worksheet node.
	_, err = f.store.SaveWorksheetAnswers(ctx, viewer.UserID, "1", map[string]string{"why": "x"})
	require.NoError(t, err)
	assert.Empty(t, f.nav.Describe(ctx, "1", viewer).Progress.Answers)
}

// ──────────────────────────────────────────────────────────────────────────────
// Week
// ──────────────────────────────────────────────────────────────────────────────

func TestDescribeWeek(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.store.ToggleActionStep(ctx, member.UserID, "1", 2, 4)
	require.NoError(t, err)

	v := f.nav.DescribeWeek(ctx, "1", member)
	assert.Equal(t, 1, v.Number)
	assert.NotEmpty(t, v.Pillars)
	require.Len(t, v.Sessions, 2)
	assert.True(t, v.Sessions[0].Unlocked)
	assert.False(t, v.Sessions[1].Unlocked)
	require.NotNil(t, v.ActionPlan)
	assert.Len(t, v.ActionPlan.ActionSteps, v.ActionPlan.StepCount)
	assert.Equal(t, []int{2}, v.Progress.CompletedSteps)
	assert.Equal(t, "https://calendly.com/wellness-escape", v.SchedulingURL)
	require.NotNil(t, v.Coaching)
}

func TestDescribeWeek_Preview(t *testing.T) {
	f := newFixture(t, true)

	v := f.nav.DescribeWeek(context.Background(), "2", viewer)
	require.NotNil(t, v.ActionPlan)
	assert.Empty(t, v.ActionPlan.ActionSteps)
	assert.Positive(t, v.ActionPlan.StepCount)
	assert.NotEmpty(t, v.ActionPlan.ReflectionPrompt, "reflection prompt is a preview node")
	assert.Empty(t, v.ActionPlan.JournalPrompts)
	assert.NotNil(t, v.Coaching, "coaching outline is a preview node")
	assert.Empty(t, v.Progress.CompletedSteps)
}

func TestDescribeWeek_UnknownFallsBack(t *testing.T) {
	f := newFixture(t, true)

	v := f.nav.DescribeWeek(context.Background(), "99", member)
	assert.True(t, v.FellBack)
	assert.Equal(t, "1", v.ID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Program
// ──────────────────────────────────────────────────────────────────────────────

func TestDescribeProgram(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for _, id := range []string{"1", "2"} {
		_, err := f.store.MarkSessionComplete(ctx, member.UserID, id)
		require.NoError(t, err)
	}

	v, err := f.nav.DescribeProgram(ctx, "vitality-reset", member)
	require.NoError(t, err)
	assert.Equal(t, 2, v.CompletedCount)
	assert.Equal(t, 8, v.TotalSessions)
	assert.Equal(t, 25, v.PercentDone)
	assert.Equal(t, "3", v.NextSessionID)
	require.Len(t, v.Weeks, 4)
	assert.True(t, v.Weeks[0].Complete)
	assert.False(t, v.Weeks[1].Complete)
	assert.True(t, v.Weeks[1].Sessions[0].Unlocked)
	assert.False(t, v.Weeks[1].Sessions[1].Unlocked)

	legacy, err := f.nav.DescribeProgram(ctx, "4-week", member)
	require.NoError(t, err)
	assert.Equal(t, v.ID, legacy.ID)

	_, err = f.nav.DescribeProgram(ctx, "12-week", member)
	assert.True(t, shared.IsNotFound(err))
}

func TestDescribeProgram_Anonymous(t *testing.T) {
	f := newFixture(t, true)

	v, err := f.nav.DescribeProgram(context.Background(), "vitality-reset", access.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, access.Locked, v.Access)
	assert.Zero(t, v.CompletedCount)
	assert.Equal(t, "1", v.NextSessionID)
	assert.Equal(t, UnlockURL, v.Links["unlock"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Dashboard
// ──────────────────────────────────────────────────────────────────────────────

func TestDashboard_RequiresAuthentication(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.nav.Dashboard(context.Background(), access.Anonymous)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestDashboard_Member(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	now := time.Date(2024, 11, 6, 12, 0, 0, 0, time.UTC)
	f.nav.now = func() time.Time { return now }

	_, err := f.store.MarkSessionComplete(ctx, member.UserID, "1")
	require.NoError(t, err)
	_, _, err = f.store.RecordHabitCheckIn(ctx, member.UserID, "hydration", progress.CheckIn{ID: "c1", At: now})
	require.NoError(t, err)

	d, err := f.nav.Dashboard(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, "Alice", d.Name)
	assert.True(t, d.ShowOrientation)
	require.NotNil(t, d.NextSession)
	assert.Equal(t, "2", d.NextSession.ID)
	require.NotNil(t, d.CurrentWeek)
	assert.Equal(t, "1", d.CurrentWeek.ID)
	assert.NotNil(t, d.WeekProgress)
	assert.Equal(t, 13, d.PercentDone)
	require.Len(t, d.Habits, 4)
	assert.Equal(t, "hydration", d.Habits[0].ID)
	assert.True(t, d.Habits[0].CheckedInToday)
	assert.Equal(t, 1, d.Habits[0].Streak.Current)
	assert.Equal(t, 1, d.Habits[0].DaysThisWeek)

	require.NoError(t, f.store.MarkOrientationSeen(ctx, member.UserID))
	d, err = f.nav.Dashboard(ctx, member)
	require.NoError(t, err)
	assert.False(t, d.ShowOrientation)
}

func TestDashboard_NotEntitled(t *testing.T) {
	f := newFixture(t, true)

	d, err := f.nav.Dashboard(context.Background(), viewer)
	require.NoError(t, err)
	assert.Equal(t, "bob", d.Name)
	assert.False(t, d.HasAccess)
	assert.False(t, d.ShowOrientation)
	assert.Nil(t, d.WeekProgress)
	assert.Empty(t, d.Habits)
	assert.Equal(t, UnlockURL, d.Links["unlock"])
}

func TestDashboard_ProgramComplete(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	for _, s := range f.cat.Sessions() {
		_, err := f.store.MarkSessionComplete(ctx, member.UserID, s.ID)
		require.NoError(t, err)
	}

	d, err := f.nav.Dashboard(ctx, member)
	require.NoError(t, err)
	assert.True(t, d.ProgramComplete)
	assert.Nil(t, d.NextSession)
	assert.Equal(t, 100, d.PercentDone)
	require.NotNil(t, d.CurrentWeek)
	assert.Equal(t, 4, d.CurrentWeek.Number)
}
