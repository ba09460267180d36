package scheduler

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sophiahq/sophia/internal/clients"
	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/store"
	"github.com/sophiahq/sophia/internal/testutil"
)

// planNow is a Monday morning; cadence tests reason in weekdays.
var planNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) // Monday

func newPlanner(t *testing.T, st *store.Store) *CadencePlanner {
	t.Helper()
	p := NewCadencePlanner(st, clients.NewSQLRepository(st.DB()))
	p.now = func() time.Time { return planNow }
	return p
}

func queueAt(t *testing.T, st *store.Store, clientID string, platform draft.Platform, at time.Time) {
	t.Helper()
	d := testutil.NewDraft(clientID, platform)
	d.Status = draft.StatusApproved
	require.NoError(t, st.InsertDraft(d))
	require.NoError(t, st.InsertQueueEntry(&draft.QueueEntry{
		ID:          uuid.NewString(),
		DraftID:     d.ID,
		ClientID:    clientID,
		Platform:    platform,
		ScheduledAt: at,
		PublishMode: draft.PublishAuto,
		Status:      draft.QueueQueued,
	}))
}

func TestPlanPublishTime_NoConstraints(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{MinHoursBetweenPosts: -1, PostsPerWeek: -1})
	p := newPlanner(t, st)

	requested := planNow.Add(5 * time.Hour)
	got, err := p.PlanPublishTime(clientID, draft.PlatformFacebook, requested)
	require.NoError(t, err)
	require.Equal(t, requested, got)
}

func TestPlanPublishTime_PastRequestClampedToNow(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{MinHoursBetweenPosts: -1, PostsPerWeek: -1})
	p := newPlanner(t, st)

	got, err := p.PlanPublishTime(clientID, draft.PlatformFacebook, planNow.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, planNow, got)
}

func TestPlanPublishTime_UnknownClientUnconstrained(t *testing.T) {
	st := testutil.NewStore(t)
	p := newPlanner(t, st)

	requested := planNow.Add(time.Hour)
	got, err := p.PlanPublishTime(uuid.NewString(), draft.PlatformFacebook, requested)
	require.NoError(t, err)
	require.Equal(t, requested, got)
}

func TestPlanPublishTime_MinGapPushesForward(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{MinHoursBetweenPosts: 24, PostsPerWeek: -1})
	p := newPlanner(t, st)

	existing := planNow.Add(2 * time.Hour)
	queueAt(t, st, clientID, draft.PlatformFacebook, existing)

	// Requested lands 3 hours after the existing commitment, inside the
	// 24h gap: pushed to existing + gap.
	got, err := p.PlanPublishTime(clientID, draft.PlatformFacebook, existing.Add(3*time.Hour))
	require.NoError(t, err)
	require.Equal(t, existing.Add(24*time.Hour), got)
}

func TestPlanPublishTime_GapIgnoresOtherPlatform(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{MinHoursBetweenPosts: 24, PostsPerWeek: -1})
	p := newPlanner(t, st)

	queueAt(t, st, clientID, draft.PlatformInstagram, planNow.Add(2*time.Hour))

	requested := planNow.Add(3 * time.Hour)
	got, err := p.PlanPublishTime(clientID, draft.PlatformFacebook, requested)
	require.NoError(t, err)
	require.Equal(t, requested, got)
}

func TestPlanPublishTime_WeeklyCapRollsToNextWeek(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{MinHoursBetweenPosts: 1, PostsPerWeek: 2})
	p := newPlanner(t, st)

	// Two commitments already this week.
	queueAt(t, st, clientID, draft.PlatformFacebook, planNow.Add(26*time.Hour)) // Tue
	queueAt(t, st, clientID, draft.PlatformFacebook, planNow.Add(74*time.Hour)) // Thu

	requested := planNow.Add(98 * time.Hour) // Fri 10:00
	got, err := p.PlanPublishTime(clientID, draft.PlatformFacebook, requested)
	require.NoError(t, err)

	// Pushed into next week, same time of day.
	nextWeekStart := time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)
	require.False(t, got.Before(nextWeekStart), "got %v, want next week", got)
	require.Equal(t, requested.Hour(), got.Hour())
	require.Equal(t, requested.Minute(), got.Minute())
}

func TestPlanPublishTime_PreferredDaySoftShift(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{
		MinHoursBetweenPosts: 1,
		PostsPerWeek:         -1,
		PreferredDays:        "[3]", // Wednesday
	})
	p := newPlanner(t, st)

	requested := planNow.Add(4 * time.Hour) // Monday noon
	got, err := p.PlanPublishTime(clientID, draft.PlatformFacebook, requested)
	require.NoError(t, err)
	require.Equal(t, time.Wednesday, got.Weekday())
	require.Equal(t, requested.Hour(), got.Hour())
}

func TestPlanPublishTime_PreferredDayNotForcedAcrossWeeks(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{
		MinHoursBetweenPosts: 1,
		PostsPerWeek:         -1,
		PreferredDays:        "[1]", // Monday; requested Friday has no Monday left this week
	})
	p := newPlanner(t, st)

	requested := planNow.Add(4 * 24 * time.Hour) // Friday
	got, err := p.PlanPublishTime(clientID, draft.PlatformFacebook, requested)
	require.NoError(t, err)
	// Soft preference: the candidate stays on Friday rather than slipping
	// a whole week.
	require.Equal(t, requested, got)
}
