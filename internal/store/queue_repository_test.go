package store_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/store"
	"github.com/sophiahq/sophia/internal/testutil"
)

func seedEntry(t *testing.T, st *store.Store, clientID string, platform draft.Platform, at time.Time) *draft.QueueEntry {
	t.Helper()
	d := testutil.NewDraft(clientID, platform)
	d.Status = draft.StatusApproved
	require.NoError(t, st.InsertDraft(d))

	entry := &draft.QueueEntry{
		ID:          uuid.NewString(),
		DraftID:     d.ID,
		ClientID:    clientID,
		Platform:    platform,
		ScheduledAt: at,
		PublishMode: draft.PublishAuto,
		Status:      draft.QueueQueued,
	}
	require.NoError(t, st.InsertQueueEntry(entry))
	return entry
}

func TestListQueueEntries_ScheduledOrder(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	base := time.Now().UTC().Truncate(time.Second)

	late := seedEntry(t, st, clientID, draft.PlatformFacebook, base.Add(3*time.Hour))
	early := seedEntry(t, st, clientID, draft.PlatformFacebook, base.Add(1*time.Hour))

	entries, err := st.ListQueueEntries(store.QueueFilter{ClientID: clientID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, early.ID, entries[0].ID)
	require.Equal(t, late.ID, entries[1].ID)
}

func TestListQueueEntries_ScheduledWindow(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	base := time.Now().UTC().Truncate(time.Second)

	inside := seedEntry(t, st, clientID, draft.PlatformFacebook, base.Add(time.Hour))
	seedEntry(t, st, clientID, draft.PlatformFacebook, base.Add(48*time.Hour))

	entries, err := st.ListQueueEntries(store.QueueFilter{
		ScheduledFrom: base,
		ScheduledTo:   base.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, inside.ID, entries[0].ID)
}

func TestUpdateQueueEntryAtomic_ClaimRace(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	entry := seedEntry(t, st, clientID, draft.PlatformFacebook, time.Now())

	claim := store.QueueMutation{
		ExpectStatus: []draft.QueueStatus{draft.QueueQueued},
		Apply: func(e *draft.QueueEntry) error {
			e.Status = draft.QueuePublishing
			return nil
		},
		Actor:  draft.ActorPublisher,
		Action: "claim_for_publish",
	}

	claimed, err := st.UpdateQueueEntryAtomic(entry.ID, claim)
	require.NoError(t, err)
	require.Equal(t, draft.QueuePublishing, claimed.Status)

	// A second worker loses the claim.
	_, err = st.UpdateQueueEntryAtomic(entry.ID, claim)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestUpdateQueueEntryAtomic_AuditAttribution(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	entry := seedEntry(t, st, clientID, draft.PlatformFacebook, time.Now())

	_, err := st.UpdateQueueEntryAtomic(entry.ID, store.QueueMutation{
		Apply: func(e *draft.QueueEntry) error {
			e.Status = draft.QueueFailed
			e.ErrorMessage = "image_missing"
			return nil
		},
		Actor:  draft.ActorPublisher,
		Action: "publish_failed",
	})
	require.NoError(t, err)

	trail, err := st.AuditTrail(entry.DraftID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, "publish_failed", trail[0].Action)
	require.Equal(t, draft.ActorPublisher, trail[0].Actor)
}

func TestRecentPublishTimes(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	now := time.Now().UTC().Truncate(time.Second)

	markPublished := func(e *draft.QueueEntry, at time.Time) {
		_, err := st.UpdateQueueEntryAtomic(e.ID, store.QueueMutation{
			Apply: func(q *draft.QueueEntry) error {
				q.Status = draft.QueuePublished
				q.PublishedAt = &at
				return nil
			},
			Actor:  draft.ActorPublisher,
			Action: "publish_complete",
		})
		require.NoError(t, err)
	}

	old := seedEntry(t, st, clientID, draft.PlatformInstagram, now.Add(-48*time.Hour))
	markPublished(old, now.Add(-30*time.Hour))
	recent := seedEntry(t, st, clientID, draft.PlatformInstagram, now.Add(-2*time.Hour))
	markPublished(recent, now.Add(-time.Hour))
	otherPlatform := seedEntry(t, st, clientID, draft.PlatformFacebook, now.Add(-time.Hour))
	markPublished(otherPlatform, now.Add(-30*time.Minute))

	times, err := st.RecentPublishTimes(draft.PlatformInstagram, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, times, 1)
	require.Equal(t, now.Add(-time.Hour).Unix(), times[0].Unix())
}

func TestAppendAuditStandalone(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	d := testutil.NewDraft(clientID, draft.PlatformFacebook)
	require.NoError(t, st.InsertDraft(d))

	require.NoError(t, st.AppendAudit(clientID, d.ID, draft.ActorOperatorCLI,
		"pause_publishing", []byte(`{}`), []byte(`{"paused":true}`)))

	trail, err := st.AuditTrail(d.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, "pause_publishing", trail[0].Action)
}
