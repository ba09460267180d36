package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/store"
	"github.com/sophiahq/sophia/internal/testutil"
)

func TestInsertAndGetDraft(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})

	d := testutil.NewDraft(clientID, draft.PlatformFacebook)
	d.Hashtags = []string{"#one", "#two"}
	require.NoError(t, st.InsertDraft(d))

	got, err := st.GetDraft(d.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)
	require.Equal(t, clientID, got.ClientID)
	require.Equal(t, draft.StatusDraft, got.Status)
	require.Equal(t, []string{"#one", "#two"}, got.Hashtags)
	require.False(t, got.CreatedAt.IsZero())
}

func TestGetDraft_NotFound(t *testing.T) {
	st := testutil.NewStore(t)
	_, err := st.GetDraft(uuid.NewString())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateDraftAtomic_WritesAuditInSameMutation(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	d := testutil.NewDraft(clientID, draft.PlatformFacebook)
	require.NoError(t, st.InsertDraft(d))

	updated, err := st.UpdateDraftAtomic(d.ID, store.DraftMutation{
		ExpectStatus: []draft.Status{draft.StatusDraft},
		Apply: func(dr *draft.Draft) error {
			dr.Status = draft.StatusInReview
			return nil
		},
		Actor:  draft.ActorMonitor,
		Action: "move_to_review",
	})
	require.NoError(t, err)
	require.Equal(t, draft.StatusInReview, updated.Status)

	trail, err := st.AuditTrail(d.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, "move_to_review", trail[0].Action)
	require.Equal(t, draft.ActorMonitor, trail[0].Actor)
	require.Contains(t, string(trail[0].Before), `"draft"`)
	require.Contains(t, string(trail[0].After), `"in_review"`)
}

func TestUpdateDraftAtomic_PreconditionConflict(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	d := testutil.NewDraft(clientID, draft.PlatformFacebook)
	require.NoError(t, st.InsertDraft(d))

	_, err := st.UpdateDraftAtomic(d.ID, store.DraftMutation{
		ExpectStatus: []draft.Status{draft.StatusInReview},
		Apply:        func(dr *draft.Draft) error { dr.Status = draft.StatusApproved; return nil },
		Actor:        draft.ActorOperatorWeb,
		Action:       "approve",
	})
	require.ErrorIs(t, err, store.ErrConflict)

	// The failed mutation left no trace: status unchanged, no audit row.
	got, err := st.GetDraft(d.ID)
	require.NoError(t, err)
	require.Equal(t, draft.StatusDraft, got.Status)

	trail, err := st.AuditTrail(d.ID)
	require.NoError(t, err)
	require.Empty(t, trail)
}

func TestUpdateDraftAtomic_ApplyErrorRollsBack(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	d := testutil.NewDraft(clientID, draft.PlatformFacebook)
	require.NoError(t, st.InsertDraft(d))

	boom := errors.New("boom")
	_, err := st.UpdateDraftAtomic(d.ID, store.DraftMutation{
		Apply:  func(dr *draft.Draft) error { return boom },
		Actor:  draft.ActorOperatorWeb,
		Action: "edit",
	})
	require.ErrorIs(t, err, boom)

	trail, err := st.AuditTrail(d.ID)
	require.NoError(t, err)
	require.Empty(t, trail)
}

func TestUpdateDraftAtomic_ClientIDImmutable(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	other := testutil.SeedClient(t, st, testutil.ClientSpec{Name: "Other"})
	d := testutil.NewDraft(clientID, draft.PlatformFacebook)
	require.NoError(t, st.InsertDraft(d))

	updated, err := st.UpdateDraftAtomic(d.ID, store.DraftMutation{
		Apply: func(dr *draft.Draft) error {
			dr.ClientID = other
			return nil
		},
		Actor:  draft.ActorOperatorWeb,
		Action: "edit",
	})
	require.NoError(t, err)
	require.Equal(t, clientID, updated.ClientID)

	got, err := st.GetDraft(d.ID)
	require.NoError(t, err)
	require.Equal(t, clientID, got.ClientID)
}

func TestUpdateDraftAtomic_CreateEntriesSeesUpdatedDraft(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	d := testutil.NewDraft(clientID, draft.PlatformInstagram)
	d.Status = draft.StatusInReview
	require.NoError(t, st.InsertDraft(d))

	when := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	_, err := st.UpdateDraftAtomic(d.ID, store.DraftMutation{
		ExpectStatus: []draft.Status{draft.StatusInReview},
		Apply: func(dr *draft.Draft) error {
			dr.Status = draft.StatusApproved
			return nil
		},
		Actor:  draft.ActorOperatorWeb,
		Action: "approve",
		CreateEntries: func(updated *draft.Draft) ([]*draft.QueueEntry, error) {
			require.Equal(t, draft.StatusApproved, updated.Status)
			return []*draft.QueueEntry{{
				ID:          uuid.NewString(),
				DraftID:     updated.ID,
				ClientID:    updated.ClientID,
				Platform:    updated.Platform,
				ScheduledAt: when,
				PublishMode: updated.PublishMode,
				Status:      draft.QueueQueued,
			}}, nil
		},
	})
	require.NoError(t, err)

	entries, err := st.ListQueueEntries(store.QueueFilter{DraftID: d.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, draft.QueueQueued, entries[0].Status)
	require.Equal(t, when.Unix(), entries[0].ScheduledAt.Unix())
}

func TestUpdateDraftAtomic_PauseQueued(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})
	d := testutil.NewDraft(clientID, draft.PlatformFacebook)
	d.Status = draft.StatusApproved
	require.NoError(t, st.InsertDraft(d))

	entry := &draft.QueueEntry{
		ID:          uuid.NewString(),
		DraftID:     d.ID,
		ClientID:    clientID,
		Platform:    draft.PlatformFacebook,
		ScheduledAt: time.Now().Add(time.Hour),
		PublishMode: draft.PublishAuto,
		Status:      draft.QueueQueued,
	}
	require.NoError(t, st.InsertQueueEntry(entry))

	_, err := st.UpdateDraftAtomic(d.ID, store.DraftMutation{
		ExpectStatus: []draft.Status{draft.StatusApproved},
		Apply: func(dr *draft.Draft) error {
			dr.Status = draft.StatusInReview
			return nil
		},
		Actor:       draft.ActorOperatorWeb,
		Action:      "edit",
		PauseQueued: true,
	})
	require.NoError(t, err)

	got, err := st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueuePaused, got.Status)
}

func TestListDrafts_FilterAndOrder(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})

	first := testutil.NewDraft(clientID, draft.PlatformFacebook)
	first.Status = draft.StatusInReview
	first.CreatedAt = time.Now().Add(-2 * time.Hour).UTC()
	require.NoError(t, st.InsertDraft(first))

	second := testutil.NewDraft(clientID, draft.PlatformInstagram)
	second.Status = draft.StatusInReview
	second.CreatedAt = time.Now().Add(-1 * time.Hour).UTC()
	require.NoError(t, st.InsertDraft(second))

	third := testutil.NewDraft(clientID, draft.PlatformFacebook)
	require.NoError(t, st.InsertDraft(third))

	inReview, err := st.ListDrafts(store.DraftFilter{Statuses: []draft.Status{draft.StatusInReview}})
	require.NoError(t, err)
	require.Len(t, inReview, 2)
	require.Equal(t, first.ID, inReview[0].ID, "oldest first")
	require.Equal(t, second.ID, inReview[1].ID)

	igOnly, err := st.ListDrafts(store.DraftFilter{Platform: draft.PlatformInstagram})
	require.NoError(t, err)
	require.Len(t, igOnly, 1)
	require.Equal(t, second.ID, igOnly[0].ID)
}

func TestListDrafts_InReviewBefore(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})

	d := testutil.NewDraft(clientID, draft.PlatformFacebook)
	d.Status = draft.StatusInReview
	require.NoError(t, st.InsertDraft(d))

	fresh, err := st.ListDrafts(store.DraftFilter{InReviewBefore: time.Now().Add(-4 * time.Hour)})
	require.NoError(t, err)
	require.Empty(t, fresh, "just-inserted draft is not stale")

	stale, err := st.ListDrafts(store.DraftFilter{InReviewBefore: time.Now().Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, stale, 1)
}

func TestCountByStatus(t *testing.T) {
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{})

	for _, status := range []draft.Status{draft.StatusInReview, draft.StatusInReview, draft.StatusPublished} {
		d := testutil.NewDraft(clientID, draft.PlatformFacebook)
		d.Status = status
		require.NoError(t, st.InsertDraft(d))
	}

	counts, err := st.CountByStatus("")
	require.NoError(t, err)
	require.Equal(t, 2, counts[draft.StatusInReview])
	require.Equal(t, 1, counts[draft.StatusPublished])
	require.Zero(t, counts[draft.StatusRejected])
}
