package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sophiahq/sophia/internal/approval"
	"github.com/sophiahq/sophia/internal/clients"
	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/events"
	"github.com/sophiahq/sophia/internal/platform"
	"github.com/sophiahq/sophia/internal/pubsub"
	"github.com/sophiahq/sophia/internal/ratelimit"
	"github.com/sophiahq/sophia/internal/store"
	"github.com/sophiahq/sophia/internal/testutil"
)

// fakeAdapter scripts publish outcomes per call.
type fakeAdapter struct {
	platform draft.Platform

	mu       sync.Mutex
	publishN int
	errs     []error // consumed per publish call; nil means success
	accounts []string
	contents []platform.PostContent
}

func (f *fakeAdapter) Platform() draft.Platform { return f.platform }

func (f *fakeAdapter) Publish(_ context.Context, accountID string, content platform.PostContent) (*platform.PostResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, accountID)
	f.contents = append(f.contents, content)
	var err error
	if f.publishN < len(f.errs) {
		err = f.errs[f.publishN]
	}
	f.publishN++
	if err != nil {
		return nil, err
	}
	return &platform.PostResult{PostID: "post_123", URL: "https://example.com/post_123"}, nil
}

func (f *fakeAdapter) Delete(context.Context, string, string) error {
	return platform.Unsupported("delete", errors.New("not implemented"))
}

type execFixture struct {
	st      *store.Store
	sched   *Scheduler
	ap      *approval.Service
	adapter *fakeAdapter
	bus     *pubsub.Broker[events.Event]
	limiter *ratelimit.Limiter
	nowAt   time.Time
}

func newExecFixture(t *testing.T, p draft.Platform) (*execFixture, string) {
	t.Helper()
	st := testutil.NewStore(t)
	clientID := testutil.SeedClient(t, st, testutil.ClientSpec{MinHoursBetweenPosts: -1, PostsPerWeek: -1})
	bus := pubsub.NewBroker[events.Event]()
	t.Cleanup(bus.Close)

	adapter := &fakeAdapter{platform: p}
	f := &execFixture{st: st, adapter: adapter, bus: bus,
		nowAt: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.nowAt }

	f.limiter = ratelimit.NewWithClock(nil, clock)
	f.ap = approval.New(st, bus)

	sched, err := New(Config{
		DBPath:       filepath.Join(t.TempDir(), "fires.db"),
		ImageBaseURL: "http://localhost:8787",
	}, st, clients.NewSQLRepository(st.DB()), bus, f.limiter, platform.Registry{p: adapter}, f.ap)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.fires.close() })

	sched.now = clock
	f.sched = sched
	return f, clientID
}

// queuedEntry intakes and approves a draft, returning its queue entry.
func (f *execFixture) queuedEntry(t *testing.T, clientID string, p draft.Platform, imageRef string) *draft.QueueEntry {
	t.Helper()
	in := testutil.NewDraft(clientID, p)
	in.ImageRef = imageRef
	d, err := f.ap.Intake(in)
	require.NoError(t, err)
	_, err = f.ap.Approve(d.ID, draft.ActorOperatorWeb, approval.Options{})
	require.NoError(t, err)

	entries, err := f.st.ListQueueEntries(store.QueueFilter{DraftID: d.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}

func TestApprove_LiveSchedulerPlansCadence(t *testing.T) {
	f, _ := newExecFixture(t, draft.PlatformFacebook)
	clientID := testutil.SeedClient(t, f.st, testutil.ClientSpec{
		MinHoursBetweenPosts: 5,
		PostsPerWeek:         -1,
	})

	first := f.queuedEntry(t, clientID, draft.PlatformFacebook, "")

	// The second approve plans against the first entry's commitment: the
	// planner reads cadence and queue state from the same store the
	// approve mutation writes, and still returns promptly.
	d, err := f.ap.Intake(testutil.NewDraft(clientID, draft.PlatformFacebook))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.ap.Approve(d.ID, draft.ActorOperatorWeb, approval.Options{})
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("approve did not complete")
	}

	entries, err := f.st.ListQueueEntries(store.QueueFilter{DraftID: d.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.GreaterOrEqual(t,
		entries[0].ScheduledAt.Sub(first.ScheduledAt), 5*time.Hour,
		"minimum gap enforced against the earlier commitment")
}

func TestExecute_SuccessfulPublish(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformFacebook)
	entry := f.queuedEntry(t, clientID, draft.PlatformFacebook, "")

	f.sched.execute(context.Background(), entry.ID)

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueuePublished, got.Status)
	require.Equal(t, "post_123", got.PlatformPostID)
	require.NotNil(t, got.PublishedAt)

	d, err := f.st.GetDraft(entry.DraftID)
	require.NoError(t, err)
	require.Equal(t, draft.StatusPublished, d.Status)

	// Dispatch used the seeded facebook account and the draft content.
	require.Equal(t, []string{"fb_page_1"}, f.adapter.accounts)
	require.Equal(t, 1, f.limiter.Recorded(draft.PlatformFacebook))
	require.Zero(t, f.sched.pendingCount(), "fire cancelled after publish")
}

func TestExecute_TransientErrorSchedulesRetryWithBackoff(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformFacebook)
	entry := f.queuedEntry(t, clientID, draft.PlatformFacebook, "")

	f.adapter.errs = []error{platform.Transient("publish", errors.New("rate limited upstream"))}
	f.sched.execute(context.Background(), entry.ID)

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueueQueued, got.Status, "back to queued for retry")
	require.Equal(t, 1, got.RetryCount)
	// First retry: 2^1 minutes out.
	require.Equal(t, f.nowAt.Add(2*time.Minute).Unix(), got.ScheduledAt.Unix())

	f.sched.mu.Lock()
	fireAt := f.sched.pending[entry.ID]
	f.sched.mu.Unlock()
	require.Equal(t, f.nowAt.Add(2*time.Minute).Unix(), fireAt.Unix())
}

func TestExecute_RetriesExhaustedFails(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformFacebook)
	entry := f.queuedEntry(t, clientID, draft.PlatformFacebook, "")

	transient := platform.Transient("publish", errors.New("still down"))
	f.adapter.errs = []error{transient, transient, transient, transient}

	for i := 0; i < 4; i++ {
		f.sched.execute(context.Background(), entry.ID)
	}

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueueFailed, got.Status)
	require.Equal(t, draft.MaxRetries, got.RetryCount)
	require.Equal(t, 4, f.adapter.publishN, "initial attempt plus three retries")
}

func TestExecute_PermanentErrorFailsImmediately(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformFacebook)
	entry := f.queuedEntry(t, clientID, draft.PlatformFacebook, "")

	f.adapter.errs = []error{platform.Permanent("publish", errors.New("account suspended"))}
	f.sched.execute(context.Background(), entry.ID)

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueueFailed, got.Status)
	require.Zero(t, got.RetryCount)
	require.Contains(t, got.ErrorMessage, "account suspended")
	require.Equal(t, 1, f.adapter.publishN)
}

func TestExecute_InstagramWithoutImageFails(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformInstagram)
	entry := f.queuedEntry(t, clientID, draft.PlatformInstagram, "")

	f.sched.execute(context.Background(), entry.ID)

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueueFailed, got.Status)
	require.Equal(t, "image_missing", got.ErrorMessage)
	require.Zero(t, f.adapter.publishN, "adapter never called")
}

func TestExecute_InstagramWithImagePublishes(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformInstagram)
	entry := f.queuedEntry(t, clientID, draft.PlatformInstagram, "img-ref.jpg")

	f.sched.execute(context.Background(), entry.ID)

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueuePublished, got.Status)
	require.Equal(t, "http://localhost:8787/api/images/img-ref.jpg", f.adapter.contents[0].ImageURL)
}

func TestExecute_GlobalPauseDefersWithoutRetry(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformFacebook)
	entry := f.queuedEntry(t, clientID, draft.PlatformFacebook, "")

	_, err := f.sched.PausePublishing(draft.ActorOperatorCLI)
	require.NoError(t, err)

	f.sched.execute(context.Background(), entry.ID)

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueueQueued, got.Status)
	require.Zero(t, got.RetryCount, "deferral must not consume a retry")
	require.Equal(t, f.nowAt.Add(pauseRetryDelay).Unix(), got.ScheduledAt.Unix())
	require.Zero(t, f.adapter.publishN)

	// After resume the same entry publishes.
	_, err = f.sched.ResumePublishing(draft.ActorOperatorCLI)
	require.NoError(t, err)
	f.sched.execute(context.Background(), entry.ID)
	got, err = f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueuePublished, got.Status)
}

func TestExecute_RateLimitDefersToWindowOpening(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformFacebook)
	entry := f.queuedEntry(t, clientID, draft.PlatformFacebook, "")

	// Saturate the facebook window (200/hour).
	for i := 0; i < 200; i++ {
		f.limiter.RecordAt(draft.PlatformFacebook, f.nowAt.Add(-30*time.Minute))
	}

	f.sched.execute(context.Background(), entry.ID)

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueueQueued, got.Status)
	require.Zero(t, got.RetryCount)
	// Window opens when the oldest record ages out.
	require.Equal(t, f.nowAt.Add(30*time.Minute).Unix(), got.ScheduledAt.Unix())
	require.Zero(t, f.adapter.publishN)
}

func TestExecute_NonQueuedEntryCancelled(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformFacebook)
	entry := f.queuedEntry(t, clientID, draft.PlatformFacebook, "")

	// Edit pulls the draft back and pauses the entry before the fire runs.
	_, err := f.ap.Edit(entry.DraftID, draft.ActorOperatorWeb, "Changed my mind.", nil)
	require.NoError(t, err)

	f.sched.execute(context.Background(), entry.ID)

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueuePaused, got.Status, "paused entry untouched")
	require.Zero(t, f.adapter.publishN)
}

func TestExecute_MissingEntryCancelsFire(t *testing.T) {
	f, _ := newExecFixture(t, draft.PlatformFacebook)
	id := uuid.NewString()
	f.sched.RegisterFire(id, f.nowAt)

	f.sched.execute(context.Background(), id)
	require.Zero(t, f.sched.pendingCount())
}

func TestRehydrate_RequeuesStuckAndRebuildsFires(t *testing.T) {
	f, clientID := newExecFixture(t, draft.PlatformFacebook)
	entry := f.queuedEntry(t, clientID, draft.PlatformFacebook, "")

	// Simulate a crash mid-dispatch.
	_, err := f.st.UpdateQueueEntryAtomic(entry.ID, store.QueueMutation{
		Actor:  draft.ActorPublisher,
		Action: "dispatch",
		Apply: func(e *draft.QueueEntry) error {
			e.Status = draft.QueuePublishing
			return nil
		},
	})
	require.NoError(t, err)

	f.sched.mu.Lock()
	f.sched.pending = make(map[string]time.Time)
	f.sched.mu.Unlock()

	require.NoError(t, f.sched.rehydrate())

	got, err := f.st.GetQueueEntry(entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.QueueQueued, got.Status)
	require.Equal(t, 1, f.sched.pendingCount())

	persisted, err := f.sched.fires.all()
	require.NoError(t, err)
	require.Contains(t, persisted, entry.ID)
}
