package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/events"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/platform"
	"github.com/sophiahq/sophia/internal/store"
	"github.com/sophiahq/sophia/internal/tracing"
)

// execute runs one due queue entry through the dispatch algorithm.
// Deferrals (global pause, rate limit) reschedule without consuming a
// retry; adapter failures retry with exponential backoff up to
// draft.MaxRetries before the entry is marked failed.
func (s *Scheduler) execute(ctx context.Context, entryID string) {
	ctx, span := tracing.Start(ctx, "scheduler.execute",
		attribute.String("entry.id", entryID))
	defer span.End()

	entry, err := s.store.GetQueueEntry(entryID)
	if errors.Is(err, store.ErrNotFound) {
		s.CancelFire(entryID)
		return
	}
	if err != nil {
		log.ErrorErr(log.CatSched, "Load entry failed", err, "entry", entryID)
		s.RegisterFire(entryID, s.now().Add(pauseRetryDelay))
		return
	}
	if entry.Status != draft.QueueQueued {
		// Paused by an edit, or already handled by another worker.
		s.CancelFire(entryID)
		return
	}

	// Global pause defers without consuming a retry.
	state, err := s.store.GetPublishState()
	if err != nil {
		log.ErrorErr(log.CatSched, "Read publish state failed", err, "entry", entryID)
		s.RegisterFire(entryID, s.now().Add(pauseRetryDelay))
		return
	}
	if state.Paused {
		s.postpone(entry, s.now().Add(pauseRetryDelay), "publishing paused")
		return
	}

	// Rate limit defers to the window's next opening.
	if !s.limiter.CanPublish(entry.Platform) {
		next := s.limiter.NextAvailable(entry.Platform)
		s.postpone(entry, next, "rate limited")
		return
	}

	d, err := s.store.GetDraft(entry.DraftID)
	if err != nil {
		s.fail(entry, fmt.Sprintf("load draft: %v", err))
		return
	}

	if entry.Platform.RequiresImage(d.ImagePrompt != "") && entry.ImageRef == "" {
		s.fail(entry, "image_missing")
		return
	}

	// Claim the entry; losing the race means another worker has it.
	claimed, err := s.store.UpdateQueueEntryAtomic(entry.ID, store.QueueMutation{
		ExpectStatus: []draft.QueueStatus{draft.QueueQueued},
		Actor:        draft.ActorPublisher,
		Action:       "dispatch",
		Apply: func(e *draft.QueueEntry) error {
			e.Status = draft.QueuePublishing
			return nil
		},
	})
	if errors.Is(err, store.ErrConflict) {
		return
	}
	if err != nil {
		log.ErrorErr(log.CatSched, "Claim entry failed", err, "entry", entry.ID)
		s.RegisterFire(entry.ID, s.now().Add(pauseRetryDelay))
		return
	}

	result, err := s.dispatch(ctx, claimed, d)
	if err != nil {
		s.handleDispatchError(claimed, err)
		return
	}
	s.complete(claimed, result)
}

// dispatch resolves the client account and calls the platform adapter.
func (s *Scheduler) dispatch(ctx context.Context, entry *draft.QueueEntry, d *draft.Draft) (*platform.PostResult, error) {
	adapter, err := s.adapters.For(entry.Platform)
	if err != nil {
		return nil, err
	}

	accounts, err := s.clients.GetPlatformAccounts(entry.ClientID)
	if err != nil {
		return nil, platform.Permanent("resolve account", err)
	}
	var accountID string
	switch entry.Platform {
	case draft.PlatformFacebook:
		accountID = accounts.FacebookID
	case draft.PlatformInstagram:
		accountID = accounts.InstagramID
	}
	if accountID == "" {
		return nil, platform.Permanent("resolve account",
			fmt.Errorf("client %s has no %s account", entry.ClientID, entry.Platform))
	}

	ctx, span := tracing.Start(ctx, "platform.publish",
		attribute.String("platform", string(entry.Platform)),
		attribute.String("draft.id", entry.DraftID))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	return adapter.Publish(ctx, accountID, platform.PostContent{
		Copy:     d.Copy,
		Hashtags: d.Hashtags,
		ImageURL: s.imageURL(entry.ImageRef),
	})
}

// complete records the publish on the entry, the limiter, and the draft,
// then announces it.
func (s *Scheduler) complete(entry *draft.QueueEntry, result *platform.PostResult) {
	now := s.now().UTC()
	s.limiter.RecordAt(entry.Platform, now)

	updated, err := s.store.UpdateQueueEntryAtomic(entry.ID, store.QueueMutation{
		ExpectStatus: []draft.QueueStatus{draft.QueuePublishing},
		Actor:        draft.ActorPublisher,
		Action:       "publish_complete",
		Apply: func(e *draft.QueueEntry) error {
			e.Status = draft.QueuePublished
			e.PlatformPostID = result.PostID
			e.PlatformPostURL = result.URL
			e.ErrorMessage = ""
			e.PublishedAt = &now
			return nil
		},
	})
	if err != nil {
		// The post is live but the record failed; the audit trail still
		// has the dispatch. Surface loudly.
		log.ErrorErr(log.CatSched, "Record publish failed", err,
			"entry", entry.ID, "post", result.PostID)
		return
	}

	if _, err := s.approval.MarkPublished(updated.DraftID); err != nil && !errors.Is(err, store.ErrConflict) {
		log.ErrorErr(log.CatSched, "Mark draft published failed", err, "draft", updated.DraftID)
	}

	s.CancelFire(entry.ID)
	s.bus.Publish(events.New(events.PublishComplete, events.PublishCompletePayload{
		DraftID:  updated.DraftID,
		ClientID: updated.ClientID,
		Platform: updated.Platform,
		PostID:   result.PostID,
		URL:      result.URL,
	}))
	log.Info(log.CatSched, "Published", "entry", entry.ID,
		"platform", entry.Platform, "post", result.PostID)
}

// handleDispatchError retries transient failures with exponential
// backoff, and fails the entry otherwise.
func (s *Scheduler) handleDispatchError(entry *draft.QueueEntry, dispatchErr error) {
	retryable := platform.IsTransient(dispatchErr) && entry.RetryCount < draft.MaxRetries
	if !retryable {
		s.fail(entry, dispatchErr.Error())
		return
	}

	attempt := entry.RetryCount + 1
	delay := time.Duration(1<<attempt) * time.Minute
	fireAt := s.now().UTC().Add(delay)

	_, err := s.store.UpdateQueueEntryAtomic(entry.ID, store.QueueMutation{
		ExpectStatus: []draft.QueueStatus{draft.QueuePublishing},
		Actor:        draft.ActorPublisher,
		Action:       "retry_scheduled",
		Apply: func(e *draft.QueueEntry) error {
			e.Status = draft.QueueQueued
			e.RetryCount = attempt
			e.ScheduledAt = fireAt
			e.ErrorMessage = dispatchErr.Error()
			return nil
		},
	})
	if err != nil {
		log.ErrorErr(log.CatSched, "Schedule retry failed", err, "entry", entry.ID)
		return
	}
	s.RegisterFire(entry.ID, fireAt)
	log.Warn(log.CatSched, "Dispatch failed, retrying", "entry", entry.ID,
		"attempt", attempt, "delay", delay, "error", dispatchErr)
}

// postpone pushes a queued entry's fire time forward without consuming a
// retry.
func (s *Scheduler) postpone(entry *draft.QueueEntry, until time.Time, reason string) {
	until = until.UTC()
	_, err := s.store.UpdateQueueEntryAtomic(entry.ID, store.QueueMutation{
		ExpectStatus: []draft.QueueStatus{draft.QueueQueued},
		Actor:        draft.ActorPublisher,
		Action:       "deferred",
		Apply: func(e *draft.QueueEntry) error {
			e.ScheduledAt = until
			return nil
		},
	})
	if err != nil {
		log.ErrorErr(log.CatSched, "Defer entry failed", err, "entry", entry.ID)
		return
	}
	s.RegisterFire(entry.ID, until)
	log.Info(log.CatSched, "Dispatch deferred", "entry", entry.ID,
		"until", until, "reason", reason)
}

// fail marks the entry failed and announces it. Terminal: the operator
// re-approves the draft to create a fresh entry.
func (s *Scheduler) fail(entry *draft.QueueEntry, message string) {
	updated, err := s.store.UpdateQueueEntryAtomic(entry.ID, store.QueueMutation{
		Actor:  draft.ActorPublisher,
		Action: "publish_failed",
		Apply: func(e *draft.QueueEntry) error {
			e.Status = draft.QueueFailed
			e.ErrorMessage = message
			return nil
		},
	})
	if err != nil {
		log.ErrorErr(log.CatSched, "Mark entry failed errored", err, "entry", entry.ID)
		return
	}
	s.CancelFire(entry.ID)
	s.bus.Publish(events.New(events.PublishFailed, events.PublishFailedPayload{
		DraftID:  updated.DraftID,
		ClientID: updated.ClientID,
		Platform: updated.Platform,
		Error:    message,
	}))
	log.Error(log.CatSched, "Publish failed", "entry", entry.ID, "error", message)
}

func (s *Scheduler) imageURL(ref string) string {
	if ref == "" || s.cfg.ImageBaseURL == "" {
		return ""
	}
	return s.cfg.ImageBaseURL + "/api/images/" + ref
}
