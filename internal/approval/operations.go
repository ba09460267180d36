package approval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/events"
	"github.com/sophiahq/sophia/internal/store"
)

// Intake accepts a draft from the generation pipeline and moves it
// straight into the review queue. Drafts arrive in status draft; the
// in_review transition is recorded like any other so the audit trail
// starts at intake.
func (s *Service) Intake(d *draft.Draft) (*draft.Draft, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = draft.StatusDraft
	}
	if d.PublishMode == "" {
		d.PublishMode = draft.PublishAuto
	}
	if err := s.store.InsertDraft(d); err != nil {
		return nil, err
	}
	return s.Transition(d.ID, draft.StatusInReview, draft.ActorMonitor, Options{})
}

// Approve moves an in_review draft to approved on behalf of an operator.
// Auto-mode drafts get a queue entry in the same transaction.
func (s *Service) Approve(draftID string, actor draft.Actor, opts Options) (*draft.Draft, error) {
	return s.Transition(draftID, draft.StatusApproved, actor, opts)
}

// Reject moves an in_review draft to rejected, recording the structured
// feedback the generation pipeline learns from.
func (s *Service) Reject(draftID string, actor draft.Actor, tags []string, guidance string) (*draft.Draft, error) {
	return s.Transition(draftID, draft.StatusRejected, actor, Options{
		RejectTags:     tags,
		RejectGuidance: guidance,
	})
}

// Skip sets an in_review draft aside without feedback.
func (s *Service) Skip(draftID string, actor draft.Actor) (*draft.Draft, error) {
	return s.Transition(draftID, draft.StatusSkipped, actor, Options{})
}

// Edit rewrites a draft's copy. On an in_review draft the status does not
// change; on an approved draft the edit pulls it back to in_review and
// pauses its queue entries. Other statuses are invalid for edits.
func (s *Service) Edit(draftID string, actor draft.Actor, newCopy string, customPostTime *time.Time) (*draft.Draft, error) {
	current, err := s.store.GetDraft(draftID)
	if err != nil {
		return nil, err
	}
	opts := Options{EditedCopy: &newCopy, CustomPostTime: customPostTime}
	switch current.Status {
	case draft.StatusInReview:
		return s.editInPlace(draftID, actor, opts)
	default:
		// approved -> in_review per the transition table; anything else
		// fails the table check inside the transaction.
		return s.Transition(draftID, draft.StatusInReview, actor, opts)
	}
}

// editInPlace applies an edit without a status change, still producing
// exactly one audit record.
func (s *Service) editInPlace(draftID string, actor draft.Actor, opts Options) (*draft.Draft, error) {
	updated, err := s.store.UpdateDraftAtomic(draftID, store.DraftMutation{
		ExpectStatus: []draft.Status{draft.StatusInReview},
		Actor:        actor,
		Action:       "edit",
		Apply: func(d *draft.Draft) error {
			s.applyOptions(d, d.Status, actor, opts)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return updated, s.afterCommit(updated, updated.Status, updated.Status, nil)
}

// Resubmit returns a rejected, skipped, or recovered draft to review.
func (s *Service) Resubmit(draftID string, actor draft.Actor) (*draft.Draft, error) {
	return s.Transition(draftID, draft.StatusInReview, actor, Options{})
}

// ConfirmManualPublish records that the operator copy-pasted an approved
// manual-mode draft to the platform themselves. No dispatch happens; the
// draft goes straight to published. Auto-mode drafts are rejected with
// ErrInvalidTransition: their queue entry is live and the executor would
// post a second copy.
func (s *Service) ConfirmManualPublish(draftID string, actor draft.Actor, postURL string) (*draft.Draft, error) {
	d, err := s.Transition(draftID, draft.StatusPublished, actor, Options{
		PlatformPostURL: postURL,
		manualConfirm:   true,
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.New(events.PublishComplete, events.PublishCompletePayload{
		DraftID:  d.ID,
		ClientID: d.ClientID,
		Platform: d.Platform,
		URL:      postURL,
	}))
	return d, nil
}

// MarkPublished completes a dispatch: the executor calls it after the
// platform accepted the post. Event emission stays with the executor,
// which knows the platform post ID.
func (s *Service) MarkPublished(draftID string) (*draft.Draft, error) {
	return s.Transition(draftID, draft.StatusPublished, draft.ActorPublisher, Options{})
}

// MarkRecovered completes a takedown: the recovery service calls it after
// the platform confirmed the delete.
func (s *Service) MarkRecovered(draftID string, actor draft.Actor) (*draft.Draft, error) {
	return s.Transition(draftID, draft.StatusRecovered, actor, Options{})
}

// AttachImage records an uploaded image on an in_review draft. The status
// does not change; the upload is audited like an edit.
func (s *Service) AttachImage(draftID string, actor draft.Actor, imageRef string) (*draft.Draft, error) {
	updated, err := s.store.UpdateDraftAtomic(draftID, store.DraftMutation{
		ExpectStatus: []draft.Status{draft.StatusInReview},
		Actor:        actor,
		Action:       "upload_image",
		Apply: func(d *draft.Draft) error {
			d.ImageRef = imageRef
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return updated, s.afterCommit(updated, updated.Status, updated.Status, nil)
}

// Get returns one draft.
func (s *Service) Get(draftID string) (*draft.Draft, error) {
	return s.store.GetDraft(draftID)
}

// ReviewQueue lists in_review drafts, oldest first, optionally scoped to
// one client.
func (s *Service) ReviewQueue(clientID string) ([]*draft.Draft, error) {
	f := store.DraftFilter{Statuses: []draft.Status{draft.StatusInReview}}
	if clientID != "" {
		f.ClientIDs = []string{clientID}
	}
	return s.store.ListDrafts(f)
}

// List returns drafts matching the filter.
func (s *Service) List(f store.DraftFilter) ([]*draft.Draft, error) {
	return s.store.ListDrafts(f)
}

// AuditTrail returns a draft's full mutation history, oldest first.
func (s *Service) AuditTrail(draftID string) ([]*draft.AuditRecord, error) {
	return s.store.AuditTrail(draftID)
}

// Subscribe attaches to the event bus. The subscription ends when ctx is
// cancelled; pubsub.ErrTooManySubscribers at the ceiling.
func (s *Service) Subscribe(ctx context.Context) (<-chan events.Event, error) {
	return s.bus.Subscribe(ctx)
}
