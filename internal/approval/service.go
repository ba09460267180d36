// Package approval mediates every draft status change. It owns the
// transition table: no other component writes a draft's status, and the
// store's atomic mutator guarantees each change lands with exactly one
// audit record. Events go out after commit; the database is the source of
// truth and the event is advisory.
package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/events"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/pubsub"
	"github.com/sophiahq/sophia/internal/store"
)

// ErrInvalidTransition is returned when the requested status change is
// not in the transition table.
var ErrInvalidTransition = errors.New("invalid transition")

// Planner chooses the effective publish time for a new queue entry,
// pushing the requested time forward to satisfy cadence and platform
// rate constraints. The scheduler implements it.
type Planner interface {
	PlanPublishTime(clientID string, platform draft.Platform, requested time.Time) (time.Time, error)
}

// Registrar is notified when committed queue entries need an in-memory
// fire registered or cancelled. The scheduler implements it.
type Registrar interface {
	RegisterFire(entryID string, fireAt time.Time)
	CancelFire(entryID string)
}

// Service validates and applies draft status transitions.
type Service struct {
	store     *store.Store
	bus       *pubsub.Broker[events.Event]
	planner   Planner
	registrar Registrar
}

// New creates the approval service. planner and registrar may be nil
// until the scheduler attaches (AttachScheduler), which keeps the
// construction order acyclic: store → bus → approval → scheduler.
func New(st *store.Store, bus *pubsub.Broker[events.Event]) *Service {
	return &Service{store: st, bus: bus}
}

// AttachScheduler wires the scheduler in once it exists.
func (s *Service) AttachScheduler(planner Planner, registrar Registrar) {
	s.planner = planner
	s.registrar = registrar
}

// Options carries the optional per-transition inputs.
type Options struct {
	EditedCopy     *string
	CustomPostTime *time.Time
	PublishMode    draft.PublishMode
	RejectTags     []string
	RejectGuidance string

	// Set by the scheduler when completing a dispatch.
	PlatformPostID  string
	PlatformPostURL string

	// Set by ConfirmManualPublish: the move to published is only legal
	// when the scheduler was never going to dispatch the draft itself.
	manualConfirm bool
}

// Transition moves a draft to the target status on behalf of actor.
//
// Failure modes: ErrInvalidTransition when the transition table forbids
// the move; store.ErrConflict when another actor won the race (the draft
// is already at the target); store.ErrNotFound; store.ErrStoreUnavailable.
// No retries at this layer.
func (s *Service) Transition(draftID string, target draft.Status, actor draft.Actor, opts Options) (*draft.Draft, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("target %q: %w", target, ErrInvalidTransition)
	}

	// The planner reads cadence and queue state through the shared pool,
	// which an open mutation transaction would block on a single-connection
	// store. Plan the publish time first; the transition itself is still
	// race-checked inside the transaction.
	var planned []*draft.QueueEntry
	if target == draft.StatusApproved {
		var err error
		planned, err = s.planQueueEntries(draftID, opts)
		if err != nil {
			return nil, err
		}
	}

	var oldStatus draft.Status
	var entries []*draft.QueueEntry

	updated, err := s.store.UpdateDraftAtomic(draftID, store.DraftMutation{
		Actor:  actor,
		Action: actionFor(target),
		Apply: func(d *draft.Draft) error {
			oldStatus = d.Status
			if !draft.CanTransition(d.Status, target) {
				if d.Status == target {
					// A concurrent actor already applied this move; the
					// loser re-reads and reconciles.
					return fmt.Errorf("draft already %s: %w", target, store.ErrConflict)
				}
				return fmt.Errorf("%s -> %s: %w", d.Status, target, ErrInvalidTransition)
			}
			if opts.manualConfirm && d.PublishMode != draft.PublishManual {
				// The scheduler owns this draft's dispatch; confirming it
				// by hand would double-post.
				return fmt.Errorf("draft %s publishes automatically: %w", d.ID, ErrInvalidTransition)
			}
			s.applyOptions(d, target, actor, opts)
			d.Status = target
			return nil
		},
		CreateEntries: func(d *draft.Draft) ([]*draft.QueueEntry, error) {
			if target != draft.StatusApproved || d.PublishMode != draft.PublishAuto || len(planned) == 0 {
				return nil, nil
			}
			// The draft may have changed between planning and commit; the
			// entry mirrors what was actually approved.
			for _, e := range planned {
				e.PublishMode = d.PublishMode
				e.ImageRef = d.ImageRef
			}
			entries = planned
			return planned, nil
		},
		// An edit on an approved draft pulls it back to review and parks
		// its pending queue entries until re-approval.
		PauseQueued: target == draft.StatusInReview,
	})
	if err != nil {
		return nil, err
	}
	return updated, s.afterCommit(updated, oldStatus, target, entries)
}

func (s *Service) applyOptions(d *draft.Draft, target draft.Status, actor draft.Actor, opts Options) {
	if opts.EditedCopy != nil && *opts.EditedCopy != d.Copy {
		d.EditHistory = append(d.EditHistory, draft.Edit{
			At:      time.Now().UTC(),
			OldCopy: d.Copy,
			NewCopy: *opts.EditedCopy,
		})
		d.Copy = *opts.EditedCopy
	}
	if opts.CustomPostTime != nil {
		t := opts.CustomPostTime.UTC()
		d.CustomPostTime = &t
	}
	if opts.PublishMode != "" {
		d.PublishMode = opts.PublishMode
	}

	switch target {
	case draft.StatusApproved:
		now := time.Now().UTC()
		d.ApprovedAt = &now
		d.ApprovedBy = actor
	case draft.StatusRejected:
		d.RejectTags = opts.RejectTags
		d.RejectGuidance = opts.RejectGuidance
	}
}

// planQueueEntries builds the queue entries an approval will create,
// applying the transition options the mutation will persist. It runs
// before the mutation so the planner's store reads never contend with
// the mutation's own transaction. Returns nil for manual-mode drafts.
func (s *Service) planQueueEntries(draftID string, opts Options) ([]*draft.QueueEntry, error) {
	d, err := s.store.GetDraft(draftID)
	if err != nil {
		return nil, err
	}
	mode := d.PublishMode
	if opts.PublishMode != "" {
		mode = opts.PublishMode
	}
	if mode != draft.PublishAuto {
		return nil, nil
	}
	if opts.CustomPostTime != nil {
		t := opts.CustomPostTime.UTC()
		d.CustomPostTime = &t
	}

	requested := d.PostTime()
	if requested.IsZero() {
		requested = time.Now().UTC()
	}
	scheduledAt := requested
	if s.planner != nil {
		planned, err := s.planner.PlanPublishTime(d.ClientID, d.Platform, requested)
		if err != nil {
			return nil, fmt.Errorf("plan publish time: %w", err)
		}
		scheduledAt = planned
	}
	return []*draft.QueueEntry{{
		ID:          uuid.NewString(),
		DraftID:     d.ID,
		ClientID:    d.ClientID,
		Platform:    d.Platform,
		ScheduledAt: scheduledAt.UTC(),
		PublishMode: mode,
		Status:      draft.QueueQueued,
		ImageRef:    d.ImageRef,
	}}, nil
}

func (s *Service) afterCommit(d *draft.Draft, oldStatus, target draft.Status, entries []*draft.QueueEntry) error {
	for _, entry := range entries {
		if s.registrar != nil {
			s.registrar.RegisterFire(entry.ID, entry.ScheduledAt)
		}
	}
	if target == draft.StatusInReview && s.registrar != nil {
		// Cancel fires for entries the commit just paused.
		paused, err := s.store.ListQueueEntries(store.QueueFilter{
			DraftID:  d.ID,
			Statuses: []draft.QueueStatus{draft.QueuePaused},
		})
		if err == nil {
			for _, e := range paused {
				s.registrar.CancelFire(e.ID)
			}
		}
	}

	if reviewable(target) {
		s.bus.Publish(events.New(events.ApprovalChanged, events.ApprovalChangedPayload{
			DraftID:   d.ID,
			ClientID:  d.ClientID,
			OldStatus: oldStatus,
			NewStatus: target,
		}))
	}
	log.Info(log.CatApproval, "Transition applied", "draft", d.ID,
		"from", oldStatus, "to", target)
	return nil
}

// reviewable reports whether a target status is an operator-review
// outcome that the queue surfaces care about. published and recovered
// announce themselves through publish_complete / recovery_complete.
func reviewable(target draft.Status) bool {
	switch target {
	case draft.StatusInReview, draft.StatusApproved, draft.StatusRejected, draft.StatusSkipped:
		return true
	}
	return false
}

func actionFor(target draft.Status) string {
	switch target {
	case draft.StatusInReview:
		return "move_to_review"
	case draft.StatusApproved:
		return "approve"
	case draft.StatusRejected:
		return "reject"
	case draft.StatusSkipped:
		return "skip"
	case draft.StatusPublished:
		return "publish"
	case draft.StatusRecovered:
		return "recover"
	default:
		return "transition"
	}
}
