// Package recovery takes published posts back down. Every request is
// journaled in the recovery log before the platform is touched, so a
// crash mid-takedown leaves an inspectable record rather than a mystery.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sophiahq/sophia/internal/approval"
	"github.com/sophiahq/sophia/internal/clients"
	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/events"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/platform"
	"github.com/sophiahq/sophia/internal/pubsub"
	"github.com/sophiahq/sophia/internal/store"
	"github.com/sophiahq/sophia/internal/tracing"
)

// ErrNotPublished is returned when recovery is requested for a draft
// that is not currently published.
var ErrNotPublished = errors.New("draft is not published")

// Service executes takedowns of published content.
type Service struct {
	store    *store.Store
	clients  clients.Repository
	adapters platform.Registry
	approval *approval.Service
	bus      *pubsub.Broker[events.Event]
}

// New creates the recovery service.
func New(st *store.Store, cl clients.Repository, adapters platform.Registry,
	ap *approval.Service, bus *pubsub.Broker[events.Event]) *Service {
	return &Service{store: st, clients: cl, adapters: adapters, approval: ap, bus: bus}
}

// Recover takes down the published post behind a draft. The outcome is
// always journaled and always announced with recovery_complete, whatever
// the status: completed, failed, or manual_recovery_needed when the
// platform cannot delete through its API (Instagram) or the post was
// published manually and the system has no post ID.
func (s *Service) Recover(ctx context.Context, draftID, reason string, urgency draft.Urgency, actor draft.Actor) (*draft.RecoveryLog, error) {
	ctx, span := tracing.Start(ctx, "recovery.recover",
		attribute.String("draft.id", draftID),
		attribute.String("urgency", string(urgency)))
	defer span.End()

	d, err := s.store.GetDraft(draftID)
	if err != nil {
		return nil, err
	}
	if d.Status != draft.StatusPublished {
		return nil, fmt.Errorf("draft %s is %s: %w", draftID, d.Status, ErrNotPublished)
	}

	postID := s.publishedPostID(draftID)

	rec := &draft.RecoveryLog{
		ID:             uuid.NewString(),
		DraftID:        d.ID,
		ClientID:       d.ClientID,
		Platform:       d.Platform,
		PlatformPostID: postID,
		Urgency:        urgency,
		Reason:         reason,
		Status:         draft.RecoveryPending,
		Actor:          actor,
	}
	if err := s.store.InsertRecoveryLog(rec); err != nil {
		return nil, err
	}
	if err := s.store.SetRecoveryStatus(rec.ID, draft.RecoveryExecuting, nil); err != nil {
		return nil, err
	}
	rec.Status = draft.RecoveryExecuting

	final := s.takeDown(ctx, d, postID)
	return s.finish(rec, actor, final)
}

// takeDown attempts the platform delete and returns the final status.
func (s *Service) takeDown(ctx context.Context, d *draft.Draft, postID string) draft.RecoveryStatus {
	if postID == "" {
		// Manually published; nothing for the adapter to delete.
		log.Warn(log.CatRecovery, "No platform post ID, manual takedown required", "draft", d.ID)
		return draft.RecoveryManualNeeded
	}

	adapter, err := s.adapters.For(d.Platform)
	if err != nil {
		log.ErrorErr(log.CatRecovery, "Adapter lookup failed", err, "draft", d.ID)
		return draft.RecoveryFailed
	}

	accounts, err := s.clients.GetPlatformAccounts(d.ClientID)
	if err != nil {
		log.ErrorErr(log.CatRecovery, "Resolve account failed", err, "draft", d.ID)
		return draft.RecoveryFailed
	}
	accountID := accounts.FacebookID
	if d.Platform == draft.PlatformInstagram {
		accountID = accounts.InstagramID
	}

	ctx, cancel := context.WithTimeout(ctx, platform.DefaultTimeout)
	defer cancel()

	err = adapter.Delete(ctx, accountID, postID)
	switch {
	case err == nil:
		return draft.RecoveryCompleted
	case platform.KindOf(err) == platform.KindUnsupported:
		log.Warn(log.CatRecovery, "Platform cannot delete, manual takedown required",
			"draft", d.ID, "platform", d.Platform)
		return draft.RecoveryManualNeeded
	default:
		log.ErrorErr(log.CatRecovery, "Platform delete failed", err, "draft", d.ID)
		return draft.RecoveryFailed
	}
}

// finish journals the outcome, transitions the draft, and announces.
func (s *Service) finish(rec *draft.RecoveryLog, actor draft.Actor, final draft.RecoveryStatus) (*draft.RecoveryLog, error) {
	now := time.Now().UTC()
	var completedAt *time.Time
	if final != draft.RecoveryFailed {
		completedAt = &now
	}
	if err := s.store.SetRecoveryStatus(rec.ID, final, completedAt); err != nil {
		return nil, err
	}
	rec.Status = final
	rec.CompletedAt = completedAt

	// Only a confirmed delete retires the draft. A failed delete leaves
	// the post live and the draft published for another attempt, and
	// manual_recovery_needed leaves it published until the operator takes
	// the post down in the platform's own app.
	if final == draft.RecoveryCompleted {
		if _, err := s.approval.MarkRecovered(rec.DraftID, actor); err != nil && !errors.Is(err, store.ErrConflict) {
			log.ErrorErr(log.CatRecovery, "Mark draft recovered failed", err, "draft", rec.DraftID)
		}
	}

	s.bus.Publish(events.New(events.RecoveryComplete, events.RecoveryCompletePayload{
		DraftID:          rec.DraftID,
		ClientID:         rec.ClientID,
		Status:           final,
		OfferReplacement: final != draft.RecoveryFailed,
	}))
	log.Info(log.CatRecovery, "Recovery finished", "draft", rec.DraftID,
		"status", final, "urgency", rec.Urgency)
	return rec, nil
}

// publishedPostID finds the platform post ID from the draft's published
// queue entry. Empty for manual publishes.
func (s *Service) publishedPostID(draftID string) string {
	entries, err := s.store.ListQueueEntries(store.QueueFilter{
		DraftID:  draftID,
		Statuses: []draft.QueueStatus{draft.QueuePublished},
	})
	if err != nil || len(entries) == 0 {
		return ""
	}
	// Latest publish wins if the draft somehow cycled.
	return entries[len(entries)-1].PlatformPostID
}

// LinkReplacement records the replacement draft produced for a recovery.
func (s *Service) LinkReplacement(recoveryID, replacementDraftID string) error {
	return s.store.LinkReplacementDraft(recoveryID, replacementDraftID)
}

// History returns a draft's recovery logs, newest first.
func (s *Service) History(draftID string) ([]*draft.RecoveryLog, error) {
	return s.store.ListRecoveryLogs(draftID)
}
