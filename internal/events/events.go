// Package events defines the typed event union broadcast on the in-process
// bus. Subscribers switch on Event.Type and assert the matching payload.
package events

import (
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
)

// Type enumerates the event variants.
type Type string

const (
	ApprovalChanged  Type = "approval_changed"
	PublishComplete  Type = "publish_complete"
	PublishFailed    Type = "publish_failed"
	RecoveryComplete Type = "recovery_complete"
	ContentStale     Type = "content_stale"
)

// Event is one message on the bus. Payload holds the variant-specific
// struct below. Events are advisory: the database is the source of truth
// and UIs re-derive state by refetching after reconnect.
type Event struct {
	Type      Type
	Timestamp time.Time
	Payload   any
}

// ApprovalChangedPayload accompanies every reviewable status transition.
type ApprovalChangedPayload struct {
	DraftID   string       `json:"draft_id"`
	ClientID  string       `json:"client_id"`
	OldStatus draft.Status `json:"old_status"`
	NewStatus draft.Status `json:"new_status"`
}

// PublishCompletePayload is emitted after a successful dispatch.
type PublishCompletePayload struct {
	DraftID  string         `json:"draft_id"`
	ClientID string         `json:"client_id"`
	Platform draft.Platform `json:"platform"`
	PostID   string         `json:"post_id"`
	URL      string         `json:"url"`
}

// PublishFailedPayload is emitted when a queue entry exhausts its retries
// or fails permanently.
type PublishFailedPayload struct {
	DraftID  string         `json:"draft_id"`
	ClientID string         `json:"client_id"`
	Platform draft.Platform `json:"platform"`
	Error    string         `json:"error"`
}

// RecoveryCompletePayload is emitted for every recovery outcome,
// including manual_recovery_needed and failed.
type RecoveryCompletePayload struct {
	DraftID  string               `json:"draft_id"`
	ClientID string               `json:"client_id"`
	Status   draft.RecoveryStatus `json:"status"`

	// OfferReplacement invites the generation pipeline to produce a
	// replacement draft for the recovered content.
	OfferReplacement bool `json:"offer_replacement,omitempty"`
}

// ContentStalePayload flags an in_review draft older than the freshness
// threshold. Informational only; the monitor never mutates drafts.
type ContentStalePayload struct {
	DraftID    string  `json:"draft_id"`
	ClientID   string  `json:"client_id"`
	ClientName string  `json:"client_name"`
	HoursStale float64 `json:"hours_stale"`
}

// New builds an event with the timestamp set.
func New(t Type, payload any) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), Payload: payload}
}
