// Package draft defines the core content entities: drafts under operator
// review, their publish queue entries, audit records, and recovery logs.
// The package is pure domain logic with no I/O.
package draft

import (
	"encoding/json"
	"time"
)

// Status is the review/publish lifecycle state of a draft.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusInReview  Status = "in_review"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSkipped   Status = "skipped"
	StatusPublished Status = "published"
	StatusRecovered Status = "recovered"
)

// Platform identifies the social network a draft targets.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

// Platforms lists all supported platforms.
var Platforms = []Platform{PlatformFacebook, PlatformInstagram}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformFacebook, PlatformInstagram:
		return true
	}
	return false
}

// RequiresImage reports whether a publish on this platform must carry an
// image. Instagram always requires one; Facebook only when the draft was
// generated with an image prompt.
func (p Platform) RequiresImage(hasImagePrompt bool) bool {
	switch p {
	case PlatformInstagram:
		return true
	case PlatformFacebook:
		return hasImagePrompt
	}
	return false
}

// PublishMode selects between system dispatch and operator copy-paste.
type PublishMode string

const (
	PublishAuto   PublishMode = "auto"
	PublishManual PublishMode = "manual"
)

// Actor identifies who performed a mutation.
type Actor string

const (
	ActorOperatorWeb Actor = "operator:web"
	ActorOperatorBot Actor = "operator:bot"
	ActorOperatorCLI Actor = "operator:cli"
	ActorPublisher   Actor = "sophia:publisher"
	ActorMonitor     Actor = "sophia:monitor"
)

// IsOperator reports whether the actor is a human operator surface.
func (a Actor) IsOperator() bool {
	switch a {
	case ActorOperatorWeb, ActorOperatorBot, ActorOperatorCLI:
		return true
	}
	return false
}

// Edit is one operator rewrite of a draft's copy. Edits accumulate as an
// append-only history on the draft.
type Edit struct {
	At      time.Time `json:"at"`
	OldCopy string    `json:"old_copy"`
	NewCopy string    `json:"new_copy"`
}

// Draft is the central unit of work: one piece of content owned by one
// client, targeting one platform, moving through operator review.
// The client reference is immutable after creation.
type Draft struct {
	ID       string
	ClientID string
	Platform Platform

	Copy        string
	ImagePrompt string
	Hashtags    []string
	ImageRef    string

	// SuggestedAt is the scheduling hint produced by the generation
	// pipeline. CustomPostTime, when set by the operator, overrides it.
	SuggestedAt    *time.Time
	CustomPostTime *time.Time

	// QualityReport is an opaque quality-gate snapshot. The core displays
	// summary badges from it but never interprets its structure.
	QualityReport json.RawMessage
	VoiceScore    float64

	Status      Status
	PublishMode PublishMode

	EditHistory    []Edit
	RejectTags     []string
	RejectGuidance string

	ApprovedAt *time.Time
	ApprovedBy Actor

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostTime returns the effective scheduling hint: the operator override if
// present, else the pipeline suggestion, else the zero time.
func (d *Draft) PostTime() time.Time {
	if d.CustomPostTime != nil {
		return *d.CustomPostTime
	}
	if d.SuggestedAt != nil {
		return *d.SuggestedAt
	}
	return time.Time{}
}

// QueueStatus is the lifecycle state of a queue entry.
type QueueStatus string

const (
	QueueQueued     QueueStatus = "queued"
	QueuePublishing QueueStatus = "publishing"
	QueuePublished  QueueStatus = "published"
	QueueFailed     QueueStatus = "failed"
	QueuePaused     QueueStatus = "paused"
)

// MaxRetries is how many times a failed dispatch is retried before the
// entry is marked failed.
const MaxRetries = 3

// QueueEntry is a scheduled intention to publish one draft on one
// platform at one time. Created on approval, mutated only by the
// scheduler, read by recovery.
type QueueEntry struct {
	ID          string
	DraftID     string
	ClientID    string
	Platform    Platform
	ScheduledAt time.Time
	PublishMode PublishMode
	Status      QueueStatus
	RetryCount  int

	// Populated after a successful publish; recovery needs them to take
	// the post down.
	PlatformPostID  string
	PlatformPostURL string

	ErrorMessage string
	ImageRef     string

	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AuditRecord captures one mutation: who did what, with before/after
// snapshots. Records are append-only.
type AuditRecord struct {
	ID       int64
	ClientID string
	Actor    Actor
	Action   string
	Before   json.RawMessage
	After    json.RawMessage
	At       time.Time
}

// Urgency grades a recovery request.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyReview    Urgency = "review"
)

// RecoveryStatus is the lifecycle state of a recovery log.
type RecoveryStatus string

const (
	RecoveryPending        RecoveryStatus = "pending"
	RecoveryExecuting      RecoveryStatus = "executing"
	RecoveryCompleted      RecoveryStatus = "completed"
	RecoveryFailed         RecoveryStatus = "failed"
	RecoveryManualNeeded   RecoveryStatus = "manual_recovery_needed"
)

// RecoveryLog records one takedown action against a published post.
// Append-only apart from status/completion updates made by the recovery
// service itself and the replacement-draft backlink.
type RecoveryLog struct {
	ID                 string
	DraftID            string
	ClientID           string
	Platform           Platform
	PlatformPostID     string
	Urgency            Urgency
	Reason             string
	Status             RecoveryStatus
	Actor              Actor
	CompletedAt        *time.Time
	ReplacementDraftID string
	CreatedAt          time.Time
}

// PublishState is the process-wide publish pause switch. Exactly one row
// exists; the executor reads it before every dispatch.
type PublishState struct {
	Paused   bool
	PausedBy Actor
	PausedAt *time.Time
}

// NotificationChannel identifies an operator notification surface.
type NotificationChannel string

const (
	ChannelBrowser NotificationChannel = "browser"
	ChannelBot     NotificationChannel = "bot"
	ChannelEmail   NotificationChannel = "email"
)

// NotificationPreference holds per-channel delivery settings. Events maps
// event type names to an enabled flag; absent keys default to enabled.
type NotificationPreference struct {
	Channel NotificationChannel
	Enabled bool
	Events  map[string]bool
}

// Wants reports whether the channel should receive the given event type.
func (p NotificationPreference) Wants(eventType string) bool {
	if !p.Enabled {
		return false
	}
	if v, ok := p.Events[eventType]; ok {
		return v
	}
	return true
}
