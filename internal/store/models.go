package store

import (
	"encoding/json"
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
)

// Row models map SQL columns to Go fields with Unix timestamps for time
// values, mirroring the table definitions in schema.go.

type draftModel struct {
	ID             string
	ClientID       string
	Platform       string
	Body           string
	ImagePrompt    string
	Hashtags       *string // JSON array, nullable
	ImageRef       string
	SuggestedAt    *int64
	CustomPostTime *int64
	QualityReport  *string // opaque JSON, nullable
	VoiceScore     float64
	Status         string
	PublishMode    string
	EditHistory    *string // JSON array, nullable
	RejectTags     *string // JSON array, nullable
	RejectGuidance string
	ApprovedAt     *int64
	ApprovedBy     string
	CreatedAt      int64
	UpdatedAt      int64
}

func toDraftModel(d *draft.Draft) *draftModel {
	m := &draftModel{
		ID:             d.ID,
		ClientID:       d.ClientID,
		Platform:       string(d.Platform),
		Body:           d.Copy,
		ImagePrompt:    d.ImagePrompt,
		ImageRef:       d.ImageRef,
		VoiceScore:     d.VoiceScore,
		Status:         string(d.Status),
		PublishMode:    string(d.PublishMode),
		RejectGuidance: d.RejectGuidance,
		ApprovedBy:     string(d.ApprovedBy),
		CreatedAt:      d.CreatedAt.Unix(),
		UpdatedAt:      d.UpdatedAt.Unix(),
	}
	if len(d.Hashtags) > 0 {
		m.Hashtags = marshalJSON(d.Hashtags)
	}
	if d.SuggestedAt != nil {
		ts := d.SuggestedAt.Unix()
		m.SuggestedAt = &ts
	}
	if d.CustomPostTime != nil {
		ts := d.CustomPostTime.Unix()
		m.CustomPostTime = &ts
	}
	if len(d.QualityReport) > 0 {
		qr := string(d.QualityReport)
		m.QualityReport = &qr
	}
	if len(d.EditHistory) > 0 {
		m.EditHistory = marshalJSON(d.EditHistory)
	}
	if len(d.RejectTags) > 0 {
		m.RejectTags = marshalJSON(d.RejectTags)
	}
	if d.ApprovedAt != nil {
		ts := d.ApprovedAt.Unix()
		m.ApprovedAt = &ts
	}
	return m
}

func (m *draftModel) toDomain() *draft.Draft {
	d := &draft.Draft{
		ID:             m.ID,
		ClientID:       m.ClientID,
		Platform:       draft.Platform(m.Platform),
		Copy:           m.Body,
		ImagePrompt:    m.ImagePrompt,
		ImageRef:       m.ImageRef,
		VoiceScore:     m.VoiceScore,
		Status:         draft.Status(m.Status),
		PublishMode:    draft.PublishMode(m.PublishMode),
		RejectGuidance: m.RejectGuidance,
		ApprovedBy:     draft.Actor(m.ApprovedBy),
		CreatedAt:      time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:      time.Unix(m.UpdatedAt, 0).UTC(),
	}
	if m.Hashtags != nil {
		_ = json.Unmarshal([]byte(*m.Hashtags), &d.Hashtags)
	}
	d.SuggestedAt = unixPtr(m.SuggestedAt)
	d.CustomPostTime = unixPtr(m.CustomPostTime)
	if m.QualityReport != nil {
		d.QualityReport = json.RawMessage(*m.QualityReport)
	}
	if m.EditHistory != nil {
		_ = json.Unmarshal([]byte(*m.EditHistory), &d.EditHistory)
	}
	if m.RejectTags != nil {
		_ = json.Unmarshal([]byte(*m.RejectTags), &d.RejectTags)
	}
	d.ApprovedAt = unixPtr(m.ApprovedAt)
	return d
}

type queueEntryModel struct {
	ID              string
	DraftID         string
	ClientID        string
	Platform        string
	ScheduledAt     int64
	PublishMode     string
	Status          string
	RetryCount      int
	PlatformPostID  string
	PlatformPostURL string
	ErrorMessage    string
	ImageRef        string
	PublishedAt     *int64
	CreatedAt       int64
	UpdatedAt       int64
}

func toQueueEntryModel(e *draft.QueueEntry) *queueEntryModel {
	m := &queueEntryModel{
		ID:              e.ID,
		DraftID:         e.DraftID,
		ClientID:        e.ClientID,
		Platform:        string(e.Platform),
		ScheduledAt:     e.ScheduledAt.Unix(),
		PublishMode:     string(e.PublishMode),
		Status:          string(e.Status),
		RetryCount:      e.RetryCount,
		PlatformPostID:  e.PlatformPostID,
		PlatformPostURL: e.PlatformPostURL,
		ErrorMessage:    e.ErrorMessage,
		ImageRef:        e.ImageRef,
		CreatedAt:       e.CreatedAt.Unix(),
		UpdatedAt:       e.UpdatedAt.Unix(),
	}
	if e.PublishedAt != nil {
		ts := e.PublishedAt.Unix()
		m.PublishedAt = &ts
	}
	return m
}

func (m *queueEntryModel) toDomain() *draft.QueueEntry {
	return &draft.QueueEntry{
		ID:              m.ID,
		DraftID:         m.DraftID,
		ClientID:        m.ClientID,
		Platform:        draft.Platform(m.Platform),
		ScheduledAt:     time.Unix(m.ScheduledAt, 0).UTC(),
		PublishMode:     draft.PublishMode(m.PublishMode),
		Status:          draft.QueueStatus(m.Status),
		RetryCount:      m.RetryCount,
		PlatformPostID:  m.PlatformPostID,
		PlatformPostURL: m.PlatformPostURL,
		ErrorMessage:    m.ErrorMessage,
		ImageRef:        m.ImageRef,
		PublishedAt:     unixPtr(m.PublishedAt),
		CreatedAt:       time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:       time.Unix(m.UpdatedAt, 0).UTC(),
	}
}

func marshalJSON(v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func unixPtr(ts *int64) *time.Time {
	if ts == nil {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}
