// Package api provides the HTTP surface for the review and publishing
// core. It exposes REST endpoints for draft review, queue inspection,
// publishing control, and recovery, plus SSE for event streaming.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sophiahq/sophia/internal/approval"
	"github.com/sophiahq/sophia/internal/clients"
	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/pubsub"
	"github.com/sophiahq/sophia/internal/recovery"
	"github.com/sophiahq/sophia/internal/scheduler"
	"github.com/sophiahq/sophia/internal/store"
)

// Handler provides the HTTP endpoints.
type Handler struct {
	approval  *approval.Service
	scheduler *scheduler.Scheduler
	recovery  *recovery.Service
	store     *store.Store
	clients   clients.Repository
	images    *ImageStore
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	Approval  *approval.Service
	Scheduler *scheduler.Scheduler
	Recovery  *recovery.Service
	Store     *store.Store
	Clients   clients.Repository
	Images    *ImageStore
}

// NewHandler creates the API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		approval:  cfg.Approval,
		scheduler: cfg.Scheduler,
		recovery:  cfg.Recovery,
		store:     cfg.Store,
		clients:   cfg.Clients,
		images:    cfg.Images,
	}
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Drafts and review
	mux.HandleFunc("POST /api/approval/drafts", h.CreateDraft)
	mux.HandleFunc("GET /api/approval/drafts", h.ListDrafts)
	mux.HandleFunc("GET /api/approval/queue", h.ListDrafts)
	mux.HandleFunc("GET /api/approval/drafts/{id}", h.GetDraft)
	mux.HandleFunc("POST /api/approval/drafts/{id}/approve", h.Approve)
	mux.HandleFunc("POST /api/approval/drafts/{id}/reject", h.Reject)
	mux.HandleFunc("POST /api/approval/drafts/{id}/edit", h.Edit)
	mux.HandleFunc("POST /api/approval/drafts/{id}/skip", h.Skip)
	mux.HandleFunc("POST /api/approval/drafts/{id}/resubmit", h.Resubmit)
	mux.HandleFunc("POST /api/approval/drafts/{id}/confirm-publish", h.ConfirmManualPublish)
	mux.HandleFunc("POST /api/approval/drafts/{id}/upload-image", h.UploadDraftImage)
	mux.HandleFunc("GET /api/approval/drafts/{id}/audit", h.AuditTrail)

	// Recovery
	mux.HandleFunc("POST /api/approval/drafts/{id}/recover", h.Recover)
	mux.HandleFunc("GET /api/approval/drafts/{id}/recovery", h.RecoveryHistory)

	// Publish queue
	mux.HandleFunc("GET /api/queue", h.ListQueue)

	// Publishing control
	mux.HandleFunc("GET /api/approval/publishing", h.PublishState)
	mux.HandleFunc("POST /api/approval/publishing/pause", h.PausePublishing)
	mux.HandleFunc("POST /api/approval/publishing/resume", h.ResumePublishing)

	// Images
	mux.HandleFunc("POST /api/images", h.UploadImage)
	mux.HandleFunc("GET /api/images/{ref}", h.ServeImage)

	// Notification preferences
	mux.HandleFunc("GET /api/notifications", h.GetNotifications)
	mux.HandleFunc("PUT /api/notifications", h.PutNotifications)

	// Event streaming
	mux.HandleFunc("GET /api/events", h.StreamEvents)

	// Health
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/approval/health-strip", h.HealthStrip)

	return mux
}

// === Request/Response Types ===

// CreateDraftRequest is the intake body from the generation pipeline.
type CreateDraftRequest struct {
	ClientID      string          `json:"client_id"`
	Platform      string          `json:"platform"`
	Copy          string          `json:"copy"`
	ImagePrompt   string          `json:"image_prompt,omitempty"`
	Hashtags      []string        `json:"hashtags,omitempty"`
	ImageRef      string          `json:"image_ref,omitempty"`
	SuggestedAt   *time.Time      `json:"suggested_at,omitempty"`
	QualityReport json.RawMessage `json:"quality_report,omitempty"`
	VoiceScore    float64         `json:"voice_score,omitempty"`
	PublishMode   string          `json:"publish_mode,omitempty"`
}

// ApproveRequest is the body for approving a draft.
type ApproveRequest struct {
	PublishMode    string     `json:"publish_mode,omitempty"`
	CustomPostTime *time.Time `json:"custom_post_time,omitempty"`
}

// RejectRequest is the body for rejecting a draft.
type RejectRequest struct {
	Tags     []string `json:"tags,omitempty"`
	Guidance string   `json:"guidance,omitempty"`
}

// EditRequest is the body for editing a draft's copy.
type EditRequest struct {
	Copy           string     `json:"copy"`
	CustomPostTime *time.Time `json:"custom_post_time,omitempty"`
}

// ConfirmPublishRequest is the body for confirming a manual publish.
type ConfirmPublishRequest struct {
	PostURL string `json:"post_url,omitempty"`
}

// RecoverRequest is the body for requesting a takedown.
type RecoverRequest struct {
	Reason  string `json:"reason"`
	Urgency string `json:"urgency,omitempty"`
}

// DraftResponse is the response body for a single draft.
type DraftResponse struct {
	ID             string          `json:"id"`
	ClientID       string          `json:"client_id"`
	Platform       string          `json:"platform"`
	Copy           string          `json:"copy"`
	ImagePrompt    string          `json:"image_prompt,omitempty"`
	Hashtags       []string        `json:"hashtags,omitempty"`
	ImageRef       string          `json:"image_ref,omitempty"`
	SuggestedAt    *time.Time      `json:"suggested_at,omitempty"`
	CustomPostTime *time.Time      `json:"custom_post_time,omitempty"`
	QualityReport  json.RawMessage `json:"quality_report,omitempty"`
	VoiceScore     float64         `json:"voice_score,omitempty"`
	Status         string          `json:"status"`
	PublishMode    string          `json:"publish_mode"`
	EditHistory    []draft.Edit    `json:"edit_history,omitempty"`
	RejectTags     []string        `json:"reject_tags,omitempty"`
	RejectGuidance string          `json:"reject_guidance,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy     string          `json:"approved_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ListDraftsResponse is the response body for listing drafts.
type ListDraftsResponse struct {
	Drafts []DraftResponse `json:"drafts"`
	Total  int             `json:"total"`
}

// QueueEntryResponse is the response body for a queue entry.
type QueueEntryResponse struct {
	ID              string     `json:"id"`
	DraftID         string     `json:"draft_id"`
	ClientID        string     `json:"client_id"`
	Platform        string     `json:"platform"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	PublishMode     string     `json:"publish_mode"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	PlatformPostID  string     `json:"platform_post_id,omitempty"`
	PlatformPostURL string     `json:"platform_post_url,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
}

// ListQueueResponse is the response body for listing queue entries.
type ListQueueResponse struct {
	Entries []QueueEntryResponse `json:"entries"`
	Total   int                  `json:"total"`
}

// PublishStateResponse is the response body for the publishing switch.
type PublishStateResponse struct {
	Paused   bool       `json:"paused"`
	PausedBy string     `json:"paused_by,omitempty"`
	PausedAt *time.Time `json:"paused_at,omitempty"`
}

// RecoveryResponse is the response body for a recovery log.
type RecoveryResponse struct {
	ID                 string     `json:"id"`
	DraftID            string     `json:"draft_id"`
	ClientID           string     `json:"client_id"`
	Platform           string     `json:"platform"`
	PlatformPostID     string     `json:"platform_post_id,omitempty"`
	Urgency            string     `json:"urgency"`
	Reason             string     `json:"reason"`
	Status             string     `json:"status"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ReplacementDraftID string     `json:"replacement_draft_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// AuditResponse is the response body for one audit record.
type AuditResponse struct {
	ID     int64           `json:"id"`
	Actor  string          `json:"actor"`
	Action string          `json:"action"`
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
	At     time.Time       `json:"at"`
}

// NotificationPreferenceBody is the wire shape of one channel preference.
type NotificationPreferenceBody struct {
	Channel string          `json:"channel"`
	Enabled bool            `json:"enabled"`
	Events  map[string]bool `json:"events,omitempty"`
}

// HealthStripResponse is the per-status draft count summary the UI
// renders as a strip.
type HealthStripResponse struct {
	InReview  int  `json:"in_review"`
	Approved  int  `json:"approved"`
	Published int  `json:"published"`
	Failed    int  `json:"failed"`
	Paused    bool `json:"publishing_paused"`
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// === Handlers ===

// CreateDraft accepts a draft from the generation pipeline and places it
// in review.
// POST /api/approval/drafts
func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req CreateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}
	if req.ClientID == "" || req.Copy == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "client_id and copy are required", "")
		return
	}
	platform := draft.Platform(req.Platform)
	if !platform.Valid() {
		h.writeError(w, http.StatusBadRequest, "validation_error", "unknown platform", req.Platform)
		return
	}
	if _, err := h.clients.Get(req.ClientID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	d := &draft.Draft{
		ClientID:      req.ClientID,
		Platform:      platform,
		Copy:          req.Copy,
		ImagePrompt:   req.ImagePrompt,
		Hashtags:      req.Hashtags,
		ImageRef:      req.ImageRef,
		SuggestedAt:   req.SuggestedAt,
		QualityReport: req.QualityReport,
		VoiceScore:    req.VoiceScore,
		PublishMode:   draft.PublishMode(req.PublishMode),
	}
	created, err := h.approval.Intake(d)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, draftToResponse(created))
}

// ListDrafts returns drafts matching optional filters. Registered both as
// the review queue listing and the generic draft listing.
// GET /api/approval/queue?status=in_review&client=acme&platform=facebook
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	f := store.DraftFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		f.Statuses = []draft.Status{draft.Status(status)}
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = r.URL.Query().Get("client")
	}
	if clientID != "" {
		f.ClientIDs = []string{clientID}
	}
	if platform := r.URL.Query().Get("platform"); platform != "" {
		f.Platform = draft.Platform(platform)
	}

	drafts, err := h.approval.List(f)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := ListDraftsResponse{Drafts: make([]DraftResponse, 0, len(drafts)), Total: len(drafts)}
	for _, d := range drafts {
		resp.Drafts = append(resp.Drafts, draftToResponse(d))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetDraft returns a single draft by ID.
// GET /api/approval/drafts/{id}
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.approval.Get(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftToResponse(d))
}

// Approve approves an in_review draft.
// POST /api/approval/drafts/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
			return
		}
	}
	d, err := h.approval.Approve(r.PathValue("id"), draft.ActorOperatorWeb, approval.Options{
		PublishMode:    draft.PublishMode(req.PublishMode),
		CustomPostTime: req.CustomPostTime,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftToResponse(d))
}

// Reject rejects an in_review draft with structured feedback.
// POST /api/approval/drafts/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
			return
		}
	}
	d, err := h.approval.Reject(r.PathValue("id"), draft.ActorOperatorWeb, req.Tags, req.Guidance)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftToResponse(d))
}

// Edit rewrites a draft's copy. Editing an approved draft pulls it back
// to review.
// POST /api/approval/drafts/{id}/edit
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}
	if req.Copy == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "copy is required", "")
		return
	}
	d, err := h.approval.Edit(r.PathValue("id"), draft.ActorOperatorWeb, req.Copy, req.CustomPostTime)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftToResponse(d))
}

// Skip sets an in_review draft aside without feedback.
// POST /api/approval/drafts/{id}/skip
func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	d, err := h.approval.Skip(r.PathValue("id"), draft.ActorOperatorWeb)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftToResponse(d))
}

// Resubmit returns a rejected, skipped, or recovered draft to review.
// POST /api/approval/drafts/{id}/resubmit
func (h *Handler) Resubmit(w http.ResponseWriter, r *http.Request) {
	d, err := h.approval.Resubmit(r.PathValue("id"), draft.ActorOperatorWeb)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftToResponse(d))
}

// ConfirmManualPublish records an operator's copy-paste publish.
// POST /api/approval/drafts/{id}/confirm-publish
func (h *Handler) ConfirmManualPublish(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPublishRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
			return
		}
	}
	d, err := h.approval.ConfirmManualPublish(r.PathValue("id"), draft.ActorOperatorWeb, req.PostURL)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftToResponse(d))
}

// AuditTrail returns a draft's mutation history.
// GET /api/approval/drafts/{id}/audit
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	records, err := h.approval.AuditTrail(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := make([]AuditResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, AuditResponse{
			ID:     rec.ID,
			Actor:  string(rec.Actor),
			Action: rec.Action,
			Before: rec.Before,
			After:  rec.After,
			At:     rec.At,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Recover requests a takedown of a published draft.
// POST /api/approval/drafts/{id}/recover
func (h *Handler) Recover(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}
	if req.Reason == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "reason is required", "")
		return
	}
	urgency := draft.Urgency(req.Urgency)
	if urgency == "" {
		urgency = draft.UrgencyReview
	}

	rec, err := h.recovery.Recover(r.Context(), r.PathValue("id"), req.Reason, urgency, draft.ActorOperatorWeb)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, recoveryToResponse(rec))
}

// RecoveryHistory returns a draft's recovery logs.
// GET /api/approval/drafts/{id}/recovery
func (h *Handler) RecoveryHistory(w http.ResponseWriter, r *http.Request) {
	logs, err := h.recovery.History(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := make([]RecoveryResponse, 0, len(logs))
	for _, rec := range logs {
		resp = append(resp, recoveryToResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListQueue returns queue entries matching optional filters.
// GET /api/queue?status=queued&client_id=acme
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	f := store.QueueFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		f.Statuses = []draft.QueueStatus{draft.QueueStatus(status)}
	}
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		f.ClientID = clientID
	}
	if platform := r.URL.Query().Get("platform"); platform != "" {
		f.Platform = draft.Platform(platform)
	}

	entries, err := h.store.ListQueueEntries(f)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := ListQueueResponse{Entries: make([]QueueEntryResponse, 0, len(entries)), Total: len(entries)}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, queueToResponse(e))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// PublishState returns the global pause switch.
// GET /api/approval/publishing
func (h *Handler) PublishState(w http.ResponseWriter, r *http.Request) {
	state, err := h.scheduler.PublishState()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stateToResponse(state))
}

// PausePublishing pauses all automatic publishing.
// POST /api/approval/publishing/pause
func (h *Handler) PausePublishing(w http.ResponseWriter, r *http.Request) {
	state, err := h.scheduler.PausePublishing(draft.ActorOperatorWeb)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stateToResponse(state))
}

// ResumePublishing resumes automatic publishing.
// POST /api/approval/publishing/resume
func (h *Handler) ResumePublishing(w http.ResponseWriter, r *http.Request) {
	state, err := h.scheduler.ResumePublishing(draft.ActorOperatorWeb)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stateToResponse(state))
}

// GetNotifications returns all channel preferences.
// GET /api/notifications
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.store.GetNotificationPreferences()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := make([]NotificationPreferenceBody, 0, len(prefs))
	for _, p := range prefs {
		resp = append(resp, NotificationPreferenceBody{
			Channel: string(p.Channel),
			Enabled: p.Enabled,
			Events:  p.Events,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// PutNotifications upserts one channel preference.
// PUT /api/notifications
func (h *Handler) PutNotifications(w http.ResponseWriter, r *http.Request) {
	var req NotificationPreferenceBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}
	if req.Channel == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "channel is required", "")
		return
	}
	err := h.store.PutNotificationPreference(draft.NotificationPreference{
		Channel: draft.NotificationChannel(req.Channel),
		Enabled: req.Enabled,
		Events:  req.Events,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StreamEvents streams all bus events via SSE. At the subscriber ceiling
// the endpoint answers 503 so clients back off and retry.
// GET /api/events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	eventsCh, err := h.approval.Subscribe(r.Context())
	if errors.Is(err, pubsub.ErrTooManySubscribers) {
		h.writeError(w, http.StatusServiceUnavailable, "subscriber_limit", "Too many event subscribers", "")
		return
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	// Reconnect hint; clients refetch state after reconnecting since
	// dropped events are not replayed.
	_, _ = fmt.Fprintf(w, "retry: 5000\n\n")
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Payload)
			if err != nil {
				log.Error(log.CatAPI, "Failed to marshal event", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// Health answers liveness probes.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.GetPublishState(); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthStrip returns the per-status counts the UI renders as a strip.
// GET /api/approval/health-strip?client_id=acme
func (h *Handler) HealthStrip(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByStatus(r.URL.Query().Get("client_id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	failed, err := h.store.ListQueueEntries(store.QueueFilter{
		Statuses: []draft.QueueStatus{draft.QueueFailed},
		ClientID: r.URL.Query().Get("client_id"),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	state, err := h.store.GetPublishState()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, HealthStripResponse{
		InReview:  counts[draft.StatusInReview],
		Approved:  counts[draft.StatusApproved],
		Published: counts[draft.StatusPublished],
		Failed:    len(failed),
		Paused:    state.Paused,
	})
}

// === Helpers ===

func draftToResponse(d *draft.Draft) DraftResponse {
	return DraftResponse{
		ID:             d.ID,
		ClientID:       d.ClientID,
		Platform:       string(d.Platform),
		Copy:           d.Copy,
		ImagePrompt:    d.ImagePrompt,
		Hashtags:       d.Hashtags,
		ImageRef:       d.ImageRef,
		SuggestedAt:    d.SuggestedAt,
		CustomPostTime: d.CustomPostTime,
		QualityReport:  d.QualityReport,
		VoiceScore:     d.VoiceScore,
		Status:         string(d.Status),
		PublishMode:    string(d.PublishMode),
		EditHistory:    d.EditHistory,
		RejectTags:     d.RejectTags,
		RejectGuidance: d.RejectGuidance,
		ApprovedAt:     d.ApprovedAt,
		ApprovedBy:     string(d.ApprovedBy),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func queueToResponse(e *draft.QueueEntry) QueueEntryResponse {
	return QueueEntryResponse{
		ID:              e.ID,
		DraftID:         e.DraftID,
		ClientID:        e.ClientID,
		Platform:        string(e.Platform),
		ScheduledAt:     e.ScheduledAt,
		PublishMode:     string(e.PublishMode),
		Status:          string(e.Status),
		RetryCount:      e.RetryCount,
		PlatformPostID:  e.PlatformPostID,
		PlatformPostURL: e.PlatformPostURL,
		ErrorMessage:    e.ErrorMessage,
		PublishedAt:     e.PublishedAt,
	}
}

func recoveryToResponse(rec *draft.RecoveryLog) RecoveryResponse {
	return RecoveryResponse{
		ID:                 rec.ID,
		DraftID:            rec.DraftID,
		ClientID:           rec.ClientID,
		Platform:           string(rec.Platform),
		PlatformPostID:     rec.PlatformPostID,
		Urgency:            string(rec.Urgency),
		Reason:             rec.Reason,
		Status:             string(rec.Status),
		CompletedAt:        rec.CompletedAt,
		ReplacementDraftID: rec.ReplacementDraftID,
		CreatedAt:          rec.CreatedAt,
	}
}

func stateToResponse(s *draft.PublishState) PublishStateResponse {
	return PublishStateResponse{
		Paused:   s.Paused,
		PausedBy: string(s.PausedBy),
		PausedAt: s.PausedAt,
	}
}

// writeDomainError maps service errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Not found", err.Error())
	case errors.Is(err, clients.ErrClientNotFound):
		h.writeError(w, http.StatusNotFound, "client_not_found", "Client not found", err.Error())
	case errors.Is(err, store.ErrConflict):
		h.writeError(w, http.StatusConflict, "conflict", "Draft changed concurrently", err.Error())
	case errors.Is(err, approval.ErrInvalidTransition):
		// Semantic rejections share 409 with lost races; the body code
		// tells them apart.
		h.writeError(w, http.StatusConflict, "invalid_transition", "Invalid status transition", err.Error())
	case errors.Is(err, recovery.ErrNotPublished):
		h.writeError(w, http.StatusConflict, "not_published", "Draft is not published", err.Error())
	case errors.Is(err, store.ErrStoreUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Storage unavailable", err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal error", err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatAPI, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}
