// Package bot bridges the messaging-bot surface: an inbound webhook that
// turns bot commands into approval operations, and a notifier that pushes
// bus events out to the bot's own webhook.
package bot

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sophiahq/sophia/internal/approval"
	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/recovery"
	"github.com/sophiahq/sophia/internal/store"
)

// WebhookHandler accepts review commands from the bot.
type WebhookHandler struct {
	approval *approval.Service
	recovery *recovery.Service
	store    *store.Store
	token    string
}

// WebhookConfig configures the bot webhook. Token is the shared secret
// the bot sends in X-Bot-Token.
type WebhookConfig struct {
	Approval *approval.Service
	Recovery *recovery.Service
	Store    *store.Store
	Token    string
}

// NewWebhookHandler creates the handler.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	return &WebhookHandler{
		approval: cfg.Approval,
		recovery: cfg.Recovery,
		store:    cfg.Store,
		token:    cfg.Token,
	}
}

// Routes returns the webhook routes.
func (h *WebhookHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", h.HandleCommand)
	return mux
}

// CommandRequest is one bot command.
type CommandRequest struct {
	Action     string `json:"action"`
	DraftID    string `json:"draft_id"`
	OperatorID string `json:"operator_id"`

	// Reject fields.
	Tags     []string `json:"tags,omitempty"`
	Guidance string   `json:"guidance,omitempty"`

	// Edit field.
	Copy string `json:"copy,omitempty"`

	// Recover fields.
	Reason  string `json:"reason,omitempty"`
	Urgency string `json:"urgency,omitempty"`
}

// CommandResponse reports the draft's (or publishing) status after the
// command.
type CommandResponse struct {
	DraftID string `json:"draft_id,omitempty"`
	Status  string `json:"status"`
}

// HandleCommand executes one bot command against the approval service.
// POST /webhook
func (h *WebhookHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if h.token == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Bot-Token")), []byte(h.token)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid bot token")
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if req.Action == "pause" || req.Action == "resume" {
		state, err := h.store.SetPublishState(req.Action == "pause", draft.ActorOperatorBot)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		status := "active"
		if state.Paused {
			status = "paused"
		}
		log.Info(log.CatBot, "Bot command applied", "action", req.Action, "operator", req.OperatorID)
		writeJSON(w, http.StatusOK, CommandResponse{Status: status})
		return
	}

	if req.DraftID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "draft_id is required")
		return
	}

	var resp CommandResponse
	var err error
	switch req.Action {
	case "approve":
		var d *draft.Draft
		d, err = h.approval.Approve(req.DraftID, draft.ActorOperatorBot, approval.Options{})
		resp = draftResponse(d)
	case "reject":
		var d *draft.Draft
		d, err = h.approval.Reject(req.DraftID, draft.ActorOperatorBot, req.Tags, req.Guidance)
		resp = draftResponse(d)
	case "skip":
		var d *draft.Draft
		d, err = h.approval.Skip(req.DraftID, draft.ActorOperatorBot)
		resp = draftResponse(d)
	case "edit":
		if req.Copy == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "copy is required for edit")
			return
		}
		var d *draft.Draft
		d, err = h.approval.Edit(req.DraftID, draft.ActorOperatorBot, req.Copy, nil)
		resp = draftResponse(d)
	case "recover":
		urgency := draft.UrgencyReview
		if req.Urgency == string(draft.UrgencyImmediate) {
			urgency = draft.UrgencyImmediate
		}
		var rec *draft.RecoveryLog
		rec, err = h.recovery.Recover(r.Context(), req.DraftID, req.Reason, urgency, draft.ActorOperatorBot)
		if err == nil {
			resp = CommandResponse{DraftID: rec.DraftID, Status: string(rec.Status)}
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown_action", "Unknown action: "+req.Action)
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Draft not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "conflict", "Draft changed concurrently")
		case errors.Is(err, recovery.ErrNotPublished):
			writeError(w, http.StatusConflict, "not_published", "Draft has no published post to recover")
		case errors.Is(err, approval.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid_transition", "Invalid status transition")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	log.Info(log.CatBot, "Bot command applied", "action", req.Action,
		"draft", req.DraftID, "operator", req.OperatorID)
	writeJSON(w, http.StatusOK, resp)
}

func draftResponse(d *draft.Draft) CommandResponse {
	if d == nil {
		return CommandResponse{}
	}
	return CommandResponse{DraftID: d.ID, Status: string(d.Status)}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatBot, "Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
