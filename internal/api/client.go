package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the Go client for the daemon's HTTP API. The CLI and the
// review TUI use it; the daemon is the only process that touches the
// database directly.
type Client struct {
	baseURL string
	http    *http.Client
}

// Client-side mirrors of the server's error classes, distinguished so
// the CLI can map them to exit codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnavailable       = errors.New("service unavailable")
)

// NewClient creates a client for the daemon at baseURL, e.g.
// "http://127.0.0.1:8787".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// GetDraft fetches one draft.
func (c *Client) GetDraft(ctx context.Context, id string) (*DraftResponse, error) {
	var d DraftResponse
	if err := c.do(ctx, http.MethodGet, "/api/approval/drafts/"+id, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDrafts fetches drafts by status ("" for all).
func (c *Client) ListDrafts(ctx context.Context, status string) ([]DraftResponse, error) {
	path := "/api/approval/drafts"
	if status != "" {
		path += "?status=" + status
	}
	var resp ListDraftsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Drafts, nil
}

// Approve approves a draft.
func (c *Client) Approve(ctx context.Context, id string, req ApproveRequest) (*DraftResponse, error) {
	var d DraftResponse
	if err := c.do(ctx, http.MethodPost, "/api/approval/drafts/"+id+"/approve", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Reject rejects a draft with feedback.
func (c *Client) Reject(ctx context.Context, id string, req RejectRequest) (*DraftResponse, error) {
	var d DraftResponse
	if err := c.do(ctx, http.MethodPost, "/api/approval/drafts/"+id+"/reject", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Edit rewrites a draft's copy.
func (c *Client) Edit(ctx context.Context, id string, req EditRequest) (*DraftResponse, error) {
	var d DraftResponse
	if err := c.do(ctx, http.MethodPost, "/api/approval/drafts/"+id+"/edit", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Skip sets a draft aside.
func (c *Client) Skip(ctx context.Context, id string) (*DraftResponse, error) {
	var d DraftResponse
	if err := c.do(ctx, http.MethodPost, "/api/approval/drafts/"+id+"/skip", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Recover requests a takedown of a published draft.
func (c *Client) Recover(ctx context.Context, id string, req RecoverRequest) (*RecoveryResponse, error) {
	var rec RecoveryResponse
	if err := c.do(ctx, http.MethodPost, "/api/approval/drafts/"+id+"/recover", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PausePublishing flips the global pause switch on.
func (c *Client) PausePublishing(ctx context.Context) (*PublishStateResponse, error) {
	var s PublishStateResponse
	if err := c.do(ctx, http.MethodPost, "/api/approval/publishing/pause", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ResumePublishing flips the global pause switch off.
func (c *Client) ResumePublishing(ctx context.Context) (*PublishStateResponse, error) {
	var s PublishStateResponse
	if err := c.do(ctx, http.MethodPost, "/api/approval/publishing/resume", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// HealthStrip fetches the per-status counts.
func (c *Client) HealthStrip(ctx context.Context) (*HealthStripResponse, error) {
	var s HealthStripResponse
	if err := c.do(ctx, http.MethodGet, "/api/approval/health-strip", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return c.apiError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) apiError(resp *http.Response) error {
	var body ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}
	if body.Details != "" {
		msg += ": " + body.Details
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case http.StatusConflict:
		// 409 covers both lost races and semantic rejections; the body
		// code distinguishes them.
		if body.Code == "invalid_transition" || body.Code == "not_published" {
			return fmt.Errorf("%s: %w", msg, ErrInvalidTransition)
		}
		return fmt.Errorf("%s: %w", msg, ErrConflict)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%s: %w", msg, ErrUnavailable)
	default:
		return errors.New(msg)
	}
}
