package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/log"
)

const graphBaseURL = "https://graph.facebook.com/v21.0"

// Facebook publishes to a page feed via the Graph API. Text-only posts go
// to /{page}/feed; posts with an image go to /{page}/photos.
type Facebook struct {
	accessToken string
	baseURL     string
	client      *http.Client
}

// NewFacebook creates the page-feed adapter.
func NewFacebook(accessToken string) *Facebook {
	return &Facebook{
		accessToken: accessToken,
		baseURL:     graphBaseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
	}
}

func (f *Facebook) Platform() draft.Platform { return draft.PlatformFacebook }

func (f *Facebook) Publish(ctx context.Context, accountID string, content PostContent) (*PostResult, error) {
	message := content.Copy
	if len(content.Hashtags) > 0 {
		message += "\n\n" + strings.Join(content.Hashtags, " ")
	}

	form := url.Values{"access_token": {f.accessToken}}
	var endpoint string
	if content.ImageURL != "" {
		endpoint = f.baseURL + "/" + accountID + "/photos"
		form.Set("url", content.ImageURL)
		form.Set("caption", message)
	} else {
		endpoint = f.baseURL + "/" + accountID + "/feed"
		form.Set("message", message)
	}

	var resp struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := f.do(ctx, http.MethodPost, endpoint, form, &resp); err != nil {
		return nil, err
	}

	postID := resp.PostID
	if postID == "" {
		postID = resp.ID
	}
	log.Info(log.CatPlatform, "Facebook post created", "account", accountID, "post", postID)
	return &PostResult{
		PostID: postID,
		URL:    "https://www.facebook.com/" + postID,
	}, nil
}

// Delete removes a page post. The Graph API supports deletes on posts the
// page owns.
func (f *Facebook) Delete(ctx context.Context, accountID, postID string) error {
	form := url.Values{"access_token": {f.accessToken}}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := f.do(ctx, http.MethodDelete, f.baseURL+"/"+postID, form, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return Permanent("facebook delete", fmt.Errorf("delete of %s not confirmed", postID))
	}
	log.Info(log.CatPlatform, "Facebook post deleted", "account", accountID, "post", postID)
	return nil
}

func (f *Facebook) do(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	op := "facebook " + strings.ToLower(method)

	var req *http.Request
	var err error
	if method == http.MethodDelete {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+form.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return Permanent(op, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Transient(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return graphError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Transient(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// graphError decodes the Graph API error envelope and classifies it.
func graphError(op string, resp *http.Response) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&envelope)

	msg := envelope.Error.Message
	if msg == "" {
		msg = resp.Status
	}
	err := fmt.Errorf("graph api: %s (code %d, http %d)", msg, envelope.Error.Code, resp.StatusCode)

	kind := classifyStatus(resp.StatusCode)
	// Graph code 4 is application-level rate limiting regardless of HTTP
	// status.
	if envelope.Error.Code == 4 {
		kind = KindTransient
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
