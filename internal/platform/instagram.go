package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/log"
)

// Instagram publishes through the Graph API container flow: create a
// media container, then publish it. Every post needs an image; the
// content API has no delete, so takedowns are manual.
type Instagram struct {
	accessToken string
	baseURL     string
	client      *http.Client
}

// NewInstagram creates the business-account adapter.
func NewInstagram(accessToken string) *Instagram {
	return &Instagram{
		accessToken: accessToken,
		baseURL:     graphBaseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
	}
}

func (i *Instagram) Platform() draft.Platform { return draft.PlatformInstagram }

func (i *Instagram) Publish(ctx context.Context, accountID string, content PostContent) (*PostResult, error) {
	if content.ImageURL == "" {
		return nil, Permanent("instagram publish", errors.New("instagram requires an image"))
	}

	caption := content.Copy
	if len(content.Hashtags) > 0 {
		caption += "\n\n" + strings.Join(content.Hashtags, " ")
	}

	// Step 1: media container.
	form := url.Values{
		"access_token": {i.accessToken},
		"image_url":    {content.ImageURL},
		"caption":      {caption},
	}
	var container struct {
		ID string `json:"id"`
	}
	if err := i.post(ctx, "instagram create container", i.baseURL+"/"+accountID+"/media", form, &container); err != nil {
		return nil, err
	}

	// Step 2: publish the container.
	form = url.Values{
		"access_token": {i.accessToken},
		"creation_id":  {container.ID},
	}
	var published struct {
		ID string `json:"id"`
	}
	if err := i.post(ctx, "instagram publish container", i.baseURL+"/"+accountID+"/media_publish", form, &published); err != nil {
		return nil, err
	}

	log.Info(log.CatPlatform, "Instagram post created", "account", accountID, "post", published.ID)
	return &PostResult{
		PostID: published.ID,
		URL:    "https://www.instagram.com/p/" + published.ID,
	}, nil
}

// Delete always fails: the Instagram content publishing API offers no
// delete endpoint. Recovery turns this into manual_recovery_needed.
func (i *Instagram) Delete(ctx context.Context, accountID, postID string) error {
	return Unsupported("instagram delete",
		fmt.Errorf("instagram api cannot delete post %s; remove it in the app", postID))
}

func (i *Instagram) post(ctx context.Context, op, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Permanent(op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.client.Do(req)
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
