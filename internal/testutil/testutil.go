// Package testutil provides shared fixtures for service-level tests: an
// in-memory store and seeded client profiles.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/store"
)

// NewStore opens an in-memory content store, closed on test cleanup.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// ClientSpec configures a seeded client.
type ClientSpec struct {
	ID                   string
	Name                 string
	PostsPerWeek         int
	MinHoursBetweenPosts int
	PreferredDays        string // JSON array of weekday ints, e.g. "[2,4]"
	FacebookID           string
	InstagramID          string
}

// SeedClient inserts a client row, filling sensible defaults.
func SeedClient(t *testing.T, st *store.Store, spec ClientSpec) string {
	t.Helper()
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.Name == "" {
		spec.Name = "Test Client"
	}
	if spec.PostsPerWeek == 0 {
		spec.PostsPerWeek = 3
	}
	if spec.MinHoursBetweenPosts == 0 {
		spec.MinHoursBetweenPosts = 24
	}
	if spec.FacebookID == "" {
		spec.FacebookID = "fb_page_1"
	}
	if spec.InstagramID == "" {
		spec.InstagramID = "ig_acct_1"
	}

	var preferredDays any
	if spec.PreferredDays != "" {
		preferredDays = spec.PreferredDays
	}
	_, err := st.DB().Exec(
		`INSERT INTO clients (id, name, posts_per_week, min_hours_between_posts,
			preferred_days, facebook_id, instagram_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		spec.ID, spec.Name, spec.PostsPerWeek, spec.MinHoursBetweenPosts,
		preferredDays, spec.FacebookID, spec.InstagramID,
	)
	require.NoError(t, err)
	return spec.ID
}

// NewDraft builds a minimal pipeline draft for the given client.
func NewDraft(clientID string, platform draft.Platform) *draft.Draft {
	return &draft.Draft{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		Platform:    platform,
		Copy:        "Fresh out of the oven: sourdough Saturdays are back.",
		Hashtags:    []string{"#sourdough", "#bakery"},
		Status:      draft.StatusDraft,
		PublishMode: draft.PublishAuto,
		VoiceScore:  0.91,
	}
}
