package draft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var allStatuses = []Status{
	StatusDraft, StatusInReview, StatusApproved, StatusRejected,
	StatusSkipped, StatusPublished, StatusRecovered,
}

func TestCanTransition_Table(t *testing.T) {
	valid := []struct{ from, to Status }{
		{StatusDraft, StatusInReview},
		{StatusInReview, StatusApproved},
		{StatusInReview, StatusRejected},
		{StatusInReview, StatusSkipped},
		{StatusApproved, StatusPublished},
		{StatusApproved, StatusInReview},
		{StatusRejected, StatusInReview},
		{StatusSkipped, StatusInReview},
		{StatusPublished, StatusRecovered},
		{StatusRecovered, StatusInReview},
	}
	for _, tc := range valid {
		require.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be valid", tc.from, tc.to)
	}

	invalid := []struct{ from, to Status }{
		{StatusDraft, StatusApproved},
		{StatusDraft, StatusPublished},
		{StatusInReview, StatusPublished},
		{StatusRejected, StatusApproved},
		{StatusSkipped, StatusPublished},
		{StatusPublished, StatusInReview},
		{StatusPublished, StatusApproved},
		{StatusRecovered, StatusPublished},
		{StatusApproved, StatusRejected},
	}
	for _, tc := range invalid {
		require.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be invalid", tc.from, tc.to)
	}
}

func TestCanTransition_NoSelfLoops(t *testing.T) {
	for _, s := range allStatuses {
		require.False(t, CanTransition(s, s), "%s -> %s", s, s)
	}
}

func TestPublishedOnlyReachableFromApproved(t *testing.T) {
	for _, s := range allStatuses {
		if s == StatusApproved {
			continue
		}
		require.False(t, CanTransition(s, StatusPublished),
			"published must only be reachable from approved, got path from %s", s)
	}
}

func TestAllowedTransitions_MatchesCanTransition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(allStatuses).Draw(t, "from")
		to := rapid.SampledFrom(allStatuses).Draw(t, "to")

		allowed := AllowedTransitions(from)
		found := false
		for _, a := range allowed {
			if a == to {
				found = true
			}
		}
		require.Equal(t, CanTransition(from, to), found)
	})
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	first := AllowedTransitions(StatusInReview)
	first[0] = StatusRecovered
	require.NotEqual(t, first[0], AllowedTransitions(StatusInReview)[0])
}

func TestAtRest(t *testing.T) {
	require.True(t, StatusRejected.AtRest())
	require.True(t, StatusSkipped.AtRest())
	require.True(t, StatusPublished.AtRest())
	require.True(t, StatusRecovered.AtRest())
	require.False(t, StatusDraft.AtRest())
	require.False(t, StatusInReview.AtRest())
	require.False(t, StatusApproved.AtRest())
}

func TestEveryStatusCanEventuallyReachReview(t *testing.T) {
	// Nothing is a dead end: from any status some chain of transitions
	// leads back to in_review.
	reaches := func(start Status) bool {
		seen := map[Status]bool{start: true}
		frontier := []Status{start}
		for len(frontier) > 0 {
			next := frontier[0]
			frontier = frontier[1:]
			for _, to := range AllowedTransitions(next) {
				if to == StatusInReview {
					return true
				}
				if !seen[to] {
					seen[to] = true
					frontier = append(frontier, to)
				}
			}
		}
		return false
	}
	for _, s := range allStatuses {
		require.True(t, reaches(s), "no path from %s back to review", s)
	}
}

func TestRequiresImage(t *testing.T) {
	require.True(t, PlatformInstagram.RequiresImage(false))
	require.True(t, PlatformInstagram.RequiresImage(true))
	require.False(t, PlatformFacebook.RequiresImage(false))
	require.True(t, PlatformFacebook.RequiresImage(true))
}

func TestPostTime(t *testing.T) {
	d := &Draft{}
	require.True(t, d.PostTime().IsZero())

	suggested := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	d.SuggestedAt = &suggested
	require.Equal(t, suggested, d.PostTime())

	custom := time.Date(2026, 3, 5, 18, 30, 0, 0, time.UTC)
	d.CustomPostTime = &custom
	require.Equal(t, custom, d.PostTime(), "operator override wins")
}
