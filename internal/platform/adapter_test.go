package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sophiahq/sophia/internal/domain/draft"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, KindTransient, KindOf(Transient("op", errors.New("x"))))
	require.Equal(t, KindPermanent, KindOf(Permanent("op", errors.New("x"))))
	require.Equal(t, KindUnsupported, KindOf(Unsupported("op", errors.New("x"))))

	// Unclassified errors default to transient so the dispatcher retries
	// rather than burying a post behind a wrapping mistake.
	require.Equal(t, KindTransient, KindOf(errors.New("plain")))
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(Transient("op", errors.New("x"))))
	require.True(t, IsTransient(errors.New("plain")))
	require.False(t, IsTransient(Permanent("op", errors.New("x"))))
	require.False(t, IsTransient(Unsupported("op", errors.New("x"))))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := Transient("publish", inner)
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "publish")
}

func TestClassifyStatus(t *testing.T) {
	require.Equal(t, KindTransient, classifyStatus(429))
	require.Equal(t, KindTransient, classifyStatus(500))
	require.Equal(t, KindTransient, classifyStatus(503))
	require.Equal(t, KindPermanent, classifyStatus(400))
	require.Equal(t, KindPermanent, classifyStatus(403))
	require.Equal(t, KindPermanent, classifyStatus(404))
}

func TestRegistryFor(t *testing.T) {
	fb := NewFacebook("token")
	r := Registry{draft.PlatformFacebook: fb}

	got, err := r.For(draft.PlatformFacebook)
	require.NoError(t, err)
	require.Equal(t, draft.PlatformFacebook, got.Platform())

	_, err = r.For(draft.PlatformInstagram)
	require.Error(t, err)
	require.Equal(t, KindPermanent, KindOf(err))
}
