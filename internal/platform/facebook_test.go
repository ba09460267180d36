package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newFacebookAgainst(t *testing.T, handler http.HandlerFunc) *Facebook {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	fb := NewFacebook("secret-token")
	fb.baseURL = srv.URL
	return fb
}

func TestFacebookPublish_TextPost(t *testing.T) {
	var gotPath, gotMessage, gotToken string
	fb := newFacebookAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotMessage = r.PostFormValue("message")
		gotToken = r.PostFormValue("access_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"123_456"}`))
	})

	result, err := fb.Publish(context.Background(), "page_1", PostContent{
		Copy:     "Hello from the bakery",
		Hashtags: []string{"#bread", "#fresh"},
	})
	require.NoError(t, err)
	require.Equal(t, "/page_1/feed", gotPath)
	require.Equal(t, "Hello from the bakery\n\n#bread #fresh", gotMessage)
	require.Equal(t, "secret-token", gotToken)
	require.Equal(t, "123_456", result.PostID)
	require.Equal(t, "https://www.facebook.com/123_456", result.URL)
}

func TestFacebookPublish_PhotoPost(t *testing.T) {
	var gotPath, gotURL, gotCaption string
	fb := newFacebookAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotURL = r.PostFormValue("url")
		gotCaption = r.PostFormValue("caption")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"789","post_id":"123_789"}`))
	})

	result, err := fb.Publish(context.Background(), "page_1", PostContent{
		Copy:     "Look at this loaf",
		ImageURL: "http://host/api/images/loaf.jpg",
	})
	require.NoError(t, err)
	require.Equal(t, "/page_1/photos", gotPath)
	require.Equal(t, "http://host/api/images/loaf.jpg", gotURL)
	require.Equal(t, "Look at this loaf", gotCaption)
	require.Equal(t, "123_789", result.PostID, "post_id preferred over id")
}

func TestFacebookPublish_ErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"server error", 500, `{"error":{"message":"upstream","code":1}}`, KindTransient},
		{"http rate limit", 429, `{"error":{"message":"slow down","code":32}}`, KindTransient},
		{"graph app rate limit", 400, `{"error":{"message":"call limit","code":4}}`, KindTransient},
		{"bad token", 400, `{"error":{"message":"invalid token","code":190}}`, KindPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fb := newFacebookAgainst(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := fb.Publish(context.Background(), "page_1", PostContent{Copy: "x"})
			require.Error(t, err)
			require.Equal(t, tc.want, KindOf(err))
		})
	}
}

func TestFacebookDelete(t *testing.T) {
	var gotMethod, gotPath string
	fb := newFacebookAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	require.NoError(t, fb.Delete(context.Background(), "page_1", "123_456"))
	require.Equal(t, http.MethodDelete, gotMethod)
	require.Equal(t, "/123_456", gotPath)
}

func TestFacebookDelete_NotConfirmed(t *testing.T) {
	fb := newFacebookAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false}`))
	})

	err := fb.Delete(context.Background(), "page_1", "123_456")
	require.Error(t, err)
	require.Equal(t, KindPermanent, KindOf(err))
}
