package upstream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilink/broker/upstream"
)

type testFixture struct {
	client   *upstream.Client
	server   *httptest.Server
	requests []*recordedRequest
}

type recordedRequest struct {
	path string
	form url.Values
}

// newTestFixture stands up a fake provider whose handler is supplied per
// test, recording every form post it receives.
func newTestFixture(t *testing.T, handler func(path string, form url.Values, w http.ResponseWriter)) *testFixture {
	t.Helper()

	f := &testFixture{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.requests = append(f.requests, &recordedRequest{path: r.URL.Path, form: r.PostForm})
		handler(r.URL.Path, r.PostForm, w)
	}))
	t.Cleanup(f.server.Close)

	f.client = upstream.New(
		upstream.Credentials{ConsumerKey: "ck", ConsumerSecret: "cs"},
		upstream.Endpoints{
			RequestTokenURL: f.server.URL + "/oauth/request_token",
			AuthorizeURL:    f.server.URL + "/oauth/authorize",
			AccessTokenURL:  f.server.URL + "/oauth/access_token",
			APIURL:          f.server.URL + "/rest/server.api",
		},
		f.server.Client(),
	)
	return f
}

func (f *testFixture) lastRequest(t *testing.T) *recordedRequest {
	t.Helper()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func TestStartDance(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {
		w.Write([]byte("oauth_token=rt&oauth_token_secret=rts&oauth_callback_confirmed=true"))
	})

	dance, err := f.client.StartDance(context.Background(), "https://broker.example/upstream/callback")
	require.NoError(t, err)

	assert.Equal(t, upstream.StageRequestTokenObtained, dance.Stage)
	assert.Equal(t, "rt", dance.RequestToken)
	assert.Equal(t, "rts", dance.RequestSecret)

	req := f.lastRequest(t)
	assert.Equal(t, "/oauth/request_token", req.path)
	assert.Equal(t, "https://broker.example/upstream/callback", req.form.Get("oauth_callback"))
	assert.Equal(t, "ck", req.form.Get("oauth_consumer_key"))
	assert.Equal(t, "HMAC-SHA1", req.form.Get("oauth_signature_method"))
	assert.NotEmpty(t, req.form.Get("oauth_signature"))
	assert.NotEmpty(t, req.form.Get("oauth_nonce"))
	assert.NotEmpty(t, req.form.Get("oauth_timestamp"))
}

func TestStartDanceMalformedResponse(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {
		w.Write([]byte("oauth_token=rt"))
	})

	_, err := f.client.StartDance(context.Background(), "https://broker.example/cb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed request token response")
}

func TestAuthorizeURL(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {})

	got := f.client.AuthorizeURL("tok/with special")
	assert.Equal(t, f.server.URL+"/oauth/authorize?oauth_token=tok%2Fwith+special", got)
}

func TestCompleteDance(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {
		w.Write([]byte("oauth_token=at&oauth_token_secret=ats&user_id=user-9"))
	})

	dance := &upstream.Dance{
		Stage:         upstream.StageRequestTokenObtained,
		RequestToken:  "rt",
		RequestSecret: "rts",
	}
	require.NoError(t, dance.Authorized("verifier-1"))
	require.NoError(t, f.client.CompleteDance(context.Background(), dance))

	assert.Equal(t, upstream.StageAccessTokenObtained, dance.Stage)
	assert.Equal(t, "at", dance.AccessToken)
	assert.Equal(t, "ats", dance.AccessSecret)
	assert.Equal(t, "user-9", dance.UserID)

	req := f.lastRequest(t)
	assert.Equal(t, "/oauth/access_token", req.path)
	assert.Equal(t, "rt", req.form.Get("oauth_token"))
	assert.Equal(t, "verifier-1", req.form.Get("oauth_verifier"))
}

func TestDanceStageEnforced(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {
		t.Fatal("no request expected")
	})

	dance := &upstream.Dance{Stage: upstream.StageNoToken}
	assert.Error(t, dance.Authorized("v"))
	assert.Error(t, f.client.CompleteDance(context.Background(), dance))

	done := &upstream.Dance{Stage: upstream.StageAccessTokenObtained}
	assert.Error(t, done.Authorized("v"))
	assert.Error(t, f.client.CompleteDance(context.Background(), done))
}

func TestProfileCreate(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {
		w.Write([]byte(`{"profile":{"auth_token":"pt","auth_secret":"ps"}}`))
	})

	token, secret, err := f.client.ProfileCreate(context.Background(), "profile-1")
	require.NoError(t, err)
	assert.Equal(t, "pt", token)
	assert.Equal(t, "ps", secret)

	req := f.lastRequest(t)
	assert.Equal(t, "/rest/server.api", req.path)
	assert.Equal(t, "profile.create", req.form.Get("method"))
	assert.Equal(t, "json", req.form.Get("format"))
	assert.Equal(t, "profile-1", req.form.Get("user_id"))
	// Two-legged: no per-user token on the wire
	assert.Empty(t, req.form.Get("oauth_token"))
}

func TestProfileCreateFallsBackWhenProfileExists(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {
		switch form.Get("method") {
		case "profile.create":
			w.Write([]byte(`{"error":{"code":13,"message":"profile already exists for this user"}}`))
		case "profile.get_auth":
			w.Write([]byte(`{"profile":{"auth_token":"existing-t","auth_secret":"existing-s"}}`))
		default:
			t.Fatalf("unexpected method %q", form.Get("method"))
		}
	})

	token, secret, err := f.client.ProfileCreate(context.Background(), "profile-1")
	require.NoError(t, err)
	assert.Equal(t, "existing-t", token)
	assert.Equal(t, "existing-s", secret)
	assert.Len(t, f.requests, 2)
}

func TestProfileCreateOtherErrorNotRetried(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {
		w.Write([]byte(`{"error":{"code":2,"message":"invalid consumer key"}}`))
	})

	_, _, err := f.client.ProfileCreate(context.Background(), "profile-1")
	require.Error(t, err)
	assert.Len(t, f.requests, 1)

	apiErr, ok := upstream.AsAPIError(err)
	require.True(t, ok)
	assert.Contains(t, apiErr.Body, "invalid consumer key")
}

func TestCallSignsWithAccessToken(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {
		w.Write([]byte(`{"success":{"value":"ok"}}`))
	})

	body, err := f.client.Call(context.Background(), "weight.update", map[string]string{"current_weight_kg": "72.5"}, "at", "ats")
	require.NoError(t, err)
	assert.Equal(t, "ok", body.Get("success.value"))

	req := f.lastRequest(t)
	assert.Equal(t, "at", req.form.Get("oauth_token"))
	assert.Equal(t, "72.5", req.form.Get("current_weight_kg"))
}

func TestCallNon2xxBecomesAPIError(t *testing.T) {
	f := newTestFixture(t, func(path string, form url.Values, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("signature check failed"))
	})

	_, err := f.client.Call(context.Background(), "profile.get", nil, "at", "ats")
	require.Error(t, err)

	apiErr, ok := upstream.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "signature check failed", apiErr.Body)
}
