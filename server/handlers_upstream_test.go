package server_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamConnectRequiresSession(t *testing.T) {
	f := newTestFixture(t)

	resp, err := f.client.Get(f.ts.URL + "/upstream/connect")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestUpstreamDance(t *testing.T) {
	f := newTestFixture(t)
	clientID, _ := f.registerClient(t)
	_, cookie := f.submitCredentials(t, clientID, "https://app.example/cb", "xyz")

	// Connect: parks state and redirects to the provider's authorize page
	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/upstream/connect", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "provider.example", loc.Host)
	assert.Equal(t, f.fake.requestToken, loc.Query().Get("oauth_token"))

	// Callback: provider redirects back with the verifier
	cb := f.ts.URL + "/upstream/callback?oauth_token=" + url.QueryEscape(f.fake.requestToken) + "&oauth_verifier=v1"
	resp, err = f.client.Get(cb)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, f.fake.completeCalls)

	// The session now carries the long-lived upstream credentials
	session, err := f.vault.Sessions.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, f.fake.accessToken, session.AuthToken)
	assert.Equal(t, f.fake.accessSecret, session.AuthSecret)
	assert.Equal(t, f.fake.userID, session.UpstreamUserID)

	// Replayed callback: state was single-use
	resp, err = f.client.Get(cb)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestUpstreamCallbackMissingParams(t *testing.T) {
	f := newTestFixture(t)

	resp, err := f.client.Get(f.ts.URL + "/upstream/callback?oauth_token=rt")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, "invalid_request", body["error"])
}
