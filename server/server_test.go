package server_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nutrilink/broker/internal/config"
	"github.com/nutrilink/broker/keystore"
	"github.com/nutrilink/broker/sealbox"
	"github.com/nutrilink/broker/server"
	"github.com/nutrilink/broker/upstream"
	"github.com/nutrilink/broker/vault"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// fakeUpstream stands in for the legacy provider so authorize and dance
// flows run without network access.
type fakeUpstream struct {
	authToken    string
	authSecret   string
	rejectCreds  bool
	requestToken string
	accessToken  string
	accessSecret string
	userID       string

	profileCalls  int
	completeCalls int
}

func (f *fakeUpstream) StartDance(ctx context.Context, callbackURL string) (*upstream.Dance, error) {
	return &upstream.Dance{
		Stage:         upstream.StageRequestTokenObtained,
		RequestToken:  f.requestToken,
		RequestSecret: "req-secret",
	}, nil
}

func (f *fakeUpstream) AuthorizeURL(requestToken string) string {
	return "https://provider.example/oauth/authorize?oauth_token=" + url.QueryEscape(requestToken)
}

func (f *fakeUpstream) CompleteDance(ctx context.Context, d *upstream.Dance) error {
	f.completeCalls++
	d.Stage = upstream.StageAccessTokenObtained
	d.AccessToken = f.accessToken
	d.AccessSecret = f.accessSecret
	d.UserID = f.userID
	return nil
}

func (f *fakeUpstream) ProfileCreate(ctx context.Context, userID string) (string, string, error) {
	f.profileCalls++
	if f.rejectCreds {
		return "", "", &upstream.APIError{Status: http.StatusUnauthorized, Body: "invalid consumer key"}
	}
	return f.authToken, f.authSecret, nil
}

type testFixture struct {
	ts       *httptest.Server
	vault    *vault.Vault
	mr       *miniredis.Miniredis
	fake     *fakeUpstream
	client   *http.Client // does not follow redirects
	verifier string
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	box, err := sealbox.New(testKeyHex)
	require.NoError(t, err)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	v := vault.New(keystore.NewWithClient(redisClient, box, "broker:"))
	fake := &fakeUpstream{
		authToken:    "upstream-auth-token",
		authSecret:   "upstream-auth-secret",
		requestToken: "upstream-request-token",
		accessToken:  "upstream-access-token",
		accessSecret: "upstream-access-secret",
		userID:       "upstream-user-1",
	}

	srv := server.New(config.New(), v, func(creds upstream.Credentials) server.UpstreamClient {
		return fake
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testFixture{
		ts:    ts,
		vault: v,
		mr:    mr,
		fake:  fake,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		verifier: "test-code-verifier-test-code-verifier-1234",
	}
}

func (f *testFixture) challenge() string {
	sum := sha256.Sum256([]byte(f.verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// registerClient registers a fresh OAuth2 client and returns its id and
// one-time secret.
func (f *testFixture) registerClient(t *testing.T, redirectURIs ...string) (string, string) {
	t.Helper()
	if len(redirectURIs) == 0 {
		redirectURIs = []string{"https://app.example/cb"}
	}

	body, _ := json.Marshal(map[string]any{
		"redirect_uris": redirectURIs,
		"client_name":   "Test App",
	})
	resp, err := f.client.Post(f.ts.URL+"/oauth2/register", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var reg struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reg))
	require.NotEmpty(t, reg.ClientID)
	require.NotEmpty(t, reg.ClientSecret)
	return reg.ClientID, reg.ClientSecret
}

// submitCredentials drives the credentials branch of the authorize POST and
// returns the issued code and the session cookie.
func (f *testFixture) submitCredentials(t *testing.T, clientID, redirectURI, state string) (string, *http.Cookie) {
	t.Helper()

	form := url.Values{
		"action":          {"credentials"},
		"client_id":       {clientID},
		"redirect_uri":    {redirectURI},
		"state":           {state},
		"code_challenge":  {f.challenge()},
		"scope":           {"basic"},
		"consumer_key":    {"ck"},
		"consumer_secret": {"cs"},
	}
	resp, err := f.client.PostForm(f.ts.URL+"/oauth2/authorize", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, state, loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == server.SessionCookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie, "credentials flow must set the session cookie")
	return code, sessionCookie
}

// exchangeCode redeems an authorization code at the token endpoint.
func (f *testFixture) exchangeCode(t *testing.T, clientID, clientSecret, code, redirectURI, verifier string) *http.Response {
	t.Helper()

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	}
	resp, err := f.client.PostForm(f.ts.URL+"/oauth2/token", form)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}
