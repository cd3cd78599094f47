// Package upstream talks OAuth 1.0a to the legacy nutrition provider: the
// three-legged request-token/authorize/access-token dance and the two-legged
// profile-credential calls.
package upstream

import (
	"context"
	goerrors "errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/nutrilink/broker/oauthsig"
)

// Credentials identifies the upstream consumer on whose behalf requests are
// signed.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string

	// SigningSecret, when set, is used as the HMAC consumer secret in place
	// of ConsumerSecret. When blank the consumer secret doubles as the
	// signing secret.
	SigningSecret string
}

// Endpoints are the provider's fixed OAuth 1.0a and API URLs.
type Endpoints struct {
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
	APIURL          string
}

// Client performs signed calls against one set of consumer credentials.
type Client struct {
	creds      Credentials
	endpoints  Endpoints
	httpClient *http.Client
}

// New builds a Client. httpClient may be nil, in which case
// http.DefaultClient is used.
func New(creds Credentials, endpoints Endpoints, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{creds: creds, endpoints: endpoints, httpClient: httpClient}
}

func (c *Client) signingSecret() string {
	if c.creds.SigningSecret != "" {
		return c.creds.SigningSecret
	}
	return c.creds.ConsumerSecret
}

// DanceStage is the progress of one three-legged authorization dance.
type DanceStage int

const (
	StageNoToken DanceStage = iota
	StageRequestTokenObtained
	StageAuthorized
	StageAccessTokenObtained
)

// Dance tracks one three-legged flow from request token to access token.
// The two-legged profile flow bypasses it entirely.
type Dance struct {
	Stage         DanceStage
	RequestToken  string
	RequestSecret string
	Verifier      string
	AccessToken   string
	AccessSecret  string
	UserID        string
}

// StartDance obtains a request token, returning a Dance in
// StageRequestTokenObtained. callbackURL is where the provider sends the
// user's browser after approval.
func (c *Client) StartDance(ctx context.Context, callbackURL string) (*Dance, error) {
	oauthParams := oauthsig.Params(c.creds.ConsumerKey, "")
	oauthParams["oauth_callback"] = callbackURL

	body, err := c.signedPost(ctx, c.endpoints.RequestTokenURL, oauthParams, nil, "")
	if err != nil {
		return nil, errors.Wrap(err, "[Client.StartDance] request token")
	}

	token := body.Get("oauth_token")
	secret := body.Get("oauth_token_secret")
	if token == "" || secret == "" {
		return nil, errors.Errorf("[Client.StartDance] malformed request token response: %q", body.Raw)
	}

	return &Dance{
		Stage:         StageRequestTokenObtained,
		RequestToken:  token,
		RequestSecret: secret,
	}, nil
}

// AuthorizeURL is where the user's browser is sent to approve the request
// token.
func (c *Client) AuthorizeURL(requestToken string) string {
	return c.endpoints.AuthorizeURL + "?oauth_token=" + url.QueryEscape(requestToken)
}

// Authorized records the verifier returned by the provider's redirect and
// advances the dance.
func (d *Dance) Authorized(verifier string) error {
	if d.Stage != StageRequestTokenObtained {
		return errors.Errorf("[Dance.Authorized] wrong stage %d", d.Stage)
	}
	if verifier == "" {
		return errors.New("[Dance.Authorized] empty verifier")
	}
	d.Stage = StageAuthorized
	d.Verifier = verifier
	return nil
}

// CompleteDance exchanges the authorized request token for long-lived access
// credentials, advancing the dance to StageAccessTokenObtained.
func (c *Client) CompleteDance(ctx context.Context, d *Dance) error {
	if d.Stage != StageAuthorized {
		return errors.Errorf("[Client.CompleteDance] wrong stage %d", d.Stage)
	}

	oauthParams := oauthsig.Params(c.creds.ConsumerKey, d.RequestToken)
	oauthParams["oauth_verifier"] = d.Verifier

	body, err := c.signedPost(ctx, c.endpoints.AccessTokenURL, oauthParams, nil, d.RequestSecret)
	if err != nil {
		return errors.Wrap(err, "[Client.CompleteDance] access token")
	}

	token := body.Get("oauth_token")
	secret := body.Get("oauth_token_secret")
	if token == "" || secret == "" {
		return errors.Errorf("[Client.CompleteDance] malformed access token response: %q", body.Raw)
	}

	d.Stage = StageAccessTokenObtained
	d.AccessToken = token
	d.AccessSecret = secret
	d.UserID = body.Get("user_id")
	return nil
}

// ProfileCreate registers a new profile for userID via the two-legged flow
// and returns its long-lived auth token and secret. A profile that already
// exists is not fatal: the call falls back to ProfileGetAuth for the same
// identifier.
func (c *Client) ProfileCreate(ctx context.Context, userID string) (authToken, authSecret string, err error) {
	body, err := c.Call(ctx, "profile.create", map[string]string{"user_id": userID}, "", "")
	if err != nil {
		if isProfileExists(err) {
			return c.ProfileGetAuth(ctx, userID)
		}
		return "", "", errors.Wrap(err, "[Client.ProfileCreate]")
	}
	return extractProfileAuth(body, "ProfileCreate")
}

// ProfileGetAuth fetches the long-lived auth token and secret for an
// existing profile via the two-legged flow.
func (c *Client) ProfileGetAuth(ctx context.Context, userID string) (authToken, authSecret string, err error) {
	body, err := c.Call(ctx, "profile.get_auth", map[string]string{"user_id": userID}, "", "")
	if err != nil {
		return "", "", errors.Wrap(err, "[Client.ProfileGetAuth]")
	}
	return extractProfileAuth(body, "ProfileGetAuth")
}

func extractProfileAuth(body Body, caller string) (string, string, error) {
	token := body.Get("profile.auth_token")
	secret := body.Get("profile.auth_secret")
	if token == "" || secret == "" {
		return "", "", errors.Errorf("[Client.%s] malformed profile response: %q", caller, body.Raw)
	}
	return token, secret, nil
}

// Call performs a signed API call. method is the provider's method name
// (e.g. "profile.get_auth"); token and tokenSecret are the per-user access
// credentials, both empty for two-legged calls.
func (c *Client) Call(ctx context.Context, method string, params map[string]string, token, tokenSecret string) (Body, error) {
	requestParams := map[string]string{
		"method": method,
		"format": "json",
	}
	for k, v := range params {
		requestParams[k] = v
	}

	oauthParams := oauthsig.Params(c.creds.ConsumerKey, token)

	body, err := c.signedPost(ctx, c.endpoints.APIURL, oauthParams, requestParams, tokenSecret)
	if err != nil {
		return Body{}, err
	}

	// The provider reports some failures in-band with a 200
	if body.Has("error.code") || body.Has("error.message") {
		return Body{}, newAPIError(http.StatusOK, body.Get("error.message"))
	}
	return body, nil
}

// signedPost signs the merged parameter set, sends it form-encoded and
// parses the response leniently. Non-2xx responses become *APIError.
func (c *Client) signedPost(ctx context.Context, endpoint string, oauthParams, requestParams map[string]string, tokenSecret string) (Body, error) {
	signature := oauthsig.Sign(http.MethodPost, endpoint, oauthParams, requestParams, c.signingSecret(), tokenSecret)

	form := url.Values{}
	for k, v := range requestParams {
		form.Set(k, v)
	}
	for k, v := range oauthParams {
		form.Set(k, v)
	}
	form.Set("oauth_signature", signature)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Body{}, errors.Wrap(err, "[Client.signedPost] build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Body{}, errors.Wrap(err, "[Client.signedPost] do request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Body{}, errors.Wrap(err, "[Client.signedPost] read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Body{}, newAPIError(resp.StatusCode, string(data))
	}

	return ParseBody(data), nil
}

// AsAPIError unwraps err to an *APIError if one is in its chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if goerrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
