// Package vault is the broker's data model: sessions linking bearer tokens to
// upstream OAuth 1.0a credentials, in-flight upstream dance state, registered
// OAuth 2.0 clients and single-use authorization codes. Every record lives in
// the keystore and relates to others by opaque identifier only.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Record lifetimes. These are fixed constants rather than configuration so
// the security model stays auditable.
const (
	SessionTTL = 30 * 24 * time.Hour
	StateTTL   = 10 * time.Minute
	ClientTTL  = 90 * 24 * time.Hour
	CodeTTL    = 10 * time.Minute
)

// Session links one end-user's bearer token to their upstream provider
// credentials. The session identifier doubles as the bearer access token.
type Session struct {
	ID             string    `json:"id"`
	ConsumerKey    string    `json:"consumer_key"`
	ConsumerSecret string    `json:"consumer_secret"`
	SigningSecret  string    `json:"signing_secret,omitempty"`
	ProfileID      string    `json:"profile_id,omitempty"`
	AuthToken      string    `json:"auth_token,omitempty"`
	AuthSecret     string    `json:"auth_secret,omitempty"`
	UpstreamUserID string    `json:"upstream_user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewSession builds an unauthenticated session with a fresh identifier.
func NewSession(consumerKey, consumerSecret, signingSecret string) *Session {
	return &Session{
		ID:             uuid.NewString(),
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		SigningSecret:  signingSecret,
		CreatedAt:      time.Now().UTC(),
	}
}

// Authenticated reports whether the upstream dance or profile flow has
// yielded long-lived access credentials. An unauthenticated session can start
// upstream flows but not call protected upstream operations.
func (s *Session) Authenticated() bool {
	return s.AuthToken != "" && s.AuthSecret != ""
}

// OAuthState is one in-flight three-legged dance, keyed by the upstream
// request token. Single-use: retrieval always deletes it.
type OAuthState struct {
	SessionID     string    `json:"session_id"`
	RequestToken  string    `json:"request_token"`
	RequestSecret string    `json:"request_secret"`
	CreatedAt     time.Time `json:"created_at"`
}

// Client is a registered OAuth 2.0 consumer application. Only the SHA-256
// hash of its secret is kept; the plaintext is shown once at registration and
// never reconstructed.
type Client struct {
	ID            string    `json:"id"`
	SecretHash    string    `json:"secret_hash"`
	RedirectURIs  []string  `json:"redirect_uris"`
	Name          string    `json:"name,omitempty"`
	GrantTypes    []string  `json:"grant_types"`
	ResponseTypes []string  `json:"response_types"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewClient registers a consumer application, returning the record and the
// one-time plaintext secret.
func NewClient(redirectURIs []string, name string) (*Client, string) {
	secret := newSecret()
	return &Client{
		ID:            uuid.NewString(),
		SecretHash:    HashSecret(secret),
		RedirectURIs:  redirectURIs,
		Name:          name,
		GrantTypes:    []string{"authorization_code"},
		ResponseTypes: []string{"code"},
		CreatedAt:     time.Now().UTC(),
	}, secret
}

// HashSecret returns the hex SHA-256 of a client secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecret compares the presented secret's hash against the stored hash
// in constant time. A plain equality check here would leak a timing side
// channel at the token endpoint.
func (c *Client) VerifySecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSecret(secret)), []byte(c.SecretHash)) == 1
}

// HasRedirectURI reports whether uri is an exact member of the registered
// redirect set.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AuthCode is a single-use PKCE-bound authorization grant, keyed by the code
// value itself.
type AuthCode struct {
	ClientID      string    `json:"client_id"`
	RedirectURI   string    `json:"redirect_uri"`
	CodeChallenge string    `json:"code_challenge"`
	SessionID     string    `json:"session_id"`
	Scope         string    `json:"scope"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewCode returns a fresh random authorization code value.
func NewCode() string {
	return newSecret()
}

func newSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic("vault: rand.Read: " + err.Error())
	}
	return hex.EncodeToString(b)
}
