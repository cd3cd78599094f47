// Package oauthsig builds OAuth 1.0a HMAC-SHA1 signatures (RFC 5849).
//
// The upstream provider verifies these byte-for-byte and rejects mismatches
// with no diagnostic, so the encoding rules here are deliberately strict:
// percent-encoding follows RFC 3986 exactly, including the characters
// ! * ' ( ) that most URL encoders leave alone.
package oauthsig

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignatureMethod is the only signature method the broker supports.
const SignatureMethod = "HMAC-SHA1"

const upperhex = "0123456789ABCDEF"

// PercentEncode encodes s per RFC 3986 section 2.1. Only unreserved
// characters (ALPHA, DIGIT, '-', '.', '_', '~') pass through; everything
// else becomes an uppercase %XX triplet.
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') || c == '-' || c == '.' || c == '_' || c == '~'
}

// BaseString constructs the RFC 5849 signature base string: uppercase
// method, the encoded base URL with any query stripped, and the encoded,
// key-sorted parameter string, joined with '&'. Duplicate parameter keys are
// not expected from this broker and are undefined behaviour.
func BaseString(method, rawURL string, params map[string]string) string {
	baseURL := rawURL
	if i := strings.IndexByte(baseURL, '?'); i >= 0 {
		baseURL = baseURL[:i]
	}

	type pair struct{ k, v string }
	encoded := make([]pair, 0, len(params))
	for k, v := range params {
		encoded = append(encoded, pair{PercentEncode(k), PercentEncode(v)})
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].k != encoded[j].k {
			return encoded[i].k < encoded[j].k
		}
		return encoded[i].v < encoded[j].v
	})

	parts := make([]string, 0, len(encoded))
	for _, p := range encoded {
		parts = append(parts, p.k+"="+p.v)
	}

	return strings.ToUpper(method) + "&" + PercentEncode(baseURL) + "&" + PercentEncode(strings.Join(parts, "&"))
}

// SigningKey builds the HMAC key: encoded consumer secret and encoded token
// secret joined with '&'. The token secret may be empty (request-token and
// two-legged calls) but the '&' is always present.
func SigningKey(consumerSecret, tokenSecret string) string {
	return PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
}

// Sign computes the base64-encoded HMAC-SHA1 signature over the merged
// oauth and request parameters.
func Sign(method, rawURL string, oauthParams, requestParams map[string]string, consumerSecret, tokenSecret string) string {
	merged := make(map[string]string, len(oauthParams)+len(requestParams))
	for k, v := range requestParams {
		merged[k] = v
	}
	for k, v := range oauthParams {
		merged[k] = v
	}

	mac := hmac.New(sha1.New, []byte(SigningKey(consumerSecret, tokenSecret)))
	mac.Write([]byte(BaseString(method, rawURL, merged)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Nonce returns a fresh cryptographically random nonce as lowercase hex.
// Reusing a nonce is a replay vulnerability against the upstream provider,
// so one is generated per request and never cached.
func Nonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic("oauthsig: rand.Read: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Timestamp returns the current Unix time in seconds, generated at signing
// time rather than cached.
func Timestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// Params returns a ready oauth_* parameter set for one request, minus the
// signature itself. token may be empty for two-legged calls.
func Params(consumerKey, token string) map[string]string {
	params := map[string]string{
		"oauth_consumer_key":     consumerKey,
		"oauth_nonce":            Nonce(),
		"oauth_signature_method": SignatureMethod,
		"oauth_timestamp":        Timestamp(),
		"oauth_version":          "1.0",
	}
	if token != "" {
		params["oauth_token"] = token
	}
	return params
}
