package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
)

// TokenHandler exchanges a single-use authorization code for a bearer token.
// The session identifier is the access token; no separate token is minted.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		if r.FormValue("grant_type") != "authorization_code" {
			writeJSONError(w, "unsupported_grant_type", "only authorization_code is supported", http.StatusBadRequest)
			return
		}
		code := r.FormValue("code")
		verifier := r.FormValue("code_verifier")
		if code == "" || verifier == "" {
			writeJSONError(w, "invalid_request", "code and code_verifier are required", http.StatusBadRequest)
			return
		}

		client, err := s.vault.Clients.Get(r.Context(), r.FormValue("client_id"))
		if err != nil {
			writeJSONError(w, "invalid_client", "client authentication failed", http.StatusUnauthorized)
			return
		}
		if !client.VerifySecret(r.FormValue("client_secret")) {
			writeJSONError(w, "invalid_client", "client authentication failed", http.StatusUnauthorized)
			return
		}

		// Consume is atomic: a second redemption of the same code finds
		// nothing, whether it was used or simply expired
		grant, err := s.vault.Codes.Consume(r.Context(), code)
		if err != nil {
			writeJSONError(w, "invalid_grant", "authorization code is invalid or expired", http.StatusBadRequest)
			return
		}

		if grant.ClientID != client.ID || grant.RedirectURI != r.FormValue("redirect_uri") {
			writeJSONError(w, "invalid_grant", "authorization code does not match this request", http.StatusBadRequest)
			return
		}
		if !verifyPKCE(verifier, grant.CodeChallenge) {
			writeJSONError(w, "invalid_grant", "code_verifier does not match the challenge", http.StatusBadRequest)
			return
		}

		session, err := s.vault.Sessions.Get(r.Context(), grant.SessionID)
		if err != nil {
			writeJSONError(w, "invalid_grant", "session is no longer available", http.StatusBadRequest)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": session.ID,
			"token_type":   "bearer",
			"scope":        grant.Scope,
		})
	}
}

// verifyPKCE recomputes base64url(SHA-256(verifier)) and compares it to the
// stored S256 challenge in constant time.
func verifyPKCE(verifier, challenge string) bool {
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// RevokeHandler deletes the session behind a bearer token at the user's
// request. The client must authenticate the same way as at the token
// endpoint.
func (s *Server) RevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		token := r.FormValue("token")
		if token == "" {
			writeJSONError(w, "invalid_request", "token parameter is required", http.StatusBadRequest)
			return
		}

		client, err := s.vault.Clients.Get(r.Context(), r.FormValue("client_id"))
		if err != nil || !client.VerifySecret(r.FormValue("client_secret")) {
			writeJSONError(w, "invalid_client", "client authentication failed", http.StatusUnauthorized)
			return
		}

		if err := s.vault.Sessions.Delete(r.Context(), token); err != nil {
			writeJSONError(w, "server_error", "failed to revoke token", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
