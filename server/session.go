package server

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	brokererrors "github.com/nutrilink/broker/internal/errors"
	"github.com/nutrilink/broker/vault"
)

// SessionCookieName carries the session identifier for browser flows.
// Machine clients send the same identifier as a bearer token instead; both
// resolve to the same Session lookup.
const SessionCookieName = "broker_session"

// sessionFromRequest resolves the caller's session from the Authorization
// header or the session cookie, in that order.
func (s *Server) sessionFromRequest(r *http.Request) (*vault.Session, error) {
	if token := bearerToken(r); token != "" {
		return s.vault.Sessions.Get(r.Context(), token)
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, errors.Wrap(brokererrors.ErrSessionNotFound, "[Server.sessionFromRequest] no carried token")
	}
	return s.vault.Sessions.Get(r.Context(), cookie.Value)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// setSessionCookie makes the session reusable across authorize visits from
// the same browser.
func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(vault.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.config.GetEnv() == "PROD", // Only secure in production
		SameSite: http.SameSiteLaxMode,
	})
}
