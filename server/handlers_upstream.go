package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/nutrilink/broker/upstream"
	"github.com/nutrilink/broker/vault"
)

// UpstreamConnectHandler starts the three-legged dance for the caller's
// session: it obtains an upstream request token, parks the dance state keyed
// by that token, and sends the browser to the provider's authorize page.
func (s *Server) UpstreamConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.sessionFromRequest(r)
		if err != nil {
			writeJSONError(w, "invalid_request", "no session; complete the authorize step first", http.StatusUnauthorized)
			return
		}

		upstreamClient := s.upstream(upstream.Credentials{
			ConsumerKey:    session.ConsumerKey,
			ConsumerSecret: session.ConsumerSecret,
			SigningSecret:  session.SigningSecret,
		})

		callbackURL := s.issuer(r) + RouteUpstreamCallback
		dance, err := upstreamClient.StartDance(r.Context(), callbackURL)
		if err != nil {
			log.Error().Err(err).Msg("failed to obtain upstream request token")
			writeJSONError(w, "server_error", "upstream provider is unavailable", http.StatusBadGateway)
			return
		}

		state := &vault.OAuthState{
			SessionID:     session.ID,
			RequestToken:  dance.RequestToken,
			RequestSecret: dance.RequestSecret,
		}
		if err := s.vault.States.Put(r.Context(), state); err != nil {
			log.Error().Err(err).Msg("failed to store oauth state")
			writeJSONError(w, "server_error", "failed to store oauth state", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, upstreamClient.AuthorizeURL(dance.RequestToken), http.StatusSeeOther)
	}
}

// UpstreamCallbackHandler completes the dance when the provider redirects
// back with a verifier. The parked state is single-use: a replayed callback
// finds nothing.
func (s *Server) UpstreamCallbackHandler() http.HandlerFunc {
	connectedTmpl := mustParseTemplate("connected.html")

	return func(w http.ResponseWriter, r *http.Request) {
		requestToken := r.URL.Query().Get("oauth_token")
		verifier := r.URL.Query().Get("oauth_verifier")
		if requestToken == "" || verifier == "" {
			writeJSONError(w, "invalid_request", "oauth_token and oauth_verifier are required", http.StatusBadRequest)
			return
		}

		state, err := s.vault.States.Consume(r.Context(), requestToken)
		if err != nil {
			writeJSONError(w, "invalid_request", "unknown or expired oauth state", http.StatusBadRequest)
			return
		}

		session, err := s.vault.Sessions.Get(r.Context(), state.SessionID)
		if err != nil {
			writeJSONError(w, "invalid_request", "session is no longer available", http.StatusBadRequest)
			return
		}

		upstreamClient := s.upstream(upstream.Credentials{
			ConsumerKey:    session.ConsumerKey,
			ConsumerSecret: session.ConsumerSecret,
			SigningSecret:  session.SigningSecret,
		})

		dance := &upstream.Dance{
			Stage:         upstream.StageRequestTokenObtained,
			RequestToken:  state.RequestToken,
			RequestSecret: state.RequestSecret,
		}
		if err := dance.Authorized(verifier); err != nil {
			writeJSONError(w, "invalid_request", "invalid verifier", http.StatusBadRequest)
			return
		}
		if err := upstreamClient.CompleteDance(r.Context(), dance); err != nil {
			log.Error().Err(err).Msg("failed to exchange upstream request token")
			writeJSONError(w, "server_error", "upstream token exchange failed", http.StatusBadGateway)
			return
		}

		session.AuthToken = dance.AccessToken
		session.AuthSecret = dance.AccessSecret
		session.UpstreamUserID = dance.UserID
		if err := s.vault.Sessions.Put(r.Context(), session); err != nil {
			log.Error().Err(err).Msg("failed to store session after upstream dance")
			writeJSONError(w, "server_error", "failed to store session", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = connectedTmpl.Execute(w, map[string]any{"AppName": s.config.GetAppName()})
	}
}
