package server

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nutrilink/broker/upstream"
	"github.com/nutrilink/broker/vault"
)

// MaxCredentialLength bounds every upstream credential field submitted
// through the authorize form.
const MaxCredentialLength = 200

// authorizeView is the data threaded through the consent and credential
// templates. The OAuth parameters ride along as opaque hidden fields; the
// POST step re-validates all of them and trusts nothing from the GET.
type authorizeView struct {
	AppName       string
	ClientName    string
	ClientID      string
	RedirectURI   string
	State         string
	Scope         string
	CodeChallenge string
	Error         string
}

// AuthorizeGetHandler is the render step of the authorization-code flow: it
// validates the request, then shows a consent view when the caller already
// has an upstream-authenticated session, or a credential-collection view
// otherwise.
func (s *Server) AuthorizeGetHandler() http.HandlerFunc {
	consentTmpl := mustParseTemplate("consent.html")
	credentialsTmpl := mustParseTemplate("credentials.html")

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("response_type") == "" || q.Get("client_id") == "" || q.Get("redirect_uri") == "" ||
			q.Get("code_challenge") == "" || q.Get("state") == "" {
			writeJSONError(w, "invalid_request", "missing required authorization parameters", http.StatusBadRequest)
			return
		}
		if q.Get("response_type") != "code" {
			writeJSONError(w, "unsupported_response_type", "only response_type=code is supported", http.StatusBadRequest)
			return
		}
		if method := q.Get("code_challenge_method"); method != "" && method != "S256" {
			writeJSONError(w, "invalid_request", "only S256 code_challenge_method is supported", http.StatusBadRequest)
			return
		}

		client, err := s.vault.Clients.Get(r.Context(), q.Get("client_id"))
		if err != nil {
			writeJSONError(w, "invalid_client", "unknown client", http.StatusBadRequest)
			return
		}
		if !client.HasRedirectURI(q.Get("redirect_uri")) {
			// Never redirect to an unregistered URI, even to report the error
			writeJSONError(w, "invalid_request", "redirect_uri is not registered for this client", http.StatusBadRequest)
			return
		}

		view := authorizeView{
			AppName:       s.config.GetAppName(),
			ClientName:    clientDisplayName(client),
			ClientID:      client.ID,
			RedirectURI:   q.Get("redirect_uri"),
			State:         q.Get("state"),
			Scope:         ScopeBasic,
			CodeChallenge: q.Get("code_challenge"),
		}

		session, err := s.sessionFromRequest(r)
		if err == nil && session.Authenticated() {
			renderView(w, consentTmpl, view)
			return
		}
		renderView(w, credentialsTmpl, view)
	}
}

// AuthorizePostHandler is the decision step: deny, allow with an existing
// session, or submit upstream credentials to create one.
func (s *Server) AuthorizePostHandler() http.HandlerFunc {
	credentialsTmpl := mustParseTemplate("credentials.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		redirectURI := r.FormValue("redirect_uri")
		state := r.FormValue("state")

		client, err := s.vault.Clients.Get(r.Context(), r.FormValue("client_id"))
		if err != nil {
			writeJSONError(w, "invalid_client", "unknown client", http.StatusBadRequest)
			return
		}
		if !client.HasRedirectURI(redirectURI) {
			writeJSONError(w, "invalid_request", "redirect_uri is not registered for this client", http.StatusBadRequest)
			return
		}

		switch r.FormValue("action") {
		case "deny":
			redirectWithParams(w, r, redirectURI, url.Values{"error": {"access_denied"}, "state": {state}})

		case "allow":
			session, err := s.sessionFromRequest(r)
			if err != nil || !session.Authenticated() {
				view := s.viewFromForm(r, client)
				view.Error = "Your session has expired. Enter your credentials to continue."
				renderView(w, credentialsTmpl, view)
				return
			}
			s.issueCodeAndRedirect(w, r, client, redirectURI, r.FormValue("code_challenge"), session.ID, state)

		case "credentials":
			s.handleCredentials(w, r, client, credentialsTmpl)

		default:
			writeJSONError(w, "invalid_request", "unknown action", http.StatusBadRequest)
		}
	}
}

// handleCredentials runs submitted upstream credentials through the
// two-legged profile flow. No session record is created until the upstream
// provider has accepted them.
func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request, client *vault.Client, credentialsTmpl *template.Template) {
	view := s.viewFromForm(r, client)

	consumerKey := r.FormValue("consumer_key")
	consumerSecret := r.FormValue("consumer_secret")
	signingSecret := r.FormValue("signing_secret")
	profileID := r.FormValue("profile_id")

	if consumerKey == "" || consumerSecret == "" {
		view.Error = "Consumer key and consumer secret are required."
		renderView(w, credentialsTmpl, view)
		return
	}
	for _, field := range []string{consumerKey, consumerSecret, signingSecret, profileID} {
		if len(field) > MaxCredentialLength {
			view.Error = "Credential fields are too long."
			renderView(w, credentialsTmpl, view)
			return
		}
	}
	if profileID == "" {
		profileID = uuid.NewString()
	}

	upstreamClient := s.upstream(upstream.Credentials{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		SigningSecret:  signingSecret,
	})
	authToken, authSecret, err := upstreamClient.ProfileCreate(r.Context(), profileID)
	if err != nil {
		log.Warn().Err(err).Msg("upstream rejected submitted credentials")
		view.Error = "The upstream provider rejected these credentials. Check them and try again."
		renderView(w, credentialsTmpl, view)
		return
	}

	session := vault.NewSession(consumerKey, consumerSecret, signingSecret)
	session.ProfileID = profileID
	session.AuthToken = authToken
	session.AuthSecret = authSecret
	if err := s.vault.Sessions.Put(r.Context(), session); err != nil {
		log.Error().Err(err).Msg("failed to store session")
		writeJSONError(w, "server_error", "failed to store session", http.StatusInternalServerError)
		return
	}

	s.setSessionCookie(w, session.ID)
	s.issueCodeAndRedirect(w, r, client, view.RedirectURI, view.CodeChallenge, session.ID, view.State)
}

// issueCodeAndRedirect mints a single-use authorization code bound to the
// client, redirect URI, PKCE challenge and session, then sends the browser
// back to the client.
func (s *Server) issueCodeAndRedirect(w http.ResponseWriter, r *http.Request, client *vault.Client, redirectURI, codeChallenge, sessionID, state string) {
	if codeChallenge == "" {
		writeJSONError(w, "invalid_request", "code_challenge is required", http.StatusBadRequest)
		return
	}

	code := vault.NewCode()
	record := &vault.AuthCode{
		ClientID:      client.ID,
		RedirectURI:   redirectURI,
		CodeChallenge: codeChallenge,
		SessionID:     sessionID,
		Scope:         ScopeBasic,
	}
	if err := s.vault.Codes.Put(r.Context(), code, record); err != nil {
		log.Error().Err(err).Msg("failed to store authorization code")
		writeJSONError(w, "server_error", "failed to store authorization code", http.StatusInternalServerError)
		return
	}

	redirectWithParams(w, r, redirectURI, url.Values{"code": {code}, "state": {state}})
}

func (s *Server) viewFromForm(r *http.Request, client *vault.Client) authorizeView {
	return authorizeView{
		AppName:       s.config.GetAppName(),
		ClientName:    clientDisplayName(client),
		ClientID:      client.ID,
		RedirectURI:   r.FormValue("redirect_uri"),
		State:         r.FormValue("state"),
		Scope:         ScopeBasic,
		CodeChallenge: r.FormValue("code_challenge"),
	}
}

func clientDisplayName(client *vault.Client) string {
	if client.Name != "" {
		return client.Name
	}
	return client.ID
}

func renderView(w http.ResponseWriter, tmpl *template.Template, view authorizeView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, view); err != nil {
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

func redirectWithParams(w http.ResponseWriter, r *http.Request, redirectURI string, params url.Values) {
	for key, values := range params {
		if len(values) == 0 || values[0] == "" {
			params.Del(key)
		}
	}
	separator := "?"
	if u, err := url.Parse(redirectURI); err == nil && u.RawQuery != "" {
		separator = "&"
	}
	http.Redirect(w, r, redirectURI+separator+params.Encode(), http.StatusSeeOther)
}

func mustParseTemplate(name string) *template.Template {
	tmpl, err := ParseTemplate(name)
	if err != nil {
		panic("Failed to parse " + name + " template: " + err.Error())
	}
	return tmpl
}
