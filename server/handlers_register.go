package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/nutrilink/broker/vault"
)

// Registration limits. Violations reject the whole registration; nothing is
// stored partially.
const (
	MaxRedirectURIs      = 10
	MaxRedirectURILength = 2000
	MaxClientNameLength  = 100
)

type registrationRequest struct {
	RedirectURIs []string `json:"redirect_uris"`
	ClientName   string   `json:"client_name"`
}

// RegisterHandler implements Dynamic Client Registration. The plaintext
// client secret appears in the 201 response and nowhere else; only its
// SHA-256 hash is stored.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_client_metadata", "request body must be JSON", http.StatusBadRequest)
			return
		}

		if reason := validateRedirectURIs(req.RedirectURIs); reason != "" {
			writeJSONError(w, "invalid_client_metadata", reason, http.StatusBadRequest)
			return
		}

		name := req.ClientName
		if len(name) > MaxClientNameLength {
			name = name[:MaxClientNameLength]
		}

		client, secret := vault.NewClient(req.RedirectURIs, name)
		if err := s.vault.Clients.Put(r.Context(), client); err != nil {
			log.Error().Err(err).Msg("client registration failed")
			writeJSONError(w, "server_error", "failed to store registration", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusCreated, map[string]any{
			"client_id":                  client.ID,
			"client_secret":              secret,
			"client_id_issued_at":        client.CreatedAt.Unix(),
			"client_name":                client.Name,
			"redirect_uris":              client.RedirectURIs,
			"grant_types":                client.GrantTypes,
			"response_types":             client.ResponseTypes,
			"token_endpoint_auth_method": "client_secret_post",
		})
	}
}

// validateRedirectURIs returns a rejection reason, or "" when the set is
// acceptable. Every URI must be HTTPS, or loopback for development.
func validateRedirectURIs(uris []string) string {
	if len(uris) == 0 {
		return "redirect_uris is required"
	}
	if len(uris) > MaxRedirectURIs {
		return "too many redirect_uris"
	}
	for _, raw := range uris {
		if raw == "" || len(raw) > MaxRedirectURILength {
			return "redirect_uri length out of bounds"
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return "redirect_uri is not a valid URL"
		}
		switch u.Scheme {
		case "https":
		case "http":
			if !isLoopbackHost(u.Hostname()) {
				return "http redirect_uri is only allowed for loopback"
			}
		default:
			return "redirect_uri scheme must be https"
		}
	}
	return ""
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
