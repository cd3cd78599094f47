package server

import (
	"net/http"
)

// ScopeBasic is the only scope the broker issues. Authorization policy is
// not part of this system.
const ScopeBasic = "basic"

// AuthServerMetadataHandler serves the OAuth2 Authorization Server discovery
// document. Pure function of the request origin.
func (s *Server) AuthServerMetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := s.issuer(r)

		resp := map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + RouteOAuth2Authorize,
			"token_endpoint":         issuer + RouteOAuth2Token,
			"registration_endpoint":  issuer + RouteOAuth2Register,
			"revocation_endpoint":    issuer + RouteOAuth2Revoke,

			"response_types_supported":              []string{"code"},
			"response_modes_supported":              []string{"query"},
			"grant_types_supported":                 []string{"authorization_code"},
			"code_challenge_methods_supported":      []string{"S256"},
			"token_endpoint_auth_methods_supported": []string{"client_secret_post"},
			"scopes_supported":                      []string{ScopeBasic},
		}

		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		writeJSON(w, http.StatusOK, resp)
	}
}

// ProtectedResourceMetadataHandler serves RFC 9728 protected-resource
// metadata for a named resource under this broker.
func (s *Server) ProtectedResourceMetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := s.issuer(r)
		resource := r.PathValue("resource")

		resp := map[string]any{
			"resource":                 issuer + "/" + resource,
			"authorization_servers":    []string{issuer},
			"bearer_methods_supported": []string{"header"},
			"scopes_supported":         []string{ScopeBasic},
		}

		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		writeJSON(w, http.StatusOK, resp)
	}
}
