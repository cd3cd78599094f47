package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nutrilink/broker/internal/config"
	"github.com/nutrilink/broker/upstream"
	"github.com/nutrilink/broker/vault"
)

// UpstreamDialer builds an upstream client for one set of consumer
// credentials. Credentials are per-session, not per-process: each end-user
// brings their own upstream consumer key and secret.
type UpstreamDialer func(creds upstream.Credentials) UpstreamClient

// UpstreamClient is the slice of the upstream package the server drives.
type UpstreamClient interface {
	StartDance(ctx context.Context, callbackURL string) (*upstream.Dance, error)
	AuthorizeURL(requestToken string) string
	CompleteDance(ctx context.Context, d *upstream.Dance) error
	ProfileCreate(ctx context.Context, userID string) (authToken, authSecret string, err error)
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	vault    *vault.Vault
	upstream UpstreamDialer
}

func New(cfg config.Config, v *vault.Vault, dialer UpstreamDialer) *Server {
	if dialer == nil {
		dialer = func(creds upstream.Credentials) UpstreamClient {
			return upstream.New(creds, upstream.Endpoints{
				RequestTokenURL: cfg.GetUpstreamRequestTokenURL(),
				AuthorizeURL:    cfg.GetUpstreamAuthorizeURL(),
				AccessTokenURL:  cfg.GetUpstreamAccessTokenURL(),
				APIURL:          cfg.GetUpstreamAPIURL(),
			}, nil)
		}
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		vault:    v,
		upstream: dialer,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// issuer builds the broker's externally visible base URL from the request,
// honouring proxy headers. Metadata, redirects and callbacks all derive from
// it so the broker works unmodified behind a reverse proxy.
func (s *Server) issuer(r *http.Request) string {
	return getScheme(r) + "://" + r.Host
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
