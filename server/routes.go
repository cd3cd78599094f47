package server

const (
	RouteWellKnownAuthServer        = "/.well-known/oauth-authorization-server"
	RouteWellKnownProtectedResource = "/.well-known/oauth-protected-resource/{resource}"
	RouteOAuth2Register             = "/oauth2/register"
	RouteOAuth2Authorize            = "/oauth2/authorize"
	RouteOAuth2Token                = "/oauth2/token"
	RouteOAuth2Revoke               = "/oauth2/revoke"
	RouteUpstreamConnect            = "/upstream/connect"
	RouteUpstreamCallback           = "/upstream/callback"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET /{$}", s.IndexHandler())

	// OAuth2 Authorization Server surface
	s.RegisterRouteHandler("GET "+RouteWellKnownAuthServer, ChainMiddleware(s.AuthServerMetadataHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownProtectedResource, ChainMiddleware(s.ProtectedResourceMetadataHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Register, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.TokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Revoke, ChainMiddleware(s.RevokeHandler(), s.APIMiddleware()...))

	// Browser-facing authorize step
	s.RegisterRouteHandler("GET "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeGetHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizePostHandler(), s.HTMLMiddleware()...))

	// Upstream three-legged dance
	s.RegisterRouteHandler("GET "+RouteUpstreamConnect, ChainMiddleware(s.UpstreamConnectHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteUpstreamCallback, ChainMiddleware(s.UpstreamCallbackHandler(), s.HTMLMiddleware()...))
}
