package server

import "net/http"

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteLoginGoogle, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCallbackGoogle, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteAuth, ChainMiddleware(s.CurrentPrincipalHandler(), s.APIMiddleware(s.RequireCredential())...))

	s.RegisterRouteHandler("GET "+RouteHealthcheck, ChainMiddleware(s.HealthcheckHandler(), s.APIMiddleware()...))

	// Preflight requests are answered by the CORS middleware.
	s.RegisterRouteHandler("OPTIONS "+APIPrefix+"/", ChainMiddleware(http.NotFound, s.APIMiddleware()...))
}
