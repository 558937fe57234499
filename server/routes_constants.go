package server

// Route path constants
const (
	APIPrefix = "/api/v1"

	// Federated login
	RouteLoginGoogle    = APIPrefix + "/auth/login/google"
	RouteCallbackGoogle = APIPrefix + "/auth/callback/google"

	// Authenticated principal
	RouteAuth = APIPrefix + "/auth"

	RouteHealthcheck = APIPrefix + "/healthcheck"
)
