package server

// Route path constants
const (
	RouteAuthLogin    = "/api/auth/login"
	RouteAuthRegister = "/api/auth/register"
	RouteAuthRefresh  = "/api/auth/refresh"
	RouteAuthLogout   = "/api/auth/logout"
	RouteAuthMe       = "/api/auth/me"

	RouteHealth = "/healthz"
)

const (
	contentTypeJSON = "application/json"

	// refreshCookieName holds the opaque refresh token. It is HttpOnly and
	// scoped to the auth routes so page code never sees it.
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/api/auth"
)
