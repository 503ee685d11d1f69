package config

import (
	"fmt"
	"strings"
	"time"
)

type Server struct {
	file *FileValues
}

var _ ServerConfig = Server{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

func (s Server) GetPort() string {
	port := lookup("PORT", s.file.Port, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

// GetJWTSecret returns the HMAC secret the reference server signs access tokens with
func (s Server) GetJWTSecret() string {
	return lookup("JWT_SECRET", s.file.JWTSecret, "dev-secret-change-me")
}

func (s Server) GetAccessTokenExpiry() time.Duration {
	return lookupDuration("ACCESS_TOKEN_EXPIRY", s.file.AccessTokenExpiry, 15*time.Minute)
}

func (s Server) GetRefreshTokenExpiry() time.Duration {
	return lookupDuration("REFRESH_TOKEN_EXPIRY", s.file.RefreshTokenExpiry, 7*24*time.Hour) // 7 days
}

func (s Server) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, o := range strings.Split(lookup("ALLOWED_ORIGINS", s.file.AllowedOrigins, "http://localhost:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = nullValue{}
		}
	}
	return origins
}

func (s Server) GetCookieSecure() bool {
	return lookupBool("COOKIE_SECURE", s.file.CookieSecure, false)
}
