package server

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tab-session/internal/config"
	"github.com/jrsteele09/go-tab-session/token"
	"github.com/jrsteele09/go-tab-session/token/refresh"
	"github.com/jrsteele09/go-tab-session/users"
)

// Repos holds the storage the server depends on
type Repos struct {
	Users         users.UserRepo
	RefreshTokens refresh.Repo
}

// Server implements the authentication REST endpoints the session client consumes
type Server struct {
	env           string // Environment (e.g., "DEV", "PROD")
	mux           *http.ServeMux
	routes        []string
	config        config.Config
	repos         Repos
	tokens        *token.Manager
	refreshTokens *refresh.Manager
	log           zerolog.Logger
	nowFunc       func() time.Time
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithNowFunc sets the clock used for token issue and expiry (primarily for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func New(cfg config.Config, repos Repos, options ...Option) (*Server, error) {
	if repos.Users == nil || repos.RefreshTokens == nil {
		return nil, errors.New("[Server New] user and refresh token repos are required")
	}

	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		repos:   repos,
		log:     log.Logger,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.tokens = token.New(token.NewHMACSigner(cfg.GetJWTSecret()),
		token.WithIssuer(cfg.GetBaseURL()),
		token.WithAccessTokenExpiry(cfg.GetAccessTokenExpiry()),
		token.WithNowFunc(s.nowFunc),
	)
	s.refreshTokens = refresh.NewManager(repos.RefreshTokens, cfg.GetRefreshTokenExpiry(), refresh.WithNowFunc(s.nowFunc))

	s.initRoutes()
	s.logRoutes()

	return s, nil
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
		s.log.Info().Str("route", route).Msg("registered")
	}
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
