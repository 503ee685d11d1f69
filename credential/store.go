// Package credential holds a tab's access credential in process memory.
//
// The store is never backed by durable storage; a process restart (the Go
// equivalent of a page reload) loses it and the session coordinator recovers
// by renewing from the refresh cookie.
package credential

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-tab-session/internal/errors"
	"golang.org/x/oauth2"
)

// ErrNoCredential is returned by Token when the store is empty.
var ErrNoCredential = apperrors.ErrNoCredential

// Credential is an opaque bearer token with its server-defined expiry, when readable.
type Credential struct {
	AccessToken string
	Expiry      time.Time // Zero when the token carries no readable exp claim
}

// Store is the in-memory credential holder for one tab.
type Store struct {
	mu      sync.RWMutex
	current *Credential
}

var _ oauth2.TokenSource = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Set replaces the current credential. An empty token clears the store.
func (s *Store) Set(token string) {
	if token == "" {
		s.Clear()
		return
	}

	c := &Credential{AccessToken: token, Expiry: peekExpiry(token)}

	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
}

// Get returns the current credential and whether one is present
func (s *Store) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Credential{}, false
	}
	return *s.current, true
}

// AccessToken returns the current token or "" when empty
func (s *Store) AccessToken() string {
	c, _ := s.Get()
	return c.AccessToken
}

// Clear removes the credential. Clearing an empty store is a no-op.
func (s *Store) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Token implements oauth2.TokenSource.
func (s *Store) Token() (*oauth2.Token, error) {
	c, ok := s.Get()
	if !ok {
		return nil, ErrNoCredential
	}
	return &oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   "Bearer",
		Expiry:      c.Expiry,
	}, nil
}

// peekExpiry reads the exp claim without verifying the signature. The value is
// informational only; the server stays the authority on validity.
func peekExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
