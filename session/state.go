package session

import (
	"context"

	"github.com/jrsteele09/go-tab-session/authapi"
	apperrors "github.com/jrsteele09/go-tab-session/internal/errors"
)

var (
	ErrSignInInProgress = apperrors.ErrSignInInProgress
	ErrNotAuthenticated = apperrors.ErrNotAuthenticated
)

// State is the coordinator's externally visible authentication state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating" // Sign-in request in flight
	StateAuthenticated   State = "authenticated"
	StateLoading         State = "loading" // Identity fetch in flight while a credential is held
)

// Snapshot is what watchers receive on every change.
type Snapshot struct {
	State     State
	SigningIn bool
	Identity  *authapi.Identity // nil until fetched
}

func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated || s.State == StateLoading
}

// API is the part of the REST contract the coordinator consumes.
type API interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password string) (string, error)
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*authapi.Identity, error)
}

var _ API = (*authapi.Client)(nil)

// VisibilitySource reports page visibility transitions.
type VisibilitySource interface {
	OnVisibilityChange(fn func(visible bool)) (unsubscribe func())
}
