package errors

import (
	"github.com/pkg/errors"
)

// Common error types shared by the session client and the reference server
var (
	// Credential errors
	ErrNoCredential     = errors.New("no credential")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRenewalFailed    = errors.New("credential renewal failed")

	// Sign-in errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSignInInProgress   = errors.New("sign-in already in progress")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
