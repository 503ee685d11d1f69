package authapi

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-tab-session/internal/errors"
)

// ErrRenewalFailed is returned when the refresh cookie no longer yields a credential.
var ErrRenewalFailed = apperrors.ErrRenewalFailed

// RejectedError carries a server-reported failure. Error returns the server's
// message verbatim so callers can display it.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request rejected with status %d", e.StatusCode)
}
