package refresh

import (
	"time"
)

// StoredRefreshToken is the server-side record behind a refresh cookie.
// The client only ever sees Token, a random string.
type StoredRefreshToken struct {
	Token     string
	UserID    int64
	SessionID string // Shared with every access token issued from this sign-in
	Iat       time.Time
	ExpiresAt time.Time
}

// Repo manages server-side storage of refresh token metadata keyed by the
// token string
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	ListByUserID(userID int64) ([]*StoredRefreshToken, error)
}
