package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-tab-session/internal/errors"
)

const tokenLength = 32 // 256 bits

// Manager creates, validates and revokes refresh tokens. A user may hold one
// per sign-in, so several browsers stay signed in side by side.
type Manager struct {
	repo    Repo
	expiry  time.Duration
	nowFunc func() time.Time
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func NewManager(repo Repo, expiry time.Duration, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:    repo,
		expiry:  expiry,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

// Create generates a new refresh token for the user's session and stores it
func (m *Manager) Create(userID int64, sessionID string) (*StoredRefreshToken, error) {
	tokenBytes := make([]byte, tokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, errors.Wrap(err, "[Create] rand.Read")
	}

	now := m.nowFunc()
	rt := &StoredRefreshToken{
		Token:     hex.EncodeToString(tokenBytes),
		UserID:    userID,
		SessionID: sessionID,
		Iat:       now,
		ExpiresAt: now.Add(m.expiry),
	}
	if err := m.repo.Upsert(rt); err != nil {
		return nil, errors.Wrap(err, "[Create] Upsert")
	}
	return rt, nil
}

// Validate returns the stored token when it exists and has not expired.
// Expired tokens are deleted.
func (m *Manager) Validate(token string) (*StoredRefreshToken, error) {
	if token == "" {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidRefreshToken, err.Error())
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, apperrors.ErrRefreshTokenExpired
	}
	return rt, nil
}

// Revoke deletes the token and returns what it was bound to
func (m *Manager) Revoke(token string) (*StoredRefreshToken, error) {
	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidRefreshToken, err.Error())
	}
	if err := m.repo.Delete(token); err != nil {
		return nil, errors.Wrap(err, "[Revoke] Delete")
	}
	return rt, nil
}

func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return !m.nowFunc().Before(rt.ExpiresAt)
}
