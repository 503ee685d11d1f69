package token

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-tab-session/internal/errors"
	"github.com/jrsteele09/go-tab-session/users"
)

// Claims are carried by every access token. The session id ties all tokens
// renewed from one sign-in together so a sign-out revokes them at once.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, errors.Wrap(apperrors.ErrInvalidToken, "subject is not a user id")
	}
	return id, nil
}

type Manager struct {
	signer            Signer
	issuer            string
	revokedCache      RevokedSessionCache
	accessTokenExpiry time.Duration
	nowFunc           func() time.Time
}

type ManagerOption func(*Manager)

func WithAccessTokenExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = expiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithRevokedSessionCache(cache RevokedSessionCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func New(signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:       signer,
		revokedCache: NewInMemoryRevokedSessionCache(),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = 15 * time.Minute
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// NewSessionID returns a fresh id for a sign-in
func NewSessionID() string {
	return uuid.New().String()
}

func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

// CreateAccessToken issues a signed access token for user within sessionID
func (m *Manager) CreateAccessToken(user *users.User, sessionID string) (string, error) {
	now := m.nowFunc()
	claims := Claims{
		Email:     user.Email,
		Role:      string(user.Role),
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenExpiry)),
			ID:        uuid.New().String(), // Unique token ID
		},
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[CreateAccessToken]")
	}
	return signed, nil
}

// Verify checks signature, expiry and revocation and returns the claims
func (m *Manager) Verify(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrInvalidToken
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(rawToken, claims, m.signer.GetVerificationKey); err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, err.Error())
	}
	if claims.SessionID == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "missing session id")
	}
	if m.revokedCache.IsRevoked(claims.SessionID) {
		return nil, apperrors.ErrTokenRevoked
	}
	return claims, nil
}

// RevokeSession invalidates every access token issued for sessionID
func (m *Manager) RevokeSession(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	now := m.nowFunc()
	m.revokedCache.Cleanup(now)
	return errors.Wrap(m.revokedCache.Add(sessionID, now.Add(m.accessTokenExpiry)), "[RevokeSession]")
}
