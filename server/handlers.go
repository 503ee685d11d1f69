package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/go-tab-session/authapi"
	apperrors "github.com/jrsteele09/go-tab-session/internal/errors"
	"github.com/jrsteele09/go-tab-session/token"
	"github.com/jrsteele09/go-tab-session/users"
)

const maxRequestBody = 16 << 10

const (
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidRequest     = "Invalid request body"
	msgUserExists         = "User already exists"
	msgRegistered         = "User registered successfully"
	msgLoggedOut          = "Logged out"
	msgNoRefreshToken     = "No refresh token"
	msgInvalidRefresh     = "Invalid refresh token"
	msgAccountDisabled    = "Account is disabled"
)

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LoginHandler checks the password, starts a session and sets the refresh cookie
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds authapi.Credentials
		if err := decodeBody(r, &creds); err != nil {
			writeFailure(w, http.StatusBadRequest, msgInvalidRequest)
			return
		}

		user, err := s.repos.Users.GetByEmail(creds.Email)
		if err != nil || !user.CheckPassword(creds.Password) {
			s.log.Debug().Msg("login rejected")
			writeFailure(w, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		if user.Blocked {
			writeFailure(w, http.StatusForbidden, msgAccountDisabled)
			return
		}

		sessionID := token.NewSessionID()
		accessToken, err := s.tokens.CreateAccessToken(user, sessionID)
		if err != nil {
			s.internalError(w, err, "create access token")
			return
		}
		rt, err := s.refreshTokens.Create(user.ID, sessionID)
		if err != nil {
			s.internalError(w, err, "create refresh token")
			return
		}
		if err := s.repos.Users.SetLastLogin(user.ID); err != nil {
			s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to record last login")
		}

		s.setRefreshCookie(w, r, rt.Token, rt.ExpiresAt)
		identity := user.Identity()
		writeJSON(w, http.StatusOK, authapi.LoginResponse{
			Success:     true,
			AccessToken: accessToken,
			User:        &identity,
		})
	}
}

// RegisterHandler creates a customer account. It does not sign the user in.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds authapi.Credentials
		if err := decodeBody(r, &creds); err != nil {
			writeFailure(w, http.StatusBadRequest, msgInvalidRequest)
			return
		}
		if err := users.ValidateCredentials(creds.Email, creds.Password); err != nil {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}

		hash, err := users.HashPassword(creds.Password)
		if err != nil {
			s.internalError(w, err, "hash password")
			return
		}
		user := &users.User{
			Email:        users.NormalizeEmail(creds.Email),
			PasswordHash: hash,
			Role:         users.RoleCustomer,
			DateJoined:   s.nowFunc(),
		}
		if err := s.repos.Users.Create(user); err != nil {
			if apperrors.Is(err, apperrors.ErrUserExists) {
				writeFailure(w, http.StatusConflict, msgUserExists)
				return
			}
			s.internalError(w, err, "create user")
			return
		}

		writeJSON(w, http.StatusCreated, authapi.RegisterResponse{Success: true, Message: msgRegistered})
	}
}

// RefreshHandler issues a new access token for the session behind the refresh cookie
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie := refreshCookie(r)
		if cookie == "" {
			writeFailure(w, http.StatusUnauthorized, msgNoRefreshToken)
			return
		}

		rt, err := s.refreshTokens.Validate(cookie)
		if err != nil {
			s.log.Debug().Err(err).Msg("refresh rejected")
			s.clearRefreshCookie(w, r)
			writeFailure(w, http.StatusUnauthorized, msgInvalidRefresh)
			return
		}
		user, err := s.repos.Users.GetByID(rt.UserID)
		if err != nil || user.Blocked {
			s.clearRefreshCookie(w, r)
			writeFailure(w, http.StatusUnauthorized, msgInvalidRefresh)
			return
		}

		accessToken, err := s.tokens.CreateAccessToken(user, rt.SessionID)
		if err != nil {
			s.internalError(w, err, "create access token")
			return
		}
		writeJSON(w, http.StatusOK, authapi.RefreshResponse{Success: true, AccessToken: accessToken})
	}
}

// LogoutHandler revokes the refresh cookie and every access token of its
// session. It always succeeds.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie := refreshCookie(r); cookie != "" {
			rt, err := s.refreshTokens.Revoke(cookie)
			if err != nil {
				s.log.Debug().Err(err).Msg("logout with unknown refresh token")
			} else if err := s.tokens.RevokeSession(rt.SessionID); err != nil {
				s.log.Warn().Err(err).Str("session_id", rt.SessionID).Msg("failed to revoke session")
			}
		}

		s.clearRefreshCookie(w, r)
		writeJSON(w, http.StatusOK, authapi.LogoutResponse{Success: true, Message: msgLoggedOut})
	}
}

// MeHandler returns the identity of the access token's user
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		user, err := s.repos.Users.GetByID(userID)
		if err != nil {
			writeFailure(w, http.StatusNotFound, "User not found")
			return
		}
		writeJSON(w, http.StatusOK, authapi.ProfileResponse{User: user.Identity()})
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error, action string) {
	s.log.Err(err).Str("action", action).Msg("request failed")
	writeFailure(w, http.StatusInternalServerError, "Internal server error")
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeFailure writes the {success:false, message} body clients display verbatim
func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}
