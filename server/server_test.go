package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tab-session/authapi"
	"github.com/jrsteele09/go-tab-session/internal/config"
	"github.com/jrsteele09/go-tab-session/server"
	refreshrepofake "github.com/jrsteele09/go-tab-session/token/refresh/repofake"
	"github.com/jrsteele09/go-tab-session/users"
	fakeuserrepo "github.com/jrsteele09/go-tab-session/users/repofake"
)

type testFixture struct {
	srv    *httptest.Server
	client *http.Client
	users  *fakeuserrepo.FakeUserRepo
	clock  atomic.Int64 // unix nanos
}

func (f *testFixture) now() time.Time {
	return time.Unix(0, f.clock.Load())
}

func (f *testFixture) advance(d time.Duration) {
	f.clock.Add(int64(d))
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		users: fakeuserrepo.NewFakeUserRepo(),
	}
	f.clock.Store(time.Now().UnixNano())
	require.NoError(t, users.Seed(f.users, []users.SeedAccount{
		{Email: "alice@example.com", Password: "secret1", Role: users.RoleCustomer},
	}))

	s, err := server.New(config.New(), server.Repos{
		Users:         f.users,
		RefreshTokens: refreshrepofake.NewFakeRefreshTokenRepo(),
	}, server.WithLogger(zerolog.Nop()), server.WithNowFunc(f.now))
	require.NoError(t, err)

	f.srv = httptest.NewServer(s)
	t.Cleanup(f.srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	f.client = &http.Client{Jar: jar}
	return f
}

func (f *testFixture) post(t *testing.T, path string, body any, out any) *http.Response {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	resp, err := f.client.Post(f.srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *testFixture) me(t *testing.T, accessToken string) (*http.Response, authapi.ProfileResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+server.RouteAuthMe, nil)
	require.NoError(t, err)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var profile authapi.ProfileResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&profile))
	}
	return resp, profile
}

func (f *testFixture) login(t *testing.T) string {
	t.Helper()
	var login authapi.LoginResponse
	resp := f.post(t, server.RouteAuthLogin, authapi.Credentials{Email: "alice@example.com", Password: "secret1"}, &login)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, login.Success)
	return login.AccessToken
}

func TestLogin_SetsHttpOnlyRefreshCookie(t *testing.T) {
	f := setupTestFixture(t)

	var login authapi.LoginResponse
	resp := f.post(t, server.RouteAuthLogin, authapi.Credentials{Email: "alice@example.com", Password: "secret1"}, &login)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, login.Success)
	require.NotEmpty(t, login.AccessToken)
	require.Equal(t, &authapi.Identity{Email: "alice@example.com", ID: 1, Role: "customer"}, login.User)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "refreshToken" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, "/api/auth", cookie.Path)
	require.NotContains(t, login.AccessToken, cookie.Value, "the refresh token never appears in the body")
}

func TestLogin_RejectsWrongPassword(t *testing.T) {
	f := setupTestFixture(t)

	var login authapi.LoginResponse
	resp := f.post(t, server.RouteAuthLogin, authapi.Credentials{Email: "alice@example.com", Password: "wrong"}, &login)

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, login.Success)
	require.Equal(t, "Invalid credentials", login.Message)
	require.Empty(t, resp.Cookies())

	resp = f.post(t, server.RouteAuthLogin, authapi.Credentials{Email: "nobody@example.com", Password: "secret1"}, &login)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Invalid credentials", login.Message, "unknown users are indistinguishable from bad passwords")
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)

	var reg authapi.RegisterResponse
	resp := f.post(t, server.RouteAuthRegister, authapi.Credentials{Email: "Bob@Example.com", Password: "hunter22"}, &reg)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, reg.Success)
	require.Equal(t, "User registered successfully", reg.Message)
	require.Empty(t, resp.Cookies(), "registering does not sign in")

	resp = f.post(t, server.RouteAuthRegister, authapi.Credentials{Email: "bob@example.com", Password: "hunter22"}, &reg)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.False(t, reg.Success)
	require.Equal(t, "User already exists", reg.Message)

	resp = f.post(t, server.RouteAuthRegister, authapi.Credentials{Email: "carol@example.com", Password: "abc"}, &reg)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, reg.Message, "at least 6 characters")

	bob, err := f.users.GetByEmail("bob@example.com")
	require.NoError(t, err)
	require.Equal(t, users.RoleCustomer, bob.Role)
}

func TestRefresh_UsesCookie(t *testing.T) {
	f := setupTestFixture(t)

	var refreshed authapi.RefreshResponse
	resp := f.post(t, server.RouteAuthRefresh, nil, &refreshed)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, refreshed.Success)

	first := f.login(t)
	resp = f.post(t, server.RouteAuthRefresh, nil, &refreshed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, refreshed.Success)
	require.NotEqual(t, first, refreshed.AccessToken)

	// The cookie is not rotated, so concurrent tabs can renew with it
	resp = f.post(t, server.RouteAuthRefresh, nil, &refreshed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMe_RequiresValidToken(t *testing.T) {
	f := setupTestFixture(t)

	resp, _ := f.me(t, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = f.me(t, "garbage")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	accessToken := f.login(t)
	resp, profile := f.me(t, accessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, authapi.Identity{Email: "alice@example.com", ID: 1, Role: "customer"}, profile.User)

	f.advance(16 * time.Minute)
	resp, _ = f.me(t, accessToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "expired")
}

func TestLogout_RevokesSession(t *testing.T) {
	f := setupTestFixture(t)
	accessToken := f.login(t)
	var refreshed authapi.RefreshResponse
	f.post(t, server.RouteAuthRefresh, nil, &refreshed)

	var logout authapi.LogoutResponse
	resp := f.post(t, server.RouteAuthLogout, nil, &logout)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, logout.Success)

	resp, _ = f.me(t, accessToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = f.me(t, refreshed.AccessToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "renewed tokens of the session are revoked too")

	resp = f.post(t, server.RouteAuthRefresh, nil, &refreshed)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logging out again is harmless
	resp = f.post(t, server.RouteAuthLogout, nil, &logout)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A new sign-in starts a fresh session
	resp, _ = f.me(t, f.login(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCors_Preflight(t *testing.T) {
	f := setupTestFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+server.RouteAuthLogin, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNew_RequiresRepos(t *testing.T) {
	_, err := server.New(config.New(), server.Repos{})
	require.Error(t, err)
}
