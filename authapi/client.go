// Package authapi is the client for the authentication REST endpoints.
//
// Login, register, refresh and logout go through a plain http.Client whose
// cookie jar carries the refresh cookie. The profile call goes through the
// authorized client, which is expected to wrap the authenticated request layer.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const maxResponseBody = 64 << 10

// Paths are the endpoint paths relative to the base URL.
type Paths struct {
	Login    string
	Register string
	Refresh  string
	Logout   string
	Profile  string
}

// DefaultPaths returns the paths served by the reference backend
func DefaultPaths() Paths {
	return Paths{
		Login:    "/api/auth/login",
		Register: "/api/auth/register",
		Refresh:  "/api/auth/refresh",
		Logout:   "/api/auth/logout",
		Profile:  "/api/auth/me",
	}
}

// Client calls the authentication endpoints
type Client struct {
	baseURL    string
	paths      Paths
	plain      *http.Client
	authorized *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the client used for the credential endpoints. It must
// carry the cookie jar shared by the origin's tabs.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.plain = hc
	}
}

// WithAuthorizedClient sets the client used for the profile endpoint.
func WithAuthorizedClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.authorized = hc
	}
}

func WithPaths(p Paths) ClientOption {
	return func(c *Client) {
		c.paths = p
	}
}

// New creates a client for the backend at baseURL
func New(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		paths:   DefaultPaths(),
	}

	for _, opt := range options {
		opt(c)
	}

	if c.plain == nil {
		c.plain = &http.Client{Timeout: 30 * time.Second}
	}
	if c.authorized == nil {
		c.authorized = c.plain
	}
	return c
}

// Login exchanges email and password for an access token. The server also sets
// the refresh cookie in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp LoginResponse
	status, err := c.do(ctx, c.plain, http.MethodPost, c.paths.Login, Credentials{Email: email, Password: password}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "[Login]")
	}
	if !resp.Success || resp.AccessToken == "" || status >= 300 {
		return "", &RejectedError{StatusCode: status, Message: resp.Message}
	}
	return resp.AccessToken, nil
}

// Register creates an account. It never yields a credential.
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	var resp RegisterResponse
	status, err := c.do(ctx, c.plain, http.MethodPost, c.paths.Register, Credentials{Email: email, Password: password}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "[Register]")
	}
	if !resp.Success || status >= 300 {
		return "", &RejectedError{StatusCode: status, Message: resp.Message}
	}
	return resp.Message, nil
}

// Refresh asks for a new access token using the refresh cookie.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	var resp RefreshResponse
	status, err := c.do(ctx, c.plain, http.MethodPost, c.paths.Refresh, nil, &resp)
	if err != nil {
		return "", errors.Wrap(err, "[Refresh]")
	}
	if !resp.Success || resp.AccessToken == "" || status >= 300 {
		return "", errors.Wrap(ErrRenewalFailed, (&RejectedError{StatusCode: status, Message: resp.Message}).Error())
	}
	return resp.AccessToken, nil
}

// Logout revokes the refresh cookie server-side.
func (c *Client) Logout(ctx context.Context) error {
	var resp LogoutResponse
	status, err := c.do(ctx, c.plain, http.MethodPost, c.paths.Logout, nil, &resp)
	if err != nil {
		return errors.Wrap(err, "[Logout]")
	}
	if status >= 300 {
		return &RejectedError{StatusCode: status, Message: resp.Message}
	}
	return nil
}

// Profile fetches the signed-in user through the authorized client.
func (c *Client) Profile(ctx context.Context) (*Identity, error) {
	var resp ProfileResponse
	status, err := c.do(ctx, c.authorized, http.MethodGet, c.paths.Profile, nil, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "[Profile]")
	}
	if status >= 300 {
		return nil, &RejectedError{StatusCode: status, Message: http.StatusText(status)}
	}
	return &resp.User, nil
}

// do sends a JSON request and decodes a JSON response into out whatever the
// status, since failures carry {success:false, message} bodies too.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "read response")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
		return resp.StatusCode, errors.Wrap(err, "decode response")
	}
	return resp.StatusCode, nil
}
