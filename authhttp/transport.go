// Package authhttp is the authenticated request layer: an http.RoundTripper
// that attaches the tab's credential and, on an authorization failure,
// renews once and retries once.
package authhttp

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	apperrors "github.com/jrsteele09/go-tab-session/internal/errors"
)

// CredentialSource is the read side of the credential store, plus Clear for
// when the server rejects the refresh cookie.
type CredentialSource interface {
	AccessToken() string
	Clear()
}

// Renewer obtains a fresh credential from the refresh cookie and stores it.
type Renewer interface {
	Renew(ctx context.Context) (string, error)
}

// RenewerFunc adapts a function to Renewer.
type RenewerFunc func(ctx context.Context) (string, error)

func (f RenewerFunc) Renew(ctx context.Context) (string, error) {
	return f(ctx)
}

type retriedKey struct{}

// IsRetry reports whether req is the single retry issued after a renewal.
func IsRetry(req *http.Request) bool {
	retried, _ := req.Context().Value(retriedKey{}).(bool)
	return retried
}

// Transport wraps Base with credential attachment and retry-once-on-401.
type Transport struct {
	Base        http.RoundTripper
	Credentials CredentialSource
	Renewer     Renewer
	Log         zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport creates a Transport. A nil base uses http.DefaultTransport.
func NewTransport(credentials CredentialSource, renewer Renewer, base http.RoundTripper) *Transport {
	return &Transport{
		Base:        base,
		Credentials: credentials,
		Renewer:     renewer,
		Log:         log.Logger,
	}
}

// NewClient returns an http.Client using a Transport over base.
func NewClient(credentials CredentialSource, renewer Renewer, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: NewTransport(credentials, renewer, base)}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.Credentials.AccessToken()
	if token == "" {
		// Nothing to attach and nothing to renew
		return t.base().RoundTrip(req)
	}

	resp, err := t.base().RoundTrip(authorize(req.Context(), req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || IsRetry(req) || t.Renewer == nil {
		return resp, err
	}

	retry, ok := rewind(req)
	if !ok {
		t.Log.Debug().Str("url", req.URL.String()).Msg("authhttp: body not replayable, returning 401")
		return resp, nil
	}

	newToken, renewErr := t.Renewer.Renew(req.Context())
	if renewErr != nil || newToken == "" {
		t.Log.Debug().Err(renewErr).Str("url", req.URL.String()).Msg("authhttp: renewal failed")
		// Only a rejected refresh cookie ends the session
		if renewErr == nil || apperrors.Is(renewErr, apperrors.ErrRenewalFailed) {
			t.Credentials.Clear()
		}
		return resp, nil
	}

	drain(resp)
	ctx := context.WithValue(req.Context(), retriedKey{}, true)
	return t.base().RoundTrip(authorize(ctx, retry, newToken))
}

// authorize clones req onto ctx with the bearer header set; RoundTrippers must
// not mutate the caller's request.
func authorize(ctx context.Context, req *http.Request, token string) *http.Request {
	out := req.Clone(ctx)
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(out)
	return out
}

// rewind returns a copy of req with a fresh body, or false when the body has
// already been consumed and cannot be recreated.
func rewind(req *http.Request) (*http.Request, bool) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	out := req.Clone(req.Context())
	out.Body = body
	return out, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
