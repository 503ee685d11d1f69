package session

import (
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-tab-session/authapi"
	"github.com/jrsteele09/go-tab-session/authhttp"
	"github.com/jrsteele09/go-tab-session/credential"
	"github.com/jrsteele09/go-tab-session/tabsync"
)

// ClientConfig describes where one tab's session lives.
type ClientConfig struct {
	BaseURL   string
	CookieJar http.CookieJar // Shared by every tab of the origin; carries the refresh cookie
	Messenger tabsync.Messenger
	Transport http.RoundTripper // nil uses http.DefaultTransport
	Timeout   time.Duration
	Paths     *authapi.Paths
}

// Client is one tab's session machinery wired together.
type Client struct {
	*Coordinator
	Store *credential.Store
	API   *authapi.Client
	// HTTP attaches the credential to every request and renews once on 401.
	// Use it for any other endpoint of the same backend.
	HTTP *http.Client
}

// NewClient builds the credential store, the coordinator, the authenticated
// transport and the API client for one tab. Call Start on the result.
func NewClient(cfg ClientConfig, options ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("[NewClient] base URL is required")
	}

	store := credential.NewStore()
	coordinator, err := newCoordinator(store, cfg.Messenger, options...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewClient]")
	}

	transport := authhttp.NewTransport(store, coordinator, cfg.Transport)
	transport.Log = coordinator.log
	authorized := &http.Client{Jar: cfg.CookieJar, Transport: transport, Timeout: cfg.Timeout}
	plain := &http.Client{Jar: cfg.CookieJar, Transport: cfg.Transport, Timeout: cfg.Timeout}

	apiOptions := []authapi.ClientOption{
		authapi.WithHTTPClient(plain),
		authapi.WithAuthorizedClient(authorized),
	}
	if cfg.Paths != nil {
		apiOptions = append(apiOptions, authapi.WithPaths(*cfg.Paths))
	}
	api := authapi.New(cfg.BaseURL, apiOptions...)
	coordinator.api = api

	return &Client{
		Coordinator: coordinator,
		Store:       store,
		API:         api,
		HTTP:        authorized,
	}, nil
}
