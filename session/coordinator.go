package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-tab-session/authapi"
	"github.com/jrsteele09/go-tab-session/credential"
	"github.com/jrsteele09/go-tab-session/tabsync"
)

const renewKey = "renew"

// Coordinator owns one tab's view of the session. It signs in and out, renews
// the credential, caches the identity and keeps the tab in step with its
// siblings through the messenger.
type Coordinator struct {
	api        API
	store      *credential.Store
	messenger  tabsync.Messenger
	visibility VisibilitySource
	log        zerolog.Logger
	metrics    *Metrics
	nowFunc    func() time.Time

	identityStaleTime      time.Duration
	renewTimeout           time.Duration
	renewOnlyWhenSignedOut bool

	renewals singleflight.Group

	mu                sync.Mutex
	signingIn         bool
	identityLoads     int
	identity          *authapi.Identity
	identityFetchedAt time.Time
	identityStale     bool
	watchers          map[uint64]func(Snapshot)
	nextWatcherID     uint64
	started           bool
	ctx               context.Context
	cancel            context.CancelFunc
	detach            []func()
}

// New creates a Coordinator over api, store and messenger.
func New(api API, store *credential.Store, messenger tabsync.Messenger, options ...Option) (*Coordinator, error) {
	if api == nil {
		return nil, errors.New("[New] api is required")
	}
	c, err := newCoordinator(store, messenger, options...)
	if err != nil {
		return nil, err
	}
	c.api = api
	return c, nil
}

func newCoordinator(store *credential.Store, messenger tabsync.Messenger, options ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("[New] credential store is required")
	}
	if messenger == nil {
		return nil, errors.New("[New] messenger is required")
	}
	c := &Coordinator{
		store:             store,
		messenger:         messenger,
		log:               log.Logger,
		nowFunc:           time.Now,
		identityStaleTime: defaultIdentityStaleTime,
		renewTimeout:      defaultRenewTimeout,
		watchers:          make(map[uint64]func(Snapshot)),
		ctx:               context.Background(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Start subscribes to sync events and visibility changes, then tries to
// resume a session from the refresh cookie when no credential is held.
// ctx bounds the background work triggered by other tabs.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.addDetach(c.messenger.Subscribe(c.handleEvent))
	if c.visibility != nil {
		c.addDetach(c.visibility.OnVisibilityChange(func(visible bool) {
			c.HandleVisibilityChange(c.context(), visible)
		}))
	}

	if !c.hasCredential() {
		if err := c.renewAndLoad(ctx); err != nil {
			c.log.Debug().Err(err).Msg("no session to resume")
		}
	}
}

// Close detaches the coordinator from sync events and visibility changes.
func (c *Coordinator) Close() {
	c.mu.Lock()
	detach := c.detach
	c.detach = nil
	cancel := c.cancel
	c.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	if cancel != nil {
		cancel()
	}
}

// SignIn exchanges email and password for a credential. A rejection is
// returned as the server's message verbatim. While an earlier SignIn is still
// in flight it returns ErrSignInInProgress without contacting the server.
func (c *Coordinator) SignIn(ctx context.Context, email, password string) error {
	c.mu.Lock()
	if c.signingIn {
		c.mu.Unlock()
		return ErrSignInInProgress
	}
	c.signingIn = true
	c.mu.Unlock()
	c.notify()

	token, err := c.api.Login(ctx, email, password)
	if err == nil {
		c.store.Set(token)
	}

	c.mu.Lock()
	c.signingIn = false
	if err == nil {
		c.identityStale = true
	}
	c.mu.Unlock()
	c.metrics.signIn(err == nil)
	c.notify()

	if err != nil {
		c.log.Debug().Err(err).Msg("sign-in rejected")
		return err
	}

	c.broadcast(tabsync.KindSignIn)
	if err := c.RefetchIdentity(ctx); err != nil {
		c.log.Warn().Err(err).Msg("identity fetch after sign-in failed")
	}
	return nil
}

// Register creates an account and returns the server's confirmation message.
// It does not sign the user in.
func (c *Coordinator) Register(ctx context.Context, email, password string) (string, error) {
	return c.api.Register(ctx, email, password)
}

// SignOut ends the session everywhere. The local session is cleared and the
// other tabs told even when the server cannot be reached.
func (c *Coordinator) SignOut(ctx context.Context) {
	if err := c.api.Logout(ctx); err != nil {
		c.log.Warn().Err(err).Msg("logout request failed")
	}
	c.clearSession()
	c.broadcast(tabsync.KindSignOut)
}

// Renew obtains a fresh credential from the refresh cookie. Concurrent calls
// share one request, which outlives any single caller's cancellation. On
// success the identity is marked stale. Only a server rejection of the
// refresh cookie clears the local session; transport errors and cancellation
// leave it alone. Renew never broadcasts.
func (c *Coordinator) Renew(ctx context.Context) (string, error) {
	shared := context.WithoutCancel(ctx)
	results := c.renewals.DoChan(renewKey, func() (interface{}, error) {
		renewCtx := shared
		if c.renewTimeout > 0 {
			var cancel context.CancelFunc
			renewCtx, cancel = context.WithTimeout(shared, c.renewTimeout)
			defer cancel()
		}

		token, err := c.api.Refresh(renewCtx)
		c.metrics.renewal(err == nil)
		if err != nil {
			if errors.Is(err, authapi.ErrRenewalFailed) {
				c.log.Debug().Err(err).Msg("refresh cookie rejected")
				c.clearSession()
			} else {
				c.log.Debug().Err(err).Msg("credential renewal failed, keeping session")
			}
			return "", err
		}
		c.store.Set(token)
		c.mu.Lock()
		c.identityStale = true
		c.mu.Unlock()
		c.notify()
		return token, nil
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "[Renew]")
	}
}

// Refresh renews the credential and tells the other tabs about it.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if _, err := c.Renew(ctx); err != nil {
		return err
	}
	c.broadcast(tabsync.KindCredentialRenewed)
	return nil
}

// RefetchIdentity loads the identity for the held credential.
func (c *Coordinator) RefetchIdentity(ctx context.Context) error {
	if !c.hasCredential() {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	c.identityLoads++
	c.mu.Unlock()
	c.notify()

	identity, err := c.api.Profile(ctx)

	c.mu.Lock()
	c.identityLoads--
	switch {
	case !c.hasCredential():
		// Signed out while the request was in flight
		c.identity = nil
	case err == nil:
		c.identity = identity
		c.identityFetchedAt = c.nowFunc()
		c.identityStale = false
	}
	c.mu.Unlock()
	c.notify()

	return errors.Wrap(err, "[RefetchIdentity]")
}

// Identity returns the cached identity, fetching it when missing, marked
// stale, or older than the stale time.
func (c *Coordinator) Identity(ctx context.Context) (*authapi.Identity, error) {
	c.mu.Lock()
	fresh := c.identity != nil && !c.identityStale && c.nowFunc().Sub(c.identityFetchedAt) < c.identityStaleTime
	identity := copyIdentity(c.identity)
	c.mu.Unlock()
	if fresh {
		return identity, nil
	}

	if err := c.RefetchIdentity(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil, ErrNotAuthenticated
	}
	return copyIdentity(c.identity), nil
}

// HandleVisibilityChange reacts to the tab becoming visible: a tab without a
// credential tries to resume, one with a credential refreshes its identity.
func (c *Coordinator) HandleVisibilityChange(ctx context.Context, visible bool) {
	if !visible {
		return
	}
	if !c.hasCredential() {
		if err := c.renewAndLoad(ctx); err != nil {
			c.log.Debug().Err(err).Msg("resume on visibility failed")
		}
		return
	}
	if err := c.RefetchIdentity(ctx); err != nil {
		c.log.Debug().Err(err).Msg("identity refresh on visibility failed")
	}
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) State() State {
	return c.Snapshot().State
}

func (c *Coordinator) IsSigningIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signingIn
}

// AccessToken returns the held access token, or "" when signed out.
func (c *Coordinator) AccessToken() string {
	return c.store.AccessToken()
}

// Watch registers fn for every state change and returns a function that
// removes it. fn must not call back into Watch.
func (c *Coordinator) Watch(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextWatcherID
	c.nextWatcherID++
	c.watchers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Coordinator) handleEvent(ev tabsync.Event) {
	c.metrics.received(ev.Kind)
	logger := c.log.With().Str("event", string(ev.Kind)).Int64("timestamp", ev.Timestamp).Logger()

	switch ev.Kind {
	case tabsync.KindSignOut:
		logger.Debug().Msg("signed out in another tab")
		c.clearSession()
	case tabsync.KindSignIn, tabsync.KindCredentialRenewed:
		if c.renewOnlyWhenSignedOut && c.hasCredential() {
			return
		}
		if err := c.renewAndLoad(c.context()); err != nil {
			logger.Warn().Err(err).Msg("renewal after sync event failed")
		}
	}
}

func (c *Coordinator) renewAndLoad(ctx context.Context) error {
	if _, err := c.Renew(ctx); err != nil {
		return err
	}
	return c.RefetchIdentity(ctx)
}

func (c *Coordinator) clearSession() {
	c.store.Clear()
	c.mu.Lock()
	c.identity = nil
	c.identityFetchedAt = time.Time{}
	c.identityStale = false
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) broadcast(kind tabsync.Kind) {
	c.messenger.Broadcast(tabsync.NewEvent(kind))
	c.metrics.broadcast(kind)
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	watchers := make([]func(Snapshot), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(snap)
	}
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		SigningIn: c.signingIn,
		Identity:  copyIdentity(c.identity),
	}
	switch {
	case c.signingIn:
		snap.State = StateAuthenticating
	case !c.hasCredential():
		snap.State = StateUnauthenticated
	case c.identityLoads > 0:
		snap.State = StateLoading
	default:
		snap.State = StateAuthenticated
	}
	return snap
}

func (c *Coordinator) hasCredential() bool {
	_, ok := c.store.Get()
	return ok
}

func (c *Coordinator) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *Coordinator) addDetach(fn func()) {
	c.mu.Lock()
	c.detach = append(c.detach, fn)
	c.mu.Unlock()
}

func copyIdentity(identity *authapi.Identity) *authapi.Identity {
	if identity == nil {
		return nil
	}
	cp := *identity
	return &cp
}
