// Package browser provides in-process stand-ins for the browser primitives a
// tab relies on: same-origin broadcast channels, shared localStorage with
// cross-tab change events, page visibility and a cookie jar shared by every
// tab of the origin. Each Tab has its own memory; everything on Origin is shared.
package browser

import (
	"net/http"
	"net/http/cookiejar"
	"sync"
)

// Origin is the shared state of all tabs opened on one scheme/host/port.
type Origin struct {
	name               string
	broadcastSupported bool
	jar                http.CookieJar

	mu               sync.Mutex
	channels         map[string]map[*channel]struct{} // channel name -> open channels
	storage          map[string]string
	storageListeners map[uint64]storageListener
	nextListenerID   uint64
}

type storageListener struct {
	tab *Tab
	fn  func(StorageEvent)
}

// OriginOption configures an Origin
type OriginOption func(*Origin)

// WithoutBroadcastChannel makes OpenBroadcastChannel fail, as in environments
// lacking the primitive.
func WithoutBroadcastChannel() OriginOption {
	return func(o *Origin) {
		o.broadcastSupported = false
	}
}

// WithCookieJar replaces the default in-memory jar.
func WithCookieJar(jar http.CookieJar) OriginOption {
	return func(o *Origin) {
		o.jar = jar
	}
}

// NewOrigin creates an origin with broadcast channel support and an empty jar
func NewOrigin(name string, options ...OriginOption) *Origin {
	o := &Origin{
		name:               name,
		broadcastSupported: true,
		channels:           make(map[string]map[*channel]struct{}),
		storage:            make(map[string]string),
		storageListeners:   make(map[uint64]storageListener),
	}

	for _, opt := range options {
		opt(o)
	}

	if o.jar == nil {
		// cookiejar.New only fails on a bad PublicSuffixList, and none is passed
		o.jar, _ = cookiejar.New(nil)
	}
	return o
}

func (o *Origin) Name() string {
	return o.name
}

// CookieJar is shared by every tab, like a browser profile's cookies.
func (o *Origin) CookieJar() http.CookieJar {
	return o.jar
}

// Item reads a localStorage key directly.
func (o *Origin) Item(key string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.storage[key]
	return v, ok
}

// OpenTab creates a new visible tab on this origin
func (o *Origin) OpenTab() *Tab {
	return newTab(o)
}

func (o *Origin) setItem(from *Tab, key, value string) {
	o.mu.Lock()
	old, existed := o.storage[key]
	o.storage[key] = value
	listeners := o.listenersExcept(from)
	o.mu.Unlock()

	if existed && old == value {
		return
	}
	o.notifyStorage(listeners, StorageEvent{Key: key, OldValue: old, NewValue: value})
}

func (o *Origin) removeItem(from *Tab, key string) {
	o.mu.Lock()
	old, existed := o.storage[key]
	delete(o.storage, key)
	listeners := o.listenersExcept(from)
	o.mu.Unlock()

	if !existed {
		return
	}
	o.notifyStorage(listeners, StorageEvent{Key: key, OldValue: old})
}

// listenersExcept must be called with o.mu held.
func (o *Origin) listenersExcept(from *Tab) []storageListener {
	listeners := make([]storageListener, 0, len(o.storageListeners))
	for _, l := range o.storageListeners {
		if l.tab != from {
			listeners = append(listeners, l)
		}
	}
	return listeners
}

func (o *Origin) notifyStorage(listeners []storageListener, ev StorageEvent) {
	for _, l := range listeners {
		go func(l storageListener) {
			if l.tab.acceptsDeliveries() {
				l.fn(ev)
			}
		}(l)
	}
}

func (o *Origin) addStorageListener(tab *Tab, fn func(StorageEvent)) func() {
	o.mu.Lock()
	id := o.nextListenerID
	o.nextListenerID++
	o.storageListeners[id] = storageListener{tab: tab, fn: fn}
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.storageListeners, id)
		o.mu.Unlock()
	}
}

func (o *Origin) join(c *channel) error {
	if !o.broadcastSupported {
		return ErrBroadcastUnsupported
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.channels[c.name]; !ok {
		o.channels[c.name] = make(map[*channel]struct{})
	}
	o.channels[c.name][c] = struct{}{}
	return nil
}

func (o *Origin) leave(c *channel) {
	o.mu.Lock()
	defer o.mu.Unlock()

	members, ok := o.channels[c.name]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(o.channels, c.name)
	}
}

func (o *Origin) peers(c *channel) []*channel {
	o.mu.Lock()
	defer o.mu.Unlock()

	peers := make([]*channel, 0, len(o.channels[c.name]))
	for p := range o.channels[c.name] {
		if p != c {
			peers = append(peers, p)
		}
	}
	return peers
}
