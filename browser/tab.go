package browser

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tab-session/tabsync"
)

// Tab is one execution context on an Origin. It starts visible.
type Tab struct {
	ID     string
	origin *Origin

	mu                  sync.Mutex
	visible             bool
	frozen              bool
	closed              bool
	visibilityListeners map[uint64]func(bool)
	nextListenerID      uint64
	channels            []*channel
	storageUnsubs       []func()
}

func newTab(o *Origin) *Tab {
	return &Tab{
		ID:                  uuid.New().String(),
		origin:              o,
		visible:             true,
		visibilityListeners: make(map[uint64]func(bool)),
	}
}

func (t *Tab) Origin() *Origin {
	return t.origin
}

// OpenBroadcastChannel implements tabsync.ChannelOpener for this tab.
func (t *Tab) OpenBroadcastChannel(name string) (tabsync.BroadcastChannel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTabClosed
	}

	c := &channel{tab: t, name: name}
	if err := t.origin.join(c); err != nil {
		return nil, err
	}
	t.channels = append(t.channels, c)
	return c, nil
}

// LocalStorage returns this tab's view of the origin's shared storage.
func (t *Tab) LocalStorage() tabsync.SharedStorage {
	return &tabStorage{tab: t}
}

// SetVisible changes page visibility; listeners fire only on an actual change.
func (t *Tab) SetVisible(visible bool) {
	t.mu.Lock()
	if t.visible == visible || t.closed {
		t.mu.Unlock()
		return
	}
	t.visible = visible
	listeners := make([]func(bool), 0, len(t.visibilityListeners))
	for _, fn := range t.visibilityListeners {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(visible)
	}
}

func (t *Tab) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// OnVisibilityChange registers fn for visibility transitions
func (t *Tab) OnVisibilityChange(fn func(visible bool)) func() {
	t.mu.Lock()
	id := t.nextListenerID
	t.nextListenerID++
	t.visibilityListeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.visibilityListeners, id)
		t.mu.Unlock()
	}
}

// Freeze simulates a suspended tab: while frozen, channel messages and
// storage events addressed to it are dropped.
func (t *Tab) Freeze(frozen bool) {
	t.mu.Lock()
	t.frozen = frozen
	t.mu.Unlock()
}

// Close closes the tab's channels and storage listeners.
func (t *Tab) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	channels := t.channels
	unsubs := t.storageUnsubs
	t.channels = nil
	t.storageUnsubs = nil
	t.mu.Unlock()

	for _, c := range channels {
		_ = c.Close()
	}
	for _, unsub := range unsubs {
		unsub()
	}
}

func (t *Tab) acceptsDeliveries() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.frozen && !t.closed
}

type tabStorage struct {
	tab *Tab
}

var _ tabsync.SharedStorage = (*tabStorage)(nil)

func (s *tabStorage) SetItem(key, value string) error {
	if s.tab.isClosed() {
		return ErrTabClosed
	}
	s.tab.origin.setItem(s.tab, key, value)
	return nil
}

func (s *tabStorage) RemoveItem(key string) error {
	if s.tab.isClosed() {
		return ErrTabClosed
	}
	s.tab.origin.removeItem(s.tab, key)
	return nil
}

func (s *tabStorage) OnChange(fn func(tabsync.StorageEvent)) func() {
	unsub := s.tab.origin.addStorageListener(s.tab, fn)

	s.tab.mu.Lock()
	s.tab.storageUnsubs = append(s.tab.storageUnsubs, unsub)
	s.tab.mu.Unlock()
	return unsub
}

func (t *Tab) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
