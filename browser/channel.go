package browser

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-tab-session/tabsync"
)

var (
	ErrBroadcastUnsupported = errors.New("broadcast channel not supported")
	ErrChannelClosed        = errors.New("broadcast channel closed")
	ErrTabClosed            = errors.New("tab closed")
)

// StorageEvent is re-exported for callers that only import browser.
type StorageEvent = tabsync.StorageEvent

// channel is a BroadcastChannel scoped to one tab.
type channel struct {
	tab    *Tab
	name   string
	mu     sync.RWMutex
	fn     func([]byte)
	closed bool
}

var _ tabsync.BroadcastChannel = (*channel)(nil)

func (c *channel) PostMessage(data []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrChannelClosed
	}

	for _, peer := range c.tab.origin.peers(c) {
		msg := append([]byte(nil), data...)
		go peer.deliver(msg)
	}
	return nil
}

func (c *channel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.fn = fn
	c.mu.Unlock()
}

func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.tab.origin.leave(c)
	return nil
}

func (c *channel) deliver(data []byte) {
	c.mu.RLock()
	fn, closed := c.fn, c.closed
	c.mu.RUnlock()

	if closed || fn == nil || !c.tab.acceptsDeliveries() {
		return
	}
	fn(data)
}
