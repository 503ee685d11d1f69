package token

import (
	"sync"
	"time"
)

// RevokedSessionCache remembers signed-out session ids until their last
// access token would have expired anyway
type RevokedSessionCache interface {
	Add(sessionID string, until time.Time) error
	IsRevoked(sessionID string) bool
	Cleanup(now time.Time) // Remove entries that ended before now
}

// InMemoryRevokedSessionCache is a simple in-memory implementation
type InMemoryRevokedSessionCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func NewInMemoryRevokedSessionCache() *InMemoryRevokedSessionCache {
	return &InMemoryRevokedSessionCache{
		revoked: make(map[string]time.Time),
	}
}

func (c *InMemoryRevokedSessionCache) Add(sessionID string, until time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[sessionID] = until
	return nil
}

func (c *InMemoryRevokedSessionCache) IsRevoked(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[sessionID]
	return exists
}

func (c *InMemoryRevokedSessionCache) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sid, until := range c.revoked {
		if now.After(until) {
			delete(c.revoked, sid)
		}
	}
}
