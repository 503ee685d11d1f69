// Package redisbus implements the tab-sync primitives on Redis so that tabs
// living in different processes can share an origin. Pub/Sub carries the
// broadcast channel; plain keys plus a notification topic carry the shared
// storage and its change events.
package redisbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tab-session/tabsync"
)

const (
	defaultNamespace = "tabsync"
	defaultTimeout   = 2 * time.Second
)

var ErrClosed = errors.New("redisbus: closed")

// envelope wraps every published payload so receivers can skip their own messages.
type envelope struct {
	From     string `json:"from"`
	Data     []byte `json:"data,omitempty"`
	Key      string `json:"key,omitempty"`
	OldValue string `json:"old,omitempty"`
	NewValue string `json:"new,omitempty"`
}

type settings struct {
	namespace string
	timeout   time.Duration
	log       zerolog.Logger
}

// Option configures a Channel or Storage
type Option func(*settings)

// WithNamespace scopes topics and keys, typically to one origin.
func WithNamespace(ns string) Option {
	return func(s *settings) {
		s.namespace = ns
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) {
		s.log = l
	}
}

func newSettings(options []Option) settings {
	s := settings{namespace: defaultNamespace, timeout: defaultTimeout, log: log.Logger}
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// Channel is a tabsync.BroadcastChannel over Redis Pub/Sub.
type Channel struct {
	settings
	client redis.UniversalClient
	topic  string
	id     string
	pubsub *redis.PubSub

	mu     sync.RWMutex
	fn     func([]byte)
	closed bool
}

var _ tabsync.BroadcastChannel = (*Channel)(nil)

// OpenChannel subscribes to the named channel. It fails when Redis is unreachable,
// which lets tabsync fall back to its storage pulse.
func OpenChannel(ctx context.Context, client redis.UniversalClient, name string, options ...Option) (*Channel, error) {
	s := newSettings(options)
	c := &Channel{
		settings: s,
		client:   client,
		topic:    s.namespace + ":channel:" + name,
		id:       uuid.New().String(),
	}

	c.pubsub = client.Subscribe(ctx, c.topic)
	if _, err := c.pubsub.Receive(ctx); err != nil {
		_ = c.pubsub.Close()
		return nil, err
	}

	go c.listen(c.pubsub.Channel())
	return c, nil
}

// Opener adapts OpenChannel to tabsync.ChannelOpener.
func Opener(ctx context.Context, client redis.UniversalClient, options ...Option) tabsync.ChannelOpener {
	return func(name string) (tabsync.BroadcastChannel, error) {
		return OpenChannel(ctx, client, name, options...)
	}
}

func (c *Channel) PostMessage(data []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(envelope{From: c.id, Data: data})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.client.Publish(ctx, c.topic, payload).Err()
}

func (c *Channel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.fn = fn
	c.mu.Unlock()
}

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.pubsub.Close()
}

func (c *Channel) listen(messages <-chan *redis.Message) {
	for msg := range messages {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			c.log.Debug().Err(err).Str("topic", c.topic).Msg("redisbus: bad envelope")
			continue
		}
		if env.From == c.id {
			continue
		}

		c.mu.RLock()
		fn := c.fn
		c.mu.RUnlock()
		if fn != nil {
			fn(env.Data)
		}
	}
}
