package redisbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-tab-session/tabsync"
)

// Storage is a tabsync.SharedStorage over Redis. Each Storage is one tab's view;
// its own writes are not reported back to it.
type Storage struct {
	settings
	client redis.UniversalClient
	topic  string
	id     string
	pubsub *redis.PubSub

	mu        sync.RWMutex
	listeners map[uint64]func(tabsync.StorageEvent)
	nextID    uint64
}

var _ tabsync.SharedStorage = (*Storage)(nil)

// NewStorage subscribes to change notifications for the namespace.
func NewStorage(ctx context.Context, client redis.UniversalClient, options ...Option) (*Storage, error) {
	s := &Storage{
		settings:  newSettings(options),
		client:    client,
		id:        uuid.New().String(),
		listeners: make(map[uint64]func(tabsync.StorageEvent)),
	}
	s.topic = s.namespace + ":storage"

	s.pubsub = client.Subscribe(ctx, s.topic)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return nil, err
	}

	go s.listen(s.pubsub.Channel())
	return s, nil
}

func (s *Storage) key(k string) string {
	return s.namespace + ":kv:" + k
}

func (s *Storage) SetItem(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	old, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	existed := err == nil

	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return err
	}
	if existed && old == value {
		return nil
	}
	return s.publish(ctx, envelope{From: s.id, Key: key, OldValue: old, NewValue: value})
}

func (s *Storage) RemoveItem(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	old, err := s.client.GetDel(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	return s.publish(ctx, envelope{From: s.id, Key: key, OldValue: old})
}

// GetItem reads a key; the bool is false when it is absent.
func (s *Storage) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Storage) OnChange(fn func(tabsync.StorageEvent)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Storage) Close() error {
	return s.pubsub.Close()
}

func (s *Storage) publish(ctx context.Context, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.topic, payload).Err()
}

func (s *Storage) listen(messages <-chan *redis.Message) {
	for msg := range messages {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			s.log.Debug().Err(err).Str("topic", s.topic).Msg("redisbus: bad envelope")
			continue
		}
		if env.From == s.id {
			continue
		}

		ev := tabsync.StorageEvent{Key: env.Key, OldValue: env.OldValue, NewValue: env.NewValue}
		s.mu.RLock()
		listeners := make([]func(tabsync.StorageEvent), 0, len(s.listeners))
		for _, fn := range s.listeners {
			listeners = append(listeners, fn)
		}
		s.mu.RUnlock()

		for _, fn := range listeners {
			fn(ev)
		}
	}
}
