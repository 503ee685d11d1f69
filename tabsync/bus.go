package tabsync

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultChannelName = "auth-sync"
	DefaultStorageKey  = "auth-sync-event"
	DefaultPulseDelay  = 100 * time.Millisecond
)

// Messenger is what the session coordinator needs from a cross-tab bus.
type Messenger interface {
	Broadcast(event Event)
	Subscribe(fn func(Event)) (unsubscribe func())
}

var _ Messenger = (*Bus)(nil)

// Bus is the per-tab cross-tab messenger.
type Bus struct {
	log         zerolog.Logger
	opener      ChannelOpener
	storage     SharedStorage
	channelName string
	storageKey  string
	pulseDelay  time.Duration

	direct          transport // nil when no broadcast channel could be opened
	fallback        transport // nil when no shared storage was supplied
	unlistenStorage func()

	mu          sync.RWMutex
	subscribers map[uint64]func(Event)
	nextID      uint64
	closed      bool
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithBroadcastChannel supplies the direct broadcast primitive.
func WithBroadcastChannel(opener ChannelOpener) BusOption {
	return func(b *Bus) {
		b.opener = opener
	}
}

// WithSharedStorage supplies the storage used for the pulse fallback.
func WithSharedStorage(storage SharedStorage) BusOption {
	return func(b *Bus) {
		b.storage = storage
	}
}

func WithChannelName(name string) BusOption {
	return func(b *Bus) {
		b.channelName = name
	}
}

func WithStorageKey(key string) BusOption {
	return func(b *Bus) {
		b.storageKey = key
	}
}

func WithPulseDelay(d time.Duration) BusOption {
	return func(b *Bus) {
		b.pulseDelay = d
	}
}

func WithLogger(l zerolog.Logger) BusOption {
	return func(b *Bus) {
		b.log = l
	}
}

// NewBus probes the available primitives and attaches listeners to each of
// them. Probing failures are logged, never returned.
func NewBus(options ...BusOption) *Bus {
	b := &Bus{
		log:         log.Logger,
		channelName: DefaultChannelName,
		storageKey:  DefaultStorageKey,
		pulseDelay:  DefaultPulseDelay,
		subscribers: make(map[uint64]func(Event)),
	}

	for _, opt := range options {
		opt(b)
	}

	if b.opener != nil {
		ch, err := b.opener(b.channelName)
		if err != nil {
			b.log.Debug().Err(err).Msg("tabsync: broadcast channel unavailable, using storage pulse")
		} else {
			ch.OnMessage(b.receive)
			b.direct = &channelTransport{ch: ch}
		}
	}

	if b.storage != nil {
		b.fallback = &pulseTransport{
			storage: b.storage,
			key:     b.storageKey,
			delay:   b.pulseDelay,
			log:     b.log,
		}
		b.unlistenStorage = b.storage.OnChange(b.receiveStorage)
	}

	return b
}

// UsesDirectChannel reports whether the direct broadcast primitive was available.
func (b *Bus) UsesDirectChannel() bool {
	return b.direct != nil
}

// Broadcast sends the event to every other tab. It never fails visibly.
func (b *Bus) Broadcast(event Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		b.log.Debug().Str("kind", string(event.Kind)).Msg("tabsync: bus closed, event dropped")
		return
	}

	data, err := event.encode()
	if err != nil {
		b.log.Debug().Err(err).Msg("tabsync: encode event")
		return
	}

	if b.direct != nil {
		err := b.direct.send(data)
		if err == nil {
			return
		}
		b.log.Debug().Err(err).Str("kind", string(event.Kind)).Msg("tabsync: broadcast channel failed, using storage pulse")
	}

	if b.fallback == nil {
		b.log.Debug().Err(errNoTransport).Str("kind", string(event.Kind)).Msg("tabsync: event dropped")
		return
	}
	if err := b.fallback.send(data); err != nil {
		b.log.Debug().Err(err).Str("kind", string(event.Kind)).Msg("tabsync: storage pulse failed")
	}
}

// Subscribe registers fn for events from other tabs
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Close detaches from both primitives. Subscribers receive nothing afterwards.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[uint64]func(Event))
	b.mu.Unlock()

	if b.unlistenStorage != nil {
		b.unlistenStorage()
	}
	if b.direct != nil {
		return b.direct.close()
	}
	return nil
}

func (b *Bus) receiveStorage(ev StorageEvent) {
	// Removals are the second half of a pulse
	if ev.Key != b.storageKey || ev.NewValue == "" {
		return
	}
	b.receive([]byte(ev.NewValue))
}

func (b *Bus) receive(data []byte) {
	event, err := decodeEvent(data)
	if err != nil {
		b.log.Debug().Err(err).Msg("tabsync: ignoring message")
		return
	}

	b.mu.RLock()
	subscribers := make([]func(Event), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subscribers = append(subscribers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subscribers {
		fn(event)
	}
}
