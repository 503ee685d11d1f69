package tabsync

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// transport is one outbound delivery mechanism.
type transport interface {
	send(data []byte) error
	close() error
}

type channelTransport struct {
	ch BroadcastChannel
}

func (t *channelTransport) send(data []byte) error {
	return t.ch.PostMessage(data)
}

func (t *channelTransport) close() error {
	return t.ch.Close()
}

// pulseTransport writes the event to a shared key and removes it shortly
// after, so that a repeat of the same event changes the value again and
// re-triggers listeners, and a tab attaching late never reads a stale event.
type pulseTransport struct {
	storage SharedStorage
	key     string
	delay   time.Duration
	log     zerolog.Logger
}

func (t *pulseTransport) send(data []byte) error {
	if err := t.storage.SetItem(t.key, string(data)); err != nil {
		return err
	}
	time.AfterFunc(t.delay, func() {
		if err := t.storage.RemoveItem(t.key); err != nil {
			t.log.Debug().Err(err).Str("key", t.key).Msg("tabsync: pulse removal failed")
		}
	})
	return nil
}

func (t *pulseTransport) close() error {
	return nil
}

var errNoTransport = errors.New("no tab-sync transport available")
