package tabsync_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-tab-session/browser"
	"github.com/jrsteele09/go-tab-session/tabsync"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

type recorder struct {
	mu     sync.Mutex
	events []tabsync.Event
}

func (r *recorder) record(e tabsync.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []tabsync.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]tabsync.Kind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTabBus(tab *browser.Tab, options ...tabsync.BusOption) *tabsync.Bus {
	opts := append([]tabsync.BusOption{
		tabsync.WithBroadcastChannel(tab.OpenBroadcastChannel),
		tabsync.WithSharedStorage(tab.LocalStorage()),
		tabsync.WithPulseDelay(10 * time.Millisecond),
	}, options...)
	return tabsync.NewBus(opts...)
}

func TestBus_DirectChannelDeliversToOtherTabs(t *testing.T) {
	origin := browser.NewOrigin("http://localhost:3000")
	tabA, tabB := origin.OpenTab(), origin.OpenTab()
	busA, busB := newTabBus(tabA), newTabBus(tabB)
	defer busA.Close()
	defer busB.Close()

	require.True(t, busA.UsesDirectChannel())

	var own, other recorder
	busA.Subscribe(own.record)
	busB.Subscribe(other.record)

	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignIn))

	require.Eventually(t, func() bool { return other.count() == 1 }, waitFor, tick)
	require.Equal(t, []tabsync.Kind{tabsync.KindSignIn}, other.kinds())
	require.Never(t, func() bool { return own.count() > 0 }, 50*time.Millisecond, tick, "a tab never hears its own broadcast")

	_, written := origin.Item(tabsync.DefaultStorageKey)
	require.False(t, written, "the direct channel leaves storage untouched")
}

func TestBus_FallsBackToStoragePulse(t *testing.T) {
	origin := browser.NewOrigin("http://localhost:3000", browser.WithoutBroadcastChannel())
	tabA, tabB := origin.OpenTab(), origin.OpenTab()
	busA, busB := newTabBus(tabA), newTabBus(tabB)
	defer busA.Close()
	defer busB.Close()

	require.False(t, busA.UsesDirectChannel())

	var own, other recorder
	busA.Subscribe(own.record)
	busB.Subscribe(other.record)

	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignOut))

	require.Eventually(t, func() bool { return other.count() == 1 }, waitFor, tick)
	require.Equal(t, []tabsync.Kind{tabsync.KindSignOut}, other.kinds())

	require.Eventually(t, func() bool {
		_, ok := origin.Item(tabsync.DefaultStorageKey)
		return !ok
	}, waitFor, tick, "the pulse value is removed after the delay")
	require.Zero(t, own.count())
}

func TestBus_RepeatedPulsesRetrigger(t *testing.T) {
	origin := browser.NewOrigin("http://localhost:3000", browser.WithoutBroadcastChannel())
	busA, busB := newTabBus(origin.OpenTab()), newTabBus(origin.OpenTab())
	defer busA.Close()
	defer busB.Close()

	var other recorder
	busB.Subscribe(other.record)

	busA.Broadcast(tabsync.NewEvent(tabsync.KindCredentialRenewed))
	require.Eventually(t, func() bool { return other.count() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool {
		_, ok := origin.Item(tabsync.DefaultStorageKey)
		return !ok
	}, waitFor, tick)

	busA.Broadcast(tabsync.NewEvent(tabsync.KindCredentialRenewed))
	require.Eventually(t, func() bool { return other.count() == 2 }, waitFor, tick)
}

type failingChannel struct{}

func (failingChannel) PostMessage([]byte) error { return errors.New("post failed") }
func (failingChannel) OnMessage(func([]byte))   {}
func (failingChannel) Close() error             { return nil }

func TestBus_PostMessageFailureFallsBack(t *testing.T) {
	origin := browser.NewOrigin("http://localhost:3000")
	tabA, tabB := origin.OpenTab(), origin.OpenTab()

	busA := newTabBus(tabA, tabsync.WithBroadcastChannel(func(string) (tabsync.BroadcastChannel, error) {
		return failingChannel{}, nil
	}))
	busB := newTabBus(tabB)
	defer busA.Close()
	defer busB.Close()

	var other recorder
	busB.Subscribe(other.record)

	require.NotPanics(t, func() { busA.Broadcast(tabsync.NewEvent(tabsync.KindSignIn)) })
	require.Eventually(t, func() bool { return other.count() == 1 }, waitFor, tick)
}

func TestBus_NoTransportIsSilent(t *testing.T) {
	bus := tabsync.NewBus()
	require.False(t, bus.UsesDirectChannel())
	require.NotPanics(t, func() { bus.Broadcast(tabsync.NewEvent(tabsync.KindSignOut)) })
	require.NoError(t, bus.Close())
}

func TestBus_MultipleSubscribersAndUnsubscribe(t *testing.T) {
	origin := browser.NewOrigin("http://localhost:3000")
	busA, busB := newTabBus(origin.OpenTab()), newTabBus(origin.OpenTab())
	defer busA.Close()
	defer busB.Close()

	var first, second recorder
	busB.Subscribe(first.record)
	unsubscribe := busB.Subscribe(second.record)

	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignIn))
	require.Eventually(t, func() bool { return first.count() == 1 && second.count() == 1 }, waitFor, tick)

	unsubscribe()
	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignOut))
	require.Eventually(t, func() bool { return first.count() == 2 }, waitFor, tick)
	require.Equal(t, 1, second.count())
}

func TestBus_IgnoresForeignAndMalformedValues(t *testing.T) {
	origin := browser.NewOrigin("http://localhost:3000", browser.WithoutBroadcastChannel())
	writer := origin.OpenTab().LocalStorage()
	bus := newTabBus(origin.OpenTab())
	defer bus.Close()

	var got recorder
	bus.Subscribe(got.record)

	require.NoError(t, writer.SetItem(tabsync.DefaultStorageKey, "{not json"))
	require.NoError(t, writer.SetItem(tabsync.DefaultStorageKey, `{"type":"bogus","timestamp":1}`))
	require.NoError(t, writer.SetItem("cart", `{"type":"login","timestamp":1}`))

	require.Never(t, func() bool { return got.count() > 0 }, 50*time.Millisecond, tick)
}

func TestBus_FrozenTabMissesEvents(t *testing.T) {
	origin := browser.NewOrigin("http://localhost:3000")
	tabB := origin.OpenTab()
	busA, busB := newTabBus(origin.OpenTab()), newTabBus(tabB)
	defer busA.Close()
	defer busB.Close()

	var other recorder
	busB.Subscribe(other.record)

	tabB.Freeze(true)
	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignOut))
	require.Never(t, func() bool { return other.count() > 0 }, 50*time.Millisecond, tick)

	tabB.Freeze(false)
	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignIn))
	require.Eventually(t, func() bool { return other.count() == 1 }, waitFor, tick)
	require.Equal(t, []tabsync.Kind{tabsync.KindSignIn}, other.kinds())
}

func TestBus_ClosedBusStopsDelivering(t *testing.T) {
	origin := browser.NewOrigin("http://localhost:3000")
	busA, busB := newTabBus(origin.OpenTab()), newTabBus(origin.OpenTab())
	defer busA.Close()

	var other recorder
	busB.Subscribe(other.record)
	require.NoError(t, busB.Close())

	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignIn))
	require.Never(t, func() bool { return other.count() > 0 }, 50*time.Millisecond, tick)
}

func TestBus_ClosedBusDropsBroadcasts(t *testing.T) {
	origin := browser.NewOrigin("http://localhost:3000")
	busA, busB := newTabBus(origin.OpenTab()), newTabBus(origin.OpenTab())
	defer busB.Close()

	var other recorder
	busB.Subscribe(other.record)
	require.NoError(t, busA.Close())

	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignOut))

	_, written := origin.Item(tabsync.DefaultStorageKey)
	require.False(t, written, "no storage pulse after close")
	require.Never(t, func() bool { return other.count() > 0 }, 50*time.Millisecond, tick)
}
