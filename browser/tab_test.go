package browser_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-tab-session/browser"
	"github.com/jrsteele09/go-tab-session/tabsync"
	"github.com/stretchr/testify/require"
)

func TestTab_VisibilityListenersFireOnTransitionsOnly(t *testing.T) {
	tab := browser.NewOrigin("http://localhost").OpenTab()
	require.True(t, tab.Visible())

	var mu sync.Mutex
	var changes []bool
	unsubscribe := tab.OnVisibilityChange(func(v bool) {
		mu.Lock()
		changes = append(changes, v)
		mu.Unlock()
	})

	tab.SetVisible(true) // no transition
	tab.SetVisible(false)
	tab.SetVisible(true)
	unsubscribe()
	tab.SetVisible(false)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{false, true}, changes)
}

func TestOrigin_WithoutBroadcastChannel(t *testing.T) {
	tab := browser.NewOrigin("http://localhost", browser.WithoutBroadcastChannel()).OpenTab()
	_, err := tab.OpenBroadcastChannel("auth-sync")
	require.ErrorIs(t, err, browser.ErrBroadcastUnsupported)
}

func TestChannel_DeliversToPeersWithSameName(t *testing.T) {
	origin := browser.NewOrigin("http://localhost")
	a, err := origin.OpenTab().OpenBroadcastChannel("auth-sync")
	require.NoError(t, err)
	b, err := origin.OpenTab().OpenBroadcastChannel("auth-sync")
	require.NoError(t, err)
	other, err := origin.OpenTab().OpenBroadcastChannel("other")
	require.NoError(t, err)

	received := make(chan string, 3)
	a.OnMessage(func(d []byte) { received <- "a:" + string(d) })
	b.OnMessage(func(d []byte) { received <- "b:" + string(d) })
	other.OnMessage(func(d []byte) { received <- "other:" + string(d) })

	require.NoError(t, a.PostMessage([]byte("hi")))

	select {
	case msg := <-received:
		require.Equal(t, "b:hi", msg)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	select {
	case msg := <-received:
		t.Fatalf("unexpected delivery %q", msg)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, a.Close())
	require.ErrorIs(t, a.PostMessage([]byte("again")), browser.ErrChannelClosed)
}

func TestStorage_EventsReachOtherTabsOnly(t *testing.T) {
	origin := browser.NewOrigin("http://localhost")
	writer, reader := origin.OpenTab(), origin.OpenTab()

	writerEvents := make(chan tabsync.StorageEvent, 4)
	readerEvents := make(chan tabsync.StorageEvent, 4)
	writer.LocalStorage().OnChange(func(ev tabsync.StorageEvent) { writerEvents <- ev })
	reader.LocalStorage().OnChange(func(ev tabsync.StorageEvent) { readerEvents <- ev })

	require.NoError(t, writer.LocalStorage().SetItem("k", "v1"))
	ev := <-readerEvents
	require.Equal(t, tabsync.StorageEvent{Key: "k", NewValue: "v1"}, ev)

	require.NoError(t, writer.LocalStorage().RemoveItem("k"))
	ev = <-readerEvents
	require.Equal(t, tabsync.StorageEvent{Key: "k", OldValue: "v1"}, ev)

	// Removing a missing key changes nothing
	require.NoError(t, writer.LocalStorage().RemoveItem("k"))

	select {
	case ev := <-writerEvents:
		t.Fatalf("writer saw its own change %+v", ev)
	case ev := <-readerEvents:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTab_CloseDetachesEverything(t *testing.T) {
	origin := browser.NewOrigin("http://localhost")
	closing := origin.OpenTab()

	events := make(chan tabsync.StorageEvent, 1)
	closing.LocalStorage().OnChange(func(ev tabsync.StorageEvent) { events <- ev })
	_, err := closing.OpenBroadcastChannel("auth-sync")
	require.NoError(t, err)

	closing.Close()

	require.NoError(t, origin.OpenTab().LocalStorage().SetItem("k", "v"))
	select {
	case <-events:
		t.Fatal("closed tab received a storage event")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = closing.OpenBroadcastChannel("auth-sync")
	require.ErrorIs(t, err, browser.ErrTabClosed)
	require.ErrorIs(t, closing.LocalStorage().SetItem("k", "v"), browser.ErrTabClosed)
}
