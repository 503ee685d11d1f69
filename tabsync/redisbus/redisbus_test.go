package redisbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tab-session/tabsync"
	"github.com/jrsteele09/go-tab-session/tabsync/redisbus"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type kinds struct {
	mu  sync.Mutex
	got []tabsync.Kind
}

func (k *kinds) record(e tabsync.Event) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.got = append(k.got, e.Kind)
}

func (k *kinds) list() []tabsync.Kind {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]tabsync.Kind(nil), k.got...)
}

func TestChannel_SkipsOwnMessages(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)

	a, err := redisbus.OpenChannel(ctx, client, "auth-sync", redisbus.WithNamespace("http://localhost:3000"))
	require.NoError(t, err)
	defer a.Close()
	b, err := redisbus.OpenChannel(ctx, client, "auth-sync", redisbus.WithNamespace("http://localhost:3000"))
	require.NoError(t, err)
	defer b.Close()

	fromA := make(chan string, 2)
	fromB := make(chan string, 2)
	a.OnMessage(func(d []byte) { fromA <- string(d) })
	b.OnMessage(func(d []byte) { fromB <- string(d) })

	require.NoError(t, a.PostMessage([]byte("hello")))

	select {
	case msg := <-fromB:
		require.Equal(t, "hello", msg)
	case <-time.After(waitFor):
		t.Fatal("peer did not receive message")
	}
	select {
	case msg := <-fromA:
		t.Fatalf("sender received its own message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, a.Close())
	require.ErrorIs(t, a.PostMessage([]byte("late")), redisbus.ErrClosed)
}

func TestOpenChannel_FailsWhenRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := redisbus.OpenChannel(ctx, client, "auth-sync")
	require.Error(t, err)
}

func TestStorage_ChangeEventsAndRemoval(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)

	writer, err := redisbus.NewStorage(ctx, client)
	require.NoError(t, err)
	defer writer.Close()
	reader, err := redisbus.NewStorage(ctx, client)
	require.NoError(t, err)
	defer reader.Close()

	events := make(chan tabsync.StorageEvent, 4)
	reader.OnChange(func(ev tabsync.StorageEvent) { events <- ev })
	own := make(chan tabsync.StorageEvent, 4)
	writer.OnChange(func(ev tabsync.StorageEvent) { own <- ev })

	require.NoError(t, writer.SetItem("k", "v1"))
	select {
	case ev := <-events:
		require.Equal(t, tabsync.StorageEvent{Key: "k", NewValue: "v1"}, ev)
	case <-time.After(waitFor):
		t.Fatal("no change event")
	}

	v, ok, err := reader.GetItem(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	require.NoError(t, writer.RemoveItem("k"))
	select {
	case ev := <-events:
		require.Equal(t, tabsync.StorageEvent{Key: "k", OldValue: "v1"}, ev)
	case <-time.After(waitFor):
		t.Fatal("no removal event")
	}

	_, ok, err = reader.GetItem(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	// Absent key: nothing to report
	require.NoError(t, writer.RemoveItem("k"))

	select {
	case ev := <-own:
		t.Fatalf("writer saw its own change %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_OverRedisChannel(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)

	newBus := func() *tabsync.Bus {
		storage, err := redisbus.NewStorage(ctx, client)
		require.NoError(t, err)
		t.Cleanup(func() { _ = storage.Close() })
		return tabsync.NewBus(
			tabsync.WithBroadcastChannel(redisbus.Opener(ctx, client)),
			tabsync.WithSharedStorage(storage),
		)
	}

	busA, busB := newBus(), newBus()
	defer busA.Close()
	defer busB.Close()
	require.True(t, busA.UsesDirectChannel())

	var got kinds
	busB.Subscribe(got.record)

	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignOut))
	require.Eventually(t, func() bool { return len(got.list()) == 1 }, waitFor, tick)
	require.Equal(t, []tabsync.Kind{tabsync.KindSignOut}, got.list())
}

func TestBus_OverRedisStoragePulse(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)

	newBus := func() (*tabsync.Bus, *redisbus.Storage) {
		storage, err := redisbus.NewStorage(ctx, client)
		require.NoError(t, err)
		t.Cleanup(func() { _ = storage.Close() })
		return tabsync.NewBus(
			tabsync.WithSharedStorage(storage),
			tabsync.WithPulseDelay(20*time.Millisecond),
		), storage
	}

	busA, storageA := newBus()
	busB, _ := newBus()
	defer busA.Close()
	defer busB.Close()

	var got kinds
	busB.Subscribe(got.record)

	busA.Broadcast(tabsync.NewEvent(tabsync.KindSignIn))
	require.Eventually(t, func() bool { return len(got.list()) == 1 }, waitFor, tick)

	require.Eventually(t, func() bool {
		_, ok, err := storageA.GetItem(ctx, tabsync.DefaultStorageKey)
		return err == nil && !ok
	}, waitFor, tick)
}
