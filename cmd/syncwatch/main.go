// Command syncwatch joins a Redis-backed tab-sync origin and logs every
// session event other tabs broadcast. With -send it broadcasts one event
// itself and exits.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tab-session/internal/config"
	"github.com/jrsteele09/go-tab-session/tabsync"
	"github.com/jrsteele09/go-tab-session/tabsync/redisbus"
)

func main() {
	configPath := flag.String("config", "devserver.yaml", "optional YAML overrides")
	origin := flag.String("origin", "http://localhost:3000", "origin whose tabs to join")
	send := flag.String("send", "", "broadcast one event (login, logout, token-refreshed) and exit")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	if err := run(*configPath, *origin, tabsync.Kind(*send)); err != nil {
		log.Fatal().Err(err).Msg("syncwatch failed")
	}
}

func run(configPath, origin string, send tabsync.Kind) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := redis.NewClient(&redis.Options{
		Addr:     c.GetRedisAddr(),
		Password: c.GetRedisPassword(),
		DB:       c.GetRedisDB(),
	})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "[run] redis ping")
	}

	opts := []redisbus.Option{redisbus.WithNamespace("tabsync:" + origin)}
	storage, err := redisbus.NewStorage(ctx, client, opts...)
	if err != nil {
		return err
	}
	defer storage.Close()

	bus := tabsync.NewBus(
		tabsync.WithBroadcastChannel(redisbus.Opener(ctx, client, opts...)),
		tabsync.WithSharedStorage(storage),
		tabsync.WithChannelName(c.GetChannelName()),
		tabsync.WithStorageKey(c.GetStorageKey()),
		tabsync.WithPulseDelay(c.GetPulseDelay()),
	)
	defer bus.Close()

	if send != "" {
		if !send.Valid() {
			return errors.Errorf("[run] unknown event %q", send)
		}
		bus.Broadcast(tabsync.NewEvent(send))
		// Let a storage pulse finish before the deferred Close
		time.Sleep(2 * c.GetPulseDelay())
		log.Info().Str("event", string(send)).Msg("sent")
		return nil
	}

	bus.Subscribe(func(ev tabsync.Event) {
		log.Info().
			Str("event", string(ev.Kind)).
			Time("at", time.UnixMilli(ev.Timestamp)).
			Msg("received")
	})
	log.Info().Str("origin", origin).Bool("direct_channel", bus.UsesDirectChannel()).Msg("watching")
	<-ctx.Done()
	return nil
}
