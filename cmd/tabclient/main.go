// Command tabclient runs one session tab against a backend, synchronised with
// other tabs over Redis. Every process has its own cookie jar, so tabs in
// separate processes see each other's sign-outs but cannot renew from each
// other's refresh cookie.
package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tab-session/internal/config"
	"github.com/jrsteele09/go-tab-session/session"
	"github.com/jrsteele09/go-tab-session/tabsync"
	"github.com/jrsteele09/go-tab-session/tabsync/redisbus"
)

type flags struct {
	configPath  string
	api         string
	origin      string
	email       string
	password    string
	metricsAddr string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "devserver.yaml", "optional YAML overrides")
	flag.StringVar(&f.api, "api", "", "backend base URL (defaults to the configured base URL)")
	flag.StringVar(&f.origin, "origin", "http://localhost:3000", "origin whose tabs to join")
	flag.StringVar(&f.email, "email", "", "sign in with this account")
	flag.StringVar(&f.password, "password", "", "password for -email")
	flag.StringVar(&f.metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	if err := run(f); err != nil {
		log.Fatal().Err(err).Msg("tabclient failed")
	}
}

func run(f flags) error {
	c, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.api == "" {
		f.api = c.GetBaseURL()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.GetRedisAddr(),
		Password: c.GetRedisPassword(),
		DB:       c.GetRedisDB(),
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "[run] redis ping")
	}

	busOpts := []redisbus.Option{redisbus.WithNamespace("tabsync:" + f.origin)}
	storage, err := redisbus.NewStorage(ctx, rdb, busOpts...)
	if err != nil {
		return err
	}
	defer storage.Close()

	bus := tabsync.NewBus(
		tabsync.WithBroadcastChannel(redisbus.Opener(ctx, rdb, busOpts...)),
		tabsync.WithSharedStorage(storage),
		tabsync.WithChannelName(c.GetChannelName()),
		tabsync.WithStorageKey(c.GetStorageKey()),
		tabsync.WithPulseDelay(c.GetPulseDelay()),
	)
	defer bus.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return errors.Wrap(err, "[run] cookie jar")
	}

	registry := prometheus.NewRegistry()
	options := append(session.FromConfig(c), session.WithMetrics(session.NewMetrics(registry)))
	client, err := session.NewClient(session.ClientConfig{
		BaseURL:   f.api,
		CookieJar: jar,
		Messenger: bus,
		Timeout:   c.GetRequestTimeout(),
	}, options...)
	if err != nil {
		return err
	}
	defer client.Close()

	if f.metricsAddr != "" {
		go serveMetrics(f.metricsAddr, registry)
	}

	unwatch := client.Watch(func(s session.Snapshot) {
		event := log.Info().Str("state", string(s.State))
		if s.Identity != nil {
			event = event.Str("email", s.Identity.Email).Str("role", s.Identity.Role)
		}
		event.Msg("session")
	})
	defer unwatch()

	client.Start(ctx)

	if f.email != "" {
		if err := client.SignIn(ctx, f.email, f.password); err != nil {
			return errors.Wrap(err, "[run] sign in")
		}
	}

	<-ctx.Done()
	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Err(err).Msg("metrics server stopped")
	}
}
