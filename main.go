package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-session-keeper/backup"
	"whatsapp-session-keeper/config"
	"whatsapp-session-keeper/dashboard"
	"whatsapp-session-keeper/status"
	"whatsapp-session-keeper/store"
	"whatsapp-session-keeper/supervisor"
	"whatsapp-session-keeper/types"
	"whatsapp-session-keeper/utils"
	"whatsapp-session-keeper/whatsapp"
)

func main() {
	configFile := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		errLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		errLog.Fatal().Err(err).Msg("loading configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("opening session store")
	}

	var sink status.Sink
	if cfg.Sink.URL != "" {
		sink = status.NewRemoteSink(cfg.Sink.URL)
	} else {
		sink = status.NewLogSink(log)
	}
	publisher := status.NewPublisher(sink, log)

	gateway := backup.NewGateway(st, log)
	factory := whatsapp.NewFactory(cfg.DataDir, cfg.RenderQR, log)

	sup := supervisor.New(
		types.BotIdentity(cfg.Identity),
		factory,
		gateway,
		publisher,
		log,
		supervisor.Config{
			BaseRetryDelay:        cfg.Retry.BaseDelay,
			MaxRetryDelay:         cfg.Retry.MaxDelay,
			InitFailureLimit:      cfg.Retry.InitFailureLimit,
			InitFailureWindow:     cfg.Retry.InitFailureWindow,
			ShutdownBackupTimeout: cfg.Retry.ShutdownBackupTimeout,
		},
	)
	registry := supervisor.NewRegistry()
	registry.Add(sup)
	sup.Start()

	server := dashboard.NewServer(cfg.ListenAddr, sup, st, log)
	server.Start()

	log.Info().
		Str("identity", cfg.Identity).
		Str("store", cfg.Store.Backend).
		Msg("session keeper running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	if err := registry.ShutdownAll(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("supervisor shutdown")
	}
	publisher.Close()
	if err := closeStore(); err != nil {
		log.Warn().Err(err).Msg("closing session store")
	}
	log.Info().Msg("shutdown complete")
}

// openStore builds the configured store backend. Badger opens with a few
// retries since a stale lock from an unclean exit clears within seconds.
func openStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (store.SessionStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "badger":
		var bs *store.BadgerStore
		err := utils.WithRetry(ctx, func() error {
			var err error
			bs, err = store.NewBadgerStore(cfg.Path)
			return err
		}, utils.DefaultRetryConfig())
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil
	case "file":
		fs, err := store.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil
	case "remote":
		return store.NewRemoteStore(cfg.URL), noop, nil
	default:
		return store.NewMemoryStore(), noop, nil
	}
}
