package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/wagatehq/wagate/internal/config"
	"github.com/wagatehq/wagate/internal/dispatch"
	"github.com/wagatehq/wagate/internal/handlers"
	"github.com/wagatehq/wagate/internal/logger"
	"github.com/wagatehq/wagate/internal/media"
	"github.com/wagatehq/wagate/internal/message"
	"github.com/wagatehq/wagate/internal/notify"
	"github.com/wagatehq/wagate/internal/responder"
	"github.com/wagatehq/wagate/internal/server"
	"github.com/wagatehq/wagate/internal/session"
	"github.com/wagatehq/wagate/internal/storage"
	"github.com/wagatehq/wagate/internal/transport"
	"github.com/wagatehq/wagate/internal/transport/whatsapp"
	"github.com/wagatehq/wagate/internal/webhook"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideSessionStore,
			storage.NewCallbackStore,
			storage.NewKeywordStore,
			storage.NewArchiveStore,
			notify.NewHub,
			provideCredentialStore,
			provideNormalizer,
			provideMediaStore,
			provideForwarder,
			provideChain,
			provideDispatcher,
			provideDialer,
			provideManager,
			handlers.NewPingHandler,
			provideSessionHandler,
			provideMessageHandler,
			handlers.NewCallbackHandler,
			handlers.NewKeywordHandler,
			handlers.NewWSHandler,
			provideServer,
		),
		fx.Invoke(
			bootstrapSessions,
			startArchivePruner,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logger.New(cfg.Log)
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := storage.Migrate(cfg.Postgres); err != nil {
		return nil, err
	}
	conn, err := storage.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideSessionStore(log *slog.Logger, pool *pgxpool.Pool) session.Store {
	return storage.NewSessionStore(log, pool)
}

func provideCredentialStore(log *slog.Logger, cfg config.Config) *session.CredentialStore {
	return session.NewCredentialStore(log, cfg.Session.SessionPath)
}

func provideNormalizer(log *slog.Logger, cfg config.Config) *message.Normalizer {
	return message.NewNormalizer(log, cfg.Session.CommandPrefix)
}

func provideMediaStore(log *slog.Logger, cfg config.Config) *media.Store {
	return media.NewStore(log, cfg.Webhook.UploadPath, cfg.Server.PublicHost)
}

func provideForwarder(log *slog.Logger, callbacks *storage.CallbackStore, store *media.Store, cfg config.Config) *webhook.Forwarder {
	timeout := time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second
	return webhook.NewForwarder(log, callbacks, store, cfg.Webhook.URL, cfg.Webhook.Token, timeout)
}

func provideChain(log *slog.Logger, keywords *storage.KeywordStore) *responder.Chain {
	return responder.NewChain(log, keywords.Buttons(), keywords.Lists(), keywords.Autos())
}

func provideDispatcher(log *slog.Logger, normalizer *message.Normalizer, forwarder *webhook.Forwarder, chain *responder.Chain, archive *storage.ArchiveStore) *dispatch.Dispatcher {
	d := dispatch.NewDispatcher(log, normalizer, forwarder, chain)
	d.SetArchiver(archive)
	return d
}

func provideDialer(log *slog.Logger, cfg config.Config) (transport.Dialer, error) {
	whatsapp.Configure(whatsapp.Config{DSN: cfg.Postgres.DSN(), Logger: log})
	return transport.Open(cfg.Session.Transport)
}

func provideManager(log *slog.Logger, dialer transport.Dialer, store session.Store, creds *session.CredentialStore, dispatcher *dispatch.Dispatcher, hub *notify.Hub, mediaStore *media.Store, cfg config.Config) (*session.Manager, error) {
	qrDelay, err := time.ParseDuration(cfg.Session.QRDelay)
	if err != nil {
		return nil, fmt.Errorf("parse qr_delay: %w", err)
	}
	m := session.NewManager(
		log,
		dialer,
		store,
		creds,
		dispatcher,
		hub,
		cfg.Session.LogPath,
		cfg.Session.QRMaxAttempts,
		qrDelay,
	)
	m.SetMediaCleaner(mediaStore)
	return m, nil
}

func provideSessionHandler(log *slog.Logger, manager *session.Manager, store session.Store) *handlers.SessionHandler {
	return handlers.NewSessionHandler(log, manager, store)
}

func provideMessageHandler(log *slog.Logger, manager *session.Manager, keywords *storage.KeywordStore) *handlers.MessageHandler {
	return handlers.NewMessageHandler(log, manager, keywords)
}

func provideServer(cfg config.Config, ping *handlers.PingHandler, sessions *handlers.SessionHandler, messages *handlers.MessageHandler, callbacks *handlers.CallbackHandler, keywords *handlers.KeywordHandler, ws *handlers.WSHandler) *server.Server {
	return server.NewServer(
		cfg.Server.Addr,
		cfg.Server.APIKey,
		cfg.Webhook.UploadPath,
		ping,
		sessions,
		messages,
		callbacks,
		keywords,
		ws,
	)
}

func bootstrapSessions(lc fx.Lifecycle, manager *session.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return manager.Bootstrap(ctx) },
		OnStop:  func(ctx context.Context) error { manager.Shutdown(ctx); return nil },
	})
}

func startArchivePruner(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, archive *storage.ArchiveStore) error {
	maxAge := time.Duration(cfg.Archive.MaxAgeDays) * 24 * time.Hour
	if maxAge <= 0 {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(cfg.Archive.PruneSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		removed, err := archive.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
		if err != nil {
			log.Error("archive prune failed", slog.Any("error", err))
			return
		}
		log.Info("archive pruned", slog.Int64("removed", removed))
	})
	if err != nil {
		return fmt.Errorf("schedule archive prune: %w", err)
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { c.Start(); return nil },
		OnStop:  func(ctx context.Context) error { <-c.Stop().Done(); return nil },
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
