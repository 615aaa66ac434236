// Package relay hosts the chat relay daemon: the transport client, the HTTP
// front for the widget wire contract, and the optional archive/cache
// backends.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/embedkit/relay/internal/core/config"
	"github.com/embedkit/relay/internal/core/domain"
	redisclient "github.com/embedkit/relay/internal/infra/redis"
	"github.com/embedkit/relay/internal/infra/storage/postgres"
	"github.com/embedkit/relay/internal/transport"
	"github.com/embedkit/relay/internal/transport/cache"
)

// App wires the relay's dependencies and manages their lifecycle.
type App struct {
	cfg    *config.AppConfig
	log    *slog.Logger
	client *transport.Client
	server *Server

	redisClient *redisclient.Client
	db          *postgres.DB
	archive     *postgres.RequestLogRepo

	unsubscribes []func()
}

// NewApp initializes storage backends and the transport client.
func NewApp(cfg *config.AppConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	app := &App{cfg: cfg, log: log}

	// Response cache: Redis when configured, else in-process.
	var store cache.Store
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		app.redisClient = rc
		store = cache.NewRedisStore(rc, log)
		log.Info("Using Redis response cache")
	}

	// Request-log archive: optional.
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		app.db = db
		app.archive = postgres.NewRequestLogRepo(db)
		log.Info("Using PostgreSQL request-log archive")
	}

	client, err := transport.NewClient(transport.Options{
		BackendURL:            cfg.Backend.URL,
		ChatPath:              cfg.Backend.ChatPath,
		ProbeURL:              cfg.Backend.ProbeURL,
		CacheStore:            store,
		Logger:                log,
		MaxConcurrentRequests: cfg.Transport.MaxConcurrentRequests,
		CacheTTL:              cfg.Transport.CacheTTL,
		HistorySize:           cfg.Transport.HistorySize,
		RequestTimeout:        cfg.Backend.Timeout,
		HealthCheckInterval:   cfg.Transport.HealthCheckInterval,
		MaxReconnectAttempts:  cfg.Transport.MaxReconnectAttempts,
	})
	if err != nil {
		return nil, err
	}
	app.client = client

	if app.archive != nil {
		app.wireArchive()
	}

	app.server = NewServer(client, cfg.Server.Port, log)
	return app, nil
}

// wireArchive persists terminal log entries in the background. Archive
// failures are logged and never surfaced to request callers.
func (a *App) wireArchive() {
	persist := func(entry domain.RequestLogEntry) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.archive.Insert(ctx, entry); err != nil {
				a.log.Warn("failed to archive request log entry", "request_id", entry.ID, "error", err)
			}
		}()
	}
	a.unsubscribes = append(a.unsubscribes,
		a.client.OnRequestComplete(persist),
		a.client.OnRequestError(persist),
	)
}

// Start begins health monitoring and serving HTTP.
func (a *App) Start(ctx context.Context) error {
	a.client.Start(ctx)

	go func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("relay server stopped", "error", err)
		}
	}()

	if a.archive != nil && a.cfg.Transport.ArchiveRetention > 0 {
		go a.pruneLoop(ctx)
	}

	a.log.Info("relay started", "port", a.cfg.Server.Port, "backend", a.cfg.Backend.URL)
	return nil
}

// Stop shuts everything down within ctx's deadline.
func (a *App) Stop(ctx context.Context) error {
	for _, unsub := range a.unsubscribes {
		unsub()
	}

	if err := a.server.Stop(ctx); err != nil {
		a.log.Warn("server shutdown error", "error", err)
	}
	if err := a.client.Close(); err != nil {
		a.log.Warn("transport close error", "error", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("redis close error", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("db close error", "error", err)
		}
	}
	return nil
}

func (a *App) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.archive.Prune(ctx, a.cfg.Transport.ArchiveRetention)
			if err != nil {
				a.log.Warn("archive prune failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.Debug("pruned archived request logs", "rows", n)
			}
		}
	}
}
