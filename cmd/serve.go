package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wpbridge/internal/config"
	"github.com/nextlevelbuilder/wpbridge/internal/connections"
	"github.com/nextlevelbuilder/wpbridge/internal/crypto"
	"github.com/nextlevelbuilder/wpbridge/internal/httpapi"
	"github.com/nextlevelbuilder/wpbridge/internal/idempotency"
	"github.com/nextlevelbuilder/wpbridge/internal/kv"
	"github.com/nextlevelbuilder/wpbridge/internal/limiter"
	"github.com/nextlevelbuilder/wpbridge/internal/pairing"
	"github.com/nextlevelbuilder/wpbridge/internal/store"
	"github.com/nextlevelbuilder/wpbridge/internal/store/mem"
	"github.com/nextlevelbuilder/wpbridge/internal/store/pg"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pairing and site-management HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vault, err := crypto.New(cfg.Security.EncryptionSecret)
	if err != nil {
		return err
	}

	opts := []httpapi.Option{}
	if len(cfg.Server.AllowedOrigins) > 0 {
		opts = append(opts, httpapi.WithAllowedOrigins(cfg.Server.AllowedOrigins))
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var stores store.Stores
	if cfg.StoreConfig().IsManaged() {
		db, err := pg.OpenDB(cfg.Database.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		stores = store.Stores{
			Links:       pg.NewDeviceLinkStore(db),
			Connections: pg.NewConnectionStore(db),
		}
		opts = append(opts, httpapi.WithHealthCheck("postgres", pingDB(db)))
		slog.Info("store mode", "mode", "managed")
	} else {
		m := mem.New()
		stores = store.Stores{Links: m.Links(), Connections: m.Connections()}
		slog.Warn("store mode", "mode", "standalone", "note", "device links and connections are not persisted")
	}

	// Counters: Redis when configured, in-process fallback otherwise.
	var counters kv.Store
	if cfg.Database.Redis.Addr != "" {
		rs, err := kv.NewRedisStore(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rs.Close()
		counters = rs
		opts = append(opts, httpapi.WithHealthCheck("redis", rs.Ping))
	} else {
		counters = kv.NewMemoryStore()
		slog.Warn("no shared counter store configured; rate limits are per-instance")
	}

	coord := pairing.NewCoordinator(stores.Links, stores.Connections, vault, nil)
	sites := connections.NewService(stores.Connections, vault)

	srv := httpapi.NewServer(
		coord,
		sites,
		limiter.New(counters),
		idempotency.New(counters, idempotency.DefaultTTL),
		opts...,
	)
	return srv.Run(ctx, cfg.Server.Addr)
}

func pingDB(db *sql.DB) httpapi.HealthCheck {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}
}
