package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/georgemunganga/stockwatch/internal/config"
	"github.com/georgemunganga/stockwatch/internal/db"
	"github.com/georgemunganga/stockwatch/internal/modules/alert"
	"github.com/georgemunganga/stockwatch/internal/modules/changefeed"
	"github.com/georgemunganga/stockwatch/internal/modules/notification"
	"github.com/georgemunganga/stockwatch/internal/modules/product"
	"github.com/georgemunganga/stockwatch/internal/modules/tenant"
	"github.com/georgemunganga/stockwatch/internal/obs"
	"github.com/georgemunganga/stockwatch/internal/server"
	"github.com/lib/pq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stockwatch",
		Short:         "Multi-tenant inventory API with low-stock alerting",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			config.LoadDotEnv()
		},
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the alert pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			obs.InitLogger(cfg.LogLevel)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg); err != nil {
				obs.Logger.Error("serve_failed", "error", err)
				return err
			}
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var shards int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema and provision feed shards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			obs.InitLogger(cfg.LogLevel)
			if shards <= 0 {
				shards = cfg.FeedShards
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			conn, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				obs.Logger.Error("migrate_failed", "error", err)
				return err
			}
			defer conn.Close()
			if err := db.Migrate(ctx, conn, shards); err != nil {
				obs.Logger.Error("migrate_failed", "error", err)
				return err
			}
			obs.Logger.Info("migrate_done", "shards", shards)
			return nil
		},
	}
	cmd.Flags().IntVar(&shards, "shards", 0, "feed shards to provision (default FEED_SHARDS)")
	return cmd
}

type backend struct {
	repo  product.Repository
	feed  changefeed.Feed
	ping  func(context.Context) error
	close func()
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log := changefeed.NewLog(cfg.FeedShards)
		return &backend{repo: product.NewMemoryStore(log), feed: log, close: func() {}}, nil

	case config.BackendPostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		feed := changefeed.NewPostgresFeed(conn, cfg.FeedShards)
		if err := feed.Listen(cfg.DatabaseURL, listenerEvents); err != nil {
			obs.Logger.Warn("feed_listen_failed", "error", err, "fallback", "polling")
		}
		return &backend{
			repo: product.NewPostgresStore(conn, cfg.FeedShards),
			feed: feed,
			ping: conn.PingContext,
			close: func() {
				_ = feed.Close()
				closeDB(conn)
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}

func listenerEvents(ev pq.ListenerEventType, err error) {
	if err != nil {
		obs.Logger.Warn("feed_listener_event", "event", int(ev), "error", err)
	}
}

func closeDB(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		obs.Logger.Warn("db_close_failed", "error", err)
	}
}

func newBroker(cfg config.Config) (*notification.Broker, *notification.Recorder, error) {
	broker := notification.NewBroker()
	recorder := notification.NewRecorder(cfg.AlertHistorySize)
	if err := broker.Subscribe("recorder", recorder); err != nil {
		return nil, nil, err
	}
	if err := broker.Subscribe("log", notification.LogPublisher{}); err != nil {
		return nil, nil, err
	}
	if cfg.AlertWebhookURL != "" {
		if err := broker.Subscribe("webhook", notification.NewWebhook(cfg.AlertWebhookURL, cfg.PublishTimeout)); err != nil {
			return nil, nil, err
		}
	}
	return broker, recorder, nil
}

func tenantResolver(cfg config.Config) tenant.Resolver {
	res := tenant.Resolver{Header: cfg.TenantHeader, Demo: cfg.DemoTenant, Claim: cfg.JWTTenantClaim}
	if cfg.JWTSecret != "" {
		res.Secret = []byte(cfg.JWTSecret)
	}
	return res
}

func serve(ctx context.Context, cfg config.Config) error {
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	broker, recorder, err := newBroker(cfg)
	if err != nil {
		return err
	}
	pipeline := alert.NewPipeline(be.feed, broker, alert.OptionsFromConfig(cfg))

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Products: product.NewService(be.repo),
			Tenants:  tenantResolver(cfg),
			Recorder: recorder,
			Pipeline: pipeline,
			Ping:     be.ping,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipeline.Run(gctx) })
	g.Go(func() error {
		obs.Logger.Info("server_listening",
			"addr", cfg.HTTPAddr,
			"backend", cfg.StoreBackend,
			"shards", cfg.FeedShards,
			"subscribers", broker.Subscribers(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		obs.Logger.Info("server_shutting_down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
