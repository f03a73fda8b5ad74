package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/novaquery/internal/cache"
	"github.com/tuannm99/novaquery/internal/config"
	"github.com/tuannm99/novaquery/internal/cursor"
	"github.com/tuannm99/novaquery/internal/dispatch"
	"github.com/tuannm99/novaquery/internal/logger"
	"github.com/tuannm99/novaquery/internal/metrics"
	"github.com/tuannm99/novaquery/server/httpapi"
	"github.com/tuannm99/novaquery/server/novasqlwire"
)

var (
	configFile string
	addr       string
	httpAddr   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "novaquery-server",
		Short: "novaquery query gateway",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "TCP listen address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the TCP and HTTP listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}

			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if httpAddr != "" {
				cfg.Server.HTTPAddr = httpAddr
			}

			log, err := logger.New(cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, log)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	metrics.Register()

	store, closeStore, err := newCursorStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	d := dispatch.New(
		dispatch.EchoEngine{},
		store,
		dispatch.Options{
			PageSize:  cfg.Dispatch.PageSize,
			CursorTTL: cfg.Cursor.TTL,
			Cache:     cache.New[*dispatch.Result](cfg.Cache.Size, cfg.Cache.TTL),
		},
		log.With("component", "dispatch"),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return novasqlwire.NewServer(d, log.With("component", "tcp")).ListenAndServe(ctx, cfg.Server.Addr)
	})

	if cfg.Server.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           httpapi.NewRouter(httpapi.NewHandler(d, log.With("component", "http"))),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Infow("novaquery http server listening", "addr", cfg.Server.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Infow("novaquery started",
		"app", cfg.AppName,
		"cursor_store", cfg.Cursor.Store,
		"page_size", cfg.Dispatch.PageSize,
	)

	err = g.Wait()
	log.Infow("novaquery stopped")
	return err
}

func newCursorStore(ctx context.Context, cfg *config.Config) (cursor.Store, func(), error) {
	if cfg.Cursor.Store != config.CursorStoreRedis {
		mem := cursor.NewMemoryStore()
		prometheus.MustRegister(metrics.OpenCursors(mem.Len))
		return mem, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return cursor.NewRedisStore(client, ""), func() { _ = client.Close() }, nil
}
