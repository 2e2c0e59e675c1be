// Constellation is the saved-items and collections service.
//
// It persists a user's references to external catalog content, organizes
// them into named, ordered collections, and serves them back with search
// and pagination over a small JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/run"
	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	"github.com/evanfuller/constellation/internal/api"
	"github.com/evanfuller/constellation/internal/cached"
	"github.com/evanfuller/constellation/internal/migrations"
	"github.com/evanfuller/constellation/internal/sqlite"
	"github.com/evanfuller/constellation/logger"
)

type config struct {
	Database string `env:"DATABASE, required"`

	Port       int           `env:"PORT, default=4444"`
	CorsOrigin string        `env:"CORS_ORIGIN, default=*"`
	CacheSize  int           `env:"CACHE_SIZE, default=1024"`
	CacheTTL   time.Duration `env:"CACHE_TTL, default=30s"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	// Start the application
	if err := runApp(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func runApp(ctx context.Context, cfg config) error {
	// Connect to the sqlite db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Retry until the database file is reachable
	if err := retry.Fibonacci(ctx, 250*time.Millisecond, func(ctx context.Context) error {
		if err := dbx.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("error pinging database: %s", err)
	}

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	// The query cache is built here and injected; the stores never share a
	// global instance.
	caches := cached.NewCaches(cfg.CacheSize, cfg.CacheTTL)
	items := cached.NewItems(sqlite.NewItemRepo(dbx), caches)
	collections := cached.NewCollections(sqlite.NewCollectionRepo(dbx), caches)

	srvr := api.NewServer(api.ServerConfig{
		Port:       cfg.Port,
		CorsOrigin: cfg.CorsOrigin,
	}, items, collections)

	var g run.Group
	g.Add(func() error {
		slog.Info("serving", "addr", srvr.Addr)
		if err := srvr.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srvr.Shutdown(shutdownCtx)
	})
	g.Add(func() error {
		<-ctx.Done()
		return ctx.Err()
	}, func(error) {})

	return g.Run()
}
