package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jensenyang2004/Safii-sub000/internal/config"
	"github.com/jensenyang2004/Safii-sub000/internal/db"
	"github.com/jensenyang2004/Safii-sub000/internal/server"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *zap.Logger, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	root := newRootCmd(deps)
	if err := root.Execute(); err != nil {
		log.Printf("command failed: %v", err)
	}
}

func newRootCmd(deps mainDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "safii",
		Short:         "Safii safety tracking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(deps), newScanCmd(deps))
	return root
}

func newServeCmd(deps mainDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background reminder scanner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := deps.loadConfig()
			logger := newLogger(cfg.LogFormat)
			defer func() { _ = logger.Sync() }()

			pg, err := deps.connectPostgres(cfg)
			if err != nil {
				logger.Warn("postgres connection failed", zap.Error(err))
			}
			rdb := deps.connectRedis(cfg)

			signals := make(chan os.Signal, 1)
			deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

			return deps.run(cmd.Context(), cfg, logger, pg, rdb, signals, nil)
		},
	}
}

func newScanCmd(deps mainDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one emergency reminder pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := deps.loadConfig()
			logger := newLogger(cfg.LogFormat)
			defer func() { _ = logger.Sync() }()

			pg, err := deps.connectPostgres(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if pg != nil {
					pg.Close()
				}
			}()

			srv := server.NewServer(cfg, pg, nil, logger)
			return srv.Scanner.Scan(cmd.Context())
		},
	}
}

func newLogger(format string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if format == "console" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server plus the reminder scanner and waits for
// termination signals.
func Run(ctx context.Context, cfg config.Config, logger *zap.Logger, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, pg, rdb, logger)

	if listen == nil {
		listen = defaultListen
	}

	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()
	if pg != nil {
		go srv.Scanner.Run(scanCtx, time.Duration(cfg.ScanIntervalMinutes)*time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
