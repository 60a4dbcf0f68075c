package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/damygoes/EcoStride-REST-API/internal/config"
	"github.com/damygoes/EcoStride-REST-API/internal/db"
	"github.com/damygoes/EcoStride-REST-API/internal/logger"
	"github.com/damygoes/EcoStride-REST-API/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	if code := mainRunner(mainDepsProvider()); code != 0 {
		os.Exit(code)
	}
}

type mainDeps struct {
	loadConfig      func() config.Config
	newLogger       func(mode string) (*logger.Logger, error)
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	migrate         func(context.Context, db.Querier) error
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, *logger.Logger, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       logger.New,
		connectPostgres: db.ConnectPostgres,
		migrate:         db.Migrate,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

// realMain wires the process together and returns its exit code. The API is
// never served without a reachable, migrated database.
func realMain(deps mainDeps) int {
	cfg := deps.loadConfig()

	appLog, err := deps.newLogger(cfg.AppEnv)
	if err != nil {
		log.Printf("logger init failed, falling back to no-op: %v", err)
		appLog = logger.Nop()
	}
	defer appLog.Sync()

	pg, err := deps.connectPostgres(cfg)
	if err != nil || pg == nil {
		appLog.Error("postgres connection failed", "error", err)
		return 1
	}
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := deps.migrate(ctx, pg)
		cancel()
		if err != nil {
			appLog.Error("schema migration failed", "error", err)
			pg.Close()
			return 1
		}
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, appLog, signals, nil); err != nil {
		appLog.Error("server exited with error", "error", err)
		return 1
	}
	return 0
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, appLog *logger.Logger, signals <-chan os.Signal, listen ListenFunc) error {
	if appLog == nil {
		appLog = logger.Nop()
	}
	srv := server.NewServer(cfg, pg, rdb, appLog)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()
	appLog.Info("server starting", "addr", cfg.ServerPort, "env", cfg.AppEnv)

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
	if err := srv.Close(); err != nil {
		appLog.Warn("stream shutdown failed", "error", err)
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	appLog.Info("server stopped")
	return nil
}
