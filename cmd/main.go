package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/gameapi"
	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/http/api"
	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/http/site"
	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/http/swagger"
	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/repository"
	app "github.com/GungHo1205/manarion-guild-stats/internal/app"
	"github.com/GungHo1205/manarion-guild-stats/internal/config"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/levels"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
	"github.com/GungHo1205/manarion-guild-stats/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithFile(cfg.LogFile)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "guild stats collector failed", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(context.Background(), "store close failed", logger.Error(err))
		}
	}()

	svc := newService(store, newGameClient(cfg, log), cfg, log)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, svc, cfg, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (*repository.SQLiteStore, error) {
	return repository.Open(ctx, repository.DefaultConfig(cfg.DBPath),
		repository.WithFallbackPrice(decimal.NewFromInt(cfg.FallbackCodexPrice)),
	)
}

func newGameClient(cfg *config.Config, log logger.Logger) *gameapi.Client {
	return gameapi.NewClient(cfg.APIBaseURL,
		gameapi.WithTimeout(cfg.APITimeout()),
		gameapi.WithMaxRetries(cfg.APIMaxRetries),
		gameapi.WithRequestDelay(cfg.APIRequestDelay()),
		gameapi.WithLogger(log.Named("gameapi")),
	)
}

func newService(store repository.Store, api app.GameAPI, cfg *config.Config, log logger.Logger) *app.Service {
	return app.New(store, api,
		app.WithLogger(log.Named("service")),
		app.WithCalculator(levels.NewCalculator(levels.WithBoostPriority(cfg.NexusBoostPriority))),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithTopGuilds(cfg.TopGuilds),
		app.WithInterval(cfg.CollectInterval()),
		app.WithCollectOnStart(cfg.CollectOnStart),
		app.WithMarketItem(cfg.MarketItem),
		app.WithMarketWindow(cfg.MarketWindowHours),
		app.WithRetention(cfg.HistoryRetention()),
		app.WithCache(cfg.CacheSize, cfg.CacheTTL()),
	)
}

// newRouter mounts the read API, the API docs and the dashboard on one router.
func newRouter(ctx context.Context, svc api.Dependencies, cfg *config.Config, log logger.Logger) chi.Router {
	r := api.NewServer(svc,
		api.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		api.WithLogger(log.Named("api")),
	).Router()
	swagger.Register(ctx, r)
	site.Register(ctx, r)
	return r
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
