package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/GungHo1205/manarion-guild-stats/internal/config"
	"github.com/GungHo1205/manarion-guild-stats/internal/mockgame"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
	"github.com/GungHo1205/manarion-guild-stats/pkg/metrics"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	cfg := config.New()
	cfg.Addr = "127.0.0.1:0"
	cfg.DBPath = filepath.Join(t.TempDir(), "guild_stats.db")
	cfg.APIBaseURL = apiURL
	cfg.APIRequestDelayMS = 0
	cfg.APIMaxRetries = 0
	return cfg
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("GUILDSTATS_ADDR", ":8080")
			_ = os.Setenv("GUILDSTATS_QUEUE_SIZE", "500")
			_ = os.Setenv("GUILDSTATS_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("GUILDSTATS_ADDR")
				_ = os.Unsetenv("GUILDSTATS_QUEUE_SIZE")
				_ = os.Unsetenv("GUILDSTATS_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When testing the assembled router", func() {
			world := mockgame.NewWorld(mockgame.WithGuildCount(4))
			game := httptest.NewServer(world.Handler())
			defer game.Close()

			ctx := context.Background()
			cfg := testConfig(t, game.URL)
			store, err := openStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()

			log := logger.Get()
			svc := newService(store, newGameClient(cfg, log), cfg, log)
			_, err = svc.Collect(ctx)
			convey.So(err, convey.ShouldBeNil)

			router := newRouter(ctx, svc, cfg, log)

			convey.Convey("Then every surface is mounted", func() {
				for path, want := range map[string]int{
					"/healthz":        http.StatusOK,
					"/stats":          http.StatusOK,
					"/metrics":        http.StatusOK,
					"/api/guild-data": http.StatusOK,
					"/openapi.yaml":   http.StatusOK,
					"/api-docs":       http.StatusOK,
					"/":               http.StatusOK,
				} {
					w := httptest.NewRecorder()
					router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, want)
				}
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a mock game API", t, func() {
		world := mockgame.NewWorld(mockgame.WithGuildCount(3))
		game := httptest.NewServer(world.Handler())
		defer game.Close()

		convey.Convey("When run is cancelled after start", func() {
			cfg := testConfig(t, game.URL)
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			err := run(ctx, cfg, logger.Get())

			convey.Convey("Then it shuts down cleanly and leaves a database", func() {
				convey.So(err, convey.ShouldBeNil)
				_, statErr := os.Stat(cfg.DBPath)
				convey.So(statErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the store cannot be opened", func() {
			cfg := testConfig(t, game.URL)
			cfg.DBPath = ""

			err := run(context.Background(), cfg, logger.Get())

			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() {
				startSystemMetricsUpdater(ctx)
			}, convey.ShouldNotPanic)
		})

		convey.Convey("When testing system metrics update", func() {
			convey.So(func() {
				updateSystemMetrics()
			}, convey.ShouldNotPanic)
			convey.So(metrics.GetRegistry(), convey.ShouldNotBeNil)
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given an invalid configuration", t, func() {
		_ = os.Setenv("GUILDSTATS_ADDR", "")
		defer func() { _ = os.Unsetenv("GUILDSTATS_ADDR") }()

		convey.Convey("Then configuration loading should fail", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}
