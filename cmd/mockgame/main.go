// Command mockgame serves a simulated game API for local collector runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/GungHo1205/manarion-guild-stats/internal/mockgame"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

const envPrefix = "MOCKGAME_"

type settings struct {
	Addr           string `koanf:"addr"`
	Guilds         int    `koanf:"guilds"`
	Seed           uint64 `koanf:"seed"`
	AdvanceSeconds int    `koanf:"advance_seconds"`
}

func loadSettings() (settings, error) {
	k := koanf.New(".")
	defaults := map[string]any{
		"addr":            ":8001",
		"guilds":          16,
		"seed":            42,
		"advance_seconds": 60,
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return settings{}, err
	}
	// MOCKGAME_ADDR -> addr
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return settings{}, err
	}

	var s settings
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return settings{}, err
	}
	if s.Guilds < 1 {
		return settings{}, fmt.Errorf("guilds must be positive, got %d", s.Guilds)
	}
	return s, nil
}

func main() {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Named("mockgame")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := loadSettings()
	if err != nil {
		log.Fatal(ctx, "invalid settings", logger.Error(err))
	}

	world := mockgame.NewWorld(mockgame.WithGuildCount(s.Guilds), mockgame.WithSeed(s.Seed))
	if s.AdvanceSeconds > 0 {
		go advance(ctx, world, time.Duration(s.AdvanceSeconds)*time.Second)
	}

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           world.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "mock game API listening",
		logger.String("addr", s.Addr),
		logger.Int("guilds", s.Guilds),
		logger.Int("advanceSeconds", s.AdvanceSeconds),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(ctx, "mock game API failed", logger.Error(err))
	}
}

func advance(ctx context.Context, w *mockgame.World, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Advance()
		}
	}
}
