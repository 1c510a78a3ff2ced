// Package service runs guild collection and serves the data the HTTP API reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/gameapi"
	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/mq/queue"
	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/mq/worker"
	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/repository"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/baseline"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/dedupe"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/levels"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/progress"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
	"github.com/GungHo1205/manarion-guild-stats/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultWorkerCount       = 2
	defaultQueueSize         = 1000
	defaultTopGuilds         = 50
	defaultInterval          = time.Hour
	defaultMarketItem        = "Codex"
	defaultMarketWindowHours = 24
	defaultRetention         = 30 * 24 * time.Hour
	defaultCacheSize         = 128
	defaultCacheTTL          = time.Minute

	// MaxHours bounds every read window.
	MaxHours = 2160
)

// GameAPI is the subset of the game client a run needs.
type GameAPI interface {
	FetchGuildList(ctx context.Context) ([]model.Guild, error)
	FetchPlayer(ctx context.Context, playerID int64) (model.PlayerBoostProfile, error)
	FetchMarket(ctx context.Context) ([]model.MarketQuote, error)
}

// GuildData is the current ranked state with its dust estimate.
type GuildData struct {
	Snapshot  model.Snapshot
	Dust      model.DustSpending
	DataFresh bool

	// MarketFresh reports a quote of the market item inside the price window.
	MarketFresh bool
}

// History is guild and market history over a window.
type History struct {
	Guilds     []model.HistoryPoint
	Prices     []model.PricePoint
	Categories map[string][]string
}

// Service collects guild stats on a schedule and implements the read API.
type Service struct {
	mu sync.Mutex

	store   repository.Store
	api     GameAPI
	calc    *levels.Calculator
	tracker *baseline.Tracker
	cache   *expirable.LRU[string, any]

	workerCount       int
	queueSize         int
	topGuilds         int
	interval          time.Duration
	collectOnStart    bool
	marketItem        string
	marketWindowHours int
	retention         time.Duration
	cacheSize         int
	cacheTTL          time.Duration
	now               func() time.Time

	running       atomic.Bool
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64

	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	logger logger.Logger
}

// New constructs a Service over store and the game API.
func New(store repository.Store, api GameAPI, opts ...Option) *Service {
	s := &Service{
		store:             store,
		api:               api,
		workerCount:       defaultWorkerCount,
		queueSize:         defaultQueueSize,
		topGuilds:         defaultTopGuilds,
		interval:          defaultInterval,
		collectOnStart:    true,
		marketItem:        defaultMarketItem,
		marketWindowHours: defaultMarketWindowHours,
		retention:         defaultRetention,
		cacheSize:         defaultCacheSize,
		cacheTTL:          defaultCacheTTL,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.calc == nil {
		s.calc = levels.NewCalculator()
	}
	s.tracker = baseline.NewTracker(store,
		baseline.WithClock(s.now),
		baseline.WithLogger(s.logger.Named("baseline")),
	)
	s.cache = expirable.NewLRU[string, any](s.cacheSize, nil, s.cacheTTL)
	return s
}

// Start launches the collection scheduler. It returns immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.loop(runCtx, s.done)

	s.logger.Info(ctx, "guild stats service started",
		logger.Int("workers", s.workerCount),
		logger.Int("topGuilds", s.topGuilds),
		logger.Duration("interval", s.interval),
		logger.Bool("collectOnStart", s.collectOnStart),
	)
	return nil
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.collectOnStart {
		s.scheduledRun(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scheduledRun(ctx)
		}
	}
}

func (s *Service) scheduledRun(ctx context.Context) {
	if _, err := s.Collect(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error(ctx, "scheduled collection failed", logger.Error(err))
	}
}

// Stop ends the scheduler and waits for an in-flight run to return.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	s.logger.Info(context.Background(), "stopping guild stats service...")
	cancel()
	<-done
	s.logger.Info(context.Background(), "guild stats service stopped")
}

// countingAPI counts logical game API calls made during one run.
type countingAPI struct {
	GameAPI
	calls atomic.Int64
}

func (c *countingAPI) FetchGuildList(ctx context.Context) ([]model.Guild, error) {
	c.calls.Add(1)
	return c.GameAPI.FetchGuildList(ctx)
}

func (c *countingAPI) FetchPlayer(ctx context.Context, playerID int64) (model.PlayerBoostProfile, error) {
	c.calls.Add(1)
	return c.GameAPI.FetchPlayer(ctx, playerID)
}

func (c *countingAPI) FetchMarket(ctx context.Context) ([]model.MarketQuote, error) {
	c.calls.Add(1)
	return c.GameAPI.FetchMarket(ctx)
}

// Collect runs one collection: guild list, owner profiles, baseline,
// progress, market quotes. Everything the run produced is committed in one
// store transaction. Only one run is active at a time.
func (s *Service) Collect(ctx context.Context) (model.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return model.RunSummary{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	start := s.now().UTC()
	runID := uuid.NewString()
	log := s.logger.Named("run")
	api := &countingAPI{GameAPI: s.api}

	log.Info(ctx, "collection run started", logger.String("run_id", runID))

	runLog := model.ProcessingLog{RunID: runID, StartedAt: start}
	finish := func(result string) {
		runLog.Duration = s.now().Sub(start)
		runLog.APICalls = int(api.calls.Load())
		metrics.RecordRun(result, float64(runLog.Duration.Milliseconds()))
	}

	guilds, err := api.FetchGuildList(ctx)
	if err != nil {
		runLog.Errors = append(runLog.Errors, "guild list: "+err.Error())
		finish("failed")
		s.runsFailed.Add(1)
		metrics.RecordErrorByComponent("service", "guild_list")
		if saveErr := s.store.SaveRun(ctx, model.RunRecord{
			Run: model.RunSummary{RunID: runID, CollectedAt: start, BaselineDate: model.DateOf(start)},
			Log: runLog,
		}); saveErr != nil {
			log.Error(ctx, "failed to record failed run", logger.Error(saveErr))
		}
		s.cache.Purge()
		return model.RunSummary{}, fmt.Errorf("%w: %w", ErrGuildListUnavailable, err)
	}
	if len(guilds) > s.topGuilds {
		guilds = guilds[:s.topGuilds]
	}

	current, err := s.fetchLevels(ctx, api, guilds)
	if err != nil {
		finish("cancelled")
		s.runsFailed.Add(1)
		return model.RunSummary{}, err
	}
	runLog.GuildsProcessed = len(current)
	runLog.GuildsSkipped = len(guilds) - len(current)
	runLog.DataFresh = len(current) > 0

	today := model.DateOf(start)
	var (
		base    model.DailyBaseline
		records []model.GuildProgressRecord
	)
	if len(current) > 0 {
		var created bool
		base, created, err = s.tracker.EnsureBaseline(ctx, today, current)
		if err != nil {
			finish("failed")
			s.runsFailed.Add(1)
			metrics.RecordErrorByComponent("service", "baseline")
			return model.RunSummary{}, err
		}
		if created {
			runLog.BaselineCreated = true
			metrics.RecordBaselineCreated()
		}
		records = progress.ComputeProgress(current, base)
		progress.Rank(records)
	} else {
		runLog.Errors = append(runLog.Errors, "no guild returned level data")
	}

	quotes, err := api.FetchMarket(ctx)
	if err != nil {
		runLog.Errors = append(runLog.Errors, "market: "+err.Error())
		metrics.RecordErrorByComponent("service", "market")
		log.Warn(ctx, "market prices unavailable", logger.Error(err))
	}

	summary := model.RunSummary{
		RunID:        runID,
		CollectedAt:  start,
		BaselineDate: today,
		Records:      records,
	}
	finish(resultLabel(runLog))
	if err := s.store.SaveRun(ctx, model.RunRecord{Run: summary, Guilds: guilds, Quotes: quotes, Log: runLog}); err != nil {
		s.runsFailed.Add(1)
		metrics.RecordErrorByComponent("service", "store")
		return model.RunSummary{}, fmt.Errorf("commit run %s: %w", runID, err)
	}
	s.cache.Purge()

	price, err := s.store.AveragePrice(ctx, s.marketItem, s.marketWindowHours)
	if err != nil {
		log.Warn(ctx, "average price unavailable", logger.Error(err))
		price = repository.DefaultFallbackPrice
	}
	summary.Dust = progress.Dust(records, price)

	s.prune(ctx, start)

	s.runsCompleted.Add(1)
	metrics.UpdateLastRun(start.Unix())
	metrics.UpdateGuildCounts(runLog.GuildsProcessed, runLog.GuildsSkipped)
	metrics.UpdateCodex(float64(summary.Dust.TotalCodex), price.InexactFloat64())

	log.Info(ctx, "collection run finished",
		logger.String("run_id", runID),
		logger.Int("guilds", runLog.GuildsProcessed),
		logger.Int("skipped", runLog.GuildsSkipped),
		logger.Int("api_calls", runLog.APICalls),
		logger.Int64("total_codex", summary.Dust.TotalCodex),
		logger.String("total_dust", progress.FormatCurrency(summary.Dust.TotalDust)),
		logger.Duration("took", runLog.Duration),
	)
	return summary, nil
}

func resultLabel(l model.ProcessingLog) string {
	switch {
	case !l.DataFresh:
		return "empty"
	case len(l.Errors) > 0:
		return "partial"
	default:
		return "ok"
	}
}

// fetchLevels resolves the levels of guilds through the worker pool. Results
// arrive in any order and are put back in guild list order before dedupe, so
// the best ranked entry of a duplicated guild name wins.
func (s *Service) fetchLevels(ctx context.Context, api GameAPI, guilds []model.Guild) ([]model.GuildLevels, error) {
	if len(guilds) == 0 {
		return nil, nil
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(max(s.queueSize, len(guilds))))
	for i, g := range guilds {
		if err := q.Enqueue(ctx, model.FetchJob{Guild: g, Rank: i + 1}); err != nil {
			s.logger.Warn(ctx, "guild not queued", logger.String("guild", g.Name), logger.Error(err))
		}
	}
	_ = q.Close()

	var (
		mu      sync.Mutex
		results []worker.Result
	)
	sink := worker.SinkFunc(func(_ context.Context, r worker.Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	pool := worker.NewPool(s.workerCount, q, api, s.calc, sink, worker.WithLogger(s.logger.Named("worker")))
	if err := pool.Run(ctx); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Job.Rank < results[j].Job.Rank })
	seen := dedupe.NewInMemoryDeduper(dedupe.WithCapacity(len(results)))
	out := make([]model.GuildLevels, 0, len(results))
	for _, r := range results {
		if seen.SeenAndRecord(ctx, r.Levels.GuildName) {
			metrics.RecordDuplicateGuild()
			s.logger.Debug(ctx, "duplicate guild dropped",
				logger.String("guild", r.Levels.GuildName),
				logger.Int64("guild_id", r.Levels.GuildID),
				logger.Int("rank", r.Job.Rank),
			)
			continue
		}
		out = append(out, r.Levels)
	}
	return out, nil
}

func (s *Service) prune(ctx context.Context, now time.Time) {
	if s.retention <= 0 {
		return
	}
	n, err := s.store.Prune(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Warn(ctx, "prune failed", logger.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "pruned old history", logger.Int64("rows", n))
	}
}

// cached returns the value stored under key, loading and storing it on a miss.
func cached[T any](s *Service, key string, load func() (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if t, ok := v.(T); ok {
			metrics.RecordCacheLookup(true)
			return t, nil
		}
	}
	metrics.RecordCacheLookup(false)

	t, err := load()
	if err != nil {
		return t, err
	}
	s.cache.Add(key, t)
	return t, nil
}

// GuildData returns the latest committed snapshot with its dust estimate.
func (s *Service) GuildData(ctx context.Context) (GuildData, error) {
	return cached(s, "guild-data", func() (GuildData, error) {
		snap, err := s.store.LatestSnapshot(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			return GuildData{}, ErrNoData
		}
		if err != nil {
			return GuildData{}, err
		}
		price, err := s.store.AveragePrice(ctx, s.marketItem, s.marketWindowHours)
		if err != nil {
			return GuildData{}, err
		}

		fresh := true
		if last, err := s.store.LastRun(ctx); err == nil {
			fresh = last.DataFresh
		}
		marketFresh, err := s.marketFresh(ctx)
		if err != nil {
			return GuildData{}, err
		}
		return GuildData{
			Snapshot:    snap,
			Dust:        progress.Dust(snap.Records, price),
			DataFresh:   fresh,
			MarketFresh: marketFresh,
		}, nil
	})
}

func (s *Service) marketFresh(ctx context.Context) (bool, error) {
	latest, err := s.store.LatestMarketPrices(ctx)
	if err != nil {
		return false, err
	}
	cutoff := s.now().Add(-time.Duration(s.marketWindowHours) * time.Hour)
	for _, p := range latest {
		if p.ItemName == s.marketItem {
			return !p.Timestamp.Before(cutoff), nil
		}
	}
	return false, nil
}

// DailyBaseline returns the baseline of date, or today's when date is empty.
func (s *Service) DailyBaseline(ctx context.Context, date model.Date) (model.DailyBaseline, error) {
	if date == "" {
		date = model.DateOf(s.now())
	}
	return cached(s, "baseline:"+date.String(), func() (model.DailyBaseline, error) {
		return s.tracker.GetBaseline(ctx, date)
	})
}

// HistoricalData returns guild and market history of the last hours.
func (s *Service) HistoricalData(ctx context.Context, hours int) (History, error) {
	if err := checkHours(hours); err != nil {
		return History{}, err
	}
	return cached(s, "history:"+strconv.Itoa(hours), func() (History, error) {
		since := s.now().Add(-time.Duration(hours) * time.Hour)
		guilds, err := s.store.SnapshotsSince(ctx, since, nil)
		if err != nil {
			return History{}, err
		}
		prices, err := s.store.MarketHistory(ctx, since, nil)
		if err != nil {
			return History{}, err
		}
		return History{Guilds: guilds, Prices: prices, Categories: gameapi.Categories()}, nil
	})
}

// GuildHistory returns snapshot rows of the named guilds (all when names is
// empty) over the last hours.
func (s *Service) GuildHistory(ctx context.Context, names []string, hours int) ([]model.HistoryPoint, error) {
	if err := checkHours(hours); err != nil {
		return nil, err
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	key := "guild-history:" + strconv.Itoa(hours) + ":" + strings.Join(sorted, "\x00")
	return cached(s, key, func() ([]model.HistoryPoint, error) {
		return s.store.SnapshotsSince(ctx, s.now().Add(-time.Duration(hours)*time.Hour), names)
	})
}

// MarketPrices returns quotes of all items over the last hours.
func (s *Service) MarketPrices(ctx context.Context, hours int) ([]model.PricePoint, error) {
	if err := checkHours(hours); err != nil {
		return nil, err
	}
	return cached(s, "market:"+strconv.Itoa(hours), func() ([]model.PricePoint, error) {
		return s.store.MarketHistory(ctx, s.now().Add(-time.Duration(hours)*time.Hour), nil)
	})
}

func checkHours(hours int) error {
	if hours < 1 || hours > MaxHours {
		return fmt.Errorf("%w: hours must be between 1 and %d, got %d", ErrInvalidArgument, MaxHours, hours)
	}
	return nil
}

// Ready reports whether the store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	stats := map[string]any{
		"started":         started,
		"running":         s.running.Load(),
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"topGuilds":       s.topGuilds,
		"intervalSeconds": int64(s.interval.Seconds()),
		"runsCompleted":   s.runsCompleted.Load(),
		"runsFailed":      s.runsFailed.Load(),
		"cacheEntries":    s.cache.Len(),
	}

	if last, err := s.store.LastRun(ctx); err == nil {
		stats["lastRun"] = map[string]any{
			"runId":           last.RunID,
			"startedAt":       last.StartedAt,
			"durationSeconds": last.Duration.Seconds(),
			"guildsProcessed": last.GuildsProcessed,
			"guildsSkipped":   last.GuildsSkipped,
			"apiCalls":        last.APICalls,
			"dataFresh":       last.DataFresh,
			"baselineCreated": last.BaselineCreated,
			"errors":          last.Errors,
		}
	}
	return stats
}
