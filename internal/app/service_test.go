package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/shopspring/decimal"

	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/repository"
	service "github.com/GungHo1205/manarion-guild-stats/internal/app"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeAPI serves guilds whose owner profiles carry levels directly in boost
// ids "30" and "100" (no equipment, 50 upgrades).
type fakeAPI struct {
	mu        sync.Mutex
	guilds    []model.Guild
	levels    map[int64][2]int64 // owner id -> nexus, study
	listErr   error
	marketErr error
	failing   map[int64]bool
	slow      map[int64]time.Duration
	block     chan struct{}
	codex     int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{levels: map[int64][2]int64{}, failing: map[int64]bool{}, slow: map[int64]time.Duration{}, codex: 100}
}

func (f *fakeAPI) add(id int64, name string, nexus, study int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds = append(f.guilds, model.Guild{ID: id, Name: name, OwnerID: id * 10, Level: 10, TotalUpgrades: id})
	f.levels[id*10] = [2]int64{nexus, study}
}

func (f *fakeAPI) set(id int64, nexus, study int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[id*10] = [2]int64{nexus, study}
}

func (f *fakeAPI) FetchGuildList(ctx context.Context) ([]model.Guild, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Guild(nil), f.guilds...), nil
}

func (f *fakeAPI) FetchPlayer(ctx context.Context, playerID int64) (model.PlayerBoostProfile, error) {
	f.mu.Lock()
	delay := f.slow[playerID]
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.PlayerBoostProfile{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[playerID] {
		return model.PlayerBoostProfile{}, errors.New("player unavailable")
	}
	lv, ok := f.levels[playerID]
	if !ok {
		return model.PlayerBoostProfile{}, errors.New("unknown player")
	}
	// damage = total*100 - 100 = (nexus/100 + 1) * 50 * 0.02
	dmg := (float64(lv[0])/100 + 1) * 50 * 0.02
	return model.PlayerBoostProfile{
		BaseBoosts:  map[string]float64{"30": 50},
		TotalBoosts: map[string]float64{"30": (dmg + 100) / 100, "100": float64(lv[1])},
	}, nil
}

func (f *fakeAPI) FetchMarket(context.Context) ([]model.MarketQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marketErr != nil {
		return nil, f.marketErr
	}
	p := decimal.NewFromInt(f.codex)
	return []model.MarketQuote{{ItemID: 3, ItemName: "Codex", BuyPrice: p, SellPrice: p}}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(api service.GameAPI, clk *clock, opts ...service.Option) (*service.Service, *repository.SQLiteStore) {
	store, err := repository.Open(context.Background(), repository.DefaultConfig(":memory:"), repository.WithClock(clk.Now))
	So(err, ShouldBeNil)
	opts = append([]service.Option{service.WithClock(clk.Now), service.WithCollectOnStart(false)}, opts...)
	return service.New(store, api, opts...), store
}

func TestService_Collect(t *testing.T) {
	Convey("Given a service over three guilds", t, func() {
		api := newFakeAPI()
		api.add(1, "Alpha", 100, 40)
		api.add(2, "Beta", 120, 10)
		api.add(3, "Gamma", 100, 50)
		clk := &clock{now: time.Date(2025, 3, 14, 1, 0, 0, 0, time.UTC)}
		svc, store := newTestService(api, clk)
		defer store.Close()
		ctx := context.Background()

		Convey("When the first run of the day collects", func() {
			summary, err := svc.Collect(ctx)
			So(err, ShouldBeNil)

			Convey("Then guilds are ranked by nexus then study", func() {
				So(summary.Records, ShouldHaveLength, 3)
				So(summary.Records[0].GuildName, ShouldEqual, "Beta")
				So(summary.Records[1].GuildName, ShouldEqual, "Gamma")
				So(summary.Records[2].GuildName, ShouldEqual, "Alpha")
				So(summary.BaselineDate, ShouldEqual, model.Date("2025-03-14"))
			})

			Convey("Then progress is zero against the fresh baseline", func() {
				for _, r := range summary.Records {
					So(r.InBaseline, ShouldBeTrue)
					So(r.NexusProgress, ShouldEqual, 0)
				}
				So(summary.Dust.TotalCodex, ShouldEqual, 0)
			})

			Convey("Then the run is logged with its baseline", func() {
				last, err := store.LastRun(ctx)
				So(err, ShouldBeNil)
				So(last.BaselineCreated, ShouldBeTrue)
				So(last.GuildsProcessed, ShouldEqual, 3)
				So(last.DataFresh, ShouldBeTrue)
				So(last.APICalls, ShouldEqual, 5)
			})

			Convey("And a later run the same day measures progress", func() {
				api.set(1, 105, 40)
				api.add(4, "Delta", 300, 300)
				clk.Add(time.Hour)

				summary, err := svc.Collect(ctx)
				So(err, ShouldBeNil)

				byName := map[string]model.GuildProgressRecord{}
				for _, r := range summary.Records {
					byName[r.GuildName] = r
				}
				So(byName["Alpha"].NexusProgress, ShouldEqual, 5)
				So(byName["Alpha"].NexusCodexCost, ShouldEqual, 515)
				So(byName["Delta"].InBaseline, ShouldBeFalse)
				So(byName["Delta"].TotalCodexCost, ShouldEqual, 0)
				So(summary.Dust.TotalCodex, ShouldEqual, 515)
				So(summary.Dust.TotalDust.Equal(decimal.NewFromInt(51_500)), ShouldBeTrue)

				base, err := svc.DailyBaseline(ctx, "")
				So(err, ShouldBeNil)
				_, hasDelta := base.Lookup("Delta")
				So(hasDelta, ShouldBeFalse)
			})

			Convey("And the next UTC day starts a new baseline", func() {
				api.set(1, 110, 40)
				api.add(4, "Delta", 300, 300)
				clk.Add(24 * time.Hour)

				summary, err := svc.Collect(ctx)
				So(err, ShouldBeNil)
				So(summary.BaselineDate, ShouldEqual, model.Date("2025-03-15"))
				So(summary.Dust.TotalCodex, ShouldEqual, 0)

				base, err := svc.DailyBaseline(ctx, "2025-03-15")
				So(err, ShouldBeNil)
				So(base.Guilds["Alpha"].NexusLevel, ShouldEqual, 110)
				So(base.Guilds, ShouldContainKey, "Delta")
			})
		})

		Convey("When one owner cannot be fetched", func() {
			api.mu.Lock()
			api.failing[20] = true
			api.mu.Unlock()

			summary, err := svc.Collect(ctx)

			Convey("Then that guild is skipped for the run", func() {
				So(err, ShouldBeNil)
				So(summary.Records, ShouldHaveLength, 2)
				last, err := store.LastRun(ctx)
				So(err, ShouldBeNil)
				So(last.GuildsSkipped, ShouldEqual, 1)
			})
		})

		Convey("When the market is down", func() {
			api.mu.Lock()
			api.marketErr = errors.New("market closed")
			api.mu.Unlock()

			summary, err := svc.Collect(ctx)

			Convey("Then the run commits and dust uses the fallback price", func() {
				So(err, ShouldBeNil)
				So(summary.Dust.CodexPrice.Equal(repository.DefaultFallbackPrice), ShouldBeTrue)
				last, _ := store.LastRun(ctx)
				So(last.Errors, ShouldHaveLength, 1)
			})
		})

		Convey("When the guild list is unavailable", func() {
			api.mu.Lock()
			api.listErr = errors.New("maintenance")
			api.mu.Unlock()

			_, err := svc.Collect(ctx)

			Convey("Then the run fails and is logged as stale", func() {
				So(errors.Is(err, service.ErrGuildListUnavailable), ShouldBeTrue)
				last, err := store.LastRun(ctx)
				So(err, ShouldBeNil)
				So(last.DataFresh, ShouldBeFalse)

				_, err = svc.GuildData(ctx)
				So(errors.Is(err, service.ErrNoData), ShouldBeTrue)
			})
		})

		Convey("When two runs overlap", func() {
			block := make(chan struct{})
			api.mu.Lock()
			api.block = block
			api.mu.Unlock()

			first := make(chan error, 1)
			go func() {
				_, err := svc.Collect(ctx)
				first <- err
			}()
			time.Sleep(20 * time.Millisecond)

			_, err := svc.Collect(ctx)
			close(block)

			Convey("Then the second is rejected", func() {
				So(errors.Is(err, service.ErrRunInProgress), ShouldBeTrue)
				So(<-first, ShouldBeNil)
			})
		})
	})
}

func TestService_DuplicateGuildNames(t *testing.T) {
	Convey("Given a guild listed twice with the better ranked owner slow to answer", t, func() {
		api := newFakeAPI()
		api.add(1, "Twin", 300, 10)
		api.add(2, "Second", 200, 0)
		api.add(3, "Third", 100, 0)
		api.add(4, "Twin", 300, 20)
		api.slow[10] = 200 * time.Millisecond

		clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		svc, store := newTestService(api, clk, service.WithWorkerCount(2))
		defer store.Close()

		summary, err := svc.Collect(context.Background())

		Convey("Then the entry listed first is kept whatever the fetch order", func() {
			So(err, ShouldBeNil)
			So(summary.Records, ShouldHaveLength, 3)

			var twin model.GuildProgressRecord
			for _, r := range summary.Records {
				if r.GuildName == "Twin" {
					twin = r
				}
			}
			So(twin.GuildID, ShouldEqual, 1)
			So(twin.StudyLevel, ShouldEqual, 10)
		})
	})
}

func TestService_ReadSide(t *testing.T) {
	Convey("Given a service with two collected runs", t, func() {
		api := newFakeAPI()
		api.add(1, "Alpha", 100, 40)
		api.add(2, "Beta", 90, 10)
		clk := &clock{now: time.Date(2025, 3, 14, 1, 0, 0, 0, time.UTC)}
		svc, store := newTestService(api, clk, service.WithCache(8, time.Hour))
		defer store.Close()
		ctx := context.Background()

		_, err := svc.Collect(ctx)
		So(err, ShouldBeNil)
		api.set(1, 102, 41)
		clk.Add(time.Hour)
		_, err = svc.Collect(ctx)
		So(err, ShouldBeNil)

		Convey("GuildData returns the latest snapshot and dust", func() {
			data, err := svc.GuildData(ctx)
			So(err, ShouldBeNil)
			So(data.DataFresh, ShouldBeTrue)
			So(data.MarketFresh, ShouldBeTrue)
			So(data.Snapshot.Records, ShouldHaveLength, 2)
			So(data.Snapshot.Records[0].NexusLevel, ShouldEqual, 102)
			So(data.Dust.TotalCodex, ShouldEqual, 203+41)
			So(data.Snapshot.CollectedAt.Equal(clk.Now()), ShouldBeTrue)
		})

		Convey("GuildHistory filters by name", func() {
			points, err := svc.GuildHistory(ctx, []string{"Alpha"}, 24)
			So(err, ShouldBeNil)
			So(points, ShouldHaveLength, 2)
			So(points[1].NexusLevel, ShouldEqual, 102)
		})

		Convey("HistoricalData includes market prices and categories", func() {
			h, err := svc.HistoricalData(ctx, 24)
			So(err, ShouldBeNil)
			So(h.Guilds, ShouldHaveLength, 4)
			So(h.Prices, ShouldHaveLength, 2)
			So(h.Categories, ShouldContainKey, "Essentials")
		})

		Convey("MarketPrices respects the window", func() {
			clk.Add(30 * time.Minute)
			prices, err := svc.MarketPrices(ctx, 1)
			So(err, ShouldBeNil)
			So(prices, ShouldHaveLength, 1)
		})

		Convey("Out of range windows are rejected", func() {
			_, err := svc.MarketPrices(ctx, 0)
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
			_, err = svc.HistoricalData(ctx, service.MaxHours+1)
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("Stats report the runs", func() {
			stats := svc.GetStats(ctx)
			So(stats["runsCompleted"], ShouldEqual, int64(2))
			So(stats, ShouldContainKey, "lastRun")
			So(svc.Ready(ctx), ShouldBeNil)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service that collects on start", t, func() {
		api := newFakeAPI()
		api.add(1, "Alpha", 10, 1)
		clk := &clock{now: time.Date(2025, 3, 14, 1, 0, 0, 0, time.UTC)}
		svc, store := newTestService(api, clk, service.WithCollectOnStart(true), service.WithInterval(time.Hour))
		defer store.Close()
		ctx := context.Background()

		Convey("When it is started", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then the first run commits and Stop returns", func() {
				deadline := time.Now().Add(5 * time.Second)
				var err error
				for time.Now().Before(deadline) {
					if _, err = svc.GuildData(ctx); err == nil {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(err, ShouldBeNil)
				So(svc.GetStats(ctx)["started"], ShouldBeTrue)

				svc.Stop()
				svc.Stop()
				So(svc.GetStats(ctx)["started"], ShouldBeFalse)
			})
		})
	})
}
