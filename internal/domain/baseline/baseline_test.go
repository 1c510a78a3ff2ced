package baseline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/baseline"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type memoryStore struct {
	mu      sync.Mutex
	rows    map[model.Date]model.DailyBaseline
	creates int
	fail    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[model.Date]model.DailyBaseline{}}
}

func (s *memoryStore) BaselineExists(_ context.Context, date model.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	return len(s.rows[date].Guilds) > 0, nil
}

func (s *memoryStore) UpsertBaseline(_ context.Context, b model.DailyBaseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	cur, ok := s.rows[b.Date]
	if !ok {
		cur = model.DailyBaseline{Date: b.Date, CreatedAt: b.CreatedAt, Guilds: map[string]model.LevelPair{}}
	}
	for name, p := range b.Guilds {
		cur.Guilds[name] = p
	}
	s.rows[b.Date] = cur
	return nil
}

func (s *memoryStore) CreateBaselineIfAbsent(_ context.Context, b model.DailyBaseline) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	if len(s.rows[b.Date].Guilds) > 0 {
		return false, nil
	}
	s.creates++
	s.rows[b.Date] = b
	return true, nil
}

func (s *memoryStore) GetBaseline(_ context.Context, date model.Date) (model.DailyBaseline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return model.DailyBaseline{}, s.fail
	}
	b, ok := s.rows[date]
	if !ok {
		return model.EmptyBaseline(date), nil
	}
	out := model.DailyBaseline{Date: b.Date, CreatedAt: b.CreatedAt, Guilds: map[string]model.LevelPair{}}
	for k, v := range b.Guilds {
		out.Guilds[k] = v
	}
	return out, nil
}

func TestTracker(t *testing.T) {
	Convey("Given a tracker over an empty store", t, func() {
		ctx := context.Background()
		store := newMemoryStore()
		fixed := time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC)
		now := fixed
		tracker := baseline.NewTracker(store, baseline.WithClock(func() time.Time { return now }))
		today := model.DateOf(fixed)

		levels := []model.GuildLevels{
			{GuildName: "Phoenix Legends", NexusLevel: 580, StudyLevel: 420},
			{GuildName: "Dragon Warriors", NexusLevel: 575, StudyLevel: 415},
		}

		Convey("When no baseline exists for today", func() {
			needs, err := tracker.NeedsNewBaseline(ctx, today)
			So(err, ShouldBeNil)
			So(needs, ShouldBeTrue)

			b, err := tracker.GetBaseline(ctx, today)
			Convey("Then reading it returns an empty baseline", func() {
				So(err, ShouldBeNil)
				So(b.Exists(), ShouldBeFalse)
				So(b.Date, ShouldEqual, today)
			})
		})

		Convey("When the baseline is created", func() {
			b, err := tracker.CreateBaseline(ctx, today, levels)

			Convey("Then it holds every guild's levels", func() {
				So(err, ShouldBeNil)
				So(len(b.Guilds), ShouldEqual, 2)
				So(b.Guilds["Phoenix Legends"], ShouldResemble, model.LevelPair{NexusLevel: 580, StudyLevel: 420})
				So(b.CreatedAt, ShouldEqual, fixed)

				needs, _ := tracker.NeedsNewBaseline(ctx, today)
				So(needs, ShouldBeFalse)
			})

			Convey("And creating it again replaces the same guild rows", func() {
				again, err := tracker.CreateBaseline(ctx, today, []model.GuildLevels{
					{GuildName: "Phoenix Legends", NexusLevel: 590, StudyLevel: 421},
				})
				So(err, ShouldBeNil)
				So(len(again.Guilds), ShouldEqual, 2)
				So(again.Guilds["Phoenix Legends"].NexusLevel, ShouldEqual, 590)
			})

			Convey("And creating it again later with the same levels changes nothing", func() {
				now = fixed.Add(5 * time.Hour)
				again, err := tracker.CreateBaseline(ctx, today, levels)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, b)
				So(again.CreatedAt, ShouldEqual, fixed)
			})
		})

		Convey("When EnsureBaseline runs twice in one day", func() {
			first, created, err := tracker.EnsureBaseline(ctx, today, levels)
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)

			later := []model.GuildLevels{
				{GuildName: "Phoenix Legends", NexusLevel: 600, StudyLevel: 430},
				{GuildName: "Shadow Hunters", NexusLevel: 300, StudyLevel: 300},
			}
			second, created2, err := tracker.EnsureBaseline(ctx, today, later)

			Convey("Then the first baseline is kept", func() {
				So(err, ShouldBeNil)
				So(created2, ShouldBeFalse)
				So(second.Guilds, ShouldResemble, first.Guilds)
				So(second.Guilds, ShouldNotContainKey, "Shadow Hunters")
			})
		})

		Convey("When EnsureBaseline has no valid levels", func() {
			b, created, err := tracker.EnsureBaseline(ctx, today, []model.GuildLevels{{GuildName: ""}})

			Convey("Then nothing is created", func() {
				So(err, ShouldBeNil)
				So(created, ShouldBeFalse)
				So(b.Exists(), ShouldBeFalse)
			})
		})

		Convey("When overlapping runs race to create today's baseline", func() {
			var wg sync.WaitGroup
			results := make([]bool, 8)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, created, _ := tracker.EnsureBaseline(ctx, today, levels)
					results[i] = created
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one run creates it", func() {
				n := 0
				for _, c := range results {
					if c {
						n++
					}
				}
				So(n, ShouldEqual, 1)
				So(store.creates, ShouldEqual, 1)
			})
		})

		Convey("When the store is unavailable", func() {
			store.fail = errors.New("database is locked")

			_, err := tracker.NeedsNewBaseline(ctx, today)
			So(err, ShouldNotBeNil)

			_, _, err = tracker.EnsureBaseline(ctx, today, levels)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "database is locked")

			_, err = tracker.CreateBaseline(ctx, today, levels)
			So(err, ShouldNotBeNil)
		})

		Convey("When levels contain duplicates", func() {
			dup := append([]model.GuildLevels{}, levels...)
			dup = append(dup, model.GuildLevels{GuildName: "Phoenix Legends", NexusLevel: 1})
			b, _, err := tracker.EnsureBaseline(ctx, today, dup)

			Convey("Then the first entry wins", func() {
				So(err, ShouldBeNil)
				So(b.Guilds["Phoenix Legends"].NexusLevel, ShouldEqual, 580)
			})
		})
	})
}
