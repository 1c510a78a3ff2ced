// Package baseline owns the lifecycle of the per-UTC-day level baseline.
package baseline

import (
	"context"
	"fmt"
	"time"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

// Store persists baselines keyed by (date, guild name).
type Store interface {
	// BaselineExists reports whether any row exists for date.
	BaselineExists(ctx context.Context, date model.Date) (bool, error)
	// UpsertBaseline writes one row per guild, replacing existing rows.
	UpsertBaseline(ctx context.Context, b model.DailyBaseline) error
	// CreateBaselineIfAbsent writes b only when date has no rows, in a
	// single transaction. It reports whether rows were written.
	CreateBaselineIfAbsent(ctx context.Context, b model.DailyBaseline) (bool, error)
	// GetBaseline returns the stored baseline or an empty one.
	GetBaseline(ctx context.Context, date model.Date) (model.DailyBaseline, error)
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the tracker logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// Tracker creates and reads daily baselines.
type Tracker struct {
	store Store
	now   func() time.Time
	log   logger.Logger
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Get().Named("baseline")
	}
	return t
}

// NeedsNewBaseline reports whether today has no baseline yet.
func (t *Tracker) NeedsNewBaseline(ctx context.Context, today model.Date) (bool, error) {
	exists, err := t.store.BaselineExists(ctx, today)
	if err != nil {
		return false, fmt.Errorf("check baseline %s: %w", today, err)
	}
	return !exists, nil
}

// CreateBaseline writes today's baseline from levels, replacing rows of the
// same guilds, and returns what is stored for today.
func (t *Tracker) CreateBaseline(ctx context.Context, today model.Date, levels []model.GuildLevels) (model.DailyBaseline, error) {
	b := t.build(today, levels)
	if err := t.store.UpsertBaseline(ctx, b); err != nil {
		return model.DailyBaseline{}, fmt.Errorf("create baseline %s: %w", today, err)
	}
	t.log.Info(ctx, "baseline written", logger.String("date", today.String()), logger.Int("guilds", len(b.Guilds)))
	return t.GetBaseline(ctx, today)
}

// GetBaseline returns the baseline of date, empty when none exists.
func (t *Tracker) GetBaseline(ctx context.Context, date model.Date) (model.DailyBaseline, error) {
	b, err := t.store.GetBaseline(ctx, date)
	if err != nil {
		return model.DailyBaseline{}, fmt.Errorf("get baseline %s: %w", date, err)
	}
	if b.Guilds == nil {
		b.Guilds = map[string]model.LevelPair{}
	}
	b.Date = date
	return b, nil
}

// EnsureBaseline returns today's baseline, creating it from levels when it
// does not exist yet. Creation is atomic in the store, so concurrent runs
// agree on a single baseline.
func (t *Tracker) EnsureBaseline(ctx context.Context, today model.Date, levels []model.GuildLevels) (model.DailyBaseline, bool, error) {
	b := t.build(today, levels)
	created := false
	if len(b.Guilds) > 0 {
		var err error
		created, err = t.store.CreateBaselineIfAbsent(ctx, b)
		if err != nil {
			return model.DailyBaseline{}, false, fmt.Errorf("ensure baseline %s: %w", today, err)
		}
	}
	if created {
		t.log.Info(ctx, "new daily baseline created", logger.String("date", today.String()), logger.Int("guilds", len(b.Guilds)))
	}

	stored, err := t.GetBaseline(ctx, today)
	if err != nil {
		return model.DailyBaseline{}, false, err
	}
	return stored, created, nil
}

func (t *Tracker) build(today model.Date, levels []model.GuildLevels) model.DailyBaseline {
	b := model.DailyBaseline{
		Date:      today,
		CreatedAt: t.now().UTC(),
		Guilds:    make(map[string]model.LevelPair, len(levels)),
	}
	for _, g := range levels {
		if !g.Valid() {
			continue
		}
		if _, dup := b.Guilds[g.GuildName]; dup {
			continue
		}
		b.Guilds[g.GuildName] = model.LevelPair{NexusLevel: g.NexusLevel, StudyLevel: g.StudyLevel}
	}
	return b
}
