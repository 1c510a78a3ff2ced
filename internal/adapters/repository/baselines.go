package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
)

// Rows of a date share the created_at of the date's first row; rewriting a
// baseline never moves it.
const upsertBaselineSQL = `
	INSERT INTO daily_baselines (date, guild_name, nexus_level, study_level, created_at)
	VALUES (?, ?, ?, ?, COALESCE((SELECT MIN(created_at) FROM daily_baselines WHERE date = ?), ?))
	ON CONFLICT(date, guild_name) DO UPDATE SET
		nexus_level = excluded.nexus_level,
		study_level = excluded.study_level`

// BaselineExists reports whether date has any baseline rows.
func (s *SQLiteStore) BaselineExists(ctx context.Context, date model.Date) (bool, error) {
	defer observe("baseline_exists", time.Now())

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM daily_baselines WHERE date = ?`, date.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: baseline exists: %w", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// UpsertBaseline writes one row per guild, replacing the levels of rows with
// the same key. The date's created_at is kept.
func (s *SQLiteStore) UpsertBaseline(ctx context.Context, b model.DailyBaseline) error {
	defer observe("upsert_baseline", time.Now())

	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insertBaselineRows(ctx, tx, b)
	})
}

// CreateBaselineIfAbsent writes b only when its date has no rows. The check
// and the insert share one immediate transaction.
func (s *SQLiteStore) CreateBaselineIfAbsent(ctx context.Context, b model.DailyBaseline) (bool, error) {
	defer observe("create_baseline", time.Now())

	created := false
	err := s.WithTransaction(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM daily_baselines WHERE date = ?`, b.Date.String()).Scan(&n); err != nil {
			return fmt.Errorf("%w: check baseline: %w", ErrStoreUnavailable, err)
		}
		if n > 0 {
			return nil
		}
		if err := insertBaselineRows(ctx, tx, b); err != nil {
			return err
		}
		created = len(b.Guilds) > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func insertBaselineRows(ctx context.Context, tx *sql.Tx, b model.DailyBaseline) error {
	stmt, err := tx.PrepareContext(ctx, upsertBaselineSQL)
	if err != nil {
		return fmt.Errorf("%w: prepare baseline insert: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = stmt.Close() }()

	createdAt := formatTime(b.CreatedAt)
	date := b.Date.String()
	for name, p := range b.Guilds {
		if _, err := stmt.ExecContext(ctx, date, name, p.NexusLevel, p.StudyLevel, date, createdAt); err != nil {
			return fmt.Errorf("%w: insert baseline %s/%s: %w", ErrStoreUnavailable, b.Date, name, err)
		}
	}
	return nil
}

// GetBaseline returns the baseline of date. A date without rows yields an
// empty baseline, not an error.
func (s *SQLiteStore) GetBaseline(ctx context.Context, date model.Date) (model.DailyBaseline, error) {
	defer observe("get_baseline", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_name, nexus_level, study_level, created_at
		FROM daily_baselines WHERE date = ? ORDER BY guild_name`, date.String())
	if err != nil {
		return model.DailyBaseline{}, fmt.Errorf("%w: get baseline: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	b := model.EmptyBaseline(date)
	for rows.Next() {
		var (
			name      string
			p         model.LevelPair
			createdAt string
		)
		if err := rows.Scan(&name, &p.NexusLevel, &p.StudyLevel, &createdAt); err != nil {
			return model.DailyBaseline{}, fmt.Errorf("%w: scan baseline: %w", ErrStoreUnavailable, err)
		}
		b.Guilds[name] = p
		ts, err := parseTime(createdAt)
		if err != nil {
			return model.DailyBaseline{}, err
		}
		if b.CreatedAt.IsZero() || ts.Before(b.CreatedAt) {
			b.CreatedAt = ts
		}
	}
	if err := rows.Err(); err != nil {
		return model.DailyBaseline{}, fmt.Errorf("%w: read baseline: %w", ErrStoreUnavailable, err)
	}
	return b, nil
}
