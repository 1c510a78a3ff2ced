package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
)

// SaveRun commits guild metadata, snapshot rows, market quotes and the
// processing log of one run in a single transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec model.RunRecord) error {
	defer observe("save_run", time.Now())

	ts := formatTime(rec.Run.CollectedAt)
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := upsertGuilds(ctx, tx, ts, rec.Guilds); err != nil {
			return err
		}
		if err := insertSnapshot(ctx, tx, ts, rec.Run, rec.Log.DataFresh); err != nil {
			return err
		}
		if err := insertQuotes(ctx, tx, ts, rec.Quotes); err != nil {
			return err
		}
		return insertLog(ctx, tx, rec.Log)
	})
}

func upsertGuilds(ctx context.Context, tx *sql.Tx, ts string, guilds []model.Guild) error {
	if len(guilds) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO guilds (guild_id, guild_name, owner_id, guild_level, total_upgrades, last_seen, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(guild_id) DO UPDATE SET
			guild_name = excluded.guild_name,
			owner_id = excluded.owner_id,
			guild_level = excluded.guild_level,
			total_upgrades = excluded.total_upgrades,
			last_seen = excluded.last_seen,
			is_active = 1`)
	if err != nil {
		return fmt.Errorf("%w: prepare guild upsert: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, g := range guilds {
		if _, err := stmt.ExecContext(ctx, g.ID, g.Name, g.OwnerID, g.Level, g.TotalUpgrades, ts); err != nil {
			return fmt.Errorf("%w: upsert guild %d: %w", ErrStoreUnavailable, g.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE guilds SET is_active = 0 WHERE last_seen < ?`, ts); err != nil {
		return fmt.Errorf("%w: deactivate guilds: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, ts string, run model.RunSummary, fresh bool) error {
	if len(run.Records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO guild_snapshots (
			run_id, timestamp, rank, guild_name, guild_id, guild_level, nexus_level, study_level,
			total_upgrades, nexus_progress, study_progress, nexus_codex_cost, study_codex_cost,
			codex_cost, in_baseline, baseline_date, data_fresh
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(timestamp, guild_name) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("%w: prepare snapshot insert: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range run.Records {
		_, err := stmt.ExecContext(ctx,
			run.RunID, ts, i+1, r.GuildName, r.GuildID, r.GuildLevel, r.NexusLevel, r.StudyLevel,
			r.TotalUpgrades, r.NexusProgress, r.StudyProgress, r.NexusCodexCost, r.StudyCodexCost,
			r.TotalCodexCost, boolInt(r.InBaseline), run.BaselineDate.String(), boolInt(fresh),
		)
		if err != nil {
			return fmt.Errorf("%w: insert snapshot %s: %w", ErrStoreUnavailable, r.GuildName, err)
		}
	}
	return nil
}

func insertLog(ctx context.Context, tx *sql.Tx, l model.ProcessingLog) error {
	errs := l.Errors
	if errs == nil {
		errs = []string{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode run errors: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO processing_logs (
			run_id, timestamp, execution_time_seconds, guilds_processed, guilds_skipped,
			api_calls_made, data_freshness, errors, baseline_created
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID, formatTime(l.StartedAt), l.Duration.Seconds(), l.GuildsProcessed, l.GuildsSkipped,
		l.APICalls, boolInt(l.DataFresh), string(encoded), boolInt(l.BaselineCreated),
	)
	if err != nil {
		return fmt.Errorf("%w: insert processing log: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// LatestSnapshot returns the rows of the most recent committed run, in rank
// order. ErrNotFound means no run has committed yet.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (model.Snapshot, error) {
	defer observe("latest_snapshot", time.Now())

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM guild_snapshots`).Scan(&latest); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: latest snapshot: %w", ErrStoreUnavailable, err)
	}
	if !latest.Valid {
		return model.Snapshot{}, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_name, guild_id, guild_level, nexus_level, study_level, total_upgrades,
			nexus_progress, study_progress, nexus_codex_cost, study_codex_cost, codex_cost,
			in_baseline, baseline_date
		FROM guild_snapshots WHERE timestamp = ? ORDER BY rank`, latest.String)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: read snapshot: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	collectedAt, err := parseTime(latest.String)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap := model.Snapshot{CollectedAt: collectedAt}
	for rows.Next() {
		var (
			r            model.GuildProgressRecord
			inBaseline   int
			baselineDate string
		)
		if err := rows.Scan(
			&r.GuildName, &r.GuildID, &r.GuildLevel, &r.NexusLevel, &r.StudyLevel, &r.TotalUpgrades,
			&r.NexusProgress, &r.StudyProgress, &r.NexusCodexCost, &r.StudyCodexCost, &r.TotalCodexCost,
			&inBaseline, &baselineDate,
		); err != nil {
			return model.Snapshot{}, fmt.Errorf("%w: scan snapshot: %w", ErrStoreUnavailable, err)
		}
		r.InBaseline = inBaseline == 1
		snap.BaselineDate = model.Date(baselineDate)
		snap.Records = append(snap.Records, r)
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: read snapshot: %w", ErrStoreUnavailable, err)
	}

	var createdAt sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT MIN(created_at) FROM daily_baselines WHERE date = ?`,
		snap.BaselineDate.String()).Scan(&createdAt)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: baseline created_at: %w", ErrStoreUnavailable, err)
	}
	if createdAt.Valid {
		if snap.BaselineCreatedAt, err = parseTime(createdAt.String); err != nil {
			return model.Snapshot{}, err
		}
	}
	return snap, nil
}

// SnapshotsSince returns snapshot rows at or after since, optionally limited
// to guildNames, ordered by time.
func (s *SQLiteStore) SnapshotsSince(ctx context.Context, since time.Time, guildNames []string) ([]model.HistoryPoint, error) {
	defer observe("snapshots_since", time.Now())

	query := `
		SELECT timestamp, guild_name, nexus_level, study_level, nexus_progress, study_progress, codex_cost
		FROM guild_snapshots WHERE timestamp >= ?`
	args := []any{formatTime(since)}
	if len(guildNames) > 0 {
		query += ` AND guild_name IN (` + placeholders(len(guildNames)) + `)`
		for _, n := range guildNames {
			args = append(args, n)
		}
	}
	query += ` ORDER BY timestamp, rank`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshots since: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.HistoryPoint
	for rows.Next() {
		var (
			p  model.HistoryPoint
			ts string
		)
		if err := rows.Scan(&ts, &p.GuildName, &p.NexusLevel, &p.StudyLevel, &p.NexusProgress, &p.StudyProgress, &p.TotalCodexCost); err != nil {
			return nil, fmt.Errorf("%w: scan history: %w", ErrStoreUnavailable, err)
		}
		if p.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read history: %w", ErrStoreUnavailable, err)
	}
	return out, nil
}

// LastRun returns the most recent processing log.
func (s *SQLiteStore) LastRun(ctx context.Context) (model.ProcessingLog, error) {
	defer observe("last_run", time.Now())

	var (
		l                      model.ProcessingLog
		ts, errs               string
		seconds                float64
		fresh, baselineCreated int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, timestamp, execution_time_seconds, guilds_processed, guilds_skipped,
			api_calls_made, data_freshness, errors, baseline_created
		FROM processing_logs ORDER BY timestamp DESC, id DESC LIMIT 1`).Scan(
		&l.RunID, &ts, &seconds, &l.GuildsProcessed, &l.GuildsSkipped,
		&l.APICalls, &fresh, &errs, &baselineCreated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProcessingLog{}, ErrNotFound
	}
	if err != nil {
		return model.ProcessingLog{}, fmt.Errorf("%w: last run: %w", ErrStoreUnavailable, err)
	}
	if l.StartedAt, err = parseTime(ts); err != nil {
		return model.ProcessingLog{}, err
	}
	if err := json.Unmarshal([]byte(errs), &l.Errors); err != nil {
		return model.ProcessingLog{}, fmt.Errorf("decode run errors: %w", err)
	}
	l.Duration = time.Duration(seconds * float64(time.Second))
	l.DataFresh = fresh == 1
	l.BaselineCreated = baselineCreated == 1
	return l, nil
}

// Prune deletes history older than cutoff and returns the number of rows removed.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	defer observe("prune", time.Now())

	ts := formatTime(cutoff)
	day := model.DateOf(cutoff).String()
	stmts := []struct {
		query string
		arg   string
	}{
		{`DELETE FROM guild_snapshots WHERE timestamp < ?`, ts},
		{`DELETE FROM market_prices WHERE timestamp < ?`, ts},
		{`DELETE FROM processing_logs WHERE timestamp < ?`, ts},
		{`DELETE FROM daily_baselines WHERE date < ?`, day},
	}

	var total int64
	err := s.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, st := range stmts {
			res, err := tx.ExecContext(ctx, st.query, st.arg)
			if err != nil {
				return fmt.Errorf("%w: prune: %w", ErrStoreUnavailable, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("%w: prune: %w", ErrStoreUnavailable, err)
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
