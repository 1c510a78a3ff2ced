// Package repository persists collection runs, baselines and market prices in SQLite.
package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/pkg/metrics"
)

//go:embed schema.sql
var schema string

// DefaultFallbackPrice is the codex price used when no quotes exist.
var DefaultFallbackPrice = decimal.NewFromInt(10_000_000_000) //nolint:gochecknoglobals // read-only default

// timeLayout sorts lexicographically, so timestamps compare as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store is everything the collector and the read API need from persistence.
type Store interface {
	BaselineExists(ctx context.Context, date model.Date) (bool, error)
	UpsertBaseline(ctx context.Context, b model.DailyBaseline) error
	CreateBaselineIfAbsent(ctx context.Context, b model.DailyBaseline) (bool, error)
	GetBaseline(ctx context.Context, date model.Date) (model.DailyBaseline, error)

	SaveRun(ctx context.Context, rec model.RunRecord) error
	LatestSnapshot(ctx context.Context) (model.Snapshot, error)
	SnapshotsSince(ctx context.Context, since time.Time, guildNames []string) ([]model.HistoryPoint, error)
	LastRun(ctx context.Context) (model.ProcessingLog, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	SaveMarketPrices(ctx context.Context, ts time.Time, quotes []model.MarketQuote) error
	MarketHistory(ctx context.Context, since time.Time, items []string) ([]model.PricePoint, error)
	LatestMarketPrices(ctx context.Context) ([]model.PricePoint, error)
	AveragePrice(ctx context.Context, item string, windowHours int) (decimal.Decimal, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config holds database settings.
type Config struct {
	// Path is the SQLite file. ":memory:" opens a private in-memory database.
	Path        string
	BusyTimeout time.Duration
	MaxOpenConn int
}

// DefaultConfig returns a Config for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, BusyTimeout: 5 * time.Second, MaxOpenConn: 4}
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db            *sql.DB
	fallbackPrice decimal.Decimal
	now           func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// Open opens the database, applies the schema and verifies the connection.
func Open(ctx context.Context, cfg Config, opts ...Option) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrStoreUnavailable)
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	memory := cfg.Path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %w", ErrStoreUnavailable, err)
		}
	}

	// BEGIN IMMEDIATE takes the write lock up front, so check-then-insert
	// inside a transaction cannot interleave with another writer.
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()),
		"_pragma=foreign_keys(1)",
		"_txlock=immediate",
	}
	if !memory {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	dsn := cfg.Path + "?" + strings.Join(pragmas, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrStoreUnavailable, err)
	}
	// Each in-memory connection is its own database.
	if memory || cfg.MaxOpenConn <= 0 {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConn)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrStoreUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply schema: %w", ErrStoreUnavailable, err)
	}

	s := &SQLiteStore{db: db, fallbackPrice: DefaultFallbackPrice, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// TxFunc is a function that runs within a transaction.
type TxFunc func(*sql.Tx) error

// WithTransaction runs fn in a transaction, committing on success and
// rolling back on error or panic.
func (s *SQLiteStore) WithTransaction(ctx context.Context, fn TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrStoreUnavailable, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		} else if err = tx.Commit(); err != nil {
			err = fmt.Errorf("%w: commit: %w", ErrStoreUnavailable, err)
		}
	}()

	return fn(tx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// observe records the latency of a store operation.
func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
