package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
)

// SaveMarketPrices stores quotes taken at ts. A second save for the same
// (ts, item) replaces the first.
func (s *SQLiteStore) SaveMarketPrices(ctx context.Context, ts time.Time, quotes []model.MarketQuote) error {
	defer observe("save_market", time.Now())

	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insertQuotes(ctx, tx, formatTime(ts), quotes)
	})
}

func insertQuotes(ctx context.Context, tx *sql.Tx, ts string, quotes []model.MarketQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_prices (timestamp, item_name, item_id, buy_price, sell_price, average_price)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(timestamp, item_name) DO UPDATE SET
			item_id = excluded.item_id,
			buy_price = excluded.buy_price,
			sell_price = excluded.sell_price,
			average_price = excluded.average_price`)
	if err != nil {
		return fmt.Errorf("%w: prepare market insert: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, q := range quotes {
		_, err := stmt.ExecContext(ctx, ts, q.ItemName, q.ItemID,
			q.BuyPrice.String(), q.SellPrice.String(), q.Average().String())
		if err != nil {
			return fmt.Errorf("%w: insert market price %s: %w", ErrStoreUnavailable, q.ItemName, err)
		}
	}
	return nil
}

// MarketHistory returns quotes at or after since, optionally limited to items.
func (s *SQLiteStore) MarketHistory(ctx context.Context, since time.Time, items []string) ([]model.PricePoint, error) {
	defer observe("market_history", time.Now())

	query := `SELECT timestamp, item_name, buy_price, sell_price, average_price FROM market_prices WHERE timestamp >= ?`
	args := []any{formatTime(since)}
	if len(items) > 0 {
		query += ` AND item_name IN (` + placeholders(len(items)) + `)`
		for _, it := range items {
			args = append(args, it)
		}
	}
	query += ` ORDER BY timestamp, item_name`
	return s.queryPrices(ctx, query, args...)
}

// LatestMarketPrices returns the most recent quote of every item.
func (s *SQLiteStore) LatestMarketPrices(ctx context.Context) ([]model.PricePoint, error) {
	defer observe("latest_market", time.Now())

	return s.queryPrices(ctx, `
		SELECT m.timestamp, m.item_name, m.buy_price, m.sell_price, m.average_price
		FROM market_prices m
		JOIN (SELECT item_name, MAX(timestamp) AS ts FROM market_prices GROUP BY item_name) latest
			ON latest.item_name = m.item_name AND latest.ts = m.timestamp
		ORDER BY m.item_name`)
}

// AveragePrice averages the midpoint quotes of item over the last
// windowHours. Without quotes in the window the fallback price is returned.
func (s *SQLiteStore) AveragePrice(ctx context.Context, item string, windowHours int) (decimal.Decimal, error) {
	defer observe("average_price", time.Now())

	if windowHours <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %d hours", ErrInvalidWindow, windowHours)
	}
	since := s.now().Add(-time.Duration(windowHours) * time.Hour)
	points, err := s.queryPrices(ctx, `
		SELECT timestamp, item_name, buy_price, sell_price, average_price
		FROM market_prices WHERE item_name = ? AND timestamp >= ?`, item, formatTime(since))
	if err != nil {
		return decimal.Zero, err
	}

	var sum decimal.Decimal
	n := 0
	for _, p := range points {
		if !p.Average.IsPositive() {
			continue
		}
		sum = sum.Add(p.Average)
		n++
	}
	if n == 0 {
		return s.fallbackPrice, nil
	}
	return sum.Div(decimal.NewFromInt(int64(n))), nil
}

func (s *SQLiteStore) queryPrices(ctx context.Context, query string, args ...any) ([]model.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query market prices: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PricePoint
	for rows.Next() {
		var (
			p              model.PricePoint
			ts             string
			buy, sell, avg string
		)
		if err := rows.Scan(&ts, &p.ItemName, &buy, &sell, &avg); err != nil {
			return nil, fmt.Errorf("%w: scan market price: %w", ErrStoreUnavailable, err)
		}
		if p.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if p.BuyPrice, err = decimal.NewFromString(buy); err != nil {
			return nil, fmt.Errorf("parse buy price: %w", err)
		}
		if p.SellPrice, err = decimal.NewFromString(sell); err != nil {
			return nil, fmt.Errorf("parse sell price: %w", err)
		}
		if p.Average, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("parse average price: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read market prices: %w", ErrStoreUnavailable, err)
	}
	return out, nil
}
