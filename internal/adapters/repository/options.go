package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithFallbackPrice sets the price returned when an item has no quotes in
// the averaging window.
func WithFallbackPrice(price decimal.Decimal) Option {
	return func(s *SQLiteStore) {
		if price.IsPositive() {
			s.fallbackPrice = price
		}
	}
}

// WithClock overrides the time source used for price windows.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}
