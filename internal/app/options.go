package service

import (
	"time"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/levels"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCalculator replaces the level calculator.
func WithCalculator(c *levels.Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calc = c
		}
	}
}

// WithWorkerCount sets the number of profile fetch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the fetch queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithTopGuilds limits a run to the first n guilds of the guild list.
func WithTopGuilds(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topGuilds = n
		}
	}
}

// WithInterval sets the spacing between scheduled runs.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithCollectOnStart runs a collection as soon as Start is called.
func WithCollectOnStart(enabled bool) Option {
	return func(s *Service) {
		s.collectOnStart = enabled
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMarketItem sets the item whose price converts codex to dust.
func WithMarketItem(item string) Option {
	return func(s *Service) {
		if item != "" {
			s.marketItem = item
		}
	}
}

// WithMarketWindow sets the price averaging window in hours.
func WithMarketWindow(hours int) Option {
	return func(s *Service) {
		if hours > 0 {
			s.marketWindowHours = hours
		}
	}
}

// WithRetention sets how long history is kept. Zero disables pruning.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithCache sets the read cache size and entry lifetime.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 {
			s.cacheSize = size
		}
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}
