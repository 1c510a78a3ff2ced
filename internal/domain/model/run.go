package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DustSpending is the dust estimate of a run.
type DustSpending struct {
	TotalCodex int64
	CodexPrice decimal.Decimal
	TotalDust  decimal.Decimal
}

// RunSummary is the ranked result of one collection run.
type RunSummary struct {
	RunID        string
	CollectedAt  time.Time
	BaselineDate Date
	Records      []GuildProgressRecord
	Dust         DustSpending
}

// Snapshot is the committed state served by the read API.
type Snapshot struct {
	CollectedAt       time.Time
	BaselineDate      Date
	BaselineCreatedAt time.Time
	Records           []GuildProgressRecord
}

// ProcessingLog describes one collection run.
type ProcessingLog struct {
	RunID           string
	StartedAt       time.Time
	Duration        time.Duration
	GuildsProcessed int
	GuildsSkipped   int
	APICalls        int
	DataFresh       bool
	Errors          []string
	BaselineCreated bool
}

// RunRecord is everything a collection run commits at once.
type RunRecord struct {
	Run    RunSummary
	Guilds []Guild
	Quotes []MarketQuote
	Log    ProcessingLog
}
