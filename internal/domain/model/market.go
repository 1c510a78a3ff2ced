package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketQuote is the buy/sell quote of one item at collection time.
type MarketQuote struct {
	ItemID    int
	ItemName  string
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
}

// Average is the midpoint of buy and sell.
func (q MarketQuote) Average() decimal.Decimal {
	return q.BuyPrice.Add(q.SellPrice).Div(decimal.NewFromInt(2))
}

// PricePoint is a stored market quote.
type PricePoint struct {
	Timestamp time.Time
	ItemName  string
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	Average   decimal.Decimal
}

// HistoryPoint is one stored snapshot row of a guild.
type HistoryPoint struct {
	Timestamp      time.Time
	GuildName      string
	NexusLevel     int64
	StudyLevel     int64
	NexusProgress  int64
	StudyProgress  int64
	TotalCodexCost int64
}
