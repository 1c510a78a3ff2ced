package progress

import (
	"github.com/shopspring/decimal"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
)

var currencyUnits = []struct { //nolint:gochecknoglobals // read-only table
	threshold decimal.Decimal
	suffix    string
}{
	{decimal.New(1, 12), "T"},
	{decimal.New(1, 9), "B"},
	{decimal.New(1, 6), "M"},
	{decimal.New(1, 3), "K"},
}

// Dust prices the run's total codex at price.
func Dust(records []model.GuildProgressRecord, price decimal.Decimal) model.DustSpending {
	total := TotalCodex(records)
	return model.DustSpending{
		TotalCodex: total,
		CodexPrice: price,
		TotalDust:  decimal.NewFromInt(total).Mul(price),
	}
}

// FormatCurrency renders amounts as 1.23K, 4.50B and so on.
func FormatCurrency(amount decimal.Decimal) string {
	abs := amount.Abs()
	for _, u := range currencyUnits {
		if abs.GreaterThanOrEqual(u.threshold) {
			return amount.Div(u.threshold).StringFixed(2) + u.suffix
		}
	}
	return amount.StringFixed(2)
}
