// Package progress turns current levels and the day's baseline into ranked
// progress records and a codex cost estimate.
package progress

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
)

var maxCost = decimal.NewFromInt(math.MaxInt64) //nolint:gochecknoglobals // read-only bound

// Cost is the codex needed to raise a level from start by progress levels:
// the sum of start+1 .. start+progress. Non-positive progress costs nothing
// and a negative start counts from 0. The sum is exact and saturates at
// math.MaxInt64 instead of wrapping.
func Cost(start, progress int64) int64 {
	if progress <= 0 {
		return 0
	}
	start = max(start, 0)
	// progress*(2*start+progress+1) is always even.
	p := decimal.NewFromInt(progress)
	span := decimal.NewFromInt(start).Add(decimal.NewFromInt(start)).Add(p).Add(decimal.NewFromInt(1))
	sum := p.Mul(span).Div(decimal.NewFromInt(2))
	if sum.GreaterThan(maxCost) {
		return math.MaxInt64
	}
	return sum.IntPart()
}

// addCost adds two non-negative costs, saturating at math.MaxInt64.
func addCost(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// ComputeProgress pairs each current entry with its baseline. Guilds missing
// from the baseline get zero progress. Invalid entries are dropped.
func ComputeProgress(current []model.GuildLevels, baseline model.DailyBaseline) []model.GuildProgressRecord {
	out := make([]model.GuildProgressRecord, 0, len(current))
	for _, g := range current {
		if !g.Valid() {
			continue
		}
		rec := model.GuildProgressRecord{GuildLevels: g}
		if b, ok := baseline.Lookup(g.GuildName); ok {
			rec.InBaseline = true
			rec.NexusProgress = max(0, g.NexusLevel-b.NexusLevel)
			rec.StudyProgress = max(0, g.StudyLevel-b.StudyLevel)
			rec.NexusCodexCost = Cost(b.NexusLevel, rec.NexusProgress)
			rec.StudyCodexCost = Cost(b.StudyLevel, rec.StudyProgress)
			rec.TotalCodexCost = addCost(rec.NexusCodexCost, rec.StudyCodexCost)
		}
		out = append(out, rec)
	}
	return out
}

// Rank orders records by Nexus level, Study level and total upgrades, all
// descending, then guild id ascending. Equal keys keep their input order.
func Rank(records []model.GuildProgressRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.NexusLevel != b.NexusLevel {
			return a.NexusLevel > b.NexusLevel
		}
		if a.StudyLevel != b.StudyLevel {
			return a.StudyLevel > b.StudyLevel
		}
		if a.TotalUpgrades != b.TotalUpgrades {
			return a.TotalUpgrades > b.TotalUpgrades
		}
		return a.GuildID < b.GuildID
	})
}

// TotalCodex sums the codex cost of all records.
func TotalCodex(records []model.GuildProgressRecord) int64 {
	var total int64
	for _, r := range records {
		total = addCost(total, max(r.TotalCodexCost, 0))
	}
	return total
}
