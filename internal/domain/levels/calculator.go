// Package levels derives Nexus and Study levels from a guild owner's boost profile.
package levels

import (
	"math"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
)

const (
	// StudyBoostID is the boost id whose remainder is the Study level.
	StudyBoostID = "100"

	// MaxLevel caps derived levels. Readings above it come from corrupt
	// boost data and would overflow the codex cost sums.
	MaxLevel int64 = 1_000_000_000

	upgradeFactor       = 0.02
	infusionBonus       = 0.05
	equipmentDivisor    = 50
	basePercent         = 100
	totalBoostToPercent = 100
)

// DefaultNexusBoostPriority lists the boost ids tried, in order, when
// looking for research damage.
var DefaultNexusBoostPriority = []string{ //nolint:gochecknoglobals // read-only default
	"30", "31", "32", "40", "41", "42", "43", "44", "45", "46", "47", "48", "49", "50",
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithBoostPriority replaces the boost id priority list.
func WithBoostPriority(ids []string) Option {
	return func(c *Calculator) {
		if len(ids) > 0 {
			c.priority = append([]string(nil), ids...)
		}
	}
}

// Calculator computes levels. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	priority []string
}

// NewCalculator creates a Calculator.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{priority: append([]string(nil), DefaultNexusBoostPriority...)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Levels returns the Nexus and Study level of a profile.
func (c *Calculator) Levels(p model.PlayerBoostProfile) (nexus, study int64) {
	upgrades, damage, _ := c.ResearchDamage(p)
	return NexusLevel(damage, upgrades), StudyLevel(p)
}

// ResearchDamage walks the priority list and returns the owner upgrades and
// research damage percent of the first boost id with positive damage. When
// none is positive the values of the last id are returned.
func (c *Calculator) ResearchDamage(p model.PlayerBoostProfile) (upgrades, damagePercent float64, boostID string) {
	for _, id := range c.priority {
		upgrades = p.Base(id)
		damagePercent = p.Total(id)*totalBoostToPercent - EquipmentContribution(p, id) - basePercent
		boostID = id
		if damagePercent > 0 {
			return upgrades, damagePercent, boostID
		}
	}
	return upgrades, damagePercent, boostID
}

// EquipmentContribution sums the boost id over equipment slots 1..8, scaled
// by each item's infusions.
func EquipmentContribution(p model.PlayerBoostProfile, id string) float64 {
	var sum float64
	for slot := model.MinEquipmentSlot; slot <= model.MaxEquipmentSlot; slot++ {
		item, ok := p.Equipment[slot]
		if !ok {
			continue
		}
		sum += item.Boost(id) * (1 + infusionBonus*item.Infusions.Total()) / equipmentDivisor
	}
	return sum
}

// NexusLevel converts research damage into a level. No upgrades means level 0.
func NexusLevel(researchDamagePercent, ownerUpgrades float64) int64 {
	if ownerUpgrades <= 0 {
		return 0
	}
	multiplier := researchDamagePercent / (ownerUpgrades * upgradeFactor)
	return clampRound(basePercent * (multiplier - 1))
}

// StudyLevel is the total study boost minus the base boost and the slot 5 item.
func StudyLevel(p model.PlayerBoostProfile) int64 {
	study := p.Total(StudyBoostID) - p.Base(StudyBoostID) - p.Equipment[model.StudyEquipmentSlot].Boost(StudyBoostID)
	return clampRound(study)
}

// clampRound rounds half to even and clamps into [0, MaxLevel]. NaN and -Inf
// become 0, +Inf becomes MaxLevel.
func clampRound(v float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= float64(MaxLevel) {
		return MaxLevel
	}
	return int64(math.RoundToEven(v))
}
