// Package model contains domain models passed between layers.
package model

// Equipment slot bounds. Slot 5 carries the study boost adjustment.
const (
	MinEquipmentSlot   = 1
	MaxEquipmentSlot   = 8
	StudyEquipmentSlot = 5
)

// PlayerBoostProfile is the decoded boost data of a guild owner.
// Missing boost ids read as 0.
type PlayerBoostProfile struct {
	BaseBoosts  map[string]float64
	TotalBoosts map[string]float64
	Equipment   map[int]Equipment // keyed by slot 1..8
}

// Base returns the base boost for id, or 0.
func (p PlayerBoostProfile) Base(id string) float64 { return p.BaseBoosts[id] }

// Total returns the total boost for id, or 0.
func (p PlayerBoostProfile) Total(id string) float64 { return p.TotalBoosts[id] }

// Equipment is a single equipped item.
type Equipment struct {
	Boosts    map[string]float64
	Infusions Infusions
}

// Boost returns the item's boost for id, or 0.
func (e Equipment) Boost(id string) float64 { return e.Boosts[id] }

type infusionKind uint8

const (
	infusionNone infusionKind = iota
	infusionCount
	infusionPerType
)

// Infusions is either a plain count or a per-type breakdown. The zero value
// has no infusions.
type Infusions struct {
	kind    infusionKind
	count   float64
	perType map[string]float64
}

// CountInfusions builds an Infusions holding a plain count.
func CountInfusions(n float64) Infusions {
	return Infusions{kind: infusionCount, count: n}
}

// PerTypeInfusions builds an Infusions from a per-type breakdown.
func PerTypeInfusions(m map[string]float64) Infusions {
	return Infusions{kind: infusionPerType, perType: m}
}

// Total normalizes the infusions to a single count.
func (i Infusions) Total() float64 {
	switch i.kind {
	case infusionCount:
		return i.count
	case infusionPerType:
		var sum float64
		for _, v := range i.perType {
			sum += v
		}
		return sum
	default:
		return 0
	}
}

// IsPerType reports whether the infusions came as a per-type breakdown.
func (i Infusions) IsPerType() bool { return i.kind == infusionPerType }
