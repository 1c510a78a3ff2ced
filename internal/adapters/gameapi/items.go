package gameapi

import (
	"slices"
	"strconv"
)

// CodexItemID is the market id of Codex.
const CodexItemID = 3

var itemNames = map[int]string{ //nolint:gochecknoglobals // static lookup table
	1: "Mana Dust", 7: "Fish", 8: "Wood", 9: "Iron",
	2: "Elemental Shards", 3: "Codex",
	4: "Fire Essence", 5: "Water Essence", 6: "Nature Essence",
	10: "Asbestos", 11: "Ironbark", 12: "Fish Scales",
	13: "Tome of Fire", 14: "Tome of Water", 15: "Tome of Nature", 16: "Tome of Mana Shield",
	17: "Formula: Fire Resistance", 18: "Formula: Water Resistance", 19: "Formula: Nature Resistance",
	20: "Formula: Inferno", 21: "Formula: Tidal Wrath", 22: "Formula: Wildheart",
	23: "Formula: Insight", 24: "Formula: Bountiful Harvest", 25: "Formula: Prosperity",
	26: "Formula: Fortune", 27: "Formula: Growth", 28: "Formula: Vitality",
	29: "Elderwood", 30: "Lodestone", 31: "White Pearl",
	32: "Four-Leaf Clover", 33: "Enchanted Droplet", 34: "Infernal Heart",
	35: "Orb of Power", 36: "Orb of Chaos", 37: "Orb of Divinity", 45: "Orb of Legacy",
	46: "Elementium", 47: "Divine Essence",
	39: "Sunpetal", 40: "Sageroot", 41: "Bloomwell",
	44: "Crystallized Mana",
}

// Items that never appear on the market.
var untradeable = map[int]bool{38: true, 42: true, 43: true, 48: true, 49: true} //nolint:gochecknoglobals // static lookup table

var itemCategories = map[string][]string{ //nolint:gochecknoglobals // static lookup table
	"Essentials":    {"Elemental Shards", "Codex"},
	"Resources":     {"Fish", "Wood", "Iron"},
	"Spell Tomes":   {"Tome of Fire", "Tome of Water", "Tome of Nature", "Tome of Mana Shield"},
	"Orbs/Upgrades": {"Orb of Power", "Orb of Chaos", "Orb of Divinity", "Orb of Legacy", "Elementium", "Divine Essence"},
	"Herbs":         {"Sunpetal", "Sageroot", "Bloomwell"},
	"Enchanting Reagents": {
		"Fire Essence", "Water Essence", "Nature Essence", "Asbestos", "Ironbark", "Fish Scales",
		"Elderwood", "Lodestone", "White Pearl", "Four-Leaf Clover", "Enchanted Droplet", "Infernal Heart",
	},
	"Enchanting Formulas": {
		"Formula: Fire Resistance", "Formula: Water Resistance", "Formula: Nature Resistance",
		"Formula: Inferno", "Formula: Tidal Wrath", "Formula: Wildheart", "Formula: Insight",
		"Formula: Bountiful Harvest", "Formula: Prosperity", "Formula: Fortune", "Formula: Growth", "Formula: Vitality",
	},
	"Special": {"Crystallized Mana"},
}

// ItemName returns the market name of id, or "Item <id>" when unknown.
func ItemName(id int) string {
	if name, ok := itemNames[id]; ok {
		return name
	}
	return "Item " + strconv.Itoa(id)
}

// Tradeable reports whether id can carry a market quote.
func Tradeable(id int) bool {
	return id > 0 && !untradeable[id]
}

// ItemIDs returns the known tradeable ids in ascending order.
func ItemIDs() []int {
	ids := make([]int, 0, len(itemNames))
	for id := range itemNames {
		if Tradeable(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Categories returns a copy of the dashboard item groups.
func Categories() map[string][]string {
	out := make(map[string][]string, len(itemCategories))
	for k, v := range itemCategories {
		out[k] = slices.Clone(v)
	}
	return out
}
