// Package mockgame is a deterministic stand-in for the game API. Owner
// profiles encode chosen Nexus and Study levels through the inverse of the
// level formulas, so a collector run against it yields known levels.
package mockgame

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/gameapi"
)

const (
	defaultGuildCount = 16
	defaultSeed       = 42

	nexusBoostID   = "30"
	studyBoostID   = "100"
	perUpgradeRate = 0.02

	ownerIDOffset = 1000
)

var guildNames = []string{ //nolint:gochecknoglobals // static fixture
	"Phoenix Legends", "Dragon Warriors", "Shadow Hunters", "Mystic Order",
	"Iron Brotherhood", "Storm Riders", "Void Seekers", "Crystal Guard",
	"Fire Keepers", "Wind Walkers", "Earth Shapers", "Wave Masters",
	"Thunder Clan", "Frost Giants", "Ember Guild", "Moonlight Society",
}

var basePrices = map[string]float64{ //nolint:gochecknoglobals // static fixture
	"Codex":             10_000_000_000,
	"Mana Dust":         50_000_000,
	"Elemental Shards":  75_000_000,
	"Orb of Power":      5_000_000_000,
	"Orb of Chaos":      8_000_000_000,
	"Orb of Divinity":   15_000_000_000,
	"Orb of Legacy":     12_000_000_000,
	"Elementium":        2_000_000_000,
	"Divine Essence":    3_000_000_000,
	"Crystallized Mana": 500_000_000,
	"Fish":              100_000,
	"Wood":              150_000,
	"Iron":              200_000,
	"Sunpetal":          5_000_000,
	"Sageroot":          7_000_000,
	"Bloomwell":         12_000_000,
}

// Guild is the state of one simulated guild.
type Guild struct {
	ID            int64
	Name          string
	OwnerID       int64
	Level         int64
	TotalUpgrades int64
	NexusLevel    int64
	StudyLevel    int64

	// OwnerUpgrades is base boost "30" of the owner.
	OwnerUpgrades float64
}

// World holds simulated guilds and market prices.
type World struct {
	mu     sync.RWMutex
	rng    *rand.Rand
	guilds []*Guild
	prices map[int][2]int64 // item id -> buy, sell

	guildListDown bool
	failingOwners map[int64]bool
	duplicate     bool
}

// Option configures a World.
type Option func(*worldConfig)

type worldConfig struct {
	count int
	seed  uint64
}

// WithGuildCount sets how many guilds are generated.
func WithGuildCount(n int) Option {
	return func(c *worldConfig) {
		if n > 0 {
			c.count = n
		}
	}
}

// WithSeed makes generation reproducible.
func WithSeed(seed uint64) Option {
	return func(c *worldConfig) { c.seed = seed }
}

// NewWorld generates guilds with levels around the live game's range.
func NewWorld(opts ...Option) *World {
	cfg := worldConfig{count: defaultGuildCount, seed: defaultSeed}
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &World{
		rng:           rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15)),
		failingOwners: map[int64]bool{},
	}
	for i := 0; i < cfg.count; i++ {
		name := guildNames[i%len(guildNames)]
		if i >= len(guildNames) {
			name = name + " " + string(rune('A'+i/len(guildNames)-1))
		}
		id := int64(i + 1)
		w.guilds = append(w.guilds, &Guild{
			ID:            id,
			Name:          name,
			OwnerID:       id + ownerIDOffset,
			Level:         int64(30 + w.rng.IntN(20)),
			TotalUpgrades: int64(500 + w.rng.IntN(1500)),
			NexusLevel:    int64(500 + w.rng.IntN(200)),
			StudyLevel:    int64(360 + w.rng.IntN(160)),
			OwnerUpgrades: float64(200 + w.rng.IntN(800)),
		})
	}
	w.reprice()
	return w
}

// Guilds returns a copy of the guilds, highest Nexus level first.
func (w *World) Guilds() []Guild {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Guild, len(w.guilds))
	for i, g := range w.guilds {
		out[i] = *g
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NexusLevel > out[j].NexusLevel })
	return out
}

// SetLevels pins the levels of a guild. It reports whether the guild exists.
func (w *World) SetLevels(name string, nexus, study int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, g := range w.guilds {
		if g.Name == name {
			g.NexusLevel, g.StudyLevel = nexus, study
			return true
		}
	}
	return false
}

// Advance raises every guild by a few levels and moves market prices.
func (w *World) Advance() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, g := range w.guilds {
		g.NexusLevel += int64(w.rng.IntN(4))
		g.StudyLevel += int64(w.rng.IntN(3))
		g.TotalUpgrades += int64(w.rng.IntN(10))
	}
	w.repriceLocked()
}

// SetGuildListDown makes /guilds answer 503.
func (w *World) SetGuildListDown(down bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.guildListDown = down
}

// SetOwnerFailing makes /player/{ownerID} answer 500.
func (w *World) SetOwnerFailing(ownerID int64, failing bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failingOwners[ownerID] = failing
}

// SetDuplicateEntries repeats the first guild at the end of the guild list
// with a new id, the way the live list occasionally does.
func (w *World) SetDuplicateEntries(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.duplicate = on
}

func (w *World) reprice() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.repriceLocked()
}

func (w *World) repriceLocked() {
	w.prices = map[int][2]int64{}
	for _, id := range gameapi.ItemIDs() {
		base, ok := basePrices[gameapi.ItemName(id)]
		if !ok {
			base = float64(500_000 + w.rng.IntN(100_000_000))
		}
		buy := math.Round(base * (0.85 + 0.3*w.rng.Float64()))
		sell := math.Round(buy * (1.02 + 0.1*w.rng.Float64()))
		w.prices[id] = [2]int64{int64(buy), int64(sell)}
	}
}

// Profile is the owner payload served for a guild.
type Profile struct {
	BaseBoosts  map[string]float64 `json:"baseBoosts"`
	TotalBoosts map[string]float64 `json:"totalBoosts"`
	Equipment   map[string]Item    `json:"equipment"`
}

// Item is one equipped item of a Profile.
type Item struct {
	Boosts    map[string]float64 `json:"boosts"`
	Infusions float64            `json:"infusions"`
}

// ProfileFor builds an owner payload that decodes to g's levels.
func ProfileFor(g Guild) Profile {
	const (
		weaponBoost     = 50.0
		weaponInfusions = 2.0
		studyBase       = 10.0
		studyItemBoost  = 5.0
	)
	equip := weaponBoost * (1 + 0.05*weaponInfusions) / 50

	// level = 100*(dmg/(upgrades*rate) - 1)  =>  dmg = (level/100 + 1) * upgrades * rate
	// dmg = total*100 - equip - 100           =>  total = (dmg + equip + 100) / 100
	dmg := (float64(g.NexusLevel)/100 + 1) * g.OwnerUpgrades * perUpgradeRate
	total := (dmg + equip + 100) / 100

	return Profile{
		BaseBoosts: map[string]float64{
			nexusBoostID: g.OwnerUpgrades,
			studyBoostID: studyBase,
		},
		TotalBoosts: map[string]float64{
			nexusBoostID: total,
			studyBoostID: studyBase + float64(g.StudyLevel) + studyItemBoost,
		},
		Equipment: map[string]Item{
			"1": {Boosts: map[string]float64{nexusBoostID: weaponBoost}, Infusions: weaponInfusions},
			"5": {Boosts: map[string]float64{studyBoostID: studyItemBoost}},
		},
	}
}
