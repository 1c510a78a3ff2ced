package model

// Guild is one entry of the game's guild list.
type Guild struct {
	ID            int64
	Name          string
	OwnerID       int64
	Level         int64
	TotalUpgrades int64
}

// GuildLevels is the derived level pair for one guild in one run.
type GuildLevels struct {
	GuildID       int64
	GuildName     string
	GuildLevel    int64
	TotalUpgrades int64
	NexusLevel    int64
	StudyLevel    int64
}

// Valid reports whether the entry can take part in progress computation.
func (g GuildLevels) Valid() bool {
	return g.GuildName != "" && g.NexusLevel >= 0 && g.StudyLevel >= 0
}

// GuildProgressRecord is one ranked row of a collection run.
type GuildProgressRecord struct {
	GuildLevels

	NexusProgress  int64
	StudyProgress  int64
	NexusCodexCost int64
	StudyCodexCost int64
	TotalCodexCost int64

	// InBaseline is false for guilds first seen after today's baseline.
	InBaseline bool
}

// FetchJob asks a worker to resolve the levels of one guild. Rank is the
// guild's 1-based position in the guild list.
type FetchJob struct {
	Guild Guild
	Rank  int
}
