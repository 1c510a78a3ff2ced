package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for baselines.
const DateLayout = "2006-01-02"

// Date is a UTC calendar date, formatted YYYY-MM-DD.
type Date string

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	return Date(t.UTC().Format(DateLayout))
}

// ParseDate validates s as a calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string { return string(d) }

// LevelPair is the baseline level pair of one guild.
type LevelPair struct {
	NexusLevel int64
	StudyLevel int64
}

// DailyBaseline holds the first-seen levels of the UTC day.
// An empty Guilds map means no baseline exists for Date.
type DailyBaseline struct {
	Date      Date
	CreatedAt time.Time
	Guilds    map[string]LevelPair
}

// EmptyBaseline returns the baseline of a date that has none.
func EmptyBaseline(d Date) DailyBaseline {
	return DailyBaseline{Date: d, Guilds: map[string]LevelPair{}}
}

// Exists reports whether the baseline has any guild rows.
func (b DailyBaseline) Exists() bool { return len(b.Guilds) > 0 }

// Lookup returns the baseline levels of a guild.
func (b DailyBaseline) Lookup(guildName string) (LevelPair, bool) {
	p, ok := b.Guilds[guildName]
	return p, ok
}
