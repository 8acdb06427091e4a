package state

import (
	"context"
	"strconv"
	"strings"
	"time"
)

type levelThreshold struct {
	XP   int
	Name string
}

var levels = []levelThreshold{
	{0, "Unawakened"},
	{50, "Novice"},
	{150, "Apprentice"},
	{300, "Journeyman"},
	{500, "Adept"},
	{800, "Expert"},
	{1200, "Master"},
	{1800, "Grandmaster"},
	{2500, "Legend"},
	{5000, "Mythic"},
	{10000, "Transcendent"},
}

// LevelFor returns the level name for an XP amount.
func LevelFor(xp int) string {
	name := levels[0].Name
	for _, level := range levels {
		if xp >= level.XP {
			name = level.Name
		}
	}
	return name
}

// XPBar renders the ten-segment progress bar toward the next level.
func XPBar(xp int) string {
	current, next := 0, levels[1].XP
	found := false
	for _, level := range levels {
		if level.XP <= xp {
			current = level.XP
		} else {
			next = level.XP
			found = true
			break
		}
	}
	if !found {
		return strings.Repeat("█", 10) + " MAX"
	}

	filled := (xp - current) * 10 / (next - current)
	var b strings.Builder
	b.WriteString(strings.Repeat("█", filled))
	b.WriteString(strings.Repeat("░", 10-filled))
	b.WriteString(" ")
	b.WriteString(strconv.Itoa(xp))
	b.WriteString(" XP")
	return b.String()
}

// AwardXP adds XP, recomputes the level and stamps last_active.
func (d *DocumentStore) AwardXP(ctx context.Context, amount int) error {
	return d.Update(ctx, func(doc map[string]any) {
		xp := asInt(doc["xp"]) + amount
		doc["xp"] = xp
		doc["level"] = LevelFor(xp)
		doc["last_active"] = time.Now().UTC().Format("2006-01-02")
	})
}

// BumpStat increments a counter under stats.
func (d *DocumentStore) BumpStat(ctx context.Context, key string, delta int) error {
	return d.Update(ctx, func(doc map[string]any) {
		stats, ok := doc["stats"].(map[string]any)
		if !ok {
			stats = map[string]any{}
			doc["stats"] = stats
		}
		stats[key] = asInt(stats[key]) + delta
	})
}

// asInt coerces the numeric shapes a JSON round-trip can produce.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
