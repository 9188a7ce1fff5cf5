package core

import "fmt"

// Level is one row of the level table.
type Level struct {
	Level      int     `json:"level"`
	Name       string  `json:"name"`
	XPRequired float64 `json:"xpRequired"`
}

// Trophy is a named level together with whether the user reached it.
type Trophy struct {
	Level
	Unlocked bool `json:"unlocked"`
}

const (
	// MaxLevel is the number of entries in the level table.
	MaxLevel = 100

	namedLevels  = 10
	legendBaseXP = 10000
	legendStepXP = 2000
)

// Levels is the static table, ascending by XPRequired.
var Levels = buildLevels()

func buildLevels() []Level {
	levels := []Level{
		{1, "Iniciante", 0},
		{2, "Poupador Bronze", 100},
		{3, "Poupador Prata", 250},
		{4, "Poupador Ouro", 500},
		{5, "Investidor Junior", 800},
		{6, "Investidor Pleno", 1200},
		{7, "Investidor Sênior", 1700},
		{8, "Mestre das Finanças", 2500},
		{9, "Mago Financeiro", 5000},
		{10, "Lenda da Riqueza", legendBaseXP},
	}
	for n := namedLevels + 1; n <= MaxLevel; n++ {
		levels = append(levels, Level{
			Level:      n,
			Name:       fmt.Sprintf("Lenda Nível %d", n),
			XPRequired: float64(legendBaseXP + (n-namedLevels)*legendStepXP),
		})
	}
	return levels
}

// LevelForXP returns the highest level whose requirement xp meets.
// The table is scanned from the top; anything below zero maps to level 1.
func LevelForXP(xp float64) int {
	for i := len(Levels) - 1; i >= 0; i-- {
		if xp >= Levels[i].XPRequired {
			return Levels[i].Level
		}
	}
	return 1
}

// LevelInfo returns the table entry for level, clamped to the table bounds.
func LevelInfo(level int) Level {
	if level < 1 {
		level = 1
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return Levels[level-1]
}

// NextLevel returns the entry after level and false once the table is exhausted.
func NextLevel(level int) (Level, bool) {
	if level < 1 {
		return Levels[0], true
	}
	if level >= MaxLevel {
		return Level{}, false
	}
	return Levels[level], true
}

// Trophies lists the named levels with their unlock state for level.
func Trophies(level int) []Trophy {
	out := make([]Trophy, 0, namedLevels)
	for _, l := range Levels[:namedLevels] {
		out = append(out, Trophy{Level: l, Unlocked: level >= l.Level})
	}
	return out
}
