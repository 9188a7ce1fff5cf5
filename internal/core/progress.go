package core

import (
	"math"
	"time"
)

// Deposit describes the outcome of one savings deposit.
type Deposit struct {
	Profile        UserProfile  `json:"profile"`
	Patch          ProfilePatch `json:"-"`
	XPGained       float64      `json:"xpGained"`
	StreakBroken   bool         `json:"streakBroken"`
	CycleCompleted bool         `json:"cycleCompleted"`
	LeveledUp      bool         `json:"leveledUp"`
}

// StreakMultiplier returns the XP multiplier for a streak length.
func StreakMultiplier(streak int) float64 {
	switch {
	case streak >= 10:
		return 3.34
	case streak >= 5:
		return 2
	default:
		return 1
	}
}

// ApplyDeposit computes the profile after depositing amount at now.
// Month comparisons use loc.
func ApplyDeposit(p UserProfile, amount float64, now time.Time, loc *time.Location) Deposit {
	last := p.LastSavingsDate
	xp := p.XP
	streak := p.Streak
	broken := false

	if !SameMonth(now, last, loc) {
		if !SameMonth(PreviousMonth(now, loc), last, loc) && streak > 0 {
			broken = true
			streak = 1
			xp = math.Max(0, xp-XPLossPerMissedMonth)
		} else {
			streak++
		}
	}

	gained := amount * XPPerSavedBRL * StreakMultiplier(streak)
	xp += gained

	total := p.TotalSavings + amount
	cycle := p.SavingsCycle
	if cycle < 1 {
		cycle = 1
	}
	completed := false
	if goal := p.Goal(); total >= goal {
		completed = true
		cycle++
		total -= goal
		xp = 0
	}

	out := p
	out.Streak = streak
	out.LastSavingsDate = now
	out.TotalSavings = total
	out.SavingsCycle = cycle
	out.SetXP(xp)

	patch := ProfilePatch{
		Streak:          &out.Streak,
		LastSavingsDate: &out.LastSavingsDate,
		TotalSavings:    &out.TotalSavings,
		SavingsCycle:    &out.SavingsCycle,
	}
	patch.SetXP(out.XP)

	return Deposit{
		Profile:        out,
		Patch:          patch,
		XPGained:       gained,
		StreakBroken:   broken,
		CycleCompleted: completed,
		LeveledUp:      out.Level > p.Level,
	}
}

// DecayOnLogin applies the missed-month penalty when the streak was broken
// by inactivity. It reports false, and an empty patch, when nothing changes.
func DecayOnLogin(p UserProfile, now time.Time, loc *time.Location) (UserProfile, ProfilePatch, bool) {
	last := p.LastSavingsDate
	if last.IsZero() {
		return p, ProfilePatch{}, false
	}
	if SameMonth(now, last, loc) || SameMonth(PreviousMonth(now, loc), last, loc) {
		return p, ProfilePatch{}, false
	}
	if p.Streak <= 0 {
		return p, ProfilePatch{}, false
	}

	out := p
	out.Streak = 0
	out.SetXP(p.XP - XPLossPerMissedMonth)

	patch := ProfilePatch{Streak: &out.Streak}
	patch.SetXP(out.XP)
	return out, patch, true
}
