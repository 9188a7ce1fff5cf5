package core

import (
	"errors"
	"math"
	"time"
)

var ErrMissingUID = errors.New("missing user id")

// SetXP is the only way to change XP; the level is recomputed with it.
func (p *UserProfile) SetXP(xp float64) {
	p.XP = math.Max(0, xp)
	p.Level = LevelForXP(p.XP)
}

// NewProfile builds the defaults of a first login.
func NewProfile(u User, goal float64) UserProfile {
	if goal <= 0 {
		goal = DefaultSavingsGoal
	}
	p := UserProfile{
		UID:             u.UID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		PhotoURL:        u.PhotoURL,
		Streak:          0,
		LastSavingsDate: Epoch(),
		SavingsGoal:     goal,
		TotalSavings:    0,
		SavingsCycle:    1,
	}
	p.SetXP(0)
	return p
}

// Goal returns the cycle goal, falling back to the default for unset values.
func (p UserProfile) Goal() float64 {
	if p.SavingsGoal <= 0 {
		return DefaultSavingsGoal
	}
	return p.SavingsGoal
}

// Document converts a profile to its persisted shape with every field present.
func (p UserProfile) Document() ProfileDocument {
	last := p.LastSavingsDate
	goal := p.SavingsGoal
	total := p.TotalSavings
	cycle := p.SavingsCycle
	return ProfileDocument{
		UID:             p.UID,
		Email:           p.Email,
		DisplayName:     p.DisplayName,
		PhotoURL:        p.PhotoURL,
		XP:              p.XP,
		Level:           p.Level,
		Streak:          p.Streak,
		LastSavingsDate: &last,
		SavingsGoal:     &goal,
		TotalSavings:    &total,
		SavingsCycle:    &cycle,
	}
}

// Profile converts the document to a profile. Missing fields stay zero;
// call Upgrade first to obtain defaults.
func (d ProfileDocument) Profile() UserProfile {
	p := UserProfile{
		UID:         d.UID,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		PhotoURL:    d.PhotoURL,
		XP:          d.XP,
		Level:       d.Level,
		Streak:      d.Streak,
	}
	if d.LastSavingsDate != nil {
		p.LastSavingsDate = *d.LastSavingsDate
	}
	if d.SavingsGoal != nil {
		p.SavingsGoal = *d.SavingsGoal
	}
	if d.TotalSavings != nil {
		p.TotalSavings = *d.TotalSavings
	}
	if d.SavingsCycle != nil {
		p.SavingsCycle = *d.SavingsCycle
	}
	return p
}

// Upgrade fills the fields older records lack. The returned patch holds
// only the filled fields and is empty when the document was current.
func (d ProfileDocument) Upgrade(goal float64) (UserProfile, ProfilePatch) {
	if goal <= 0 {
		goal = DefaultSavingsGoal
	}
	var patch ProfilePatch
	if d.LastSavingsDate == nil {
		epoch := Epoch()
		d.LastSavingsDate = &epoch
		patch.LastSavingsDate = &epoch
	}
	if d.SavingsGoal == nil {
		d.SavingsGoal = &goal
		patch.SavingsGoal = &goal
	}
	if d.TotalSavings == nil {
		zero := 0.0
		d.TotalSavings = &zero
		patch.TotalSavings = &zero
	}
	if d.SavingsCycle == nil {
		one := 1
		d.SavingsCycle = &one
		patch.SavingsCycle = &one
	}
	return d.Profile(), patch
}

// ProfilePatch lists profile fields to overwrite; nil fields are untouched.
// XP and level travel together through SetXP.
type ProfilePatch struct {
	xp    *float64
	level *int

	Streak          *int
	LastSavingsDate *time.Time
	TotalSavings    *float64
	SavingsCycle    *int
	SavingsGoal     *float64
}

// SetXP records xp and the level derived from it.
func (p *ProfilePatch) SetXP(xp float64) {
	xp = math.Max(0, xp)
	level := LevelForXP(xp)
	p.xp = &xp
	p.level = &level
}

// XP returns the patched xp and level, if any.
func (p ProfilePatch) XP() (float64, int, bool) {
	if p.xp == nil {
		return 0, 0, false
	}
	return *p.xp, *p.level, true
}

// IsEmpty reports whether the patch changes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.xp == nil && p.Streak == nil && p.LastSavingsDate == nil &&
		p.TotalSavings == nil && p.SavingsCycle == nil && p.SavingsGoal == nil
}

// ApplyTo overwrites the patched fields of d.
func (p ProfilePatch) ApplyTo(d *ProfileDocument) {
	if xp, level, ok := p.XP(); ok {
		d.XP = xp
		d.Level = level
	}
	if p.Streak != nil {
		v := *p.Streak
		d.Streak = v
	}
	if p.LastSavingsDate != nil {
		v := *p.LastSavingsDate
		d.LastSavingsDate = &v
	}
	if p.TotalSavings != nil {
		v := *p.TotalSavings
		d.TotalSavings = &v
	}
	if p.SavingsCycle != nil {
		v := *p.SavingsCycle
		d.SavingsCycle = &v
	}
	if p.SavingsGoal != nil {
		v := *p.SavingsGoal
		d.SavingsGoal = &v
	}
}
