package core

import (
	"math"
	"testing"
	"time"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func freshProfile() UserProfile {
	return NewProfile(User{UID: "u1", Email: "a@b.c"}, DefaultSavingsGoal)
}

func TestApplyDepositFirstDeposit(t *testing.T) {
	now := time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)
	d := ApplyDeposit(freshProfile(), 100, now, time.UTC)

	p := d.Profile
	if p.Streak != 1 || !approx(p.XP, 10) || !approx(p.TotalSavings, 100) || p.SavingsCycle != 1 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if !p.LastSavingsDate.Equal(now) {
		t.Fatalf("lastSavingsDate = %v", p.LastSavingsDate)
	}
	if d.StreakBroken || d.CycleCompleted {
		t.Fatalf("unexpected flags %+v", d)
	}
	xp, level, ok := d.Patch.XP()
	if !ok || !approx(xp, 10) || level != 1 {
		t.Fatalf("patch xp=%v level=%d ok=%v", xp, level, ok)
	}
}

func TestApplyDepositStreakMultiplier(t *testing.T) {
	now := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	p := freshProfile()
	p.Streak = 9
	p.SetXP(200)
	p.LastSavingsDate = time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	d := ApplyDeposit(p, 100, now, time.UTC)
	if d.Profile.Streak != 10 {
		t.Fatalf("streak = %d, want 10", d.Profile.Streak)
	}
	if !approx(d.XPGained, 33.4) || !approx(d.Profile.XP, 233.4) {
		t.Fatalf("xp gained %v, xp %v", d.XPGained, d.Profile.XP)
	}
}

func TestApplyDepositSameMonthKeepsStreak(t *testing.T) {
	p := freshProfile()
	first := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d := ApplyDeposit(p, 10, first, time.UTC)
	d = ApplyDeposit(d.Profile, 10, first.AddDate(0, 0, 10), time.UTC)
	d = ApplyDeposit(d.Profile, 10, first.AddDate(0, 0, 20), time.UTC)
	if d.Profile.Streak != 1 {
		t.Fatalf("streak incremented within a month: %d", d.Profile.Streak)
	}
	if !approx(d.Profile.XP, 3) {
		t.Fatalf("xp = %v, want 3", d.Profile.XP)
	}
}

func TestApplyDepositBrokenStreak(t *testing.T) {
	now := time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)

	t.Run("penalty when streak was positive", func(t *testing.T) {
		p := freshProfile()
		p.Streak = 4
		p.SetXP(120)
		p.LastSavingsDate = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
		d := ApplyDeposit(p, 100, now, time.UTC)
		if !d.StreakBroken || d.Profile.Streak != 1 {
			t.Fatalf("expected broken streak reset to 1, got %+v", d)
		}
		if !approx(d.Profile.XP, 120-50+10) {
			t.Fatalf("xp = %v", d.Profile.XP)
		}
	})

	t.Run("penalty floors at zero", func(t *testing.T) {
		p := freshProfile()
		p.Streak = 2
		p.SetXP(20)
		p.LastSavingsDate = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
		d := ApplyDeposit(p, 10, now, time.UTC)
		if !approx(d.Profile.XP, 1) {
			t.Fatalf("xp = %v, want 1", d.Profile.XP)
		}
	})

	t.Run("no penalty when streak was zero", func(t *testing.T) {
		p := freshProfile()
		p.SetXP(120)
		p.LastSavingsDate = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
		d := ApplyDeposit(p, 100, now, time.UTC)
		if d.StreakBroken || d.Profile.Streak != 1 || !approx(d.Profile.XP, 130) {
			t.Fatalf("unexpected %+v", d.Profile)
		}
	})
}

func TestApplyDepositPreviousMonthAcrossYear(t *testing.T) {
	p := freshProfile()
	p.Streak = 3
	p.LastSavingsDate = time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	d := ApplyDeposit(p, 10, time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC), time.UTC)
	if d.StreakBroken || d.Profile.Streak != 4 {
		t.Fatalf("december to january must continue the streak, got %+v", d.Profile)
	}
}

func TestApplyDepositCycleRollover(t *testing.T) {
	p := freshProfile()
	p.TotalSavings = 9950
	p.SetXP(900)
	p.Streak = 1
	p.LastSavingsDate = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	d := ApplyDeposit(p, 100, time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC), time.UTC)
	if !d.CycleCompleted || d.Profile.SavingsCycle != 2 {
		t.Fatalf("expected new cycle, got %+v", d.Profile)
	}
	if !approx(d.Profile.TotalSavings, 50) {
		t.Fatalf("carry over = %v, want 50", d.Profile.TotalSavings)
	}
	if d.Profile.XP != 0 || d.Profile.Level != 1 {
		t.Fatalf("xp must reset on rollover, got xp=%v level=%d", d.Profile.XP, d.Profile.Level)
	}
	if d.Profile.TotalSavings >= d.Profile.SavingsGoal {
		t.Fatalf("total must stay under the goal")
	}
}

func TestApplyDepositHugeDeposit(t *testing.T) {
	d := ApplyDeposit(freshProfile(), 25000, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.UTC)

	// one rollover per deposit; the remainder is kept even above the goal
	if !d.CycleCompleted || d.Profile.SavingsCycle != 2 {
		t.Fatalf("expected a single rollover, got %+v", d.Profile)
	}
	if !approx(d.Profile.TotalSavings, 15000) {
		t.Fatalf("carry over = %v, want 15000", d.Profile.TotalSavings)
	}
	if d.Profile.XP != 0 || d.Profile.Level != 1 {
		t.Fatalf("xp must reset on rollover, got xp=%v level=%d", d.Profile.XP, d.Profile.Level)
	}
}

func TestApplyDepositCustomGoal(t *testing.T) {
	p := NewProfile(User{UID: "u"}, 500)
	d := ApplyDeposit(p, 600, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	if d.Profile.SavingsCycle != 2 || !approx(d.Profile.TotalSavings, 100) {
		t.Fatalf("unexpected %+v", d.Profile)
	}
}

func TestApplyDepositLevelAlwaysMatchesXP(t *testing.T) {
	p := freshProfile()
	now := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		d := ApplyDeposit(p, float64(150+i*37), now.AddDate(0, i, 0), time.UTC)
		if d.Profile.Level != LevelForXP(d.Profile.XP) {
			t.Fatalf("step %d: level %d inconsistent with xp %v", i, d.Profile.Level, d.Profile.XP)
		}
		if d.Profile.TotalSavings >= d.Profile.SavingsGoal {
			t.Fatalf("step %d: total %v reached goal", i, d.Profile.TotalSavings)
		}
		p = d.Profile
	}
}

func TestApplyDepositUsesLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	p := freshProfile()
	p.Streak = 1
	p.LastSavingsDate = time.Date(2025, 3, 31, 22, 0, 0, 0, loc)
	// 01:00 UTC on April 1st is still March 31st in loc.
	d := ApplyDeposit(p, 10, time.Date(2025, 4, 1, 1, 0, 0, 0, time.UTC), loc)
	if d.Profile.Streak != 1 {
		t.Fatalf("expected same month in loc, streak=%d", d.Profile.Streak)
	}
}

func TestDecayOnLogin(t *testing.T) {
	now := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		last    time.Time
		streak  int
		xp      float64
		decayed bool
		wantXP  float64
	}{
		{"same month", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), 3, 100, false, 100},
		{"previous month", time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), 3, 100, false, 100},
		{"two months ago", time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), 3, 100, true, 50},
		{"floor at zero", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1, 20, true, 0},
		{"streak already zero", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 0, 100, false, 100},
		{"unset date", time.Time{}, 3, 100, false, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := freshProfile()
			p.LastSavingsDate = tc.last
			p.Streak = tc.streak
			p.SetXP(tc.xp)

			out, patch, decayed := DecayOnLogin(p, now, time.UTC)
			if decayed != tc.decayed {
				t.Fatalf("decayed = %v, want %v", decayed, tc.decayed)
			}
			if !approx(out.XP, tc.wantXP) {
				t.Fatalf("xp = %v, want %v", out.XP, tc.wantXP)
			}
			if decayed {
				if out.Streak != 0 || patch.Streak == nil || *patch.Streak != 0 {
					t.Fatalf("streak not reset: %+v", out)
				}
				if out.Level != LevelForXP(out.XP) {
					t.Fatalf("level not recomputed")
				}
			} else if !patch.IsEmpty() {
				t.Fatalf("expected empty patch")
			}
		})
	}
}

func TestDocumentUpgrade(t *testing.T) {
	doc := ProfileDocument{UID: "u1", XP: 300, Level: 3, Streak: 2}
	p, patch := doc.Upgrade(8000)
	if patch.IsEmpty() {
		t.Fatalf("expected patch for legacy document")
	}
	if p.SavingsGoal != 8000 || p.SavingsCycle != 1 || p.TotalSavings != 0 || !p.LastSavingsDate.Equal(Epoch()) {
		t.Fatalf("defaults not filled: %+v", p)
	}
	if _, _, ok := patch.XP(); ok {
		t.Fatalf("upgrade must not touch xp")
	}

	full := p.Document()
	_, patch = full.Upgrade(8000)
	if !patch.IsEmpty() {
		t.Fatalf("current document must not be patched: %+v", patch)
	}

	partial := full
	partial.TotalSavings = nil
	p, patch = partial.Upgrade(8000)
	if patch.TotalSavings == nil || patch.SavingsGoal != nil || p.TotalSavings != 0 {
		t.Fatalf("only totalSavings should be patched: %+v", patch)
	}
}

func TestProfilePatchApplyTo(t *testing.T) {
	doc := ProfileDocument{UID: "u1"}
	var patch ProfilePatch
	patch.SetXP(260)
	streak := 4
	patch.Streak = &streak
	patch.ApplyTo(&doc)
	if doc.XP != 260 || doc.Level != 3 || doc.Streak != 4 {
		t.Fatalf("unexpected %+v", doc)
	}
	if doc.TotalSavings != nil {
		t.Fatalf("untouched field was written")
	}
}
