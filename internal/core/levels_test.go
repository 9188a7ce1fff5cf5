package core

import "testing"

func TestLevelsTable(t *testing.T) {
	if len(Levels) != MaxLevel {
		t.Fatalf("expected %d levels, got %d", MaxLevel, len(Levels))
	}
	for i := 1; i < len(Levels); i++ {
		if Levels[i].XPRequired <= Levels[i-1].XPRequired {
			t.Fatalf("table not ascending at %d", i)
		}
		if Levels[i].Level != i+1 {
			t.Fatalf("level numbering broken at %d", i)
		}
	}
	if l := Levels[10]; l.Name != "Lenda Nível 11" || l.XPRequired != 12000 {
		t.Fatalf("unexpected level 11: %+v", l)
	}
	if l := Levels[99]; l.XPRequired != 190000 {
		t.Fatalf("unexpected level 100: %+v", l)
	}
}

func TestLevelForXP(t *testing.T) {
	cases := []struct {
		xp   float64
		want int
	}{
		{0, 1},
		{-5, 1},
		{99.99, 1},
		{100, 2},
		{250, 3},
		{1699, 6},
		{2500, 8},
		{10000, 10},
		{11999, 10},
		{12000, 11},
		{1e9, 100},
	}
	for _, tc := range cases {
		if got := LevelForXP(tc.xp); got != tc.want {
			t.Errorf("LevelForXP(%v) = %d, want %d", tc.xp, got, tc.want)
		}
	}
}

func TestNextLevel(t *testing.T) {
	next, ok := NextLevel(1)
	if !ok || next.Level != 2 {
		t.Fatalf("unexpected %+v %v", next, ok)
	}
	if _, ok := NextLevel(MaxLevel); ok {
		t.Fatalf("no level after the last one")
	}
	if got := LevelInfo(0).Level; got != 1 {
		t.Fatalf("LevelInfo clamps low, got %d", got)
	}
}

func TestTrophies(t *testing.T) {
	tr := Trophies(3)
	if len(tr) != 10 {
		t.Fatalf("expected 10 trophies, got %d", len(tr))
	}
	for _, x := range tr {
		if want := x.Level.Level <= 3; x.Unlocked != want {
			t.Errorf("trophy %d unlocked = %v", x.Level.Level, x.Unlocked)
		}
	}
}
