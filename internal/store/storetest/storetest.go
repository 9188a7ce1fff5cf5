// Package storetest checks a store.Store implementation against the behaviour
// the services rely on.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/store"
)

// Run executes the contract against stores built by newStore. Every subtest
// gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ProfileRoundTrip", testProfileRoundTrip},
		{"ProfileMissing", testProfileMissing},
		{"LegacyProfileFieldsStayAbsent", testLegacyProfile},
		{"TransactionBatch", testTransactionBatch},
		{"TransactionUpdate", testTransactionUpdate},
		{"TransactionDelete", testTransactionDelete},
		{"ListByDueDate", testListByDueDate},
		{"ListByCreation", testListByCreation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func testProfileRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := core.NewProfile(core.User{UID: "u1", Email: "u1@example.com", DisplayName: "Ana"}, 5000)
	if err := s.CreateProfile(ctx, p.Document()); err != nil {
		t.Fatalf("create: %v", err)
	}

	var patch core.ProfilePatch
	patch.SetXP(300)
	patch.Streak = ptr(2)
	patch.TotalSavings = ptr(120.5)
	last := day(2025, 3, 4)
	patch.LastSavingsDate = &last
	if err := s.UpdateProfile(ctx, "u1", patch); err != nil {
		t.Fatalf("update: %v", err)
	}

	doc, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got := doc.Profile()
	if got.XP != 300 || got.Level != 3 || got.Streak != 2 || got.TotalSavings != 120.5 {
		t.Fatalf("unexpected profile %+v", got)
	}
	if got.SavingsGoal != 5000 || got.SavingsCycle != 1 || got.Email != "u1@example.com" {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if !got.LastSavingsDate.Equal(last) {
		t.Fatalf("lastSavingsDate = %v, want %v", got.LastSavingsDate, last)
	}
}

func testProfileMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.GetProfile(ctx, "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}
	var patch core.ProfilePatch
	patch.Streak = ptr(1)
	if err := s.UpdateProfile(ctx, "ghost", patch); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
}

func testLegacyProfile(t *testing.T, s store.Store) {
	ctx := context.Background()
	legacy := core.ProfileDocument{UID: "old", Email: "old@example.com", XP: 120, Level: 2, Streak: 1}
	if err := s.CreateProfile(ctx, legacy); err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, err := s.GetProfile(ctx, "old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.LastSavingsDate != nil || doc.SavingsGoal != nil || doc.TotalSavings != nil || doc.SavingsCycle != nil {
		t.Fatalf("absent fields must stay absent: %+v", doc)
	}

	_, patch := doc.Upgrade(core.DefaultSavingsGoal)
	if err := s.UpdateProfile(ctx, "old", patch); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	doc, err = s.GetProfile(ctx, "old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, again := doc.Upgrade(core.DefaultSavingsGoal); !again.IsEmpty() {
		t.Fatalf("upgraded document still missing fields: %+v", doc)
	}
	if doc.XP != 120 || doc.Level != 2 {
		t.Fatalf("upgrade touched xp: %+v", doc)
	}
}

func batch(uid, group string, n int, start time.Time) []core.Transaction {
	out := make([]core.Transaction, 0, n)
	for i := 0; i < n; i++ {
		g := group
		out = append(out, core.Transaction{
			ID:          uid + "-" + group + "-" + string(rune('a'+i)),
			UserID:      uid,
			Description: "TV",
			Value:       100,
			Category:    "Shopping",
			Date:        start,
			DueDate:     core.AddMonths(start, i),
			GroupID:     &g,
		})
	}
	return out
}

func testTransactionBatch(t *testing.T, s store.Store) {
	ctx := context.Background()
	txs := batch("u1", "g1", 3, day(2025, 1, 10))
	idx := "1/3"
	txs[0].InstallmentIndex = &idx
	if err := s.CreateTransactions(ctx, txs); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetTransaction(ctx, txs[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.InstallmentIndex == nil || *got.InstallmentIndex != "1/3" || got.GroupID == nil || *got.GroupID != "g1" {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.DueDate.Equal(txs[0].DueDate) || !got.Date.Equal(txs[0].Date) {
		t.Fatalf("dates changed: %+v", got)
	}

	group, err := s.ListTransactionsByGroup(ctx, "u1", "g1")
	if err != nil || len(group) != 3 {
		t.Fatalf("group list: %v %d", err, len(group))
	}
	other, err := s.ListTransactionsByGroup(ctx, "u2", "g1")
	if err != nil || len(other) != 0 {
		t.Fatalf("group list must filter by user: %v %d", err, len(other))
	}

	if _, err := s.GetTransaction(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}
}

func testTransactionUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	tx := core.Transaction{ID: "t1", UserID: "u1", Description: "Luz", Value: 80, Category: "Utilities", Date: day(2025, 2, 1), DueDate: day(2025, 2, 10)}
	if err := s.CreateTransactions(ctx, []core.Transaction{tx}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateTransaction(ctx, "t1", core.TransactionPatch{IsPaid: ptr(true)}); err != nil {
		t.Fatalf("status: %v", err)
	}
	due := day(2025, 2, 15)
	if err := s.UpdateTransaction(ctx, "t1", core.TransactionPatch{Description: ptr("Energia"), Value: ptr(95.5), DueDate: &due}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetTransaction(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsPaid || got.Description != "Energia" || got.Value != 95.5 || got.Category != "Utilities" || !got.DueDate.Equal(due) {
		t.Fatalf("unexpected record %+v", got)
	}
	if err := s.UpdateTransaction(ctx, "nope", core.TransactionPatch{IsPaid: ptr(true)}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
}

func testTransactionDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	txs := batch("u1", "g2", 4, day(2025, 1, 5))
	if err := s.CreateTransactions(ctx, txs); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteTransaction(ctx, txs[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTransaction(ctx, txs[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleted record still readable: %v", err)
	}
	if err := s.DeleteTransactions(ctx, []string{txs[1].ID, txs[2].ID, txs[3].ID}); err != nil {
		t.Fatalf("delete many: %v", err)
	}
	left, err := s.ListTransactionsByGroup(ctx, "u1", "g2")
	if err != nil || len(left) != 0 {
		t.Fatalf("expected empty group: %v %d", err, len(left))
	}
}

func testListByDueDate(t *testing.T, s store.Store) {
	ctx := context.Background()
	mk := func(id string, due time.Time, uid string) core.Transaction {
		return core.Transaction{ID: id, UserID: uid, Description: id, Value: 1, Category: "Other", Date: day(2025, 1, 1), DueDate: due}
	}
	txs := []core.Transaction{
		mk("jan", day(2025, 1, 31), "u1"),
		mk("feb1", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "u1"),
		mk("feb20", day(2025, 2, 20), "u1"),
		mk("feb-other", day(2025, 2, 10), "u2"),
		mk("mar", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "u1"),
	}
	if err := s.CreateTransactions(ctx, txs); err != nil {
		t.Fatalf("create: %v", err)
	}
	from, to := core.MonthWindow(2025, time.February, time.UTC)
	got, err := s.ListTransactionsByDueDate(ctx, "u1", from, to)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "feb20" || got[1].ID != "feb1" {
		ids := make([]string, 0, len(got))
		for _, tx := range got {
			ids = append(ids, tx.ID)
		}
		t.Fatalf("unexpected window %v", ids)
	}
}

func testListByCreation(t *testing.T, s store.Store) {
	ctx := context.Background()
	txs := []core.Transaction{
		{ID: "old", UserID: "u1", Description: "a", Value: 1, Category: "Other", Date: day(2024, 6, 1), DueDate: day(2025, 6, 1)},
		{ID: "new", UserID: "u1", Description: "b", Value: 1, Category: "Other", Date: day(2025, 6, 1), DueDate: day(2024, 6, 1)},
		{ID: "x", UserID: "u2", Description: "c", Value: 1, Category: "Other", Date: day(2025, 7, 1), DueDate: day(2025, 7, 1)},
	}
	if err := s.CreateTransactions(ctx, txs); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.ListTransactions(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
		t.Fatalf("unexpected order %+v", got)
	}
}
