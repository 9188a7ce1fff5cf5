package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/diag"
	"cofrinho/internal/store/memory"
)

var testNow = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	reports  *diag.Recorder
	opts     Options
	profiles *ProfileService
	savings  *SavingsRecorder
	streaks  *StreakAuditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	rec := diag.NewRecorder(50)
	now := testNow
	opts := Options{
		Now:      func() time.Time { return now },
		Location: time.UTC,
		Reporter: rec,
	}
	return &fixture{
		store:    st,
		reports:  rec,
		opts:     opts,
		profiles: NewProfileService(st, core.DefaultSavingsGoal, opts),
		savings:  NewSavingsRecorder(st, core.DefaultSavingsGoal, opts),
		streaks:  NewStreakAuditor(st, opts),
	}
}

func (f *fixture) login(t *testing.T, uid string) core.UserProfile {
	t.Helper()
	p, err := f.profiles.GetOrCreate(context.Background(), core.User{UID: uid, Email: uid + "@example.com"})
	if err != nil {
		t.Fatalf("login %s: %v", uid, err)
	}
	return p
}

func (f *fixture) stored(t *testing.T, uid string) core.UserProfile {
	t.Helper()
	doc, err := f.store.GetProfile(context.Background(), uid)
	if err != nil {
		t.Fatalf("load %s: %v", uid, err)
	}
	return doc.Profile()
}

func (f *fixture) deny(op, path string) {
	f.store.SetDeny(func(o, p string) bool { return o == op && p == path })
}

func isValidation(err error, field string) bool {
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	_, ok := ve.Fields[field]
	return ok
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]core.Transaction
	err     error
}

func (p *fakePublisher) PublishLedgerSync(_ context.Context, _ string, txs []core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, txs)
	return p.err
}

// countingStore counts month-window reads.
type countingStore struct {
	*memory.Store
	mu       sync.Mutex
	dueReads int
}

func (c *countingStore) ListTransactionsByDueDate(ctx context.Context, uid string, from, to time.Time) ([]core.Transaction, error) {
	c.mu.Lock()
	c.dueReads++
	c.mu.Unlock()
	return c.Store.ListTransactionsByDueDate(ctx, uid, from, to)
}

func (c *countingStore) reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dueReads
}

// gatedStore holds every month-window read, after it has hit the store,
// until release is closed. reading is signalled once per read.
type gatedStore struct {
	*memory.Store
	reading chan struct{}
	release chan struct{}
}

func newGatedStore(st *memory.Store) *gatedStore {
	return &gatedStore{Store: st, reading: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gatedStore) ListTransactionsByDueDate(ctx context.Context, uid string, from, to time.Time) ([]core.Transaction, error) {
	txs, err := g.Store.ListTransactionsByDueDate(ctx, uid, from, to)
	g.reading <- struct{}{}
	<-g.release
	if err == nil {
		err = ctx.Err()
	}
	return txs, err
}
