// Package memory is an in-process document store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/store"
)

// DenyFunc decides whether op on the document at path is refused.
// Paths look like "users/<uid>" and "transactions/<id>".
type DenyFunc func(op, path string) bool

type Store struct {
	mu       sync.Mutex
	profiles map[string]core.ProfileDocument
	txs      map[string]core.Transaction
	deny     DenyFunc
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		profiles: make(map[string]core.ProfileDocument),
		txs:      make(map[string]core.Transaction),
	}
}

// SetDeny installs a rule emulating store security rules; nil allows everything.
func (s *Store) SetDeny(fn DenyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deny = fn
}

func (s *Store) check(op, path string) error {
	if s.deny != nil && s.deny(op, path) {
		return fmt.Errorf("%s %s: %w", op, path, core.ErrAccessDenied)
	}
	return nil
}

func (s *Store) GetProfile(_ context.Context, uid string) (*core.ProfileDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("get", "users/"+uid); err != nil {
		return nil, err
	}
	doc, ok := s.profiles[uid]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &doc, nil
}

func (s *Store) CreateProfile(_ context.Context, doc core.ProfileDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("create", "users/"+doc.UID); err != nil {
		return err
	}
	s.profiles[doc.UID] = doc
	return nil
}

// PutProfile stores doc as is, including absent fields. Used to seed legacy records.
func (s *Store) PutProfile(doc core.ProfileDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[doc.UID] = doc
}

func (s *Store) UpdateProfile(_ context.Context, uid string, patch core.ProfilePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("update", "users/"+uid); err != nil {
		return err
	}
	doc, ok := s.profiles[uid]
	if !ok {
		return core.ErrNotFound
	}
	patch.ApplyTo(&doc)
	s.profiles[uid] = doc
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("get", "transactions/"+id); err != nil {
		return nil, err
	}
	tx, ok := s.txs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &tx, nil
}

func (s *Store) CreateTransactions(_ context.Context, txs []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		if err := s.check("create", "transactions/"+tx.ID); err != nil {
			return err
		}
	}
	for _, tx := range txs {
		s.txs[tx.ID] = tx
	}
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, id string, patch core.TransactionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("update", "transactions/"+id); err != nil {
		return err
	}
	tx, ok := s.txs[id]
	if !ok {
		return core.ErrNotFound
	}
	patch.Apply(&tx)
	s.txs[id] = tx
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	return s.DeleteTransactions(context.Background(), []string{id})
}

func (s *Store) DeleteTransactions(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if err := s.check("delete", "transactions/"+id); err != nil {
			return err
		}
	}
	for _, id := range ids {
		delete(s.txs, id)
	}
	return nil
}

func (s *Store) ListTransactionsByGroup(_ context.Context, uid, groupID string) ([]core.Transaction, error) {
	return s.list("transactions", func(tx core.Transaction) bool {
		return tx.UserID == uid && tx.GroupID != nil && *tx.GroupID == groupID
	}, func(a, b core.Transaction) bool { return a.DueDate.Before(b.DueDate) })
}

func (s *Store) ListTransactionsByDueDate(_ context.Context, uid string, from, to time.Time) ([]core.Transaction, error) {
	return s.list("transactions", func(tx core.Transaction) bool {
		return tx.UserID == uid && !tx.DueDate.Before(from) && !tx.DueDate.After(to)
	}, func(a, b core.Transaction) bool { return a.DueDate.After(b.DueDate) })
}

func (s *Store) ListTransactions(_ context.Context, uid string) ([]core.Transaction, error) {
	return s.list("transactions", func(tx core.Transaction) bool {
		return tx.UserID == uid
	}, func(a, b core.Transaction) bool { return a.Date.After(b.Date) })
}

func (s *Store) list(path string, keep func(core.Transaction) bool, less func(a, b core.Transaction) bool) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("list", path); err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0)
	for _, tx := range s.txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
