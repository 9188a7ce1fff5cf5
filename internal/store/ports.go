package store

import (
	"context"
	"time"

	"cofrinho/internal/core"
)

// Ports for the document stores.
type (
	// ProfileStore keeps one profile document per user id.
	ProfileStore interface {
		// GetProfile returns core.ErrNotFound when no document exists.
		GetProfile(ctx context.Context, uid string) (*core.ProfileDocument, error)
		CreateProfile(ctx context.Context, doc core.ProfileDocument) error
		// UpdateProfile overwrites the patched fields only and returns
		// core.ErrNotFound when the document is missing.
		UpdateProfile(ctx context.Context, uid string, patch core.ProfilePatch) error
	}

	TransactionStore interface {
		GetTransaction(ctx context.Context, id string) (*core.Transaction, error)
		// CreateTransactions writes all records or none.
		CreateTransactions(ctx context.Context, txs []core.Transaction) error
		UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) error
		DeleteTransaction(ctx context.Context, id string) error
		// DeleteTransactions removes all ids or none.
		DeleteTransactions(ctx context.Context, ids []string) error
		ListTransactionsByGroup(ctx context.Context, uid, groupID string) ([]core.Transaction, error)
		// ListTransactionsByDueDate returns records with from <= dueDate <= to,
		// newest due date first.
		ListTransactionsByDueDate(ctx context.Context, uid string, from, to time.Time) ([]core.Transaction, error)
		// ListTransactions returns every record of uid, newest creation date first.
		ListTransactions(ctx context.Context, uid string) ([]core.Transaction, error)
	}

	// Store is what a data backend provides.
	Store interface {
		ProfileStore
		TransactionStore
		Ping(ctx context.Context) error
		Close() error
	}
)
