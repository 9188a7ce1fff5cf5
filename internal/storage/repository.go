package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/store"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository is the SQLite-backed document store.
type SQLiteRepository struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps batches serialised without SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// mapError translates driver errors to the core sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH:
			return fmt.Errorf("%w: %v", core.ErrAccessDenied, err)
		}
	}
	return err
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Profiles

const profileColumns = `uid, email, display_name, photo_url, xp, level, streak,
	last_savings_date, savings_goal, total_savings, savings_cycle`

func (r *SQLiteRepository) GetProfile(ctx context.Context, uid string) (*core.ProfileDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE uid = ?`, uid)

	var (
		doc   core.ProfileDocument
		last  sql.NullInt64
		goal  sql.NullFloat64
		total sql.NullFloat64
		cycle sql.NullInt64
	)
	err := row.Scan(&doc.UID, &doc.Email, &doc.DisplayName, &doc.PhotoURL, &doc.XP, &doc.Level, &doc.Streak,
		&last, &goal, &total, &cycle)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, mapError(err))
	}
	if last.Valid {
		t := fromMillis(last.Int64)
		doc.LastSavingsDate = &t
	}
	if goal.Valid {
		doc.SavingsGoal = &goal.Float64
	}
	if total.Valid {
		doc.TotalSavings = &total.Float64
	}
	if cycle.Valid {
		c := int(cycle.Int64)
		doc.SavingsCycle = &c
	}
	return &doc, nil
}

func (r *SQLiteRepository) CreateProfile(ctx context.Context, doc core.ProfileDocument) error {
	var last any
	if doc.LastSavingsDate != nil {
		last = toMillis(*doc.LastSavingsDate)
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			email = excluded.email, display_name = excluded.display_name, photo_url = excluded.photo_url,
			xp = excluded.xp, level = excluded.level, streak = excluded.streak,
			last_savings_date = excluded.last_savings_date, savings_goal = excluded.savings_goal,
			total_savings = excluded.total_savings, savings_cycle = excluded.savings_cycle`,
		doc.UID, doc.Email, doc.DisplayName, doc.PhotoURL, doc.XP, doc.Level, doc.Streak,
		last, nullable(doc.SavingsGoal), nullable(doc.TotalSavings), nullable(doc.SavingsCycle))
	if err != nil {
		return fmt.Errorf("create profile %s: %w", doc.UID, mapError(err))
	}
	return nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (r *SQLiteRepository) UpdateProfile(ctx context.Context, uid string, patch core.ProfilePatch) error {
	var (
		sets []string
		args []any
	)
	if xp, level, ok := patch.XP(); ok {
		sets = append(sets, "xp = ?", "level = ?")
		args = append(args, xp, level)
	}
	if patch.Streak != nil {
		sets = append(sets, "streak = ?")
		args = append(args, *patch.Streak)
	}
	if patch.LastSavingsDate != nil {
		sets = append(sets, "last_savings_date = ?")
		args = append(args, toMillis(*patch.LastSavingsDate))
	}
	if patch.TotalSavings != nil {
		sets = append(sets, "total_savings = ?")
		args = append(args, *patch.TotalSavings)
	}
	if patch.SavingsCycle != nil {
		sets = append(sets, "savings_cycle = ?")
		args = append(args, *patch.SavingsCycle)
	}
	if patch.SavingsGoal != nil {
		sets = append(sets, "savings_goal = ?")
		args = append(args, *patch.SavingsGoal)
	}

	query := `UPDATE profiles SET ` + strings.Join(sets, ", ") + ` WHERE uid = ?`
	if len(sets) == 0 {
		query = `SELECT 1 FROM profiles WHERE uid = ?`
	}
	args = append(args, uid)

	if len(sets) == 0 {
		var one int
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
			return fmt.Errorf("update profile %s: %w", uid, mapError(err))
		}
		return nil
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update profile %s: %w", uid, mapError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update profile %s: %w", uid, core.ErrNotFound)
	}
	return nil
}

// Transactions

const txColumns = `id, user_id, description, value, category, created_at, due_date,
	is_paid, is_recurring, installment_index, group_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx        core.Transaction
		created   int64
		due       int64
		index     sql.NullString
		group     sql.NullString
		paid, rec bool
	)
	if err := s.Scan(&tx.ID, &tx.UserID, &tx.Description, &tx.Value, &tx.Category, &created, &due,
		&paid, &rec, &index, &group); err != nil {
		return core.Transaction{}, err
	}
	tx.Date = fromMillis(created)
	tx.DueDate = fromMillis(due)
	tx.IsPaid = paid
	tx.IsRecurring = rec
	if index.Valid {
		tx.InstallmentIndex = &index.String
	}
	if group.Valid {
		tx.GroupID = &group.String
	}
	return tx, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, mapError(err))
	}
	return &tx, nil
}

// CreateTransactions inserts the batch inside one SQL transaction.
func (r *SQLiteRepository) CreateTransactions(ctx context.Context, txs []core.Transaction) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions (`+txColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", mapError(err))
		}
		defer stmt.Close()

		for _, t := range txs {
			if _, err := stmt.ExecContext(ctx, t.ID, t.UserID, t.Description, t.Value, t.Category,
				toMillis(t.Date), toMillis(t.DueDate), t.IsPaid, t.IsRecurring,
				nullable(t.InstallmentIndex), nullable(t.GroupID)); err != nil {
				return fmt.Errorf("insert transaction %s: %w", t.ID, mapError(err))
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) error {
	var (
		sets []string
		args []any
	)
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Value != nil {
		sets = append(sets, "value = ?")
		args = append(args, *patch.Value)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, toMillis(*patch.DueDate))
	}
	if patch.IsPaid != nil {
		sets = append(sets, "is_paid = ?")
		args = append(args, *patch.IsPaid)
	}
	if len(sets) == 0 {
		_, err := r.GetTransaction(ctx, id)
		return err
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, mapError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransactions(ctx context.Context, ids []string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete transaction %s: %w", id, mapError(err))
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) ListTransactionsByGroup(ctx context.Context, uid, groupID string) ([]core.Transaction, error) {
	return r.query(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE user_id = ? AND group_id = ? ORDER BY due_date ASC, id ASC`, uid, groupID)
}

func (r *SQLiteRepository) ListTransactionsByDueDate(ctx context.Context, uid string, from, to time.Time) ([]core.Transaction, error) {
	return r.query(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE user_id = ? AND due_date >= ? AND due_date <= ? ORDER BY due_date DESC, id ASC`,
		uid, toMillis(from), toMillis(to))
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, uid string) ([]core.Transaction, error) {
	return r.query(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE user_id = ? ORDER BY created_at DESC, id ASC`, uid)
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", mapError(err))
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", mapError(err))
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", mapError(err))
	}
	return out, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapError(err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	return nil
}
