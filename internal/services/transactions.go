package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"cofrinho/internal/cache"
	"cofrinho/internal/core"
	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
	"cofrinho/internal/store"
)

// DepositRecorder applies a savings deposit to a profile.
type DepositRecorder interface {
	Record(ctx context.Context, uid string, amount float64) (core.Deposit, error)
}

// LedgerPublisher announces committed batches to the ledger worker.
type LedgerPublisher interface {
	PublishLedgerSync(ctx context.Context, uid string, txs []core.Transaction) error
}

// TransactionService writes transaction batches and serves cached month listings.
type TransactionService struct {
	store     store.TransactionStore
	savings   DepositRecorder
	publisher LedgerPublisher
	months    cache.Cache[[]core.Transaction]
	flight    singleflight.Group
	genMu     sync.Mutex
	gens      map[string]uint64
	newID     func() string
	opts      Options
	events    *applog.StructuredLogger
	logger    *applog.Logger
}

// NewTransactionService builds the service. savings, publisher and months may be nil.
func NewTransactionService(st store.TransactionStore, savings DepositRecorder, publisher LedgerPublisher, months cache.Cache[[]core.Transaction], opts Options) *TransactionService {
	opts = opts.normalize()
	return &TransactionService{
		store:     st,
		savings:   savings,
		publisher: publisher,
		months:    months,
		gens:      make(map[string]uint64),
		newID:     uuid.NewString,
		opts:      opts,
		events:    applog.NewStructuredLogger(opts.Logger),
		logger:    opts.Logger.WithComponent(applog.ComponentTransaction),
	}
}

// Add validates in, expands it into its records and writes them as one batch.
// A single Savings record also credits the deposit to the profile.
func (s *TransactionService) Add(ctx context.Context, uid string, in core.TransactionInput) ([]core.Transaction, error) {
	if uid == "" {
		return nil, missingUID()
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	groupID := ""
	if in.Frequency != core.FrequencySingle {
		groupID = uuid.NewString()
	}
	batch := core.BuildBatch(uid, in, s.opts.Now(), groupID, s.newID)

	if in.Frequency == core.FrequencySingle && batch[0].IsSavings() && s.savings != nil {
		if _, err := s.savings.Record(ctx, uid, in.Value); err != nil {
			s.logger.ErrorContext(ctx, "Savings deposit not credited",
				applog.FieldUserID, uid,
				applog.FieldOperation, applog.OpDeposit,
				applog.FieldAmount, in.Value,
				applog.FieldError, err.Error())
		}
	}

	if err := s.store.CreateTransactions(ctx, batch); err != nil {
		s.opts.reportDenied(ctx, diag.TransactionsPath(), diag.OpWrite, uid, in, err)
		s.logger.ErrorContext(ctx, "Failed to save transactions",
			applog.FieldUserID, uid,
			applog.FieldOperation, applog.OpCreate,
			applog.FieldError, err.Error())
		return nil, fmt.Errorf("save transactions: %w", err)
	}

	s.invalidate(uid)
	s.events.LogTransactionsCreated(ctx, uid, batch[0].Category, in.Value, string(in.Frequency), len(batch))
	s.publish(ctx, uid, batch)
	return batch, nil
}

func (s *TransactionService) publish(ctx context.Context, uid string, batch []core.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerSync(ctx, uid, batch); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger sync message",
			applog.FieldUserID, uid,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err.Error())
	}
}

// owned loads transaction id and checks that uid owns it.
func (s *TransactionService) owned(ctx context.Context, uid, id, op string, data any) (*core.Transaction, error) {
	if uid == "" {
		return nil, missingUID()
	}
	if id == "" {
		return nil, core.NewValidationError("id", "transaction id is required")
	}
	path := diag.TransactionPath(id)
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, s.opts.reportDenied(ctx, path, diag.OpGet, uid, nil, err)
	}
	if tx.UserID != uid {
		pe := diag.NewPermissionError(path, op, uid, data, nil)
		s.opts.Reporter.Report(ctx, pe)
		return nil, pe
	}
	return tx, nil
}

// Update overwrites the editable fields of one transaction.
func (s *TransactionService) Update(ctx context.Context, uid, id string, upd core.TransactionUpdate) (core.Transaction, error) {
	if err := upd.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return s.patch(ctx, uid, id, upd.Patch(), upd)
}

// UpdateStatus marks one transaction paid or unpaid.
func (s *TransactionService) UpdateStatus(ctx context.Context, uid, id string, isPaid bool) (core.Transaction, error) {
	return s.patch(ctx, uid, id, core.TransactionPatch{IsPaid: &isPaid}, map[string]bool{"isPaid": isPaid})
}

func (s *TransactionService) patch(ctx context.Context, uid, id string, patch core.TransactionPatch, data any) (core.Transaction, error) {
	tx, err := s.owned(ctx, uid, id, diag.OpUpdate, data)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.UpdateTransaction(ctx, id, patch); err != nil {
		return core.Transaction{}, s.opts.reportDenied(ctx, diag.TransactionPath(id), diag.OpUpdate, uid, data,
			fmt.Errorf("update transaction: %w", err))
	}
	patch.Apply(tx)
	s.invalidate(uid)

	s.logger.InfoContext(ctx, "Transaction updated",
		applog.FieldUserID, uid,
		applog.FieldOperation, applog.OpUpdate,
		"transaction_id", id)
	return *tx, nil
}

// Delete removes one transaction, or the whole group when scope is all and
// groupID is set. It returns how many records were removed.
func (s *TransactionService) Delete(ctx context.Context, uid, id string, scope core.DeleteScope, groupID string) (int, error) {
	if scope == core.DeleteAll && groupID != "" {
		return s.deleteGroup(ctx, uid, groupID)
	}

	if _, err := s.owned(ctx, uid, id, diag.OpDelete, nil); err != nil {
		return 0, err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return 0, s.opts.reportDenied(ctx, diag.TransactionPath(id), diag.OpDelete, uid, nil,
			fmt.Errorf("delete transaction: %w", err))
	}
	s.invalidate(uid)
	s.logger.InfoContext(ctx, "Transaction deleted",
		applog.FieldUserID, uid, applog.FieldOperation, applog.OpDelete, "transaction_id", id)
	return 1, nil
}

func (s *TransactionService) deleteGroup(ctx context.Context, uid, groupID string) (int, error) {
	if uid == "" {
		return 0, missingUID()
	}
	data := map[string]string{"groupId": groupID}
	txs, err := s.store.ListTransactionsByGroup(ctx, uid, groupID)
	if err != nil {
		return 0, s.opts.reportDenied(ctx, diag.TransactionsPath(), diag.OpList, uid, data,
			fmt.Errorf("list group %s: %w", groupID, err))
	}
	if len(txs) == 0 {
		return 0, fmt.Errorf("group %s: %w", groupID, core.ErrNotFound)
	}

	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	if err := s.store.DeleteTransactions(ctx, ids); err != nil {
		return 0, s.opts.reportDenied(ctx, diag.TransactionsPath(), diag.OpDelete, uid, data,
			fmt.Errorf("delete group %s: %w", groupID, err))
	}
	s.invalidate(uid)

	s.logger.InfoContext(ctx, "Transaction group deleted",
		applog.FieldUserID, uid,
		applog.FieldOperation, applog.OpDelete,
		applog.FieldGroupID, groupID,
		applog.FieldTxCount, len(ids))
	return len(ids), nil
}

// ListAll returns every transaction of uid, newest creation date first.
func (s *TransactionService) ListAll(ctx context.Context, uid string) ([]core.Transaction, error) {
	if uid == "" {
		return nil, missingUID()
	}
	txs, err := s.store.ListTransactions(ctx, uid)
	if err != nil {
		return nil, s.opts.reportDenied(ctx, diag.TransactionsPath(), diag.OpList, uid, nil,
			fmt.Errorf("list transactions: %w", err))
	}
	return txs, nil
}

// ListMonth returns the transactions due in the month, newest due date first.
// Results are cached per user and month until the next write.
func (s *TransactionService) ListMonth(ctx context.Context, uid string, year int, month time.Month) ([]core.Transaction, error) {
	if uid == "" {
		return nil, missingUID()
	}
	if err := ValidateMonth(year, month); err != nil {
		return nil, err
	}

	key := monthKey(uid, year, month)
	if s.months != nil {
		if txs, ok := s.months.Get(key); ok {
			return clone(txs), nil
		}
	}

	// Fills started before a write never share a flight with fills started
	// after it, and only a fill whose generation is still current is cached.
	gen := s.generation(uid)
	v, err, _ := s.flight.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		from, to := core.MonthWindow(year, month, s.opts.Location)
		txs, err := s.store.ListTransactionsByDueDate(context.WithoutCancel(ctx), uid, from, to)
		if err != nil {
			return nil, err
		}
		if s.months != nil {
			s.genMu.Lock()
			if s.gens[uid] == gen {
				s.months.Set(key, txs)
			}
			s.genMu.Unlock()
		}
		return txs, nil
	})
	if err != nil {
		data := map[string]int{"year": year, "month": int(month)}
		return nil, s.opts.reportDenied(ctx, diag.TransactionsPath(), diag.OpList, uid, data,
			fmt.Errorf("list month %04d-%02d: %w", year, month, err))
	}
	return clone(v.([]core.Transaction)), nil
}

func (s *TransactionService) generation(uid string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[uid]
}

// invalidate bumps the generation of uid and drops its cached months.
func (s *TransactionService) invalidate(uid string) {
	s.genMu.Lock()
	s.gens[uid]++
	s.genMu.Unlock()
	if s.months == nil {
		return
	}
	if n := s.months.DeletePrefix(uid + ":"); n > 0 {
		s.logger.Debug("month cache invalidated", applog.FieldUserID, uid, "entries", n)
	}
}

// ValidateMonth checks a year and month taken from a request.
func ValidateMonth(year int, month time.Month) error {
	ve := &core.ValidationError{}
	if year < 1970 || year > 9999 {
		ve.Fields = map[string]string{"year": "year must be between 1970 and 9999"}
	}
	if month < time.January || month > time.December {
		if ve.Fields == nil {
			ve.Fields = map[string]string{}
		}
		ve.Fields["month"] = "month must be between 1 and 12"
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

func monthKey(uid string, year int, month time.Month) string {
	return fmt.Sprintf("%s:%04d-%02d", uid, year, month)
}

func clone(txs []core.Transaction) []core.Transaction {
	return append(make([]core.Transaction, 0, len(txs)), txs...)
}
