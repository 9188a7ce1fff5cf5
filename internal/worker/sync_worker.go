package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cofrinho/internal/amqp"
	"cofrinho/internal/cache"
	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
	"cofrinho/internal/sheets"
)

const (
	seenBatches = 10000
	seenTTL     = 24 * time.Hour
)

// SyncWorker mirrors committed transaction batches into the ledger and
// relays permission diagnostics.
type SyncWorker struct {
	ledger   sheets.LedgerWriter
	reporter diag.Reporter
	seen     *cache.LRUCache[string]
	logger   *applog.Logger
}

// NewSyncWorker builds a worker. reporter receives relayed diagnostics and
// may be nil.
func NewSyncWorker(ledger sheets.LedgerWriter, reporter diag.Reporter, logger *applog.Logger) *SyncWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	if reporter == nil {
		reporter = diag.Nop
	}
	return &SyncWorker{
		ledger:   ledger,
		reporter: reporter,
		seen:     cache.NewLRUCache[string](seenBatches, seenTTL),
		logger:   logger.WithComponent(applog.ComponentWorker),
	}
}

// Cache exposes the redelivery filter so it can be swept.
func (w *SyncWorker) Cache() cache.Cleaner {
	return w.seen
}

func batchKey(msg *amqp.LedgerSyncMessage) string {
	ids := make([]string, 0, len(msg.Transactions))
	for _, tx := range msg.Transactions {
		ids = append(ids, tx.ID)
	}
	return msg.UserID + "|" + strings.Join(ids, ",")
}

// HandleLedgerSync appends a batch to the ledger. A batch already appended
// is acknowledged without writing again.
func (w *SyncWorker) HandleLedgerSync(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	key := batchKey(msg)
	if ref, ok := w.seen.Get(key); ok {
		w.logger.InfoContext(ctx, "Skipping batch already in ledger",
			applog.FieldUserID, msg.UserID,
			"sheets_ref", ref)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing ledger sync message",
		applog.FieldUserID, msg.UserID,
		applog.FieldGroupID, msg.GroupID,
		applog.FieldTxCount, len(msg.Transactions))

	ref, err := w.ledger.AppendTransactions(ctx, msg.Transactions)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to append to ledger",
			applog.FieldUserID, msg.UserID,
			applog.FieldOperation, applog.OpAppend,
			applog.FieldError, err.Error())
		return fmt.Errorf("append to ledger: %w", err)
	}
	w.seen.Set(key, ref)

	w.logger.InfoContext(ctx, "Successfully synced batch",
		applog.FieldUserID, msg.UserID,
		applog.FieldTxCount, len(msg.Transactions),
		"sheets_ref", ref)
	return nil
}

// HandleDiagnostic hands a published permission report to the local reporter.
func (w *SyncWorker) HandleDiagnostic(ctx context.Context, msg *amqp.DiagnosticMessage) error {
	report := msg.Report
	w.reporter.Report(ctx, &report)
	return nil
}
