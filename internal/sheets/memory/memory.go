// Package memory is a LedgerWriter that keeps rows in process. The worker
// uses it when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cofrinho/internal/core"
	ports "cofrinho/internal/sheets"
)

type Ledger struct {
	mu   sync.Mutex
	loc  *time.Location
	rows [][]any
}

var _ ports.LedgerWriter = (*Ledger)(nil)

func New(loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{loc: loc}
}

// AppendTransactions stores the rows and returns a synthetic range reference.
func (l *Ledger) AppendTransactions(_ context.Context, txs []core.Transaction) (string, error) {
	if len(txs) == 0 {
		return "", nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	first := len(l.rows) + 1
	for _, tx := range txs {
		l.rows = append(l.rows, ports.LedgerRow(tx, l.loc))
	}
	return fmt.Sprintf("mem:%d-%d", first, len(l.rows)), nil
}

// Rows returns a copy of the appended rows.
func (l *Ledger) Rows() [][]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]any(nil), l.rows...)
}
