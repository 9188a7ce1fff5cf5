// Package sheets mirrors committed transactions into a spreadsheet ledger.
package sheets

import (
	"context"
	"time"

	"cofrinho/internal/core"
)

// LedgerWriter appends transaction rows to a ledger.
type LedgerWriter interface {
	// AppendTransactions writes one row per transaction and returns a
	// reference to the written range.
	AppendTransactions(ctx context.Context, txs []core.Transaction) (rowRef string, err error)
}

// LedgerHeader names the ledger columns in the order LedgerRow fills them.
var LedgerHeader = []string{
	"Data", "Vencimento", "Descrição", "Categoria", "Valor", "Pago", "Parcela", "Grupo", "ID", "Usuário",
}

const dateLayout = "02/01/2006"

// LedgerRow renders tx as a ledger row with dates in loc.
func LedgerRow(tx core.Transaction, loc *time.Location) []any {
	if loc == nil {
		loc = time.UTC
	}
	paid := "Não"
	if tx.IsPaid {
		paid = "Sim"
	}
	installment := ""
	if tx.InstallmentIndex != nil {
		installment = *tx.InstallmentIndex
	} else if tx.IsRecurring {
		installment = "Recorrente"
	}
	group := ""
	if tx.GroupID != nil {
		group = *tx.GroupID
	}
	return []any{
		tx.Date.In(loc).Format(dateLayout),
		tx.DueDate.In(loc).Format(dateLayout),
		tx.Description,
		core.CategoryLabel(tx.Category),
		tx.Value,
		paid,
		installment,
		group,
		tx.ID,
		tx.UserID,
	}
}
