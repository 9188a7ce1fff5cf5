package core

import "sort"

// CategoryAmount is a total aggregated under a category label.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Summarize folds a month of transactions into totals. Savings deposits are
// counted apart from payables; no rounding is applied.
func Summarize(txs []Transaction) Summary {
	var s Summary
	for _, t := range txs {
		if t.IsSavings() {
			s.TotalSaved += t.Value
			continue
		}
		s.TotalPayable += t.Value
		if t.IsPaid {
			s.TotalPaid += t.Value
		}
	}
	s.RemainingBalance = s.TotalPayable - s.TotalPaid
	return s
}

// BreakdownByCategory sums values per category label, largest first.
func BreakdownByCategory(txs []Transaction) []CategoryAmount {
	totals := make(map[string]float64)
	for _, t := range txs {
		totals[CategoryLabel(t.Category)] += t.Value
	}
	out := make([]CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// AllSettled reports whether a non-empty month has nothing left to pay.
func AllSettled(txs []Transaction) bool {
	if len(txs) == 0 {
		return false
	}
	for _, t := range txs {
		if !t.IsPaid && !t.IsSavings() {
			return false
		}
	}
	return true
}
