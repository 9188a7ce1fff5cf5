package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gsheet "google.golang.org/api/sheets/v4"

	"cofrinho/internal/core"
)

type appendCall struct {
	path   string
	query  string
	values [][]any
}

func newFakeSheets(t *testing.T) (*httptest.Server, *[]appendCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []appendCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":append") {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		calls = append(calls, appendCall{path: r.URL.Path, query: r.URL.RawQuery, values: vr.Values})
		n := len(calls)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"spreadsheetId":"sheet-id","updates":{"updatedRange":"range-%d","updatedRows":%d}}`, n, len(vr.Values))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{
		SpreadsheetID: "sheet-id",
		SheetName:     "Lancamentos",
		Location:      time.UTC,
		Endpoint:      endpoint + "/",
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "x"}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestNewMissingCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: "/does/not/exist.json"}, nil)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected file error, got %v", err)
	}
}

func TestAppendTransactionsSplitsByYear(t *testing.T) {
	srv, calls := newFakeSheets(t)
	c := newTestClient(t, srv.URL)

	group := "g1"
	dec := time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		{ID: "a", UserID: "u1", Description: "Academia", Value: 99.9, Category: "Other", Date: dec, DueDate: dec, IsRecurring: true, GroupID: &group},
		{ID: "b", UserID: "u1", Description: "Academia", Value: 99.9, Category: "Other", Date: dec, DueDate: jan, IsRecurring: true, GroupID: &group},
	}

	ref, err := c.AppendTransactions(context.Background(), txs)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "range-1,range-2" {
		t.Errorf("ref = %q", ref)
	}
	if len(*calls) != 2 {
		t.Fatalf("expected one append per year, got %d", len(*calls))
	}

	first := (*calls)[0]
	if !strings.Contains(first.path, "/v4/spreadsheets/sheet-id/values/2025 Lancamentos!A:J") {
		t.Errorf("first append path %q", first.path)
	}
	if !strings.Contains(first.query, "valueInputOption=USER_ENTERED") || !strings.Contains(first.query, "insertDataOption=INSERT_ROWS") {
		t.Errorf("query %q", first.query)
	}
	if !strings.Contains((*calls)[1].path, "2026 Lancamentos") {
		t.Errorf("second append path %q", (*calls)[1].path)
	}
	row := first.values[0]
	if row[2] != "Academia" || row[3] != "Outros" || row[6] != "Recorrente" || row[8] != "a" {
		t.Errorf("unexpected row %v", row)
	}
}

func TestAppendTransactionsEmpty(t *testing.T) {
	srv, calls := newFakeSheets(t)
	c := newTestClient(t, srv.URL)

	ref, err := c.AppendTransactions(context.Background(), nil)
	if err != nil || ref != "" || len(*calls) != 0 {
		t.Fatalf("empty batch must be a no-op: ref=%q err=%v calls=%d", ref, err, len(*calls))
	}
}

func TestAppendTransactionsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.AppendTransactions(context.Background(), []core.Transaction{{ID: "a", UserID: "u", Value: 1, Date: now, DueDate: now}})
	if err == nil || !strings.Contains(err.Error(), "append to sheet 2025 Lancamentos") {
		t.Fatalf("expected wrapped append error, got %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Lancamentos", 2025, "2025 Lancamentos"},
		{"", 2023, ""},
		{"Minha Planilha", 2022, "2022 Minha Planilha"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}
