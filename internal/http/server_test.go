package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cofrinho/internal/cache"
	"cofrinho/internal/core"
	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
	"cofrinho/internal/services"
	"cofrinho/internal/store/memory"
)

var (
	testSecret = []byte("test-secret-with-enough-bytes")
	testNow    = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
)

type testEnv struct {
	srv     *Server
	store   *memory.Store
	reports *diag.Recorder
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	st := memory.New()
	rec := diag.NewRecorder(20)
	opts := services.Options{
		Now:      func() time.Time { return testNow },
		Location: time.UTC,
		Reporter: rec,
	}
	profiles := services.NewProfileService(st, core.DefaultSavingsGoal, opts)
	savings := services.NewSavingsRecorder(st, core.DefaultSavingsGoal, opts)
	txs := services.NewTransactionService(st, savings, nil, cache.NewLRUCache[[]core.Transaction](50, time.Minute), opts)

	cfg := Config{
		Auth:     AuthConfig{Secret: testSecret, Issuer: "cofrinho-test"},
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg, Services{
		Profiles:    profiles,
		Auditor:     services.NewStreakAuditor(st, opts),
		Txs:         txs,
		Dashboard:   services.NewDashboardService(profiles, txs, opts),
		Diagnostics: rec,
		Ready:       st,
	}, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: st, reports: rec}
}

func signToken(t *testing.T, uid string, mutate func(*identityClaims)) string {
	t.Helper()
	claims := identityClaims{
		Email: uid + "@example.com",
		Name:  "User " + uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    "cofrinho-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	if mutate != nil {
		mutate(&claims)
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

type apiResponse struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)

	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, resp
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", resp.Data, err)
	}
	return v
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, nil)
	if code, _ := env.do(t, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Errorf("healthz = %d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/readyz", "", nil); code != http.StatusOK {
		t.Errorf("readyz = %d", code)
	}

	env.srv.svc.Ready = pingFunc(func(context.Context) error { return errors.New("down") })
	if code, resp := env.do(t, http.MethodGet, "/readyz", "", nil); code != http.StatusServiceUnavailable || resp.Success {
		t.Errorf("readyz with failing backend = %d %+v", code, resp)
	}
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, nil)
	hs384 := func() string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "cofrinho-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte("another-secret"))
		if err != nil {
			t.Fatal(err)
		}
		return raw
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", signToken(t, "u1", nil), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", hs384(), http.StatusUnauthorized},
		{"expired", signToken(t, "u1", func(c *identityClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}), http.StatusUnauthorized},
		{"no expiry", signToken(t, "u1", func(c *identityClaims) { c.ExpiresAt = nil }), http.StatusUnauthorized},
		{"wrong issuer", signToken(t, "u1", func(c *identityClaims) { c.Issuer = "someone-else" }), http.StatusUnauthorized},
		{"no subject", signToken(t, "", nil), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := env.do(t, http.MethodGet, "/api/levels", tt.token, nil)
			if code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", code, tt.want, resp.Error)
			}
		})
	}
}

func TestSessionCreatesProfileOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	token := signToken(t, "u1", nil)

	for i := 0; i < 2; i++ {
		code, resp := env.do(t, http.MethodPost, "/api/session", token, nil)
		if code != http.StatusOK {
			t.Fatalf("session = %d %s", code, resp.Error)
		}
		view := decodeData[sessionView](t, resp)
		if view.Profile.UID != "u1" || view.Profile.Email != "u1@example.com" || view.Profile.DisplayName != "User u1" {
			t.Errorf("profile identity %+v", view.Profile)
		}
		if view.Profile.Level != 1 || view.Level.Level != 1 || view.NextLevel == nil || view.NextLevel.Level != 2 {
			t.Errorf("level info %+v next=%v", view.Level, view.NextLevel)
		}
		if view.Profile.SavingsGoal != core.DefaultSavingsGoal {
			t.Errorf("goal = %v", view.Profile.SavingsGoal)
		}
	}

	code, resp := env.do(t, http.MethodGet, "/api/profile", token, nil)
	if code != http.StatusOK || decodeData[sessionView](t, resp).Profile.UID != "u1" {
		t.Fatalf("profile = %d %s", code, resp.Data)
	}
}

func TestProfileNotFoundBeforeLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	code, resp := env.do(t, http.MethodGet, "/api/profile", signToken(t, "ghost", nil), nil)
	if code != http.StatusNotFound || resp.Success {
		t.Fatalf("profile = %d %+v", code, resp)
	}
}

func TestCreateTransactionsAndListMonth(t *testing.T) {
	env := newTestEnv(t, nil)
	token := signToken(t, "u1", nil)
	env.do(t, http.MethodPost, "/api/session", token, nil)

	code, resp := env.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Mercado",
		"value":       "150,50",
		"category":    "Groceries",
		"dueDate":     "2025-05-20",
	})
	if code != http.StatusCreated {
		t.Fatalf("create single = %d %s %v", code, resp.Error, resp.Fields)
	}
	single := decodeData[[]core.Transaction](t, resp)
	if len(single) != 1 || single[0].Value != 150.5 || single[0].GroupID != nil {
		t.Fatalf("single batch %+v", single)
	}

	code, resp = env.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description":  "Notebook",
		"value":        300,
		"category":     "Shopping",
		"dueDate":      "2025-05-15",
		"frequency":    "installments",
		"installments": 3,
	})
	if code != http.StatusCreated {
		t.Fatalf("create installments = %d %s %v", code, resp.Error, resp.Fields)
	}
	if batch := decodeData[[]core.Transaction](t, resp); len(batch) != 3 {
		t.Fatalf("installment batch has %d records", len(batch))
	}

	code, resp = env.do(t, http.MethodGet, "/api/transactions?year=2025&month=5", token, nil)
	if code != http.StatusOK {
		t.Fatalf("list month = %d", code)
	}
	if may := decodeData[[]core.Transaction](t, resp); len(may) != 2 {
		t.Errorf("May has %d transactions, want 2", len(may))
	}

	code, resp = env.do(t, http.MethodGet, "/api/transactions?year=2025&month=7", token, nil)
	if code != http.StatusOK || len(decodeData[[]core.Transaction](t, resp)) != 1 {
		t.Errorf("July listing = %d %s", code, resp.Data)
	}

	code, resp = env.do(t, http.MethodGet, "/api/transactions", token, nil)
	if code != http.StatusOK || len(decodeData[[]core.Transaction](t, resp)) != 4 {
		t.Errorf("full listing = %d %s", code, resp.Data)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	token := signToken(t, "u1", nil)

	tests := []struct {
		name   string
		body   any
		fields []string
	}{
		{"empty object", map[string]any{}, []string{"description", "value", "category", "dueDate"}},
		{"bad date", map[string]any{"description": "x", "value": 1, "category": "Other", "dueDate": "20/05/2025"}, []string{"dueDate"}},
		{"one installment", map[string]any{
			"description": "x", "value": 1, "category": "Other", "dueDate": "2025-05-20",
			"frequency": "installments", "installments": 1,
		}, []string{"installments"}},
		{"bad amount", map[string]any{"description": "x", "value": "abc", "category": "Other", "dueDate": "2025-05-20"}, []string{"body"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := env.do(t, http.MethodPost, "/api/transactions", token, tt.body)
			if code != http.StatusUnprocessableEntity || resp.Success {
				t.Fatalf("status = %d", code)
			}
			for _, f := range tt.fields {
				if _, ok := resp.Fields[f]; !ok {
					t.Errorf("missing field error %q in %v", f, resp.Fields)
				}
			}
		})
	}
}

func TestSavingsDepositCreditsProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	token := signToken(t, "u1", nil)
	env.do(t, http.MethodPost, "/api/session", token, nil)

	code, resp := env.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Cofrinho",
		"value":       100,
		"category":    core.CategorySavings,
		"dueDate":     "2025-05-10",
	})
	if code != http.StatusCreated {
		t.Fatalf("deposit = %d %s", code, resp.Error)
	}
	if batch := decodeData[[]core.Transaction](t, resp); !batch[0].IsPaid {
		t.Error("savings record must be created paid")
	}

	_, resp = env.do(t, http.MethodGet, "/api/profile", token, nil)
	p := decodeData[sessionView](t, resp).Profile
	if p.TotalSavings != 100 || p.XP <= 0 || p.Streak != 1 {
		t.Errorf("profile after deposit %+v", p)
	}
}

func TestOwnershipIsEnforced(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := signToken(t, "owner", nil)
	intruder := signToken(t, "intruder", nil)

	_, resp := env.do(t, http.MethodPost, "/api/transactions", owner, map[string]any{
		"description": "Aluguel", "value": 1200, "category": "Rent", "dueDate": "2025-05-05",
	})
	id := decodeData[[]core.Transaction](t, resp)[0].ID

	code, _ := env.do(t, http.MethodPatch, "/api/transactions/"+id+"/status", intruder, map[string]bool{"isPaid": true})
	if code != http.StatusForbidden {
		t.Fatalf("foreign status update = %d", code)
	}
	code, _ = env.do(t, http.MethodDelete, "/api/transactions/"+id, intruder, nil)
	if code != http.StatusForbidden {
		t.Fatalf("foreign delete = %d", code)
	}

	_, resp = env.do(t, http.MethodGet, "/api/diagnostics", intruder, nil)
	reports := decodeData[[]diag.PermissionError](t, resp)
	if len(reports) != 2 || reports[0].Operation != diag.OpDelete || reports[0].Path != diag.TransactionPath(id) {
		t.Errorf("intruder diagnostics %+v", reports)
	}
	_, resp = env.do(t, http.MethodGet, "/api/diagnostics", owner, nil)
	if got := decodeData[[]diag.PermissionError](t, resp); len(got) != 0 {
		t.Errorf("owner sees %d foreign reports", len(got))
	}
}

func TestUpdateStatusAndTransaction(t *testing.T) {
	env := newTestEnv(t, nil)
	token := signToken(t, "u1", nil)
	_, resp := env.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Luz", "value": 80, "category": "Utilities", "dueDate": "2025-05-12",
	})
	id := decodeData[[]core.Transaction](t, resp)[0].ID

	code, resp := env.do(t, http.MethodPatch, "/api/transactions/"+id+"/status", token, map[string]bool{"isPaid": true})
	if code != http.StatusOK || !decodeData[core.Transaction](t, resp).IsPaid {
		t.Fatalf("status update = %d %s", code, resp.Data)
	}
	code, _ = env.do(t, http.MethodPatch, "/api/transactions/"+id+"/status", token, map[string]any{})
	if code != http.StatusUnprocessableEntity {
		t.Errorf("status without isPaid = %d", code)
	}

	code, resp = env.do(t, http.MethodPut, "/api/transactions/"+id, token, map[string]any{
		"description": "Energia", "value": "95,10", "category": "Utilities", "dueDate": "2025-05-15",
	})
	if code != http.StatusOK {
		t.Fatalf("update = %d %s %v", code, resp.Error, resp.Fields)
	}
	tx := decodeData[core.Transaction](t, resp)
	if tx.Description != "Energia" || tx.Value != 95.1 || !tx.IsPaid || tx.DueDate.Day() != 15 {
		t.Errorf("updated transaction %+v", tx)
	}

	code, _ = env.do(t, http.MethodPut, "/api/transactions/missing", token, map[string]any{
		"description": "x", "value": 1, "category": "Other", "dueDate": "2025-05-15",
	})
	if code != http.StatusNotFound {
		t.Errorf("update of missing transaction = %d", code)
	}
}

func TestDeleteWholeGroup(t *testing.T) {
	env := newTestEnv(t, nil)
	token := signToken(t, "u1", nil)
	_, resp := env.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Academia", "value": 99.9, "category": "Other", "dueDate": "2025-05-05",
		"frequency": "recurring",
	})
	batch := decodeData[[]core.Transaction](t, resp)
	if len(batch) != 12 || batch[0].GroupID == nil {
		t.Fatalf("recurring batch %d", len(batch))
	}

	code, _ := env.do(t, http.MethodDelete, "/api/transactions/"+batch[0].ID+"?scope=bogus", token, nil)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("bogus scope = %d", code)
	}

	code, resp = env.do(t, http.MethodDelete, "/api/transactions/"+batch[3].ID+"?scope=all&groupId="+*batch[0].GroupID, token, nil)
	if code != http.StatusOK || decodeData[map[string]int](t, resp)["deleted"] != 12 {
		t.Fatalf("group delete = %d %s", code, resp.Data)
	}
	_, resp = env.do(t, http.MethodGet, "/api/transactions", token, nil)
	if left := decodeData[[]core.Transaction](t, resp); len(left) != 0 {
		t.Errorf("%d transactions left", len(left))
	}
}

func TestDashboardAndBreakdown(t *testing.T) {
	env := newTestEnv(t, nil)
	token := signToken(t, "u1", nil)
	env.do(t, http.MethodPost, "/api/session", token, nil)
	for _, body := range []map[string]any{
		{"description": "Mercado", "value": 200, "category": "Groceries", "dueDate": "2025-05-20"},
		{"description": "Feira", "value": 50, "category": "Groceries", "dueDate": "2025-05-21"},
		{"description": "Cofrinho", "value": 30, "category": core.CategorySavings, "dueDate": "2025-05-10"},
	} {
		if code, resp := env.do(t, http.MethodPost, "/api/transactions", token, body); code != http.StatusCreated {
			t.Fatalf("seed = %d %s", code, resp.Error)
		}
	}

	code, resp := env.do(t, http.MethodGet, "/api/dashboard?year=2025&month=5", token, nil)
	if code != http.StatusOK {
		t.Fatalf("dashboard = %d %s", code, resp.Error)
	}
	view := decodeData[services.MonthView](t, resp)
	if len(view.Transactions) != 3 || view.Profile == nil || view.AllSettled {
		t.Fatalf("dashboard view %+v", view)
	}
	if view.Summary.TotalPayable != 250 || view.Summary.TotalSaved != 30 {
		t.Errorf("summary %+v", view.Summary)
	}

	code, resp = env.do(t, http.MethodGet, "/api/analysis/categories?year=2025&month=5", token, nil)
	if code != http.StatusOK {
		t.Fatalf("breakdown = %d", code)
	}
	rows := decodeData[[]core.CategoryAmount](t, resp)
	if len(rows) == 0 || rows[0].Name != "Supermercado" || rows[0].Amount != 250 {
		t.Errorf("breakdown %+v", rows)
	}

	code, resp = env.do(t, http.MethodGet, "/api/dashboard?year=2025&month=13", token, nil)
	if code != http.StatusUnprocessableEntity || resp.Fields["month"] == "" {
		t.Errorf("month 13 = %d %v", code, resp.Fields)
	}
	code, resp = env.do(t, http.MethodGet, "/api/dashboard?year=abc", token, nil)
	if code != http.StatusUnprocessableEntity || resp.Fields["year"] == "" {
		t.Errorf("year abc = %d %v", code, resp.Fields)
	}
}

func TestUpdateSavingsTotal(t *testing.T) {
	env := newTestEnv(t, nil)
	token := signToken(t, "u1", nil)
	env.do(t, http.MethodPost, "/api/session", token, nil)

	code, resp := env.do(t, http.MethodPut, "/api/profile/savings", token, map[string]any{"totalSavings": 250})
	if code != http.StatusOK || decodeData[core.UserProfile](t, resp).TotalSavings != 250 {
		t.Fatalf("adjust = %d %s", code, resp.Data)
	}
	code, resp = env.do(t, http.MethodPut, "/api/profile/savings", token, map[string]any{"totalSavings": core.DefaultSavingsGoal})
	if code != http.StatusUnprocessableEntity || resp.Fields["totalSavings"] == "" {
		t.Errorf("total at goal = %d %v", code, resp.Fields)
	}
	code, _ = env.do(t, http.MethodPut, "/api/profile/savings", token, map[string]any{})
	if code != http.StatusUnprocessableEntity {
		t.Errorf("missing total = %d", code)
	}
}

func TestStaticCatalogs(t *testing.T) {
	env := newTestEnv(t, nil)
	token := signToken(t, "u1", nil)

	_, resp := env.do(t, http.MethodGet, "/api/levels", token, nil)
	if levels := decodeData[[]core.Level](t, resp); len(levels) != core.MaxLevel {
		t.Errorf("levels = %d", len(levels))
	}
	_, resp = env.do(t, http.MethodGet, "/api/categories", token, nil)
	if cats := decodeData[[]core.Category](t, resp); len(cats) != len(core.Categories) {
		t.Errorf("categories = %d", len(cats))
	}
	_, resp = env.do(t, http.MethodGet, "/api/trophies", token, nil)
	trophies := decodeData[[]core.Trophy](t, resp)
	if len(trophies) != 10 || !trophies[0].Unlocked || trophies[1].Unlocked {
		t.Errorf("trophies %+v", trophies)
	}
}

func TestRateLimitPerUser(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RateLimitPerMinute = 2 })
	a := signToken(t, "a", nil)
	b := signToken(t, "b", nil)

	for i := 0; i < 2; i++ {
		if code, _ := env.do(t, http.MethodGet, "/api/levels", a, nil); code != http.StatusOK {
			t.Fatalf("request %d = %d", i, code)
		}
	}
	if code, _ := env.do(t, http.MethodGet, "/api/levels", a, nil); code != http.StatusTooManyRequests {
		t.Errorf("third request = %d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/api/levels", b, nil); code != http.StatusOK {
		t.Errorf("other user throttled: %d", code)
	}
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req_fixed")
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req_fixed" {
		t.Errorf("request id = %q", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("missing security headers: %v", rec.Header())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type %q", ct)
	}
}

func TestRequestLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{
		Handler:   slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		Component: applog.ComponentApp,
	})
	srv := NewServer(Config{Auth: AuthConfig{Secret: testSecret}}, Services{}, logger)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/api/levels", nil)
	req.Header.Set("X-Request-ID", "req_logged")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if entry["msg"] == "Rejected unauthenticated request" {
			found = true
			if entry[applog.FieldRequestID] != "req_logged" {
				t.Errorf("auth warning without request id: %v", entry)
			}
		}
	}
	if !found {
		t.Fatalf("no auth warning logged: %s", buf.String())
	}
}
