// Package diag carries access-denied diagnostics out of band. Reporting is
// observational: reporters never fail the operation that triggered them.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cofrinho/internal/core"
	applog "cofrinho/internal/log"
)

// Operation names used in PermissionError.
const (
	OpGet    = "get"
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpWrite  = "write"
)

// PermissionError describes a store request that was refused.
type PermissionError struct {
	Path        string    `json:"path"`
	Operation   string    `json:"operation"`
	UserID      string    `json:"userId,omitempty"`
	RequestData any       `json:"requestData,omitempty"`
	Cause       string    `json:"cause,omitempty"`
	At          time.Time `json:"at"`
}

// NewPermissionError builds the report for a failed request at path.
func NewPermissionError(path, op, uid string, data any, cause error) *PermissionError {
	e := &PermissionError{
		Path:        path,
		Operation:   op,
		UserID:      uid,
		RequestData: data,
		At:          time.Now().UTC(),
	}
	if cause != nil {
		e.Cause = cause.Error()
	}
	return e
}

func (e *PermissionError) Error() string {
	details, err := json.MarshalIndent(struct {
		Path        string `json:"path"`
		Operation   string `json:"operation"`
		UserID      string `json:"userId,omitempty"`
		RequestData any    `json:"requestData,omitempty"`
	}{e.Path, e.Operation, e.UserID, e.RequestData}, "", "  ")
	if err != nil {
		details = []byte(fmt.Sprintf("%s %s", e.Operation, e.Path))
	}
	return "missing or insufficient permissions: the following request was denied:\n" + string(details)
}

// Is makes a PermissionError match core.ErrAccessDenied.
func (e *PermissionError) Is(target error) bool {
	return target == core.ErrAccessDenied
}

// UserPath and TransactionPath name documents the way reports show them.
func UserPath(uid string) string { return "users/" + uid }
func TransactionPath(id string) string { return "transactions/" + id }
func TransactionsPath() string { return "transactions" }
func IsAccessDenied(err error) bool { return errors.Is(err, core.ErrAccessDenied) }

// Reporter receives permission diagnostics.
type Reporter interface {
	Report(ctx context.Context, e *PermissionError)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, e *PermissionError)

func (f ReporterFunc) Report(ctx context.Context, e *PermissionError) { f(ctx, e) }

// Nop drops every report.
var Nop Reporter = ReporterFunc(func(context.Context, *PermissionError) {})

// LogReporter writes reports to the structured log.
type LogReporter struct {
	logger *applog.Logger
}

func NewLogReporter(logger *applog.Logger) *LogReporter {
	if logger == nil {
		logger = applog.Discard()
	}
	return &LogReporter{logger: logger.WithComponent(applog.ComponentDiagnostics)}
}

func (r *LogReporter) Report(ctx context.Context, e *PermissionError) {
	r.logger.ErrorContext(ctx, "store request denied",
		applog.FieldDocPath, e.Path,
		applog.FieldOperation, e.Operation,
		applog.FieldUserID, e.UserID,
		applog.FieldErrorType, applog.ErrorTypePermission,
		applog.FieldError, e.Cause,
	)
}

// Recorder keeps the most recent reports in memory.
type Recorder struct {
	mu    sync.Mutex
	items []PermissionError
	next  int
	full  bool
}

// NewRecorder keeps at most capacity reports.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 100
	}
	return &Recorder{items: make([]PermissionError, capacity)}
}

func (r *Recorder) Report(_ context.Context, e *PermissionError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = *e
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// All returns the retained reports, newest first.
func (r *Recorder) All() []PermissionError {
	return r.filter(func(PermissionError) bool { return true })
}

// ForUser returns the retained reports of uid, newest first.
func (r *Recorder) ForUser(uid string) []PermissionError {
	return r.filter(func(e PermissionError) bool { return e.UserID == uid })
}

func (r *Recorder) filter(keep func(PermissionError) bool) []PermissionError {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.items)
	}
	out := make([]PermissionError, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.items)) % len(r.items)
		if keep(r.items[idx]) {
			out = append(out, r.items[idx])
		}
	}
	return out
}

// Multi fans a report out to every reporter.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, e *PermissionError) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, e)
		}
	}
}
