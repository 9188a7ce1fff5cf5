package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cofrinho/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return core.NewValidationError("body", "request body is required")
		}
		return core.NewValidationError("body", "malformed JSON: "+err.Error())
	}
	if dec.More() {
		return core.NewValidationError("body", "body must hold a single JSON object")
	}
	return nil
}

// parseMonth reads ?year&month, defaulting each to the current month in loc.
func parseMonth(r *http.Request, now time.Time, loc *time.Location) (int, time.Month, error) {
	local := now.In(loc)
	year, month := local.Year(), int(local.Month())
	ve := &core.ValidationError{}

	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			ve.Fields = map[string]string{"year": "year must be a number"}
		}
		year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			if ve.Fields == nil {
				ve.Fields = map[string]string{}
			}
			ve.Fields["month"] = "month must be a number"
		}
		month = m
	}
	if len(ve.Fields) > 0 {
		return 0, 0, ve
	}
	return year, time.Month(month), nil
}

// hasMonth reports whether the query names a month.
func hasMonth(r *http.Request) bool {
	q := r.URL.Query()
	return q.Has("year") || q.Has("month")
}

// amount accepts a JSON number or a typed string such as "1.234,56".
type amount float64

func (a *amount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*a = 0
			return nil
		}
		v, err := core.ParseAmount(s)
		if err != nil {
			return fmt.Errorf("value %q: %w", s, err)
		}
		*a = amount(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = amount(f)
	return nil
}

// parseDay reads a calendar day as midnight in loc. Full RFC 3339 timestamps
// are accepted too. An empty string yields the zero time.
func parseDay(field, s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, core.NewValidationError(field, field+" must be YYYY-MM-DD")
}

type transactionRequest struct {
	Description       string         `json:"description"`
	CustomDescription string         `json:"customDescription"`
	Details           string         `json:"details"`
	Value             amount         `json:"value"`
	Category          string         `json:"category"`
	DueDate           string         `json:"dueDate"`
	Frequency         core.Frequency `json:"frequency"`
	Installments      int            `json:"installments"`
}

func (t transactionRequest) input(loc *time.Location) (core.TransactionInput, error) {
	due, err := parseDay("dueDate", t.DueDate, loc)
	if err != nil {
		return core.TransactionInput{}, err
	}
	return core.TransactionInput{
		Description:       t.Description,
		CustomDescription: t.CustomDescription,
		Details:           t.Details,
		Value:             float64(t.Value),
		Category:          t.Category,
		DueDate:           due,
		Frequency:         t.Frequency,
		Installments:      t.Installments,
	}, nil
}

type updateRequest struct {
	Description string `json:"description"`
	Value       amount `json:"value"`
	Category    string `json:"category"`
	DueDate     string `json:"dueDate"`
}

func (u updateRequest) update(loc *time.Location) (core.TransactionUpdate, error) {
	due, err := parseDay("dueDate", u.DueDate, loc)
	if err != nil {
		return core.TransactionUpdate{}, err
	}
	return core.TransactionUpdate{
		Description: u.Description,
		Value:       float64(u.Value),
		Category:    u.Category,
		DueDate:     due,
	}, nil
}

type statusRequest struct {
	IsPaid *bool `json:"isPaid"`
}

type savingsRequest struct {
	TotalSavings *amount `json:"totalSavings"`
}
