package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"cofrinho/internal/core"
	applog "cofrinho/internal/log"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: msg})
}

// respondErr maps a service error onto a status code. Unexpected errors are
// logged and answered with a generic message.
func respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Error: "invalid input", Fields: ve.Fields})
	case errors.Is(err, core.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrAccessDenied):
		respondError(w, http.StatusForbidden, "access denied")
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
			"Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
