package http

import (
	"net/http"
	"strings"

	"cofrinho/internal/core"
	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
)

// sessionView is returned on login.
type sessionView struct {
	Profile     core.UserProfile `json:"profile"`
	Level       core.Level       `json:"level"`
	NextLevel   *core.Level      `json:"nextLevel"`
	StreakReset bool             `json:"streakReset"`
}

func newSessionView(p core.UserProfile, reset bool) sessionView {
	view := sessionView{Profile: p, Level: core.LevelInfo(p.Level), StreakReset: reset}
	if next, ok := core.NextLevel(p.Level); ok {
		view.NextLevel = &next
	}
	return view
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, _ := userFrom(ctx)

	profile, err := s.svc.Profiles.GetOrCreate(ctx, u)
	if err != nil {
		respondErr(w, r, applog.OpGet, err)
		return
	}

	reset := s.svc.Auditor != nil && s.svc.Auditor.AuditOnLogin(ctx, u.UID)
	if reset {
		if p, err := s.svc.Profiles.Get(ctx, u.UID); err == nil && p != nil {
			profile = *p
		}
	}
	respond(w, http.StatusOK, newSessionView(profile, reset))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	profile, err := s.svc.Profiles.Get(r.Context(), u.UID)
	if err != nil {
		respondErr(w, r, applog.OpGet, err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "profile not found")
		return
	}
	respond(w, http.StatusOK, newSessionView(*profile, false))
}

func (s *Server) handleUpdateSavings(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	var req savingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, applog.OpUpdate, err)
		return
	}
	if req.TotalSavings == nil {
		respondErr(w, r, applog.OpUpdate, core.NewValidationError("totalSavings", "totalSavings is required"))
		return
	}
	profile, err := s.svc.Profiles.UpdateTotalSavings(r.Context(), u.UID, float64(*req.TotalSavings))
	if err != nil {
		respondErr(w, r, applog.OpUpdate, err)
		return
	}
	respond(w, http.StatusOK, profile)
}

func (s *Server) handleLevels(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, core.Levels)
}

func (s *Server) handleTrophies(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	profile, err := s.svc.Profiles.Get(r.Context(), u.UID)
	if err != nil {
		respondErr(w, r, applog.OpGet, err)
		return
	}
	level := 1
	if profile != nil {
		level = profile.Level
	}
	respond(w, http.StatusOK, core.Trophies(level))
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, core.Categories)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, _ := userFrom(ctx)

	if !hasMonth(r) {
		txs, err := s.svc.Txs.ListAll(ctx, u.UID)
		if err != nil {
			respondErr(w, r, applog.OpList, err)
			return
		}
		respond(w, http.StatusOK, txs)
		return
	}

	year, month, err := parseMonth(r, s.cfg.Now(), s.cfg.Location)
	if err != nil {
		respondErr(w, r, applog.OpList, err)
		return
	}
	txs, err := s.svc.Txs.ListMonth(ctx, u.UID, year, month)
	if err != nil {
		respondErr(w, r, applog.OpList, err)
		return
	}
	respond(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransactions(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, applog.OpCreate, err)
		return
	}
	in, err := req.input(s.cfg.Location)
	if err != nil {
		respondErr(w, r, applog.OpCreate, err)
		return
	}
	batch, err := s.svc.Txs.Add(r.Context(), u.UID, in)
	if err != nil {
		respondErr(w, r, applog.OpCreate, err)
		return
	}
	respond(w, http.StatusCreated, batch)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, applog.OpUpdate, err)
		return
	}
	upd, err := req.update(s.cfg.Location)
	if err != nil {
		respondErr(w, r, applog.OpUpdate, err)
		return
	}
	tx, err := s.svc.Txs.Update(r.Context(), u.UID, r.PathValue("id"), upd)
	if err != nil {
		respondErr(w, r, applog.OpUpdate, err)
		return
	}
	respond(w, http.StatusOK, tx)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, applog.OpUpdate, err)
		return
	}
	if req.IsPaid == nil {
		respondErr(w, r, applog.OpUpdate, core.NewValidationError("isPaid", "isPaid is required"))
		return
	}
	tx, err := s.svc.Txs.UpdateStatus(r.Context(), u.UID, r.PathValue("id"), *req.IsPaid)
	if err != nil {
		respondErr(w, r, applog.OpUpdate, err)
		return
	}
	respond(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	q := r.URL.Query()

	scope := core.DeleteScope(strings.TrimSpace(q.Get("scope")))
	switch scope {
	case "":
		scope = core.DeleteSingle
	case core.DeleteSingle, core.DeleteAll:
	default:
		respondErr(w, r, applog.OpDelete, core.NewValidationError("scope", "scope must be single or all"))
		return
	}

	n, err := s.svc.Txs.Delete(r.Context(), u.UID, r.PathValue("id"), scope, strings.TrimSpace(q.Get("groupId")))
	if err != nil {
		respondErr(w, r, applog.OpDelete, err)
		return
	}
	respond(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	year, month, err := parseMonth(r, s.cfg.Now(), s.cfg.Location)
	if err != nil {
		respondErr(w, r, applog.OpList, err)
		return
	}
	view, err := s.svc.Dashboard.Month(r.Context(), u.UID, year, month)
	if err != nil {
		respondErr(w, r, applog.OpList, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	year, month, err := parseMonth(r, s.cfg.Now(), s.cfg.Location)
	if err != nil {
		respondErr(w, r, applog.OpList, err)
		return
	}
	rows, err := s.svc.Dashboard.Breakdown(r.Context(), u.UID, year, month)
	if err != nil {
		respondErr(w, r, applog.OpList, err)
		return
	}
	respond(w, http.StatusOK, rows)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	events := []diag.PermissionError{}
	if s.svc.Diagnostics != nil {
		events = append(events, s.svc.Diagnostics.ForUser(u.UID)...)
	}
	respond(w, http.StatusOK, events)
}
