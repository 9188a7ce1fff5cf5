package services

import (
	"context"
	"errors"
	"fmt"

	"cofrinho/internal/core"
	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
	"cofrinho/internal/store"
)

// SavingsRecorder applies piggy-bank deposits to the depositor's profile.
type SavingsRecorder struct {
	store  store.ProfileStore
	goal   float64
	opts   Options
	events *applog.StructuredLogger
	logger *applog.Logger
}

func NewSavingsRecorder(st store.ProfileStore, goal float64, opts Options) *SavingsRecorder {
	opts = opts.normalize()
	if goal <= 0 {
		goal = core.DefaultSavingsGoal
	}
	return &SavingsRecorder{
		store:  st,
		goal:   goal,
		opts:   opts,
		events: applog.NewStructuredLogger(opts.Logger),
		logger: opts.Logger.WithComponent(applog.ComponentSavings),
	}
}

// Record reads the profile, applies the deposit and writes the changed
// progress fields back in one update.
func (r *SavingsRecorder) Record(ctx context.Context, uid string, amount float64) (core.Deposit, error) {
	if uid == "" {
		return core.Deposit{}, missingUID()
	}
	if amount <= 0 {
		return core.Deposit{}, core.NewValidationError("value", "deposit must be a positive amount")
	}
	path := diag.UserPath(uid)

	doc, err := r.store.GetProfile(ctx, uid)
	if errors.Is(err, core.ErrNotFound) {
		return core.Deposit{}, fmt.Errorf("record deposit: profile %s: %w", uid, core.ErrNotFound)
	}
	if err != nil {
		return core.Deposit{}, r.opts.reportDenied(ctx, path, diag.OpGet, uid, nil, fmt.Errorf("record deposit: %w", err))
	}

	profile, upgrade := doc.Upgrade(r.goal)
	dep := core.ApplyDeposit(profile, amount, r.opts.Now(), r.opts.Location)
	if upgrade.SavingsGoal != nil {
		dep.Patch.SavingsGoal = upgrade.SavingsGoal
	}

	if err := r.store.UpdateProfile(ctx, uid, dep.Patch); err != nil {
		r.opts.Reporter.Report(ctx, diag.NewPermissionError(path, diag.OpUpdate, uid, dep.Profile, err))
		r.logger.ErrorContext(ctx, "Failed to persist deposit",
			applog.FieldUserID, uid,
			applog.FieldOperation, applog.OpDeposit,
			applog.FieldAmount, amount,
			applog.FieldError, err.Error())
		return core.Deposit{}, fmt.Errorf("record deposit: %w", err)
	}

	p := dep.Profile
	r.events.LogDeposit(ctx, uid, amount, p.XP, p.Level, p.Streak, p.SavingsCycle)
	if dep.StreakBroken {
		r.logger.InfoContext(ctx, "Savings streak restarted", applog.FieldUserID, uid)
	}
	if dep.CycleCompleted {
		r.logger.InfoContext(ctx, "Savings goal reached, new cycle started",
			applog.FieldUserID, uid, applog.FieldCycle, p.SavingsCycle)
	}
	return dep, nil
}

// StreakAuditor decays the streak of users who skipped a whole month.
type StreakAuditor struct {
	store  store.ProfileStore
	opts   Options
	logger *applog.Logger
}

func NewStreakAuditor(st store.ProfileStore, opts Options) *StreakAuditor {
	opts = opts.normalize()
	return &StreakAuditor{
		store:  st,
		opts:   opts,
		logger: opts.Logger.WithComponent(applog.ComponentStreak),
	}
}

// AuditOnLogin applies the missed-month penalty and reports whether one was
// persisted. Failures are logged and never returned.
func (a *StreakAuditor) AuditOnLogin(ctx context.Context, uid string) bool {
	if uid == "" {
		return false
	}
	doc, err := a.store.GetProfile(ctx, uid)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			a.logger.ErrorContext(ctx, "Streak audit could not load profile",
				applog.FieldUserID, uid,
				applog.FieldOperation, applog.OpAudit,
				applog.FieldError, err.Error())
		}
		return false
	}
	if doc.LastSavingsDate == nil {
		return false
	}

	profile := doc.Profile()
	decayed, patch, changed := core.DecayOnLogin(profile, a.opts.Now(), a.opts.Location)
	if !changed {
		return false
	}
	if err := a.store.UpdateProfile(ctx, uid, patch); err != nil {
		a.opts.reportDenied(ctx, diag.UserPath(uid), diag.OpUpdate, uid, patch, err)
		a.logger.ErrorContext(ctx, "Streak audit could not persist decay",
			applog.FieldUserID, uid,
			applog.FieldOperation, applog.OpAudit,
			applog.FieldError, err.Error())
		return false
	}

	a.logger.InfoContext(ctx, "Streak lost after a missed month",
		applog.NewFields().
			WithUser(uid).
			WithOperation(applog.OpAudit).
			WithProgress(decayed.XP, decayed.Level, decayed.Streak, decayed.SavingsCycle).
			ToSlice()...)
	return true
}
