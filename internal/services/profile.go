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

// ProfileService owns the profile lifecycle: creation on first login, schema
// upgrade of older records and manual piggy-bank adjustments.
type ProfileService struct {
	store  store.ProfileStore
	goal   float64
	opts   Options
	logger *applog.Logger
}

// NewProfileService builds the service. goal is the savings goal given to new
// profiles and to older records that lack one.
func NewProfileService(st store.ProfileStore, goal float64, opts Options) *ProfileService {
	opts = opts.normalize()
	if goal <= 0 {
		goal = core.DefaultSavingsGoal
	}
	return &ProfileService{
		store:  st,
		goal:   goal,
		opts:   opts,
		logger: opts.Logger.WithComponent(applog.ComponentProfile),
	}
}

// GetOrCreate returns the profile of u, creating it on first login. A failed
// create is reported and logged but the fresh profile is still returned.
func (s *ProfileService) GetOrCreate(ctx context.Context, u core.User) (core.UserProfile, error) {
	if u.UID == "" {
		return core.UserProfile{}, missingUID()
	}
	path := diag.UserPath(u.UID)

	doc, err := s.store.GetProfile(ctx, u.UID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return s.create(ctx, u), nil
	case err != nil:
		pe := diag.NewPermissionError(path, diag.OpGet, u.UID, nil, err)
		s.opts.Reporter.Report(ctx, pe)
		s.logger.ErrorContext(ctx, "Failed to load profile",
			applog.FieldUserID, u.UID,
			applog.FieldOperation, applog.OpGet,
			applog.FieldError, err.Error())
		return core.UserProfile{}, pe
	}

	profile, patch := doc.Upgrade(s.goal)
	if patch.IsEmpty() {
		return profile, nil
	}
	if err := s.store.UpdateProfile(ctx, u.UID, patch); err != nil {
		s.opts.reportDenied(ctx, path, diag.OpUpdate, u.UID, patch, err)
		return core.UserProfile{}, fmt.Errorf("upgrade profile %s: %w", u.UID, err)
	}
	s.logger.InfoContext(ctx, "Upgraded profile with missing savings fields",
		applog.FieldUserID, u.UID, applog.FieldOperation, applog.OpUpdate)
	return profile, nil
}

func (s *ProfileService) create(ctx context.Context, u core.User) core.UserProfile {
	profile := core.NewProfile(u, s.goal)
	if err := s.store.CreateProfile(ctx, profile.Document()); err != nil {
		s.opts.Reporter.Report(ctx, diag.NewPermissionError(diag.UserPath(u.UID), diag.OpCreate, u.UID, profile, err))
		s.logger.ErrorContext(ctx, "Failed to persist new profile",
			applog.FieldUserID, u.UID,
			applog.FieldOperation, applog.OpCreate,
			applog.FieldError, err.Error())
		return profile
	}
	s.logger.InfoContext(ctx, "Created profile", applog.FieldUserID, u.UID, applog.FieldOperation, applog.OpCreate)
	return profile
}

// Get fetches a profile without creating it. A missing uid or record yields
// nil and no error. Fields older records lack are filled in memory only.
func (s *ProfileService) Get(ctx context.Context, uid string) (*core.UserProfile, error) {
	if uid == "" {
		return nil, nil
	}
	doc, err := s.store.GetProfile(ctx, uid)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.opts.reportDenied(ctx, diag.UserPath(uid), diag.OpGet, uid, nil, fmt.Errorf("get profile: %w", err))
	}
	profile, _ := doc.Upgrade(s.goal)
	return &profile, nil
}

// UpdateTotalSavings overwrites the piggy-bank total. The total must stay
// below the profile goal.
func (s *ProfileService) UpdateTotalSavings(ctx context.Context, uid string, total float64) (core.UserProfile, error) {
	if uid == "" {
		return core.UserProfile{}, missingUID()
	}
	if total < 0 {
		return core.UserProfile{}, core.NewValidationError("totalSavings", "total must not be negative")
	}

	profile, err := s.Get(ctx, uid)
	if err != nil {
		return core.UserProfile{}, err
	}
	if profile == nil {
		return core.UserProfile{}, fmt.Errorf("profile %s: %w", uid, core.ErrNotFound)
	}
	if goal := profile.Goal(); total >= goal {
		return core.UserProfile{}, core.NewValidationError("totalSavings",
			fmt.Sprintf("total must be below the goal of %s", core.FormatBRL(goal)))
	}

	patch := core.ProfilePatch{TotalSavings: &total}
	if err := s.store.UpdateProfile(ctx, uid, patch); err != nil {
		return core.UserProfile{}, s.opts.reportDenied(ctx, diag.UserPath(uid), diag.OpUpdate, uid, map[string]any{"totalSavings": total},
			fmt.Errorf("update total savings: %w", err))
	}
	profile.TotalSavings = total

	s.logger.InfoContext(ctx, "Piggy bank total adjusted",
		applog.FieldUserID, uid,
		applog.FieldOperation, applog.OpUpdate,
		applog.FieldAmount, total)
	return *profile, nil
}
