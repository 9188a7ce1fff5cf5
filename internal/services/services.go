// Package services provides business logic and orchestration services.
package services

import (
	"context"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
)

// Options carries what every service shares.
type Options struct {
	// Now is the clock; time.Now when nil.
	Now func() time.Time
	// Location decides calendar months; UTC when nil.
	Location *time.Location
	// Reporter receives access-denied diagnostics; dropped when nil.
	Reporter diag.Reporter
	Logger   *applog.Logger
}

func (o Options) normalize() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Reporter == nil {
		o.Reporter = diag.Nop
	}
	if o.Logger == nil {
		o.Logger = applog.Discard()
	}
	return o
}

// reportDenied sends a diagnostic when err is an access-denied failure and
// returns err unchanged.
func (o Options) reportDenied(ctx context.Context, path, op, uid string, data any, err error) error {
	if err == nil || !diag.IsAccessDenied(err) {
		return err
	}
	if pe, ok := err.(*diag.PermissionError); ok {
		o.Reporter.Report(ctx, pe)
		return err
	}
	o.Reporter.Report(ctx, diag.NewPermissionError(path, op, uid, data, err))
	return err
}

func missingUID() error {
	return core.NewValidationError("uid", core.ErrMissingUID.Error())
}
