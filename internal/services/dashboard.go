package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"cofrinho/internal/core"
	applog "cofrinho/internal/log"
)

// MonthView is everything the month dashboard shows.
type MonthView struct {
	Year         int                `json:"year"`
	Month        int                `json:"month"`
	Profile      *core.UserProfile  `json:"profile"`
	Transactions []core.Transaction `json:"transactions"`
	Summary      core.Summary       `json:"summary"`
	AllSettled   bool               `json:"allSettled"`
}

// DashboardService folds month windows into summaries.
type DashboardService struct {
	profiles *ProfileService
	txs      *TransactionService
	opts     Options
	logger   *applog.Logger
}

func NewDashboardService(profiles *ProfileService, txs *TransactionService, opts Options) *DashboardService {
	opts = opts.normalize()
	return &DashboardService{
		profiles: profiles,
		txs:      txs,
		opts:     opts,
		logger:   opts.Logger.WithComponent(applog.ComponentDashboard),
	}
}

// Month loads the profile and the month window concurrently.
func (d *DashboardService) Month(ctx context.Context, uid string, year int, month time.Month) (MonthView, error) {
	if uid == "" {
		return MonthView{}, missingUID()
	}
	if err := ValidateMonth(year, month); err != nil {
		return MonthView{}, err
	}

	var (
		profile *core.UserProfile
		txs     []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := d.profiles.Get(gctx, uid)
		profile = p
		return err
	})
	g.Go(func() error {
		list, err := d.txs.ListMonth(gctx, uid, year, month)
		txs = list
		return err
	})
	if err := g.Wait(); err != nil {
		return MonthView{}, err
	}

	view := MonthView{
		Year:         year,
		Month:        int(month),
		Profile:      profile,
		Transactions: txs,
		Summary:      core.Summarize(txs),
		AllSettled:   core.AllSettled(txs),
	}
	d.logger.DebugContext(ctx, "Month dashboard computed",
		applog.FieldUserID, uid,
		applog.FieldYear, year,
		applog.FieldMonth, int(month),
		applog.FieldTxCount, len(txs))
	return view, nil
}

// Breakdown sums the transactions created in the month by category label.
func (d *DashboardService) Breakdown(ctx context.Context, uid string, year int, month time.Month) ([]core.CategoryAmount, error) {
	if err := ValidateMonth(year, month); err != nil {
		return nil, err
	}
	all, err := d.txs.ListAll(ctx, uid)
	if err != nil {
		return nil, err
	}
	inMonth := make([]core.Transaction, 0, len(all))
	for _, tx := range all {
		if core.InMonth(tx.Date, year, month, d.opts.Location) {
			inMonth = append(inMonth, tx)
		}
	}
	return core.BreakdownByCategory(inMonth), nil
}
