package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"cofrinho/internal/core"
	applog "cofrinho/internal/log"
	ports "cofrinho/internal/sheets"
)

// Config selects the spreadsheet and the credentials used to reach it.
type Config struct {
	SpreadsheetID string
	// SheetName is the base tab name; rows land in "<year> <SheetName>"
	// keyed by the due date year.
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	Location        *time.Location

	// Endpoint overrides the API base URL and disables authentication.
	Endpoint string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	loc           *time.Location
	logger        *applog.Logger
}

var _ ports.LedgerWriter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Client, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Lancamentos"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		loc:           loc,
		logger:        logger,
	}, nil
}

// newSheetsService initializes a Sheets Service from inline JSON or a key file,
// falling back to GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, cfg Config, logger *applog.Logger) (*gsheet.Service, error) {
	if cfg.Endpoint != "" {
		return gsheet.NewService(ctx,
			goption.WithEndpoint(cfg.Endpoint),
			goption.WithoutAuthentication())
	}

	serviceAccountJSON := strings.TrimSpace(cfg.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(cfg.CredentialsFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		logger.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendTransactions appends one row per transaction to the tab of its due
// date year. The returned reference lists every updated range.
func (c *Client) AppendTransactions(ctx context.Context, txs []core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(txs) == 0 {
		return "", nil
	}

	byYear := make(map[int][][]any)
	for _, tx := range txs {
		year := tx.DueDate.In(c.loc).Year()
		byYear[year] = append(byYear[year], ports.LedgerRow(tx, c.loc))
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	refs := make([]string, 0, len(years))
	for _, year := range years {
		sheet := yearPrefixedName(c.sheetBase, year)
		rng := fmt.Sprintf("%s!A:J", sheet)
		vr := &gsheet.ValueRange{Values: byYear[year]}

		resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return strings.Join(refs, ","), fmt.Errorf("append to sheet %s: %w", sheet, err)
		}
		ref := rng
		if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
			ref = resp.Updates.UpdatedRange
		}
		refs = append(refs, ref)

		c.logger.InfoContext(ctx, "Appended ledger rows",
			applog.FieldSpreadsheet, c.spreadsheetID,
			"sheet", sheet,
			applog.FieldTxCount, len(byYear[year]))
	}
	return strings.Join(refs, ","), nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
