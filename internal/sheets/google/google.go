// Package google exports expenses to a Google Sheet with a service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendwise/internal/core"
	"spendwise/internal/log"
	ports "spendwise/internal/sheets"
)

var _ ports.ExpenseExporter = (*Client)(nil)

// Config selects the spreadsheet and how to authenticate against it.
type Config struct {
	SpreadsheetID string
	SheetName     string
	Location      *time.Location

	// ServiceAccountJSON wins over ServiceAccountFile.
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	logger        *log.Logger

	// sheetID is the numeric tab id needed by row deletes, resolved once.
	mu      sync.Mutex
	sheetID *int64
}

// New creates a Sheets client authenticated with the configured service
// account. Extra options are appended after the credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}

	base := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	if creds != nil {
		base = append(base, goption.WithCredentialsJSON(creds))
	}
	svc, err := gsheet.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return newClient(svc, cfg, logger), nil
}

func newClient(svc *gsheet.Service, cfg Config, logger *log.Logger) *Client {
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = "Expenses"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger.Info("Google Sheets exporter ready", "spreadsheet_id", cfg.SpreadsheetID, "sheet", name)
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     name,
		loc:           loc,
		logger:        logger,
	}
}

// credentials returns the service account key, or nil when none is
// configured and application default credentials apply.
func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		return []byte(cfg.ServiceAccountJSON), nil
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		b, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, nil
	}
}

// Append writes the expense's row unless a row with its id already exists.
func (c *Client) Append(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	row, err := c.findRow(ctx, e.ID)
	if err != nil {
		return "", err
	}
	if row >= 0 {
		ref := fmt.Sprintf("%s!A%d", c.sheetName, row+1)
		c.logger.DebugContext(ctx, "Row already exported", log.FieldExpenseID, e.ID, log.FieldSheetsRef, ref)
		return ref, nil
	}

	rng := fmt.Sprintf("%s!A:E", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{ports.Row(e, c.loc)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// Delete removes the row whose first column is expenseID.
func (c *Client) Delete(ctx context.Context, expenseID string) error {
	row, err := c.findRow(ctx, expenseID)
	if err != nil {
		return err
	}
	if row < 0 {
		return ports.ErrRowNotFound
	}

	sheetID, err := c.resolveSheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row),
					EndIndex:   int64(row + 1),
					// The first tab and the first row are both zero.
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in sheet %s: %w", row+1, c.sheetName, err)
	}
	return nil
}

// findRow returns the zero-based row index holding expenseID in column A,
// or -1.
func (c *Client) findRow(ctx context.Context, expenseID string) (int, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return -1, fmt.Errorf("read %s: %w", rng, err)
	}
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == expenseID {
			return i, nil
		}
	}
	return -1, nil
}

func (c *Client) resolveSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheetID != nil {
		return *c.sheetID, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			id := sh.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheetName)
}
