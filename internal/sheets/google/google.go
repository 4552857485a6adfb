package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gestionjm/internal/core"
	ports "gestionjm/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	DefaultExpensesSheet  = "Gastos"
	DefaultTransfersSheet = "Transferencias"
)

// Config names the spreadsheet and the base sheet names. The year is
// prefixed automatically ("2025 Gastos").
type Config struct {
	SpreadsheetID   string
	ExpensesSheet   string
	TransfersSheet  string
	CredentialsJSON string
	CredentialsFile string
}

// Client mirrors expenses and transfers into year-prefixed sheets. Each row
// starts with the record id, which is how rows are found again.
type Client struct {
	api           sheetsAPI
	expensesBase  string
	transfersBase string
	logger        *slog.Logger
	mu            sync.Mutex
	sheetIDs      map[string]int64
}

// Ensure interface conformance
var (
	_ ports.RecordMirror = (*Client)(nil)
	_ ports.YearReplacer = (*Client)(nil)
)

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Sheets mirror authenticated with a service account.
// Credentials come from cfg, falling back to GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	c := newClient(nil, cfg, opts...)

	svc, err := newSheetsService(ctx, cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	c.api = &serviceAPI{svc: svc, spreadsheetID: spreadsheetID}
	return c, nil
}

func newClient(api sheetsAPI, cfg Config, opts ...Option) *Client {
	c := &Client{
		api:           api,
		expensesBase:  strings.TrimSpace(cfg.ExpensesSheet),
		transfersBase: strings.TrimSpace(cfg.TransfersSheet),
		logger:        slog.Default(),
		sheetIDs:      map[string]int64{},
	}
	if c.expensesBase == "" {
		c.expensesBase = DefaultExpensesSheet
	}
	if c.transfersBase == "" {
		c.transfersBase = DefaultTransfersSheet
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config, logger *slog.Logger) (*gsheet.Service, error) {
	credentialsJSON := []byte(strings.TrimSpace(cfg.CredentialsJSON))
	credentialsFile := strings.TrimSpace(cfg.CredentialsFile)
	if len(credentialsJSON) == 0 && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case len(credentialsJSON) > 0:
		logger.InfoContext(ctx, "Using inline JSON credentials")
	case credentialsFile != "":
		logger.InfoContext(ctx, "Reading credentials from file", "path", credentialsFile)
		var err error
		credentialsJSON, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

func (c *Client) ExpensesSheet(year int) string {
	return yearPrefixedName(c.expensesBase, year)
}

func (c *Client) TransfersSheet(year int) string {
	return yearPrefixedName(c.transfersBase, year)
}

func (c *Client) UpsertExpense(ctx context.Context, e core.Expense) error {
	return c.upsert(ctx, c.ExpensesSheet(e.Date.Year()), expenseHeader, expenseRow(e))
}

func (c *Client) UpsertTransfer(ctx context.Context, t core.Transfer) error {
	return c.upsert(ctx, c.TransfersSheet(t.Date.Year()), transferHeader, transferRow(t))
}

func (c *Client) DeleteRecord(ctx context.Context, kind, id string, year int) error {
	var sheet string
	switch kind {
	case ports.KindExpense:
		sheet = c.ExpensesSheet(year)
	case ports.KindTransfer:
		sheet = c.TransfersSheet(year)
	default:
		return fmt.Errorf("unknown record kind %q", kind)
	}

	sheetID, ok, err := c.lookupSheet(ctx, sheet)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	row, err := c.findRow(ctx, sheet, id)
	if err != nil || row == 0 {
		return err
	}
	if err := c.api.DeleteRow(ctx, sheetID, row); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", row, sheet, err)
	}
	c.logger.InfoContext(ctx, "Deleted mirrored row", "sheet", sheet, "record_id", id, "row", row)
	return nil
}

// ReplaceYear clears both sheets of a year and rewrites them.
func (c *Client) ReplaceYear(ctx context.Context, year int, expenses []core.Expense, transfers []core.Transfer) error {
	erows := make([][]any, 0, len(expenses))
	for _, e := range expenses {
		erows = append(erows, expenseRow(e))
	}
	trows := make([][]any, 0, len(transfers))
	for _, t := range transfers {
		trows = append(trows, transferRow(t))
	}
	if err := c.replace(ctx, c.ExpensesSheet(year), expenseHeader, erows); err != nil {
		return err
	}
	return c.replace(ctx, c.TransfersSheet(year), transferHeader, trows)
}

func (c *Client) upsert(ctx context.Context, sheet string, header, row []any) error {
	if err := c.ensureSheet(ctx, sheet, header); err != nil {
		return err
	}
	n, err := c.findRow(ctx, sheet, fmt.Sprint(row[0]))
	if err != nil {
		return err
	}
	last := columnName(len(row))
	if n > 0 {
		rng := fmt.Sprintf("%s!A%d:%s%d", sheet, n, last, n)
		if err := c.api.Update(ctx, rng, [][]any{row}); err != nil {
			return fmt.Errorf("update %s: %w", rng, err)
		}
		return nil
	}
	rng := fmt.Sprintf("%s!A:%s", sheet, last)
	if err := c.api.Append(ctx, rng, [][]any{row}); err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}

func (c *Client) replace(ctx context.Context, sheet string, header []any, rows [][]any) error {
	if err := c.ensureSheet(ctx, sheet, header); err != nil {
		return err
	}
	last := columnName(len(header))
	if err := c.api.Clear(ctx, fmt.Sprintf("%s!A2:%s", sheet, last)); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil
	}
	rng := fmt.Sprintf("%s!A2:%s%d", sheet, last, len(rows)+1)
	if err := c.api.Update(ctx, rng, rows); err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	return nil
}

// findRow returns the 1-based row holding id in column A, or 0.
func (c *Client) findRow(ctx context.Context, sheet, id string) (int, error) {
	rng := fmt.Sprintf("%s!A:A", sheet)
	values, err := c.api.Get(ctx, rng)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	return rowIndex(values, id), nil
}

// ensureSheet creates the sheet with its header row on first use.
func (c *Client) ensureSheet(ctx context.Context, sheet string, header []any) error {
	if _, ok, err := c.lookupSheet(ctx, sheet); err != nil || ok {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sheetIDs[sheet]; ok {
		return nil
	}
	id, err := c.api.AddSheet(ctx, sheet)
	if err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	rng := fmt.Sprintf("%s!A1:%s1", sheet, columnName(len(header)))
	if err := c.api.Update(ctx, rng, [][]any{header}); err != nil {
		return fmt.Errorf("write header %s: %w", sheet, err)
	}
	c.sheetIDs[sheet] = id
	c.logger.InfoContext(ctx, "Created sheet", "sheet", sheet)
	return nil
}

func (c *Client) lookupSheet(ctx context.Context, sheet string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.sheetIDs[sheet]; ok {
		return id, true, nil
	}
	ids, err := c.api.SheetIDs(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("list sheets: %w", err)
	}
	for title, id := range ids {
		c.sheetIDs[title] = id
	}
	id, ok := ids[sheet]
	return id, ok, nil
}

// sheetsAPI is the slice of the Sheets API the mirror uses.
type sheetsAPI interface {
	SheetIDs(ctx context.Context) (map[string]int64, error)
	AddSheet(ctx context.Context, title string) (int64, error)
	Get(ctx context.Context, rng string) ([][]any, error)
	Update(ctx context.Context, rng string, rows [][]any) error
	Append(ctx context.Context, rng string, rows [][]any) error
	Clear(ctx context.Context, rng string) error
	// DeleteRow removes a 1-based row.
	DeleteRow(ctx context.Context, sheetID int64, row int) error
}

type serviceAPI struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *serviceAPI) SheetIDs(ctx context.Context) (map[string]int64, error) {
	resp, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			out[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	return out, nil
}

func (s *serviceAPI) AddSheet(ctx context.Context, title string) (int64, error) {
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, errors.New("empty add sheet reply")
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (s *serviceAPI) Get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceAPI) Update(ctx context.Context, rng string, rows [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (s *serviceAPI) Append(ctx context.Context, rng string, rows [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

func (s *serviceAPI) Clear(ctx context.Context, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s *serviceAPI) DeleteRow(ctx context.Context, sheetID int64, row int) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row - 1),
			EndIndex:   int64(row),
		}},
	}}}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	return err
}
