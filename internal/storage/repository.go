package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gestionjm/internal/core"
	"gestionjm/internal/records"

	_ "modernc.org/sqlite"
)

const timestampLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ records.Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	if _, err := r.queries.GetExpense(ctx, e.ID); err == nil {
		return fmt.Errorf("expense %s: %w", e.ID, records.ErrDuplicate)
	}
	if err := r.queries.CreateExpense(ctx, expenseRow(e)); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"amount", e.Amount.String(),
		"date", e.Date.String())
	return nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	n, err := r.queries.UpdateExpense(ctx, expenseRow(e))
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", e.ID, records.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	n, err := r.queries.DeleteExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", id, records.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, records.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return row.toCore()
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.queries.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expensesToCore(rows)
}

func (r *SQLiteRepository) ListExpensesByMonth(ctx context.Context, year, month int) ([]core.Expense, error) {
	rows, err := r.queries.ListExpensesByMonth(ctx, monthKey(year, month))
	if err != nil {
		return nil, fmt.Errorf("get expenses by month: %w", err)
	}
	return expensesToCore(rows)
}

func (r *SQLiteRepository) CreateTransfer(ctx context.Context, t core.Transfer) error {
	if _, err := r.queries.GetTransfer(ctx, t.ID); err == nil {
		return fmt.Errorf("transfer %s: %w", t.ID, records.ErrDuplicate)
	}
	if err := r.queries.CreateTransfer(ctx, transferRow(t)); err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	slog.DebugContext(ctx, "Transfer saved to SQLite", "id", t.ID, "from", t.From, "to", t.To)
	return nil
}

func (r *SQLiteRepository) DeleteTransfer(ctx context.Context, id string) error {
	n, err := r.queries.DeleteTransfer(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transfer %s: %w", id, records.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) GetTransfer(ctx context.Context, id string) (core.Transfer, error) {
	row, err := r.queries.GetTransfer(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transfer{}, fmt.Errorf("transfer %s: %w", id, records.ErrNotFound)
	}
	if err != nil {
		return core.Transfer{}, fmt.Errorf("get transfer by id: %w", err)
	}
	return row.toCore()
}

func (r *SQLiteRepository) ListTransfers(ctx context.Context) ([]core.Transfer, error) {
	rows, err := r.queries.ListTransfers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return transfersToCore(rows)
}

func (r *SQLiteRepository) ListTransfersByMonth(ctx context.Context, year, month int) ([]core.Transfer, error) {
	rows, err := r.queries.ListTransfersByMonth(ctx, monthKey(year, month))
	if err != nil {
		return nil, fmt.Errorf("get transfers by month: %w", err)
	}
	return transfersToCore(rows)
}

func (r *SQLiteRepository) GetPinHash(ctx context.Context, user core.UserID) (string, error) {
	hash, err := r.queries.GetPinHash(ctx, string(user))
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("pin for %s: %w", user, records.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get pin hash: %w", err)
	}
	return hash, nil
}

func (r *SQLiteRepository) SetPinHash(ctx context.Context, user core.UserID, hash string) error {
	if err := r.queries.UpsertPinHash(ctx, string(user), hash, time.Now().UTC().Format(timestampLayout)); err != nil {
		return fmt.Errorf("set pin hash: %w", err)
	}
	return nil
}

// ReplaceAll swaps every expense and transfer inside one transaction.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, snap core.Snapshot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := r.queries.WithTx(tx)
	if err = q.DeleteAllExpenses(ctx); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}
	if err = q.DeleteAllTransfers(ctx); err != nil {
		return fmt.Errorf("clear transfers: %w", err)
	}
	for _, e := range snap.Expenses {
		if err = q.CreateExpense(ctx, expenseRow(e)); err != nil {
			return fmt.Errorf("import expense %s: %w", e.ID, err)
		}
	}
	for _, t := range snap.Transfers {
		if err = q.CreateTransfer(ctx, transferRow(t)); err != nil {
			return fmt.Errorf("import transfer %s: %w", t.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot imported into SQLite",
		"expenses", len(snap.Expenses),
		"transfers", len(snap.Transfers))
	return nil
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timestampLayout, s)
}

func expenseRow(e core.Expense) Expense {
	category := string(e.Category)
	if category == "" {
		category = string(core.CategoryOther)
	}
	return Expense{
		ID:                 e.ID,
		Amount:             e.Amount,
		Description:        e.Description,
		Category:           category,
		PaidBy:             string(e.PaidBy),
		ImputeTo:           e.ImputeTo.String(),
		NeedsReimbursement: e.NeedsReimbursement,
		Date:               e.Date.String(),
		CreatedBy:          string(e.CreatedBy),
		CreatedAt:          formatTimestamp(e.CreatedAt),
		UpdatedAt:          formatTimestamp(e.UpdatedAt),
	}
}

func (row Expense) toCore() (core.Expense, error) {
	impute, err := core.ParseImpute(row.ImputeTo)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", row.ID, err)
	}
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", row.ID, err)
	}
	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s created_at: %w", row.ID, err)
	}
	updatedAt, err := parseTimestamp(row.UpdatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s updated_at: %w", row.ID, err)
	}
	return core.Expense{
		ID:                 row.ID,
		Amount:             row.Amount,
		Description:        row.Description,
		Category:           core.Category(row.Category),
		PaidBy:             core.UserID(row.PaidBy),
		ImputeTo:           impute,
		NeedsReimbursement: row.NeedsReimbursement,
		Date:               date,
		CreatedBy:          core.UserID(row.CreatedBy),
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}, nil
}

func expensesToCore(rows []Expense) ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := row.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func transferRow(t core.Transfer) Transfer {
	return Transfer{
		ID:        t.ID,
		FromUser:  string(t.From),
		ToUser:    string(t.To),
		Amount:    t.Amount,
		Date:      t.Date.String(),
		CreatedBy: string(t.CreatedBy),
		CreatedAt: formatTimestamp(t.CreatedAt),
	}
}

func (row Transfer) toCore() (core.Transfer, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("transfer %s: %w", row.ID, err)
	}
	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("transfer %s created_at: %w", row.ID, err)
	}
	return core.Transfer{
		ID:        row.ID,
		From:      core.UserID(row.FromUser),
		To:        core.UserID(row.ToUser),
		Amount:    row.Amount,
		Date:      date,
		CreatedBy: core.UserID(row.CreatedBy),
		CreatedAt: createdAt,
	}, nil
}

func transfersToCore(rows []Transfer) ([]core.Transfer, error) {
	out := make([]core.Transfer, 0, len(rows))
	for _, row := range rows {
		t, err := row.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
