package storage

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Expense is the expenses table row.
type Expense struct {
	ID                 string
	Amount             decimal.Decimal
	Description        string
	Category           string
	PaidBy             string
	ImputeTo           string
	NeedsReimbursement bool
	Date               string
	CreatedBy          string
	CreatedAt          string
	UpdatedAt          string
}

// Transfer is the transfers table row.
type Transfer struct {
	ID        string
	FromUser  string
	ToUser    string
	Amount    decimal.Decimal
	Date      string
	CreatedBy string
	CreatedAt string
}

const expenseColumns = `id, amount, description, category, paid_by, impute_to, needs_reimbursement, date, created_by, created_at, updated_at`

const createExpense = `INSERT INTO expenses (` + expenseColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateExpense(ctx context.Context, e Expense) error {
	_, err := q.db.ExecContext(ctx, createExpense,
		e.ID, e.Amount, e.Description, e.Category, e.PaidBy, e.ImputeTo,
		e.NeedsReimbursement, e.Date, e.CreatedBy, e.CreatedAt, e.UpdatedAt)
	return err
}

const updateExpense = `UPDATE expenses
SET amount = ?, description = ?, category = ?, paid_by = ?, impute_to = ?,
    needs_reimbursement = ?, date = ?, created_by = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) UpdateExpense(ctx context.Context, e Expense) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExpense,
		e.Amount, e.Description, e.Category, e.PaidBy, e.ImputeTo,
		e.NeedsReimbursement, e.Date, e.CreatedBy, e.UpdatedAt, e.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

func (q *Queries) GetExpense(ctx context.Context, id string) (Expense, error) {
	row := q.db.QueryRowContext(ctx, getExpense, id)
	var e Expense
	err := row.Scan(&e.ID, &e.Amount, &e.Description, &e.Category, &e.PaidBy, &e.ImputeTo,
		&e.NeedsReimbursement, &e.Date, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

const listExpenses = `SELECT ` + expenseColumns + ` FROM expenses ORDER BY date, created_at`

func (q *Queries) ListExpenses(ctx context.Context) ([]Expense, error) {
	return q.queryExpenses(ctx, listExpenses)
}

// Dates are stored as YYYY-MM-DD, so the month key is the first 7 characters.
const listExpensesByMonth = `SELECT ` + expenseColumns + ` FROM expenses
WHERE substr(date, 1, 7) = ?
ORDER BY date, created_at`

func (q *Queries) ListExpensesByMonth(ctx context.Context, monthKey string) ([]Expense, error) {
	return q.queryExpenses(ctx, listExpensesByMonth, monthKey)
}

func (q *Queries) queryExpenses(ctx context.Context, query string, args ...interface{}) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.Amount, &e.Description, &e.Category, &e.PaidBy, &e.ImputeTo,
			&e.NeedsReimbursement, &e.Date, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const transferColumns = `id, from_user, to_user, amount, date, created_by, created_at`

const createTransfer = `INSERT INTO transfers (` + transferColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransfer(ctx context.Context, t Transfer) error {
	_, err := q.db.ExecContext(ctx, createTransfer,
		t.ID, t.FromUser, t.ToUser, t.Amount, t.Date, t.CreatedBy, t.CreatedAt)
	return err
}

const deleteTransfer = `DELETE FROM transfers WHERE id = ?`

func (q *Queries) DeleteTransfer(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransfer, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getTransfer = `SELECT ` + transferColumns + ` FROM transfers WHERE id = ?`

func (q *Queries) GetTransfer(ctx context.Context, id string) (Transfer, error) {
	row := q.db.QueryRowContext(ctx, getTransfer, id)
	var t Transfer
	err := row.Scan(&t.ID, &t.FromUser, &t.ToUser, &t.Amount, &t.Date, &t.CreatedBy, &t.CreatedAt)
	return t, err
}

const listTransfers = `SELECT ` + transferColumns + ` FROM transfers ORDER BY date, created_at`

func (q *Queries) ListTransfers(ctx context.Context) ([]Transfer, error) {
	return q.queryTransfers(ctx, listTransfers)
}

const listTransfersByMonth = `SELECT ` + transferColumns + ` FROM transfers
WHERE substr(date, 1, 7) = ?
ORDER BY date, created_at`

func (q *Queries) ListTransfersByMonth(ctx context.Context, monthKey string) ([]Transfer, error) {
	return q.queryTransfers(ctx, listTransfersByMonth, monthKey)
}

func (q *Queries) queryTransfers(ctx context.Context, query string, args ...interface{}) ([]Transfer, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.FromUser, &t.ToUser, &t.Amount, &t.Date, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteAllExpenses = `DELETE FROM expenses`

func (q *Queries) DeleteAllExpenses(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllExpenses)
	return err
}

const deleteAllTransfers = `DELETE FROM transfers`

func (q *Queries) DeleteAllTransfers(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllTransfers)
	return err
}

const getPinHash = `SELECT pin_hash FROM user_pins WHERE user_id = ?`

func (q *Queries) GetPinHash(ctx context.Context, userID string) (string, error) {
	row := q.db.QueryRowContext(ctx, getPinHash, userID)
	var hash string
	err := row.Scan(&hash)
	return hash, err
}

const upsertPinHash = `INSERT INTO user_pins (user_id, pin_hash, updated_at) VALUES (?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET pin_hash = excluded.pin_hash, updated_at = excluded.updated_at`

func (q *Queries) UpsertPinHash(ctx context.Context, userID, hash, updatedAt string) error {
	_, err := q.db.ExecContext(ctx, upsertPinHash, userID, hash, updatedAt)
	return err
}
