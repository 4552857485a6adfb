// Package records declares the record store the ledger runs on.
package records

import (
	"context"
	"errors"

	"gestionjm/internal/core"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Ports for storage adapters.
type (
	ExpenseRepository interface {
		CreateExpense(ctx context.Context, e core.Expense) error
		// UpdateExpense replaces a stored expense. ErrNotFound if the id is unknown.
		UpdateExpense(ctx context.Context, e core.Expense) error
		DeleteExpense(ctx context.Context, id string) error
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		ListExpenses(ctx context.Context) ([]core.Expense, error)
		// ListExpensesByMonth returns the expenses dated in year and month (1-12).
		ListExpensesByMonth(ctx context.Context, year, month int) ([]core.Expense, error)
	}

	TransferRepository interface {
		CreateTransfer(ctx context.Context, t core.Transfer) error
		DeleteTransfer(ctx context.Context, id string) error
		GetTransfer(ctx context.Context, id string) (core.Transfer, error)
		ListTransfers(ctx context.Context) ([]core.Transfer, error)
		ListTransfersByMonth(ctx context.Context, year, month int) ([]core.Transfer, error)
	}

	// PinRepository stores one PIN hash per user. GetPinHash returns
	// ErrNotFound when the user has none yet.
	PinRepository interface {
		GetPinHash(ctx context.Context, user core.UserID) (string, error)
		SetPinHash(ctx context.Context, user core.UserID, hash string) error
	}

	Repository interface {
		ExpenseRepository
		TransferRepository
		PinRepository
		// ReplaceAll swaps the stored expenses and transfers for the snapshot.
		ReplaceAll(ctx context.Context, s core.Snapshot) error
		Ping(ctx context.Context) error
		Close() error
	}
)
