package sheets

import (
	"context"

	"gestionjm/internal/core"
)

// Record kinds a mirror keeps one sheet per year for.
const (
	KindExpense  = "expense"
	KindTransfer = "transfer"
)

// Ports for outbound adapters.
type (
	// RecordMirror keeps a spreadsheet copy of the ledger. Rows are keyed by
	// record id, so every call is idempotent.
	RecordMirror interface {
		UpsertExpense(ctx context.Context, e core.Expense) error
		UpsertTransfer(ctx context.Context, t core.Transfer) error
		// DeleteRecord removes the row of a record from the sheet of the
		// given year. A missing row is not an error.
		DeleteRecord(ctx context.Context, kind, id string, year int) error
	}

	// YearReplacer rewrites a whole year sheet pair in one go, for full resyncs.
	YearReplacer interface {
		ReplaceYear(ctx context.Context, year int, expenses []core.Expense, transfers []core.Transfer) error
	}
)
