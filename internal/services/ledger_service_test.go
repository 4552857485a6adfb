package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestionjm/internal/amqp"
	"gestionjm/internal/core"
	"gestionjm/internal/log"
	"gestionjm/internal/records"
	"gestionjm/internal/records/memory"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.RecordSyncMessage
	err  error
}

func (p *fakePublisher) PublishRecordSync(_ context.Context, msg *amqp.RecordSyncMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *fakePublisher) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		out = append(out, fmt.Sprintf("%s:%s:%s", m.Kind, m.Op, m.ID))
	}
	return out
}

var (
	mariano, _  = core.LookupUser(core.Mariano)
	gabriela, _ = core.LookupUser(core.Gabriela)
	juan, _     = core.LookupUser(core.JuanMartin)
)

func newTestService(t *testing.T) (*LedgerService, *memory.Store, *fakePublisher) {
	t.Helper()
	store := memory.New()
	pub := &fakePublisher{}
	clock := time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)
	seq := 0
	svc := NewLedgerService(store,
		WithPublisher(pub),
		WithLogger(log.New(log.Config{Output: &bytes.Buffer{}})),
		WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}))
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return svc, store, pub
}

func expenseInput(amount string, paidBy core.UserID, to core.Impute, date core.Date) ExpenseInput {
	return ExpenseInput{
		Amount:      decimal.RequireFromString(amount),
		Description: "Compra",
		Category:    core.CategoryDailyLife,
		PaidBy:      paidBy,
		ImputeTo:    to,
		Date:        date,
	}
}

func TestLedgerService_AddExpense(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)

	in := expenseInput("1000", core.Mariano, core.ImputeBoth, core.NewDate(2025, 3, 10))
	in.Description = "  Supermercado  "
	in.Category = ""
	e, err := svc.AddExpense(ctx, juan, in)
	require.NoError(t, err)

	assert.Equal(t, "id-1", e.ID)
	assert.Equal(t, core.JuanMartin, e.CreatedBy)
	assert.Equal(t, "Supermercado", e.Description)
	assert.Equal(t, core.CategoryOther, e.Category)
	assert.False(t, e.CreatedAt.IsZero())

	stored, err := store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Description, stored.Description)
	assert.Equal(t, []string{"expense:upsert:id-1"}, pub.ops())
}

func TestLedgerService_AddExpenseValidation(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)

	cases := map[string]ExpenseInput{
		"zero amount":    expenseInput("0", core.Mariano, core.ImputeBoth, core.NewDate(2025, 3, 1)),
		"negative":       expenseInput("-3", core.Mariano, core.ImputeBoth, core.NewDate(2025, 3, 1)),
		"unknown payer":  expenseInput("3", "pedro", core.ImputeBoth, core.NewDate(2025, 3, 1)),
		"bad impute":     expenseInput("3", core.Mariano, core.Impute(5), core.NewDate(2025, 3, 1)),
		"missing date":   expenseInput("3", core.Mariano, core.ImputeBoth, core.Date{}),
		"bad category":   func() ExpenseInput { in := expenseInput("3", core.Mariano, core.ImputeBoth, core.NewDate(2025, 3, 1)); in.Category = "viajes"; return in }(),
		"no description": func() ExpenseInput { in := expenseInput("3", core.Mariano, core.ImputeBoth, core.NewDate(2025, 3, 1)); in.Description = " "; return in }(),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.AddExpense(ctx, mariano, in)
			assert.ErrorIs(t, err, core.ErrInvalidRecord)
		})
	}

	_, err := svc.AddExpense(ctx, core.User{}, expenseInput("3", core.Mariano, core.ImputeBoth, core.NewDate(2025, 3, 1)))
	assert.ErrorIs(t, err, core.ErrForbidden)

	all, _ := store.ListExpenses(ctx)
	assert.Empty(t, all)
	assert.Empty(t, pub.ops())
}

func TestLedgerService_UpdateExpensePermissions(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t)

	own, err := svc.AddExpense(ctx, juan, expenseInput("100", core.JuanMartin, core.ImputeBoth, core.NewDate(2025, 3, 1)))
	require.NoError(t, err)
	other, err := svc.AddExpense(ctx, gabriela, expenseInput("200", core.Gabriela, core.ImputeBoth, core.NewDate(2025, 3, 2)))
	require.NoError(t, err)

	edit := expenseInput("150", core.JuanMartin, core.ImputeMariano, core.NewDate(2025, 3, 1))
	edit.NeedsReimbursement = true
	updated, err := svc.UpdateExpense(ctx, juan, own.ID, edit)
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, core.JuanMartin, updated.CreatedBy)
	assert.Equal(t, own.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(own.UpdatedAt))

	_, err = svc.UpdateExpense(ctx, juan, other.ID, edit)
	assert.ErrorIs(t, err, core.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteExpense(ctx, juan, other.ID), core.ErrForbidden)

	_, err = svc.UpdateExpense(ctx, mariano, own.ID, edit)
	assert.NoError(t, err, "parents may edit any record")

	_, err = svc.UpdateExpense(ctx, mariano, "missing", edit)
	assert.ErrorIs(t, err, records.ErrNotFound)

	require.NoError(t, svc.DeleteExpense(ctx, gabriela, own.ID))
	_, err = svc.GetExpense(ctx, own.ID)
	assert.ErrorIs(t, err, records.ErrNotFound)

	ops := pub.ops()
	assert.Equal(t, "expense:delete:"+own.ID, ops[len(ops)-1])
}

func TestLedgerService_UpdateAcrossYearsRemovesOldRow(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t)

	e, err := svc.AddExpense(ctx, mariano, expenseInput("100", core.Mariano, core.ImputeBoth, core.NewDate(2024, 12, 31)))
	require.NoError(t, err)
	_, err = svc.UpdateExpense(ctx, mariano, e.ID, expenseInput("100", core.Mariano, core.ImputeBoth, core.NewDate(2025, 1, 1)))
	require.NoError(t, err)

	pub.mu.Lock()
	last := pub.msgs[len(pub.msgs)-1]
	pub.mu.Unlock()
	assert.Equal(t, amqp.OpDelete, last.Op)
	assert.Equal(t, 2024, last.Date.Year())
}

func TestLedgerService_Transfers(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t)

	in := TransferInput{From: core.Mariano, To: core.JuanMartin, Amount: decimal.NewFromInt(300), Date: core.NewDate(2025, 3, 5)}

	_, err := svc.AddTransfer(ctx, juan, in)
	assert.ErrorIs(t, err, core.ErrForbidden)

	bad := in
	bad.From, bad.To = core.JuanMartin, core.Mariano
	_, err = svc.AddTransfer(ctx, mariano, bad)
	assert.ErrorIs(t, err, core.ErrTransferNotAllowed)
	assert.ErrorIs(t, err, core.ErrInvalidRecord)

	self := in
	self.To = core.Mariano
	_, err = svc.AddTransfer(ctx, mariano, self)
	assert.ErrorIs(t, err, core.ErrTransferNotAllowed)

	tr, err := svc.AddTransfer(ctx, gabriela, in)
	require.NoError(t, err)
	assert.Equal(t, core.Gabriela, tr.CreatedBy)

	march, err := svc.ListTransfers(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Len(t, march, 1)
	all, err := svc.ListTransfers(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, svc.DeleteTransfer(ctx, juan, tr.ID), core.ErrForbidden)
	require.NoError(t, svc.DeleteTransfer(ctx, mariano, tr.ID))
	assert.ErrorIs(t, svc.DeleteTransfer(ctx, mariano, tr.ID), records.ErrNotFound)

	assert.Equal(t, []string{"transfer:upsert:" + tr.ID, "transfer:delete:" + tr.ID}, pub.ops())
}

func TestLedgerService_MonthlyBalances(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	reimb := expenseInput("600", core.JuanMartin, core.ImputeBoth, core.NewDate(2025, 3, 8))
	reimb.NeedsReimbursement = true
	for _, in := range []ExpenseInput{
		expenseInput("1000", core.Mariano, core.ImputeBoth, core.NewDate(2025, 3, 1)),
		reimb,
		expenseInput("999", core.Gabriela, core.ImputeBoth, core.NewDate(2025, 2, 27)),
	} {
		_, err := svc.AddExpense(ctx, mariano, in)
		require.NoError(t, err)
	}
	_, err := svc.AddTransfer(ctx, mariano, TransferInput{
		From: core.Mariano, To: core.JuanMartin, Amount: decimal.NewFromInt(300), Date: core.NewDate(2025, 3, 9),
	})
	require.NoError(t, err)

	r, err := svc.MonthlyBalances(ctx, 2025, 3)
	require.NoError(t, err)
	assert.True(t, r.TotalExpenses.Equal(decimal.NewFromInt(1600)))
	assert.True(t, r.Reimbursements.MarianoToJuan.IsZero())
	assert.True(t, r.Reimbursements.GabrielaToJuan.Equal(decimal.NewFromInt(300)))
	require.NotNil(t, r.Debt)
	assert.Equal(t, core.Gabriela, r.Debt.From)
	assert.True(t, r.Debt.Amount.Equal(decimal.NewFromInt(500)))

	_, err = svc.MonthlyBalances(ctx, 2025, 13)
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
}

func TestLedgerService_Views(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	dates := []core.Date{core.NewDate(2025, 3, 3), core.NewDate(2025, 3, 25), core.NewDate(2025, 1, 10)}
	for i, d := range dates {
		in := expenseInput("10", core.Mariano, core.ImputeBoth, d)
		in.Description = fmt.Sprintf("Farmacia %d", i)
		in.Category = core.CategoryHealth
		_, err := svc.AddExpense(ctx, mariano, in)
		require.NoError(t, err)
	}

	list, err := svc.ListExpenses(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 25, list[0].Date.Day())

	cats, err := svc.ExpensesByCategory(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, 2, cats[0].Count)

	recent, err := svc.RecentExpenses(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Farmacia 2", recent[0].Description, "recent is by creation time, not date")

	groups, err := svc.SearchExpenses(ctx, core.ExpenseFilter{Query: "farmacia"})
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	_, err = svc.SearchExpenses(ctx, core.ExpenseFilter{Category: "nope"})
	assert.ErrorIs(t, err, core.ErrInvalidCategory)
}

func TestLedgerService_ExportImport(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)

	_, err := svc.AddExpense(ctx, mariano, expenseInput("10", core.Mariano, core.ImputeBoth, core.NewDate(2025, 3, 3)))
	require.NoError(t, err)

	snap, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Expenses, 1)
	assert.NotNil(t, snap.Transfers)

	next := core.Snapshot{
		Expenses: []core.Expense{{
			Amount: decimal.NewFromInt(50), Description: "Luz", PaidBy: core.Gabriela,
			Date: core.NewDate(2025, 4, 1),
		}},
		Transfers: []core.Transfer{{
			ID: "t-keep", From: core.Gabriela, To: core.Mariano, Amount: decimal.NewFromInt(5), Date: core.NewDate(2025, 4, 2),
		}},
	}

	assert.ErrorIs(t, svc.Import(ctx, juan, next), core.ErrForbidden)

	require.NoError(t, svc.Import(ctx, gabriela, next))
	all, _ := store.ListExpenses(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "Luz", all[0].Description)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, core.Gabriela, all[0].CreatedBy)
	assert.Equal(t, core.CategoryOther, all[0].Category)
	assert.Contains(t, pub.ops(), "transfer:upsert:t-keep")

	badRoute := core.Snapshot{Transfers: []core.Transfer{{
		From: core.JuanMartin, To: core.Mariano, Amount: decimal.NewFromInt(5), Date: core.NewDate(2025, 4, 2),
	}}}
	assert.ErrorIs(t, svc.Import(ctx, mariano, badRoute), core.ErrTransferNotAllowed)

	dup := core.Snapshot{Expenses: []core.Expense{next.Expenses[0], next.Expenses[0]}}
	dup.Expenses[0].ID, dup.Expenses[1].ID = "x", "x"
	assert.ErrorIs(t, svc.Import(ctx, mariano, dup), records.ErrDuplicate)

	all, _ = store.ListExpenses(ctx)
	assert.Len(t, all, 1, "rejected imports must not touch the store")
}

func TestLedgerService_ImportDeletesDroppedRecordsFromMirror(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t)

	gone, err := svc.AddExpense(ctx, mariano, expenseInput("10", core.Mariano, core.ImputeBoth, core.NewDate(2024, 12, 3)))
	require.NoError(t, err)
	moved, err := svc.AddExpense(ctx, mariano, expenseInput("20", core.Mariano, core.ImputeBoth, core.NewDate(2024, 12, 5)))
	require.NoError(t, err)
	same, err := svc.AddExpense(ctx, mariano, expenseInput("30", core.Mariano, core.ImputeBoth, core.NewDate(2025, 1, 5)))
	require.NoError(t, err)
	tr, err := svc.AddTransfer(ctx, gabriela, TransferInput{
		From: core.Gabriela, To: core.Mariano, Amount: decimal.NewFromInt(5), Date: core.NewDate(2024, 11, 1),
	})
	require.NoError(t, err)

	snap, err := svc.Export(ctx)
	require.NoError(t, err)
	var next core.Snapshot
	for _, e := range snap.Expenses {
		switch e.ID {
		case moved.ID:
			e.Date = core.NewDate(2025, 2, 1)
			next.Expenses = append(next.Expenses, e)
		case same.ID:
			e.Description = "Otra"
			next.Expenses = append(next.Expenses, e)
		}
	}

	pub.msgs = nil
	require.NoError(t, svc.Import(ctx, mariano, next))

	ops := pub.ops()
	assert.Contains(t, ops, "expense:delete:"+gone.ID)
	assert.Contains(t, ops, "expense:delete:"+moved.ID, "year changes leave a row in the old year")
	assert.Contains(t, ops, "transfer:delete:"+tr.ID)
	assert.NotContains(t, ops, "expense:delete:"+same.ID)
	assert.Contains(t, ops, "expense:upsert:"+moved.ID)
	assert.Contains(t, ops, "expense:upsert:"+same.ID)
}

func TestLedgerService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)
	pub.err = errors.New("broker down")

	e, err := svc.AddExpense(ctx, mariano, expenseInput("10", core.Mariano, core.ImputeBoth, core.NewDate(2025, 3, 3)))
	require.NoError(t, err)
	_, err = store.GetExpense(ctx, e.ID)
	assert.NoError(t, err)
}

func TestLedgerService_Close(t *testing.T) {
	svc := NewLedgerService(memory.New())
	assert.NoError(t, svc.Close())
}
