package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"gestionjm/internal/amqp"
	"gestionjm/internal/core"
	"gestionjm/internal/log"
	"gestionjm/internal/records"
)

// Publisher announces record changes to the sync worker.
type Publisher interface {
	PublishRecordSync(ctx context.Context, msg *amqp.RecordSyncMessage) error
}

// ExpenseInput is what a caller may set on an expense. Identity and
// timestamps are filled in by the service.
type ExpenseInput struct {
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description"`
	Category           core.Category   `json:"category"`
	PaidBy             core.UserID     `json:"paidBy"`
	ImputeTo           core.Impute     `json:"imputeTo"`
	NeedsReimbursement bool            `json:"needsReimbursement"`
	Date               core.Date       `json:"date"`
}

type TransferInput struct {
	From   core.UserID     `json:"from"`
	To     core.UserID     `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Date   core.Date       `json:"date"`
}

// LedgerService orchestrates record writes, permissions and balance queries
// on top of a record repository. Writes are announced to the sync worker
// when a publisher is configured.
type LedgerService struct {
	repo      records.Repository
	publisher Publisher
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time
	newID     func() string
}

type Option func(*LedgerService)

func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *LedgerService) { s.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(repo records.Repository, opts ...Option) *LedgerService {
	s := &LedgerService{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger)
	s.events = log.NewStructuredLogger(s.logger)
	return s
}

// Repository exposes the underlying store, for the sync worker and health checks.
func (s *LedgerService) Repository() records.Repository {
	return s.repo
}

func (in ExpenseInput) apply(e *core.Expense) {
	e.Amount = in.Amount
	e.Description = strings.TrimSpace(in.Description)
	e.Category = in.Category
	if e.Category == "" {
		e.Category = core.CategoryOther
	}
	e.PaidBy = in.PaidBy
	e.ImputeTo = in.ImputeTo
	e.NeedsReimbursement = in.NeedsReimbursement
	e.Date = in.Date
}

func (s *LedgerService) AddExpense(ctx context.Context, actor core.User, in ExpenseInput) (core.Expense, error) {
	if actor.ID == "" {
		return core.Expense{}, core.ErrForbidden
	}
	now := s.now().UTC()
	e := core.Expense{
		ID:        s.newID(),
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(&e)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	if err := s.repo.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.events.LogRecordWritten(ctx, log.OpCreate, string(amqp.KindExpense), e.ID, e.Amount.String(), string(actor.ID))
	s.publish(ctx, amqp.KindExpense, amqp.OpUpsert, e.ID, e.Date)
	return e, nil
}

// UpdateExpense replaces the editable fields. Only the author or a user with
// CanEditAll may edit; authorship and creation time never change.
func (s *LedgerService) UpdateExpense(ctx context.Context, actor core.User, id string, in ExpenseInput) (core.Expense, error) {
	current, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if !core.CanEditExpense(actor, current) {
		return core.Expense{}, fmt.Errorf("%w: %s cannot edit expense %s", core.ErrForbidden, actor.ID, id)
	}

	updated := current
	in.apply(&updated)
	updated.UpdatedAt = s.now().UTC()
	if err := updated.Validate(); err != nil {
		return core.Expense{}, err
	}

	if err := s.repo.UpdateExpense(ctx, updated); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.events.LogRecordWritten(ctx, log.OpUpdate, string(amqp.KindExpense), id, updated.Amount.String(), string(actor.ID))
	s.publish(ctx, amqp.KindExpense, amqp.OpUpsert, id, updated.Date)
	// A date moved to another year leaves a stale row in the old year sheet.
	if updated.Date.Year() != current.Date.Year() {
		s.publish(ctx, amqp.KindExpense, amqp.OpDelete, id, current.Date)
	}
	return updated, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, actor core.User, id string) error {
	current, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if !core.CanDeleteExpense(actor, current) {
		return fmt.Errorf("%w: %s cannot delete expense %s", core.ErrForbidden, actor.ID, id)
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.events.LogRecordWritten(ctx, log.OpDelete, string(amqp.KindExpense), id, "", string(actor.ID))
	s.publish(ctx, amqp.KindExpense, amqp.OpDelete, id, current.Date)
	return nil
}

func (s *LedgerService) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

// ListExpenses returns the month's expenses, newest date first.
func (s *LedgerService) ListExpenses(ctx context.Context, year, month int) ([]core.Expense, error) {
	if err := core.ValidateMonth(month); err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpensesByMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	sortNewestFirst(expenses)
	return expenses, nil
}

// SearchExpenses filters every stored expense and groups the hits by month.
func (s *LedgerService) SearchExpenses(ctx context.Context, filter core.ExpenseFilter) ([]core.MonthGroup, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", core.ErrInvalidRecord, core.ErrInvalidCategory, filter.Category)
	}
	expenses, err := s.repo.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return core.GroupByMonth(core.FilterExpenses(expenses, filter)), nil
}

// AddTransfer records a settlement. Only users allowed to manage transfers
// may add one, and only along the four permitted routes.
func (s *LedgerService) AddTransfer(ctx context.Context, actor core.User, in TransferInput) (core.Transfer, error) {
	if !core.CanManageTransfers(actor) {
		return core.Transfer{}, fmt.Errorf("%w: %s cannot manage transfers", core.ErrForbidden, actor.ID)
	}
	t := core.Transfer{
		ID:        s.newID(),
		From:      in.From,
		To:        in.To,
		Amount:    in.Amount,
		Date:      in.Date,
		CreatedBy: actor.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := t.Validate(); err != nil {
		return core.Transfer{}, err
	}
	if err := core.ValidateTransferRoute(t.From, t.To); err != nil {
		return core.Transfer{}, fmt.Errorf("%w: %w", core.ErrInvalidRecord, err)
	}

	if err := s.repo.CreateTransfer(ctx, t); err != nil {
		return core.Transfer{}, fmt.Errorf("save transfer: %w", err)
	}
	s.events.LogRecordWritten(ctx, log.OpCreate, string(amqp.KindTransfer), t.ID, t.Amount.String(), string(actor.ID))
	s.publish(ctx, amqp.KindTransfer, amqp.OpUpsert, t.ID, t.Date)
	return t, nil
}

func (s *LedgerService) DeleteTransfer(ctx context.Context, actor core.User, id string) error {
	if !core.CanManageTransfers(actor) {
		return fmt.Errorf("%w: %s cannot manage transfers", core.ErrForbidden, actor.ID)
	}
	current, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTransfer(ctx, id); err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	s.events.LogRecordWritten(ctx, log.OpDelete, string(amqp.KindTransfer), id, "", string(actor.ID))
	s.publish(ctx, amqp.KindTransfer, amqp.OpDelete, id, current.Date)
	return nil
}

// ListTransfers returns the month's transfers, or every transfer when month
// is 0.
func (s *LedgerService) ListTransfers(ctx context.Context, year, month int) ([]core.Transfer, error) {
	var (
		transfers []core.Transfer
		err       error
	)
	if month == 0 {
		transfers, err = s.repo.ListTransfers(ctx)
	} else {
		if err := core.ValidateMonth(month); err != nil {
			return nil, err
		}
		transfers, err = s.repo.ListTransfersByMonth(ctx, year, month)
	}
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return transfers, nil
}

// MonthlyBalances loads the month's records and runs the balance engine.
func (s *LedgerService) MonthlyBalances(ctx context.Context, year, month int) (core.MonthlyBalanceReport, error) {
	if err := core.ValidateMonth(month); err != nil {
		return core.MonthlyBalanceReport{}, err
	}

	var (
		expenses  []core.Expense
		transfers []core.Transfer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = s.repo.ListExpensesByMonth(gctx, year, month)
		if err != nil {
			return fmt.Errorf("load expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		transfers, err = s.repo.ListTransfersByMonth(gctx, year, month)
		if err != nil {
			return fmt.Errorf("load transfers: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.MonthlyBalanceReport{}, err
	}

	report, err := core.ComputeMonthlyBalances(expenses, transfers, year, month)
	if err != nil {
		return core.MonthlyBalanceReport{}, err
	}
	s.logger.DebugContext(ctx, "Monthly balance computed",
		log.FieldYear, year,
		log.FieldMonth, month,
		"total", report.TotalExpenses.String(),
		"balanced", report.IsBalanced)
	return report, nil
}

func (s *LedgerService) ExpensesByCategory(ctx context.Context, year, month int) ([]core.CategoryTotal, error) {
	if err := core.ValidateMonth(month); err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpensesByMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return core.ExpensesByCategory(expenses, year, month), nil
}

func (s *LedgerService) RecentExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	expenses, err := s.repo.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return core.RecentExpenses(expenses, limit), nil
}

func (s *LedgerService) Export(ctx context.Context) (core.Snapshot, error) {
	var snap core.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Expenses, err = s.repo.ListExpenses(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Transfers, err = s.repo.ListTransfers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Snapshot{}, fmt.Errorf("export: %w", err)
	}
	if snap.Expenses == nil {
		snap.Expenses = []core.Expense{}
	}
	if snap.Transfers == nil {
		snap.Transfers = []core.Transfer{}
	}
	return snap, nil
}

// Import replaces every expense and transfer with the snapshot. Records are
// validated first; nothing is written if any is rejected. Missing ids and
// timestamps are filled in.
func (s *LedgerService) Import(ctx context.Context, actor core.User, snap core.Snapshot) error {
	if !actor.CanEditAll {
		return fmt.Errorf("%w: %s cannot import data", core.ErrForbidden, actor.ID)
	}
	now := s.now().UTC()
	seen := map[string]bool{}
	snap = core.Snapshot{
		Expenses:  append([]core.Expense{}, snap.Expenses...),
		Transfers: append([]core.Transfer{}, snap.Transfers...),
	}

	for i := range snap.Expenses {
		e := &snap.Expenses[i]
		if e.ID == "" {
			e.ID = s.newID()
		}
		if e.Category == "" {
			e.Category = core.CategoryOther
		}
		if e.CreatedBy == "" {
			e.CreatedBy = e.PaidBy
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = e.CreatedAt
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("expense %d (%s): %w", i, e.ID, err)
		}
		if seen["e:"+e.ID] {
			return fmt.Errorf("%w: expense %s: %w", core.ErrInvalidRecord, e.ID, records.ErrDuplicate)
		}
		seen["e:"+e.ID] = true
	}
	for i := range snap.Transfers {
		t := &snap.Transfers[i]
		if t.ID == "" {
			t.ID = s.newID()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transfer %d (%s): %w", i, t.ID, err)
		}
		if err := core.ValidateTransferRoute(t.From, t.To); err != nil {
			return fmt.Errorf("%w: transfer %s: %w", core.ErrInvalidRecord, t.ID, err)
		}
		if seen["t:"+t.ID] {
			return fmt.Errorf("%w: transfer %s: %w", core.ErrInvalidRecord, t.ID, records.ErrDuplicate)
		}
		seen["t:"+t.ID] = true
	}

	prevExpenses, err := s.repo.ListExpenses(ctx)
	if err != nil {
		return fmt.Errorf("load expenses: %w", err)
	}
	prevTransfers, err := s.repo.ListTransfers(ctx)
	if err != nil {
		return fmt.Errorf("load transfers: %w", err)
	}

	if err := s.repo.ReplaceAll(ctx, snap); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	s.logger.InfoContext(ctx, "Data imported",
		log.FieldUser, actor.ID,
		"expenses", len(snap.Expenses),
		"transfers", len(snap.Transfers))

	// Mirror rows are kept per year: records the snapshot drops or moves to
	// another year must be deleted explicitly.
	years := make(map[string]int, len(snap.Expenses)+len(snap.Transfers))
	for _, e := range snap.Expenses {
		years["e:"+e.ID] = e.Date.Year()
	}
	for _, t := range snap.Transfers {
		years["t:"+t.ID] = t.Date.Year()
	}
	for _, e := range prevExpenses {
		if y, ok := years["e:"+e.ID]; !ok || y != e.Date.Year() {
			s.publish(ctx, amqp.KindExpense, amqp.OpDelete, e.ID, e.Date)
		}
	}
	for _, t := range prevTransfers {
		if y, ok := years["t:"+t.ID]; !ok || y != t.Date.Year() {
			s.publish(ctx, amqp.KindTransfer, amqp.OpDelete, t.ID, t.Date)
		}
	}
	for _, e := range snap.Expenses {
		s.publish(ctx, amqp.KindExpense, amqp.OpUpsert, e.ID, e.Date)
	}
	for _, t := range snap.Transfers {
		s.publish(ctx, amqp.KindTransfer, amqp.OpUpsert, t.ID, t.Date)
	}
	return nil
}

// publish never fails the write; the worker resyncs on startup.
func (s *LedgerService) publish(ctx context.Context, kind amqp.RecordKind, op amqp.SyncOp, id string, date core.Date) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewRecordSyncMessage(kind, op, id, date)
	if err := s.publisher.PublishRecordSync(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldRecordKind, kind,
			log.FieldRecordID, id,
			log.FieldError, err)
	}
}

// Close releases the repository and the publisher when it can be closed.
func (s *LedgerService) Close() error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}

func sortNewestFirst(expenses []core.Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		a, b := expenses[i], expenses[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
