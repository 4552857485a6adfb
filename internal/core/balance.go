package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceEpsilon is the smallest parent difference that still produces a
// debt. Anything at or below it counts as settled.
var BalanceEpsilon = decimal.New(1, -2)

var two = decimal.NewFromInt(2)

type (
	// ParentBalance is one parent's position for a month. Balance is Paid
	// minus Owes; a positive balance means the parent fronted more than their
	// share.
	ParentBalance struct {
		Paid    decimal.Decimal `json:"paid"`
		Owes    decimal.Decimal `json:"owes"`
		Balance decimal.Decimal `json:"balance"`
	}

	// CollaboratorBalance tracks Juan Martín. His outlays never enter the
	// parent split; they only feed the reimbursement stream.
	CollaboratorBalance struct {
		Paid                 decimal.Decimal `json:"paid"`
		PendingReimbursement decimal.Decimal `json:"pendingReimbursement"`
	}

	// Reimbursements is what each parent still owes Juan Martín. Both values
	// are never negative.
	Reimbursements struct {
		MarianoToJuan  decimal.Decimal `json:"marianoToJuan"`
		GabrielaToJuan decimal.Decimal `json:"gabrielaToJuan"`
	}

	// DebtInfo is the transfer that would equalise the parents.
	DebtInfo struct {
		From   UserID          `json:"from"`
		To     UserID          `json:"to"`
		Amount decimal.Decimal `json:"amount"`
	}

	MonthlyBalanceReport struct {
		Year           int                 `json:"year"`
		Month          int                 `json:"month"`
		TotalExpenses  decimal.Decimal     `json:"totalExpenses"`
		Mariano        ParentBalance       `json:"mariano"`
		Gabriela       ParentBalance       `json:"gabriela"`
		JuanMartin     CollaboratorBalance `json:"juanmartin"`
		Reimbursements Reimbursements      `json:"reimbursements"`
		Debt           *DebtInfo           `json:"debtInfo"`
		IsBalanced     bool                `json:"isBalanced"`
	}
)

// Parent returns the balance record of a parent.
func (r MonthlyBalanceReport) Parent(id UserID) (ParentBalance, bool) {
	switch id {
	case Mariano:
		return r.Mariano, true
	case Gabriela:
		return r.Gabriela, true
	}
	return ParentBalance{}, false
}

// ReimbursementFrom returns what the given parent still owes Juan Martín.
func (r Reimbursements) From(id UserID) decimal.Decimal {
	switch id {
	case Mariano:
		return r.MarianoToJuan
	case Gabriela:
		return r.GabrielaToJuan
	}
	return decimal.Zero
}

// ComputeMonthlyBalances turns the expenses and transfers dated in the given
// year and month (1-12) into a balance report. Records from other months are
// ignored, so callers may pass the whole store. Inputs are never modified.
//
// An error is returned only for malformed input: a month outside 1..12, a
// negative amount or an impute value outside the enum.
func ComputeMonthlyBalances(expenses []Expense, transfers []Transfer, year, month int) (MonthlyBalanceReport, error) {
	if err := ValidateMonth(month); err != nil {
		return MonthlyBalanceReport{}, err
	}

	var (
		paid  = map[UserID]decimal.Decimal{Mariano: decimal.Zero, Gabriela: decimal.Zero}
		owes  = map[UserID]decimal.Decimal{Mariano: decimal.Zero, Gabriela: decimal.Zero}
		reimb = map[UserID]decimal.Decimal{Mariano: decimal.Zero, Gabriela: decimal.Zero}

		juanPaid = decimal.Zero
		total    = decimal.Zero
	)

	for _, e := range expenses {
		if !e.Date.InMonth(year, month) {
			continue
		}
		if e.Amount.Sign() < 0 {
			return MonthlyBalanceReport{}, fmt.Errorf("%w: expense %s: %w: %s", ErrInvalidRecord, e.ID, ErrInvalidAmount, e.Amount)
		}

		shares, err := imputeShares(e.ImputeTo, e.Amount)
		if err != nil {
			return MonthlyBalanceReport{}, fmt.Errorf("%w: expense %s: %w", ErrInvalidRecord, e.ID, err)
		}

		total = total.Add(e.Amount)
		switch {
		case e.PaidBy.IsParent():
			paid[e.PaidBy] = paid[e.PaidBy].Add(e.Amount)
		case e.PaidBy == JuanMartin:
			juanPaid = juanPaid.Add(e.Amount)
		}

		reimburse := e.PaidBy == JuanMartin && e.NeedsReimbursement
		for parent, share := range shares {
			owes[parent] = owes[parent].Add(share)
			if reimburse {
				reimb[parent] = reimb[parent].Add(share)
			}
		}
	}

	for _, t := range transfers {
		if !t.Date.InMonth(year, month) {
			continue
		}
		if t.Amount.Sign() < 0 {
			return MonthlyBalanceReport{}, fmt.Errorf("%w: transfer %s: %w: %s", ErrInvalidRecord, t.ID, ErrInvalidAmount, t.Amount)
		}

		switch {
		case t.From.IsParent() && t.To == t.From.Other():
			paid[t.From] = paid[t.From].Add(t.Amount)
			paid[t.To] = paid[t.To].Sub(t.Amount)
		case t.From.IsParent() && t.To == JuanMartin:
			// Over-payment is absorbed, not carried as credit.
			reimb[t.From] = decimal.Max(decimal.Zero, reimb[t.From].Sub(t.Amount))
		}
	}

	report := MonthlyBalanceReport{
		Year:          year,
		Month:         month,
		TotalExpenses: total,
		Mariano:       parentBalance(paid[Mariano], owes[Mariano]),
		Gabriela:      parentBalance(paid[Gabriela], owes[Gabriela]),
		Reimbursements: Reimbursements{
			MarianoToJuan:  reimb[Mariano],
			GabrielaToJuan: reimb[Gabriela],
		},
	}
	report.JuanMartin = CollaboratorBalance{
		Paid:                 juanPaid,
		PendingReimbursement: reimb[Mariano].Add(reimb[Gabriela]),
	}

	diff := report.Mariano.Balance.Sub(report.Gabriela.Balance)
	if diff.Abs().GreaterThan(BalanceEpsilon) {
		debt := &DebtInfo{From: Gabriela, To: Mariano, Amount: diff.Abs().Div(two)}
		if diff.IsNegative() {
			debt.From, debt.To = Mariano, Gabriela
		}
		report.Debt = debt
	} else {
		report.IsBalanced = true
	}

	return report, nil
}

// imputeShares splits an amount between the parents it is charged to.
func imputeShares(to Impute, amount decimal.Decimal) (map[UserID]decimal.Decimal, error) {
	switch to {
	case ImputeBoth:
		half := amount.Div(two)
		return map[UserID]decimal.Decimal{Mariano: half, Gabriela: half}, nil
	case ImputeMariano:
		return map[UserID]decimal.Decimal{Mariano: amount}, nil
	case ImputeGabriela:
		return map[UserID]decimal.Decimal{Gabriela: amount}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidImpute, int(to))
}

func parentBalance(paid, owes decimal.Decimal) ParentBalance {
	return ParentBalance{Paid: paid, Owes: owes, Balance: paid.Sub(owes)}
}
