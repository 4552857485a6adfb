package http

import (
	"net/http"
	"strings"

	"gestionjm/internal/core"
	"gestionjm/internal/services"
)

// expenseRequest is the body of POST and PUT /api/expenses. PUT decodes it
// over the stored expense, so omitted fields keep their value.
type expenseRequest struct {
	Amount             amountField   `json:"amount"`
	Description        string        `json:"description"`
	Category           core.Category `json:"category"`
	PaidBy             core.UserID   `json:"paidBy"`
	ImputeTo           core.Impute   `json:"imputeTo"`
	NeedsReimbursement bool          `json:"needsReimbursement"`
	Date               core.Date     `json:"date"`
}

func expenseRequestFrom(e core.Expense) expenseRequest {
	return expenseRequest{
		Amount:             amountField{e.Amount},
		Description:        e.Description,
		Category:           e.Category,
		PaidBy:             e.PaidBy,
		ImputeTo:           e.ImputeTo,
		NeedsReimbursement: e.NeedsReimbursement,
		Date:               e.Date,
	}
}

func (req expenseRequest) input() services.ExpenseInput {
	return services.ExpenseInput{
		Amount:             req.Amount.Decimal,
		Description:        sanitizeInput(req.Description),
		Category:           core.Category(strings.ToLower(strings.TrimSpace(string(req.Category)))),
		PaidBy:             core.UserID(strings.ToLower(strings.TrimSpace(string(req.PaidBy)))),
		ImputeTo:           req.ImputeTo,
		NeedsReimbursement: req.NeedsReimbursement,
		Date:               req.Date,
	}
}

type expenseListResponse struct {
	Year     int            `json:"year"`
	Month    int            `json:"month"`
	Count    int            `json:"count"`
	Expenses []core.Expense `json:"expenses"`
}

type expenseSearchResponse struct {
	Query    string            `json:"query,omitempty"`
	Category core.Category     `json:"category,omitempty"`
	Count    int               `json:"count"`
	Groups   []core.MonthGroup `json:"groups"`
}

// handleListExpenses lists one month, or searches every month when q or
// category is given.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if filter, ok := ParseExpenseFilter(query); ok {
		groups, err := s.ledger.SearchExpenses(r.Context(), filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp := expenseSearchResponse{Query: filter.Query, Category: filter.Category, Groups: groups}
		if resp.Groups == nil {
			resp.Groups = []core.MonthGroup{}
		}
		for _, g := range groups {
			resp.Count += len(g.Expenses)
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	p, err := ParseMonthParams(query, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	expenses, err := s.ledger.ListExpenses(r.Context(), p.Year, p.Month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, expenseListResponse{Year: p.Year, Month: p.Month, Count: len(expenses), Expenses: expenses})
}

func (s *Server) handleRecentExpenses(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query(), defaultRecentLimit, maxRecentLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	expenses, err := s.ledger.RecentExpenses(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

// handleCreateExpense defaults the payer to the caller and the date to today.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	req := expenseRequest{PaidBy: user.ID, Date: s.today()}
	if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.ledger.AddExpense(r.Context(), user, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateReports()
	w.Header().Set("Location", "/api/expenses/"+e.ID)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.GetExpense(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, err := s.ledger.GetExpense(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req := expenseRequestFrom(current)
	if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.ledger.UpdateExpense(r.Context(), currentUser(r.Context()), id, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateReports()
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteExpense(r.Context(), currentUser(r.Context()), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateReports()
	w.WriteHeader(http.StatusNoContent)
}
