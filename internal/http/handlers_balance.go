package http

import (
	"context"
	"net/http"
	"strconv"

	"gestionjm/internal/core"
	"gestionjm/internal/log"
)

func (s *Server) cacheKey(year, month int) string {
	return strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.monthlyReport(r.Context(), p.Year, p.Month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type categoryTotalsResponse struct {
	Year       int                  `json:"year"`
	Month      int                  `json:"month"`
	Categories []core.CategoryTotal `json:"categories"`
}

func (s *Server) handleCategoryTotals(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	totals, err := s.categoryTotals(r.Context(), p.Year, p.Month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryTotalsResponse{Year: p.Year, Month: p.Month, Categories: totals})
}

func (s *Server) monthlyReport(ctx context.Context, year, month int) (core.MonthlyBalanceReport, error) {
	key := s.cacheKey(year, month)
	if report, found := s.reports.Get(key); found {
		log.FromContext(ctx).DebugContext(ctx, "Report cache hit", log.FieldYear, year, log.FieldMonth, month)
		return report, nil
	}
	gen := s.cacheGeneration()
	report, err := s.ledger.MonthlyBalances(ctx, year, month)
	if err != nil {
		return core.MonthlyBalanceReport{}, err
	}
	if !s.storeIfCurrent(gen, func() { s.reports.Set(key, report) }) {
		log.FromContext(ctx).DebugContext(ctx, "Report changed while loading, not cached", log.FieldYear, year, log.FieldMonth, month)
	}
	return report, nil
}

func (s *Server) categoryTotals(ctx context.Context, year, month int) ([]core.CategoryTotal, error) {
	key := s.cacheKey(year, month)
	if totals, found := s.categories.Get(key); found {
		return totals, nil
	}
	gen := s.cacheGeneration()
	totals, err := s.ledger.ExpensesByCategory(ctx, year, month)
	if err != nil {
		return nil, err
	}
	if totals == nil {
		totals = []core.CategoryTotal{}
	}
	s.storeIfCurrent(gen, func() { s.categories.Set(key, totals) })
	return totals, nil
}
