package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultRecentLimit is how many expenses the recent view shows.
const DefaultRecentLimit = 5

// CategoryTotal aggregates one category's expenses for a month.
type CategoryTotal struct {
	Category Category        `json:"category"`
	Name     string          `json:"name"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
	Expenses []Expense       `json:"expenses"`
}

// ExpenseFilter narrows an expense listing. Empty fields match everything.
type ExpenseFilter struct {
	Query    string
	Category Category
}

// MonthGroup is a calendar month bucket of expenses.
type MonthGroup struct {
	Year     int             `json:"year"`
	Month    int             `json:"month"`
	Total    decimal.Decimal `json:"total"`
	Expenses []Expense       `json:"expenses"`
}

// ExpensesByCategory sums and counts the month's expenses per category.
// Only categories with at least one expense are returned, in the fixed
// category order. An expense without category lands in "otros".
func ExpensesByCategory(expenses []Expense, year, month int) []CategoryTotal {
	byCat := map[Category]*CategoryTotal{}
	for _, e := range expenses {
		if !e.Date.InMonth(year, month) {
			continue
		}
		cat := e.Category
		if cat == "" {
			cat = CategoryOther
		}
		ct, ok := byCat[cat]
		if !ok {
			ct = &CategoryTotal{Category: cat, Name: cat.Name(), Total: decimal.Zero}
			byCat[cat] = ct
		}
		ct.Total = ct.Total.Add(e.Amount)
		ct.Count++
		ct.Expenses = append(ct.Expenses, e)
	}

	out := make([]CategoryTotal, 0, len(byCat))
	for _, cat := range Categories() {
		if ct, ok := byCat[cat]; ok {
			out = append(out, *ct)
			delete(byCat, cat)
		}
	}
	// Unknown categories from imported data go last, sorted for stable output.
	rest := make([]Category, 0, len(byCat))
	for cat := range byCat {
		rest = append(rest, cat)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, cat := range rest {
		out = append(out, *byCat[cat])
	}
	return out
}

// RecentExpenses returns the newest expenses by creation time, regardless of
// their date. A limit <= 0 uses DefaultRecentLimit.
func RecentExpenses(expenses []Expense, limit int) []Expense {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	sorted := append([]Expense(nil), expenses...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// FilterExpenses keeps expenses whose description contains the query
// (case-insensitive) and whose category matches, if one is set.
func FilterExpenses(expenses []Expense, f ExpenseFilter) []Expense {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if q != "" && !strings.Contains(strings.ToLower(e.Description), q) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		out = append(out, e)
	}
	return out
}

// GroupByMonth buckets expenses by calendar month, newest month first.
// Within a month expenses are ordered by date, newest first.
func GroupByMonth(expenses []Expense) []MonthGroup {
	type key struct{ year, month int }
	groups := map[key]*MonthGroup{}
	for _, e := range expenses {
		k := key{e.Date.Year(), int(e.Date.Month())}
		g, ok := groups[k]
		if !ok {
			g = &MonthGroup{Year: k.year, Month: k.month, Total: decimal.Zero}
			groups[k] = g
		}
		g.Total = g.Total.Add(e.Amount)
		g.Expenses = append(g.Expenses, e)
	}

	out := make([]MonthGroup, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g.Expenses, func(i, j int) bool {
			return g.Expenses[i].Date.After(g.Expenses[j].Date.Time)
		})
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out
}
