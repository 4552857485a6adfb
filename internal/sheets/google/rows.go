package google

import (
	"fmt"
	"strconv"
	"strings"

	"gestionjm/internal/core"
)

var (
	expenseHeader  = []any{"ID", "Fecha", "Descripción", "Categoría", "Monto", "Pagó", "Imputado a", "Reintegro", "Cargado por"}
	transferHeader = []any{"ID", "Fecha", "De", "Para", "Monto", "Cargado por"}
)

func expenseRow(e core.Expense) []any {
	reimb := "No"
	if e.NeedsReimbursement {
		reimb = "Sí"
	}
	return []any{
		e.ID,
		e.Date.String(),
		e.Description,
		e.Category.Name(),
		e.Amount.InexactFloat64(),
		userName(e.PaidBy),
		imputeName(e.ImputeTo),
		reimb,
		userName(e.CreatedBy),
	}
}

func transferRow(t core.Transfer) []any {
	return []any{
		t.ID,
		t.Date.String(),
		userName(t.From),
		userName(t.To),
		t.Amount.InexactFloat64(),
		userName(t.CreatedBy),
	}
}

func userName(id core.UserID) string {
	if u, ok := core.LookupUser(id); ok {
		return u.ShortName
	}
	return string(id)
}

func imputeName(i core.Impute) string {
	switch i {
	case core.ImputeMariano:
		return userName(core.Mariano)
	case core.ImputeGabriela:
		return userName(core.Gabriela)
	}
	return "Ambos"
}

// rowIndex returns the 1-based row whose first cell equals id, or 0.
func rowIndex(values [][]any, id string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

// columnName turns a 1-based column count into its letter (1 -> A, 27 -> AA).
func columnName(n int) string {
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
