package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gestionjm/internal/core"
)

const (
	maxBodyBytes   = 64 << 10
	maxImportBytes = 16 << 20

	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

// errBadRequest marks malformed input, as opposed to well formed input the
// ledger rejects.
var errBadRequest = errors.New("bad request")

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads year and month from the query, defaulting each to
// the month of now.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: int(now.Month())}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return MonthParams{}, fmt.Errorf("%w: year %q", errBadRequest, v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("%w: month %q", errBadRequest, v)
		}
		if err := core.ValidateMonth(m); err != nil {
			return MonthParams{}, err
		}
		params.Month = m
	}
	return params, nil
}

// ParseExpenseFilter returns the search filter and whether any was given.
func ParseExpenseFilter(query url.Values) (core.ExpenseFilter, bool) {
	f := core.ExpenseFilter{
		Query:    sanitizeInput(query.Get("q")),
		Category: core.Category(strings.ToLower(strings.TrimSpace(query.Get("category")))),
	}
	return f, f.Query != "" || f.Category != ""
}

// parseLimit reads a positive limit capped at max.
func parseLimit(query url.Values, def, max int) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit %q", errBadRequest, v)
	}
	if n > max {
		n = max
	}
	return n, nil
}

// decodeJSON reads a single JSON object into dst. Unknown fields and
// trailing data are rejected. Errors raised by the ledger types while
// decoding (bad amount, date, impute) keep their identity.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body larger than %d bytes", errBadRequest, maxErr.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errBadRequest)
		case isLedgerError(err):
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", errBadRequest)
	}
	return nil
}

func isLedgerError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// amountField accepts a JSON number or a typed string such as "1500,50".
type amountField struct {
	decimal.Decimal
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return fmt.Errorf("%w: %s", err, b)
	}
	a.Decimal = d
	return nil
}

// sanitizeInput drops control characters except tab and newlines and trims
// whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
