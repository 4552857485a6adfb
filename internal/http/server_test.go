package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gestionjm/internal/core"
	"gestionjm/internal/identity"
	"gestionjm/internal/log"
	"gestionjm/internal/records"
	"gestionjm/internal/records/memory"
	"gestionjm/internal/services"
)

var testPins = map[core.UserID]string{
	core.Mariano:    "1234",
	core.Gabriela:   "4321",
	core.JuanMartin: "1111",
}

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	return newTestServerWithStore(t, memory.New(), opts...)
}

func newTestServerWithStore(t *testing.T, store records.Repository, opts ...Option) *Server {
	t.Helper()
	ctx := context.Background()
	quiet := log.New(log.Config{Output: &bytes.Buffer{}})
	clock := func() time.Time { return fixedNow }

	ids := identity.NewProvider(store, identity.WithCost(bcrypt.MinCost), identity.WithLogger(quiet.Slog()))
	require.NoError(t, ids.EnsureDefaults(ctx, testPins))
	ledger := services.NewLedgerService(store, services.WithLogger(quiet), services.WithClock(clock))

	opts = append([]Option{WithLogger(quiet), WithClock(clock)}, opts...)
	srv := NewServer(":0", ledger, ids, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

// do sends a request as user (no auth when empty) with an optional JSON body.
func do(t *testing.T, srv *Server, method, target string, user core.UserID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	if user != "" {
		r.SetBasicAuth(string(user), testPins[user])
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := do(t, srv, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_"))
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
	assert.Equal(t, codeUnauthorized, decode[errorBody](t, rec).Code)

	for _, creds := range [][2]string{{"mariano", "0000"}, {"nadie", "1234"}, {"", ""}} {
		r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		r.SetBasicAuth(creds[0], creds[1])
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, creds)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.SetBasicAuth(" Mariano ", "1234")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code, "user ids are case and space insensitive")
}

func TestMe(t *testing.T) {
	srv := newTestServer(t)

	me := decode[meResponse](t, do(t, srv, http.MethodGet, "/api/me", core.Mariano, ""))
	assert.Equal(t, core.Mariano, me.ID)
	assert.Equal(t, []core.UserID{core.Gabriela, core.JuanMartin}, me.TransferTargets)

	me = decode[meResponse](t, do(t, srv, http.MethodGet, "/api/me", core.JuanMartin, ""))
	assert.Equal(t, core.RoleCollaborator, me.Role)
	assert.Empty(t, me.TransferTargets)
}

func TestUsersAndCategories(t *testing.T) {
	srv := newTestServer(t)

	users := decode[struct{ Users []core.User }](t, do(t, srv, http.MethodGet, "/api/users", core.Gabriela, ""))
	assert.Len(t, users.Users, 3)

	cats := decode[struct{ Categories []categoryInfo }](t, do(t, srv, http.MethodGet, "/api/categories", core.Gabriela, ""))
	require.Len(t, cats.Categories, 6)
	assert.Equal(t, categoryInfo{ID: core.CategoryAlquilerBA, Name: "Alquiler BA"}, cats.Categories[0])
}

func TestExpenseLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/expenses", core.JuanMartin,
		`{"amount":"1500,50","description":"  Supermercado ","category":"VIDA_DIARIA","needsReimbursement":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[core.Expense](t, rec)
	assert.Equal(t, "/api/expenses/"+created.ID, rec.Header().Get("Location"))
	assert.Equal(t, core.JuanMartin, created.PaidBy, "payer defaults to the caller")
	assert.Equal(t, core.JuanMartin, created.CreatedBy)
	assert.Equal(t, "2025-03-15", created.Date.String(), "date defaults to today")
	assert.Equal(t, "1500.5", created.Amount.String())
	assert.Equal(t, "Supermercado", created.Description)
	assert.Equal(t, core.CategoryDailyLife, created.Category)
	assert.Equal(t, core.ImputeBoth, created.ImputeTo)

	list := decode[expenseListResponse](t, do(t, srv, http.MethodGet, "/api/expenses", core.Mariano, ""))
	assert.Equal(t, 2025, list.Year)
	assert.Equal(t, 3, list.Month)
	assert.Equal(t, 1, list.Count)

	list = decode[expenseListResponse](t, do(t, srv, http.MethodGet, "/api/expenses?year=2025&month=2", core.Mariano, ""))
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Expenses)

	rec = do(t, srv, http.MethodGet, "/api/expenses/"+created.ID, core.Gabriela, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPut, "/api/expenses/"+created.ID, core.Gabriela, `{"amount":2000,"imputeTo":"mariano"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[core.Expense](t, rec)
	assert.Equal(t, "2000", updated.Amount.String())
	assert.Equal(t, core.ImputeMariano, updated.ImputeTo)
	assert.Equal(t, "Supermercado", updated.Description, "omitted fields keep their value")
	assert.Equal(t, core.JuanMartin, updated.CreatedBy)

	rec = do(t, srv, http.MethodDelete, "/api/expenses/"+created.ID, core.JuanMartin, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/expenses/"+created.ID, core.JuanMartin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, decode[errorBody](t, rec).Code)
}

func TestExpensePermissions(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/expenses", core.Mariano, `{"amount":100,"description":"Luz","date":"2025-03-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[core.Expense](t, rec).ID

	rec = do(t, srv, http.MethodPut, "/api/expenses/"+id, core.JuanMartin, `{"amount":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeForbidden, decode[errorBody](t, rec).Code)

	rec = do(t, srv, http.MethodDelete, "/api/expenses/"+id, core.JuanMartin, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPut, "/api/expenses/missing", core.Mariano, `{"amount":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateExpenseValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"not json", "amount=12", http.StatusBadRequest},
		{"unknown field", `{"amount":1,"description":"x","colour":"red"}`, http.StatusBadRequest},
		{"trailing data", `{"amount":1,"description":"x"} {}`, http.StatusBadRequest},
		{"negative amount", `{"amount":"-5","description":"x"}`, http.StatusUnprocessableEntity},
		{"zero amount", `{"amount":0,"description":"x"}`, http.StatusUnprocessableEntity},
		{"missing amount", `{"description":"x"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"amount":1,"description":"x","date":"2025-13-01"}`, http.StatusUnprocessableEntity},
		{"bad category", `{"amount":1,"description":"x","category":"viajes"}`, http.StatusUnprocessableEntity},
		{"bad impute", `{"amount":1,"description":"x","imputeTo":"nadie"}`, http.StatusUnprocessableEntity},
		{"blank description", `{"amount":1,"description":"   "}`, http.StatusUnprocessableEntity},
		{"unknown payer", `{"amount":1,"description":"x","paidBy":"abuela"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/expenses", core.Mariano, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorBody](t, rec).RequestID)
		})
	}
}

func TestSearchAndRecent(t *testing.T) {
	srv := newTestServer(t)
	for _, body := range []string{
		`{"amount":10,"description":"Farmacia","category":"salud","date":"2025-01-10"}`,
		`{"amount":20,"description":"Supermercado","category":"vida_diaria","date":"2025-02-10"}`,
		`{"amount":30,"description":"Farmacia del centro","category":"salud","date":"2025-03-10"}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/expenses", core.Gabriela, body).Code)
	}

	res := decode[expenseSearchResponse](t, do(t, srv, http.MethodGet, "/api/expenses?q=FARMACIA", core.Gabriela, ""))
	assert.Equal(t, 2, res.Count)
	assert.Len(t, res.Groups, 2)

	res = decode[expenseSearchResponse](t, do(t, srv, http.MethodGet, "/api/expenses?category=vida_diaria", core.Gabriela, ""))
	assert.Equal(t, 1, res.Count)

	rec := do(t, srv, http.MethodGet, "/api/expenses?category=viajes", core.Gabriela, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	recent := decode[struct{ Expenses []core.Expense }](t, do(t, srv, http.MethodGet, "/api/expenses/recent?limit=2", core.Gabriela, ""))
	assert.Len(t, recent.Expenses, 2)

	rec = do(t, srv, http.MethodGet, "/api/expenses/recent?limit=zero", core.Gabriela, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransfers(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/transfers", core.JuanMartin, `{"from":"juanmartin","to":"mariano","amount":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/transfers", core.Mariano, `{"to":"mariano","amount":10}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "self transfer")

	rec = do(t, srv, http.MethodPost, "/api/transfers", core.Mariano, `{"from":"juanmartin","to":"gabriela","amount":10}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "route not allowed")

	rec = do(t, srv, http.MethodPost, "/api/transfers", core.Mariano, `{"to":"juanmartin","amount":"300"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tr := decode[core.Transfer](t, rec)
	assert.Equal(t, core.Mariano, tr.From)
	assert.Equal(t, "2025-03-15", tr.Date.String())

	rec = do(t, srv, http.MethodPost, "/api/transfers", core.Gabriela, `{"to":"mariano","amount":50,"date":"2024-12-31"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	list := decode[transferListResponse](t, do(t, srv, http.MethodGet, "/api/transfers", core.JuanMartin, ""))
	assert.Equal(t, 1, list.Count)
	list = decode[transferListResponse](t, do(t, srv, http.MethodGet, "/api/transfers?all=true", core.JuanMartin, ""))
	assert.Equal(t, 2, list.Count)

	assert.Equal(t, http.StatusForbidden, do(t, srv, http.MethodDelete, "/api/transfers/"+tr.ID, core.JuanMartin, "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/transfers/"+tr.ID, core.Gabriela, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/transfers/"+tr.ID, core.Gabriela, "").Code)
}

func TestBalancesCacheIsPurgedOnWrite(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/expenses", core.Mariano, `{"amount":1000,"description":"Alquiler","category":"alquiler_ba"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	report := decode[core.MonthlyBalanceReport](t, do(t, srv, http.MethodGet, "/api/balances?year=2025&month=3", core.Gabriela, ""))
	assert.Equal(t, "1000", report.TotalExpenses.String())
	require.NotNil(t, report.Debt)
	assert.Equal(t, core.Gabriela, report.Debt.From)
	assert.Equal(t, "500", report.Debt.Amount.String())
	assert.Equal(t, 1, srv.reports.Size())

	rec = do(t, srv, http.MethodPost, "/api/expenses", core.Gabriela, `{"amount":600,"description":"Internet","category":"telefono"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, srv.reports.Size(), "writes purge cached reports")

	report = decode[core.MonthlyBalanceReport](t, do(t, srv, http.MethodGet, "/api/balances", core.Gabriela, ""))
	assert.Equal(t, "1600", report.TotalExpenses.String())

	totals := decode[categoryTotalsResponse](t, do(t, srv, http.MethodGet, "/api/balances/categories", core.JuanMartin, ""))
	assert.Equal(t, 3, totals.Month)
	assert.NotEmpty(t, totals.Categories)

	assert.Equal(t, http.StatusUnprocessableEntity, do(t, srv, http.MethodGet, "/api/balances?month=13", core.Mariano, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/balances?year=abc", core.Mariano, "").Code)
}

// pausingStore holds the next month load after it has read the records,
// until release is closed.
type pausingStore struct {
	*memory.Store
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingStore) ListExpensesByMonth(ctx context.Context, year, month int) ([]core.Expense, error) {
	out, err := p.Store.ListExpensesByMonth(ctx, year, month)
	if p.armed.CompareAndSwap(true, false) {
		close(p.loaded)
		<-p.release
	}
	return out, err
}

func TestBalancesLoadRacingWriteIsNotCached(t *testing.T) {
	store := &pausingStore{Store: memory.New(), loaded: make(chan struct{}), release: make(chan struct{})}
	srv := newTestServerWithStore(t, store)
	store.armed.Store(true)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(t, srv, http.MethodGet, "/api/balances?year=2025&month=3", core.Gabriela, "")
	}()

	<-store.loaded
	rec := do(t, srv, http.MethodPost, "/api/expenses", core.Mariano, `{"amount":1000,"description":"Alquiler","category":"alquiler_ba"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	close(store.release)

	require.Equal(t, http.StatusOK, (<-first).Code)
	assert.Equal(t, 0, srv.reports.Size(), "a load that raced a write must not be cached")

	report := decode[core.MonthlyBalanceReport](t, do(t, srv, http.MethodGet, "/api/balances?year=2025&month=3", core.Gabriela, ""))
	assert.Equal(t, "1000", report.TotalExpenses.String())
	assert.False(t, report.IsBalanced)
	assert.Equal(t, 1, srv.reports.Size())
}

func TestCategoryTotalsAreNotCachedAcrossPurge(t *testing.T) {
	srv := newTestServer(t)

	gen := srv.cacheGeneration()
	srv.invalidateReports()
	assert.False(t, srv.storeIfCurrent(gen, func() { srv.categories.Set("2025-3", nil) }))
	assert.Equal(t, 0, srv.categories.Size())

	assert.True(t, srv.storeIfCurrent(srv.cacheGeneration(), func() { srv.categories.Set("2025-3", nil) }))
	assert.Equal(t, 1, srv.categories.Size())
}

func TestChangePin(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/pin", core.JuanMartin, `{"currentPin":"9999","newPin":"2468"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/pin", core.JuanMartin, `{"currentPin":"1111","newPin":"12"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/pin", core.JuanMartin, `{"currentPin":"1111","newPin":"2468"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/me", core.JuanMartin, "").Code)

	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.SetBasicAuth("juanmartin", "2468")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportImport(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/expenses", core.Mariano, `{"amount":100,"description":"Luz"}`).Code)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/transfers", core.Mariano, `{"to":"gabriela","amount":50}`).Code)

	rec := do(t, srv, http.MethodGet, "/api/export", core.JuanMartin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="gestionjm-2025-03-15.json"`, rec.Header().Get("Content-Disposition"))
	exported := rec.Body.String()
	snap := decode[core.Snapshot](t, rec)
	assert.Len(t, snap.Expenses, 1)
	assert.Len(t, snap.Transfers, 1)

	assert.Equal(t, http.StatusForbidden, do(t, srv, http.MethodPost, "/api/import", core.JuanMartin, exported).Code)

	rec = do(t, srv, http.MethodPost, "/api/import", core.Gabriela, `{"expenses":[],"transfers":[]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, importResponse{}, decode[importResponse](t, rec))
	assert.Equal(t, 0, decode[expenseListResponse](t, do(t, srv, http.MethodGet, "/api/expenses", core.Mariano, "")).Count)

	rec = do(t, srv, http.MethodPost, "/api/import", core.Gabriela, exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, importResponse{Expenses: 1, Transfers: 1}, decode[importResponse](t, rec))

	rec = do(t, srv, http.MethodPost, "/api/import", core.Gabriela, `{"expenses":[{"amount":"-1","description":"x","paidBy":"mariano","date":"2025-01-01"}],"transfers":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestImportBrowserExport(t *testing.T) {
	srv := newTestServer(t)

	body := `{
	  "users": [
	    {"id":"mariano","name":"Mariano","role":"parent","pinHash":"MTIzNF9nZXN0aW9uam1fc2FsdA==","canEditAll":true,"canManageTransfers":true},
	    {"id":"juanmartin","name":"Juan Martín","role":"collaborator","pinHash":"MTExMV9nZXN0aW9uam1fc2FsdA==","canEditAll":false,"canManageTransfers":false}
	  ],
	  "expenses": [
	    {"id":"exp_1741600000000_ab12cd34e","amount":1500.5,"description":"Farmacia","category":"salud",
	     "paidBy":"juanmartin","imputeTo":"gabriela","needsReimbursement":true,"date":"2025-03-10",
	     "createdBy":"juanmartin","createdAt":"2025-03-10T14:20:00.000Z","updatedAt":"2025-03-10T14:20:00.000Z"}
	  ],
	  "transfers": [
	    {"id":"tr_1741700000000_zz99yy88x","from":"gabriela","to":"juanmartin","amount":500,"date":"2025-03-11",
	     "createdAt":"2025-03-11T09:00:00.000Z"}
	  ]
	}`

	rec := do(t, srv, http.MethodPost, "/api/import", core.Mariano, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, importResponse{Expenses: 1, Transfers: 1}, decode[importResponse](t, rec))

	report := decode[core.MonthlyBalanceReport](t, do(t, srv, http.MethodGet, "/api/balances?year=2025&month=3", core.Mariano, ""))
	assert.Equal(t, "1500.5", report.TotalExpenses.String())
	assert.Equal(t, "1000.5", report.Reimbursements.GabrielaToJuan.String())

	rec = do(t, srv, http.MethodPost, "/api/import", core.Mariano, `{"expenses":[],"transfers":[],"settings":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "other unknown fields are still rejected")
}

func TestWriteRateLimit(t *testing.T) {
	srv := newTestServer(t, WithWriteRateLimit(2))

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodPost, "/api/transfers", core.Mariano, `{"to":"gabriela","amount":1}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := do(t, srv, http.MethodPost, "/api/transfers", core.Mariano, `{"to":"gabriela","amount":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, codeRateLimited, decode[errorBody](t, rec).Code)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/transfers", core.Mariano, "").Code, "reads are not limited")
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPatch, "/api/expenses/x", core.Mariano, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, srv, "TRACE", "/api/me", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
