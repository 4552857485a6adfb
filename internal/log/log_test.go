package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentLedger, Output: &buf})

	l.Info("hello", FieldUser, "mariano")
	l.Debug("hidden")
	l.WithComponent(ComponentWorker).Warn("careful")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "user=mariano") {
		t.Fatalf("missing fields: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered: %s", out)
	}
	if !strings.Contains(out, "component=worker") {
		t.Fatalf("expected worker component: %s", out)
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithRecord("expense", "e1", "").
		WithUser("").
		WithError(nil).
		WithPeriod(2025, 3)

	if _, ok := f[FieldAmount]; ok {
		t.Error("empty amount should be skipped")
	}
	if _, ok := f[FieldUser]; ok {
		t.Error("empty user should be skipped")
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be skipped")
	}
	if f[FieldMonth] != 3 || f[FieldRecordID] != "e1" {
		t.Errorf("unexpected fields: %v", f)
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Errorf("ToSlice should yield key/value pairs")
	}

	f.WithError(errors.New("boom"))
	if f[FieldError] != "boom" {
		t.Errorf("expected error text")
	}
}

func TestMiddlewareAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentHTTP, Output: &buf})

	var seen *Logger
	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = FromContext(r.Context())
			seen.InfoContext(r.Context(), "inside")
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == nil || seen.Component() != ComponentHTTP {
		t.Fatalf("expected request logger, got %+v", seen)
	}
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("missing request id: %s", buf.String())
	}

	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("fallback logger should be unknown component")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf}))
	r := httptest.NewRequest(http.MethodPost, "/api/expenses?x=1", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusUnprocessableEntity, 3, "10.0.0.1")
	sl.LogRecordWritten(context.Background(), OpCreate, "expense", "e1", "100", "gabriela")
	sl.LogError(context.Background(), "failed", errors.New("db down"), ComponentStorage, OpList, nil)

	out := buf.String()
	for _, want := range []string{"level=WARN", "status_code=422", "record_id=e1", "error=\"db down\"", "level=ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %s", want, out)
		}
	}
}
