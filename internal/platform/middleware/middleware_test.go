package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/reprotech/pregtrack/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := RequestID()(func(c echo.Context) error {
		seen, _ = c.Get(RequestIDKey).(string)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == "" {
		t.Fatal("expected request id to be generated")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected response header %q, got %q", seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := RequestID()(okHandler)(c); err != nil {
		t.Fatal(err)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("expected my-custom-id, got %s", got)
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := RequestID()(okHandler)(c); err != nil {
		t.Fatal(err)
	}
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("expected a generated uuid, got %q", got)
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(RequestIDKey, "req-1")
	c.Set(auth.BranchClaimKey, "north")

	if err := Logger(logger)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d", len(lines))
	}
	l := lines[0]
	if l["level"] != "info" || l["request_id"] != "req-1" || l["path"] != "/api/v1/transfers" || l["branch_id"] != "north" {
		t.Errorf("unexpected log line %v", l)
	}
	if l["status"].(float64) != 200 {
		t.Errorf("expected status 200, got %v", l["status"])
	}
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		err   error
		level string
	}{
		{echo.NewHTTPError(http.StatusNotFound, "transfer not found"), "warn"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), httptest.NewRecorder())
		_ = Logger(zerolog.New(&buf))(func(echo.Context) error { return tt.err })(c)
		lines := decodeLines(t, &buf)
		if len(lines) != 1 || lines[0]["level"] != tt.level {
			t.Errorf("expected level %s, got %v", tt.level, lines)
		}
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	err := Recovery(zerolog.New(&buf))(func(echo.Context) error { panic("test panic") })(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
	if !strings.Contains(buf.String(), "test panic") {
		t.Errorf("expected the panic to be logged, got %s", buf.String())
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())
	if err := Recovery(zerolog.Nop())(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_RecordsChange(t *testing.T) {
	var buf bytes.Buffer
	var got []AuditEntry
	recorder := AuditRecorderFunc(func(e AuditEntry) error {
		got = append(got, e)
		return nil
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/transfers/abc/checkpoints/check30", nil)
	req = req.WithContext(auth.WithUser(req.Context(), "u-1", "Dr. Smith", []string{"veterinarian"}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(RequestIDKey, "req-9")
	c.Set(auth.BranchClaimKey, "north")

	if err := Audit(zerolog.New(&buf), recorder)(okHandler)(c); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one entry, got %d", len(got))
	}
	entry := got[0]
	if entry.Action != "update" || entry.Resource != "transfers" || entry.ResourceID != "abc" || entry.CheckpointID != "check30" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.UserID != "u-1" || entry.UserName != "Dr. Smith" || entry.BranchID != "north" || entry.RequestID != "req-9" {
		t.Errorf("unexpected actor fields %+v", entry)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", entry.StatusCode)
	}
	if !strings.Contains(buf.String(), `"type":"audit"`) {
		t.Errorf("expected audit log line, got %s", buf.String())
	}
}

func TestAudit_SkipsReads(t *testing.T) {
	called := 0
	recorder := AuditRecorderFunc(func(AuditEntry) error { called++; return nil })
	e := echo.New()
	for _, path := range []string{"/api/v1/transfers", "/health"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		if err := Audit(zerolog.Nop(), recorder)(okHandler)(c); err != nil {
			t.Fatal(err)
		}
	}
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/health", nil), httptest.NewRecorder())
	if err := Audit(zerolog.Nop(), recorder)(okHandler)(c); err != nil {
		t.Fatal(err)
	}
	if called != 0 {
		t.Errorf("expected no entries, got %d", called)
	}
}

func TestAudit_RecorderFailureKeepsResponse(t *testing.T) {
	var buf bytes.Buffer
	recorder := AuditRecorderFunc(func(AuditEntry) error { return errors.New("disk full") })
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/api/v1/transfers/abc", nil), httptest.NewRecorder())

	handlerErr := echo.NewHTTPError(http.StatusNotFound, "transfer not found")
	err := Audit(zerolog.New(&buf), recorder)(func(echo.Context) error { return handlerErr })(c)
	if err != handlerErr {
		t.Errorf("expected handler error to pass through, got %v", err)
	}
	if !strings.Contains(buf.String(), "failed to record audit entry") || !strings.Contains(buf.String(), `"status":404`) {
		t.Errorf("unexpected log %s", buf.String())
	}
}

func TestSplitResourcePath(t *testing.T) {
	tests := []struct {
		path                   string
		resource, id, checkpnt string
	}{
		{"/api/v1/transfers", "transfers", "", ""},
		{"/api/v1/transfers/abc", "transfers", "abc", ""},
		{"/api/v1/transfers/abc/checkpoints/parturition", "transfers", "abc", "parturition"},
		{"/api/v1/transfers/abc/tracking", "transfers", "abc", ""},
	}
	for _, tt := range tests {
		r, id, cp := splitResourcePath(tt.path)
		if r != tt.resource || id != tt.id || cp != tt.checkpnt {
			t.Errorf("splitResourcePath(%q) = %q %q %q", tt.path, r, id, cp)
		}
	}
}
