package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLogs points the global logger at a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad log line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func accessLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	for _, m := range logLines(t, buf) {
		if m["message"] == "http_request" {
			return m
		}
	}
	t.Fatalf("no access log line in %s", buf.String())
	return nil
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	cases := []struct {
		name, in string
		keep     bool
	}{
		{"missing", "", false},
		{"well formed", "abc-123.x:y_z", true},
		{"bad characters", "bad id!", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.in != "" {
				req.Header.Set(HeaderRequestID, tc.in)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(HeaderRequestID)
			if got != w.Body.String() {
				t.Fatalf("header %q and context %q differ", got, w.Body.String())
			}
			if tc.keep && got != tc.in {
				t.Fatalf("want propagated %q, got %q", tc.in, got)
			}
			if !tc.keep && (got == tc.in || len(got) != 36) {
				t.Fatalf("want fresh uuid, got %q", got)
			}
		})
	}
}

func TestRequestIDFrom_NotSet(t *testing.T) {
	c, _ := testContext(http.MethodGet, "/")
	if got := RequestIDFrom(c); got != "" {
		t.Fatalf("want empty, got %q", got)
	}
}

func TestRedactingLogger_ScrubsAndScopes(t *testing.T) {
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{HeaderCustomerID}}))
	r.GET("/availability", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/availability?phone=%2B254712345678&service=massage", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	req.Header.Set(HeaderCustomerID, "254712345678")
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Accept", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if strings.Contains(buf.String(), "254712345678") || strings.Contains(buf.String(), "secret") {
		t.Fatalf("log leaked identifiers: %s", buf.String())
	}

	lines := logLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("want 2 log lines, got %d: %s", len(lines), buf.String())
	}
	inner := lines[0]
	if inner["message"] != "inside" || inner["request_id"] != "req-1" || inner["route"] != "/availability" {
		t.Fatalf("request-scoped fields missing: %v", inner)
	}
	if inner["customer"] != "2547******78" {
		t.Fatalf("customer not masked: %v", inner["customer"])
	}

	acc := accessLine(t, buf)
	if acc["level"] != "info" || acc["status"] != float64(200) {
		t.Fatalf("unexpected level/status: %v", acc)
	}
	if acc["query"] != "phone=[REDACTED:phone]&service=massage" {
		t.Fatalf("query = %v", acc["query"])
	}
	headers, _ := acc["headers"].(map[string]any)
	if headers["Authorization"] != "[REDACTED]" || headers["X-User-Id"] != "[REDACTED]" {
		t.Fatalf("headers not masked: %v", headers)
	}
	if headers["Accept"] != "application/json" {
		t.Fatalf("plain header altered: %v", headers["Accept"])
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	cases := []struct {
		name    string
		handler gin.HandlerFunc
		want    string
	}{
		{"ok", func(c *gin.Context) { c.Status(http.StatusNoContent) }, "info"},
		{"client error", func(c *gin.Context) { c.Status(http.StatusNotFound) }, "warn"},
		{"server error", func(c *gin.Context) { c.Status(http.StatusBadGateway) }, "error"},
		{"handler error", func(c *gin.Context) {
			_ = c.Error(http.ErrAbortHandler)
			c.Status(http.StatusOK)
		}, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLogs(t)
			r := gin.New()
			r.Use(RedactingLogger(RedactOptions{}))
			r.GET("/x", tc.handler)
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

			if got := accessLine(t, buf)["level"]; got != tc.want {
				t.Fatalf("level = %v, want %s", got, tc.want)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(HeaderRequestID, "rid-9")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-9" {
		t.Fatalf("unexpected envelope: %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if w.Body.String() != "partial" {
		t.Fatalf("written body must be left alone, got %q", w.Body.String())
	}
}

func TestLoggerFrom_FallsBackToGlobal(t *testing.T) {
	buf := captureLogs(t)
	c, _ := testContext(http.MethodGet, "/")
	LoggerFrom(c).Info().Msg("global")
	if !strings.Contains(buf.String(), `"message":"global"`) {
		t.Fatalf("fallback logger not used: %s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 3); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
