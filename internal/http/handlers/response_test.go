package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-booking-backend/internal/http/middleware"
)

func envelopeRouter(lg *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		if lg != nil {
			c.Set("logger", lg)
		}
		c.Next()
	})
	return r
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("envelope: %v (%s)", err, w.Body.String())
	}
	return er
}

func TestFailWith_ServerErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	lg := zerolog.New(&buf)
	r := envelopeRouter(&lg)
	r.POST("/payments", func(c *gin.Context) {
		failWith(c, http.StatusBadGateway, ErrCodeGateway, "gateway timeout", gin.H{"provider": "mpesa"})
	})

	req := httptest.NewRequest(http.MethodPost, "/payments", nil)
	req.Header.Set(middleware.HeaderRequestID, "rid-502")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", w.Code)
	}
	er := decodeEnvelope(t, w)
	if er.RequestID != "rid-502" || er.Code != ErrCodeGateway || er.Message != "gateway timeout" {
		t.Fatalf("unexpected envelope: %+v", er)
	}
	if d, _ := er.Details.(map[string]any); d["provider"] != "mpesa" {
		t.Fatalf("details lost: %#v", er.Details)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), ErrCodeGateway) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func TestFail_ClientErrorNotLogged(t *testing.T) {
	var buf bytes.Buffer
	lg := zerolog.New(&buf)
	r := envelopeRouter(&lg)
	r.GET("/bookings/:id", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "booking not found")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bookings/b1", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	er := decodeEnvelope(t, w)
	if er.Code != ErrCodeNotFound || er.RequestID == "" || er.Details != nil {
		t.Fatalf("unexpected envelope: %+v", er)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx must not log: %s", buf.String())
	}
	if strings.Contains(w.Body.String(), `"details"`) {
		t.Fatalf("empty details must be omitted: %s", w.Body.String())
	}
}

func TestNotModified(t *testing.T) {
	const etag = `W/"bookings:u:1:2:1:20"`
	r := envelopeRouter(nil)
	r.GET("/bookings", func(c *gin.Context) {
		if notModified(c, etag) {
			return
		}
		ok(c, http.StatusOK, gin.H{"bookings": []string{}})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bookings", nil))
	if w.Code != http.StatusOK || w.Header().Get("ETag") != etag {
		t.Fatalf("first fetch: status=%d etag=%q", w.Code, w.Header().Get("ETag"))
	}

	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("revalidation: status=%d body=%q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/bookings", nil)
	req.Header.Set("If-None-Match", `W/"stale"`)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("stale etag: status=%d", w.Code)
	}
}
