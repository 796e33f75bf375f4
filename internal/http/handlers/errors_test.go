package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/extract"
	"github.com/tbourn/go-booking-backend/internal/services"
)

func Test_failErr_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	_, malformed := extract.Decode([]byte("[1,2"))

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
		check      func(t *testing.T, w *httptest.ResponseRecorder, body ErrorResponse)
	}{
		{
			name:       "rate limited",
			err:        errors.Wrap(&services.RateLimitError{RetryAfter: 1500 * time.Millisecond}, "verify"),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   ErrCodeRateLimited,
			check: func(t *testing.T, w *httptest.ResponseRecorder, _ ErrorResponse) {
				if got := w.Header().Get("Retry-After"); got != "2" {
					t.Fatalf("Retry-After=%q", got)
				}
			},
		},
		{
			name:       "slot conflict carries suggestions",
			err:        &services.ConflictError{Suggestions: []services.Slot{{Date: "2025-12-10", Time: "15:00"}}},
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodeConflict,
			wantMsg:    "slot was just taken",
			check: func(t *testing.T, _ *httptest.ResponseRecorder, body ErrorResponse) {
				d, _ := body.Details.(map[string]any)
				if s, _ := d["suggestions"].([]any); len(s) != 1 {
					t.Fatalf("details=%#v", body.Details)
				}
			},
		},
		{
			name:       "missing fields",
			err:        &services.MissingFieldsError{Fields: []string{"date", "time"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   ErrCodeMissingFields,
			check: func(t *testing.T, _ *httptest.ResponseRecorder, body ErrorResponse) {
				d, _ := body.Details.(map[string]any)
				if m, _ := d["missing"].([]any); len(m) != 2 {
					t.Fatalf("details=%#v", body.Details)
				}
			},
		},
		{
			name:       "field validation",
			err:        &services.ValidationError{Field: "phone", Msg: "not a valid phone number"},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
			wantMsg:    "not a valid phone number",
		},
		{
			name:       "classified validation",
			err:        errors.Wrap(services.ErrReceiptMismatch, "verify"),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
			wantMsg:    "receipt does not match the pending payment",
		},
		{
			name:       "malformed extraction",
			err:        malformed,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "not found",
			err:        errors.Wrapf(services.ErrPaymentNotFound, "correlation %s", "ws_CO_1"),
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeNotFound,
			wantMsg:    "no payment to act on",
		},
		{
			name:       "bare conflict",
			err:        services.ErrConflict,
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodeConflict,
		},
		{
			name:       "policy",
			err:        services.ErrChangeTooLate,
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodePolicy,
			wantMsg:    "booking starts too soon to change",
		},
		{
			name:       "gateway",
			err:        errors.Wrap(services.ErrGateway, "push"),
			wantStatus: http.StatusBadGateway,
			wantCode:   ErrCodeGateway,
		},
		{
			name:       "unclassified",
			err:        errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternal,
			wantMsg:    "disk on fire",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { failErr(c, tc.err) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tc.wantStatus {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("json: %v", err)
			}
			if body.Code != tc.wantCode {
				t.Fatalf("code=%q want %q", body.Code, tc.wantCode)
			}
			if tc.wantMsg != "" && body.Message != tc.wantMsg {
				t.Fatalf("message=%q want %q", body.Message, tc.wantMsg)
			}
			if tc.check != nil {
				tc.check(t, w, body)
			}
		})
	}
}
