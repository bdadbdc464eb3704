package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"costing/internal/core"
	"costing/internal/finance"
	"costing/internal/services"
	"costing/internal/storage"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		Body(map[string]int{"count": 2}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("custom header not set")
	}
	if strings.TrimSpace(w.Body.String()) != `{"count":2}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Body(map[string]any{"ch": make(chan int)}).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		want    int
	}{
		{"bad request", BadRequestError("x"), http.StatusBadRequest},
		{"not found", NotFoundError("x"), http.StatusNotFound},
		{"conflict", ConflictError("x"), http.StatusConflict},
		{"internal", InternalServerError("x"), http.StatusInternalServerError},
		{"too many", TooManyRequestsError(), http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.want {
				t.Errorf("Status code = %d, want %d", w.Code, tt.want)
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("Body should carry an error field: %s", w.Body.String())
			}
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid form", fmt.Errorf("%w: pax", core.ErrInvalidForm), http.StatusBadRequest},
		{"missing reason", core.ErrMissingReason, http.StatusBadRequest},
		{"unsupported action", services.ErrActionNotAllowed, http.StatusBadRequest},
		{"unknown line", services.ErrUnknownLine, http.StatusBadRequest},
		{"bad body", fmt.Errorf("%w: eof", errInvalidBody), http.StatusBadRequest},
		{"huge body", errBodyTooLarge, http.StatusRequestEntityTooLarge},
		{"busy", services.ErrSaveInProgress, http.StatusConflict},
		{"finance not found", fmt.Errorf("get invoice: %w", finance.NotFound("Invoice")), http.StatusNotFound},
		{"save not found", fmt.Errorf("%w: x", storage.ErrSaveNotFound), http.StatusNotFound},
		{"finance rejection", fmt.Errorf("approve invoice: %w", finance.Rejected("nope")), http.StatusBadRequest},
		{"finance conflict", &finance.APIError{Status: http.StatusConflict, Detail: "version mismatch"}, http.StatusConflict},
		{"finance outage", &finance.APIError{Status: http.StatusBadGateway}, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusForError(tt.err); got != tt.want {
				t.Errorf("StatusForError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorFromErr(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorFromErr(fmt.Errorf("record payment: %w", finance.Rejected("Can only record payments for issued invoices"))).Write(w)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"Can only record payments for issued invoices"`) {
		t.Errorf("finance detail should be passed verbatim: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	ErrorFromErr(errors.New("sql: connection refused")).Write(w)
	if w.Code != http.StatusInternalServerError || strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("internal errors must not leak: %d %s", w.Code, w.Body.String())
	}
}
