package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHTTP(t *testing.T) {
	errTerminal := fmt.Errorf("%w: session already closed", ErrConflict)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Invalid("ubicacion", "is required"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("schedule: %w", Invalid("fecha", "too early")), http.StatusBadRequest},
		{"not found", fmt.Errorf("sesion s1: %w", ErrNotFound), http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"conflict", errTerminal, http.StatusConflict},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"http error passthrough", echo.NewHTTPError(http.StatusTeapot, "x"), http.StatusTeapot},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTP(tt.err).Code; got != tt.want {
				t.Errorf("HTTP(%v) code = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTP_ValidationBodyNamesField(t *testing.T) {
	he := HTTP(Invalid("ubicacion", "is required for presencial sessions"))
	body, ok := he.Message.(map[string]string)
	if !ok {
		t.Fatalf("expected map body, got %T", he.Message)
	}
	if body["field"] != "ubicacion" || body["message"] == "" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHTTP_UnknownHidesCause(t *testing.T) {
	he := HTTP(errors.New("pq: password authentication failed"))
	if he.Message != "operation failed" {
		t.Errorf("cause leaked to client: %v", he.Message)
	}
	if he.Internal == nil {
		t.Error("expected cause kept as internal error")
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(fmt.Errorf("x: %w", Invalid("a", "b"))) {
		t.Error("wrapped validation not detected")
	}
	if IsValidation(ErrNotFound) {
		t.Error("not found misdetected as validation")
	}
}
