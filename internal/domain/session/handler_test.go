package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
)

func newTestServer(svc *Service) *echo.Echo {
	e := echo.New()
	api := e.Group("/api/v1")
	api.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, rol, _ := strings.Cut(c.Request().Header.Get("X-Test-Caller"), ":")
			ctx := auth.WithClaims(c.Request().Context(), claims(uid, rol))
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(api)
	return e
}

func call(e *echo.Echo, method, path, caller, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Test-Caller", caller)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Lifecycle(t *testing.T) {
	svc, _, _ := newTestService()
	e := newTestServer(svc)

	rec := call(e, http.MethodPost, "/api/v1/sesiones", "t1:terapeuta",
		`{"expedienteId":"e1","fecha":"2026-05-21T09:00:00Z","modalidad":"presencial"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "ubicacion") {
		t.Fatalf("missing ubicacion: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(e, http.MethodPost, "/api/v1/sesiones", "t1:terapeuta",
		`{"expedienteId":"e1","fecha":"2026-05-21T09:00:00Z","modalidad":"presencial","ubicacion":"Sala 1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("schedule: %d %s", rec.Code, rec.Body.String())
	}
	var s Sesion
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if rec := call(e, http.MethodPost, "/api/v1/sesiones/"+s.ID+"/cancelar", "p1:paciente", ""); rec.Code != http.StatusForbidden {
		t.Errorf("patient cancel: %d", rec.Code)
	}
	if rec := call(e, http.MethodPost, "/api/v1/sesiones/"+s.ID+"/completar", "t1:terapeuta", `{"notas":"ok","dolorInicial":5,"dolorFinal":2}`); rec.Code != http.StatusOK {
		t.Errorf("complete: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(e, http.MethodPost, "/api/v1/sesiones/"+s.ID+"/cancelar", "t1:terapeuta", ""); rec.Code != http.StatusConflict {
		t.Errorf("cancel completed: %d", rec.Code)
	}
	if rec := call(e, http.MethodGet, "/api/v1/sesiones/missing", "t1:terapeuta", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get missing: %d", rec.Code)
	}

	rec = call(e, http.MethodGet, "/api/v1/expedientes/e1/sesiones", "p1:paciente", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"completada"`) {
		t.Errorf("record sessions: %d %s", rec.Code, rec.Body.String())
	}
	rec = call(e, http.MethodGet, "/api/v1/sesiones?estado=agendada", "t1:terapeuta", "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), s.ID) {
		t.Errorf("agenda filter: %d %s", rec.Code, rec.Body.String())
	}
}
