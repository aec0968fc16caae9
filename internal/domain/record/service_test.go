package record

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/profile"
	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
	"github.com/fisiotrack/fisiotrack/internal/platform/querycache"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	items map[string]*Expediente
}

func newMockRepo() *mockRepo { return &mockRepo{items: map[string]*Expediente{}} }

func (m *mockRepo) Create(_ context.Context, e *Expediente) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.items[e.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Expediente, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepo) filter(keep func(*Expediente) bool, asc bool) []*Expediente {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Expediente
	for _, e := range m.items {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if asc {
			return out[i].FechaCreacion.Before(out[j].FechaCreacion)
		}
		return out[i].FechaCreacion.After(out[j].FechaCreacion)
	})
	return out
}

func (m *mockRepo) ListByTherapist(_ context.Context, uid string) ([]*Expediente, error) {
	return m.filter(func(e *Expediente) bool { return e.TerapeutaUID == uid }, false), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, uid string) ([]*Expediente, error) {
	return m.filter(func(e *Expediente) bool { return e.PacienteUID == uid }, true), nil
}

func (m *mockRepo) UpdateClinical(_ context.Context, e *Expediente) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[e.ID]
	if !ok {
		return ErrRecordNotFound
	}
	cur.Diagnostico, cur.Objetivos, cur.PlanTratamiento = e.Diagnostico, e.Objetivos, e.PlanTratamiento
	return nil
}

type mockProfiles map[string]*profile.UserProfile

func (m mockProfiles) Get(_ context.Context, uid string) (*profile.UserProfile, error) {
	if p, ok := m[uid]; ok {
		return p, nil
	}
	return nil, profile.ErrProfileNotFound
}

func claims(uid, rol string) *auth.Claims {
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}, Rol: rol}
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	profiles := mockProfiles{
		"t1": {UID: "t1", Nombre: "Dra. Ruiz", Rol: "terapeuta"},
		"t2": {UID: "t2", Nombre: "Dr. Gil", Rol: "terapeuta"},
		"p1": {UID: "p1", Nombre: "Ana", Rol: "paciente"},
		"p2": {UID: "p2", Nombre: "Bea", Rol: "paciente"},
	}
	cache := querycache.New(querycache.NewMemoryStore(), time.Minute, zerolog.Nop())
	notifier := querycache.NewNotifier(cache, pubsub.NewMemoryBus(), zerolog.Nop())
	return NewService(repo, profiles, cache, notifier, zerolog.Nop()), repo
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	e, err := svc.Create(ctx, claims("t1", "terapeuta"), CreateRequest{PacienteUID: "p1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Descripcion != DefaultDescripcion || e.TerapeutaUID != "t1" || e.ID == "" {
		t.Errorf("unexpected record %+v", e)
	}

	tests := []struct {
		name   string
		caller *auth.Claims
		req    CreateRequest
		field  string
	}{
		{"short description", claims("t1", "terapeuta"), CreateRequest{PacienteUID: "p1", Descripcion: optional.Some("abc")}, "descripcion"},
		{"unknown patient", claims("t1", "terapeuta"), CreateRequest{PacienteUID: "nadie"}, "pacienteUid"},
		{"therapist as patient", claims("t1", "terapeuta"), CreateRequest{PacienteUID: "t2"}, "pacienteUid"},
		{"missing patient", claims("t1", "terapeuta"), CreateRequest{}, "pacienteUid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.caller, tt.req)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}

	if _, err := svc.Create(ctx, claims("p1", "paciente"), CreateRequest{PacienteUID: "p1"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patient must not create records, got %v", err)
	}
}

func TestGet_Visibility(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, _ := svc.Create(ctx, claims("t1", "terapeuta"), CreateRequest{PacienteUID: "p1", Descripcion: optional.Some("Lumbalgia crónica")})

	for _, c := range []*auth.Claims{claims("t1", "terapeuta"), claims("p1", "paciente")} {
		if _, err := svc.Get(ctx, c, e.ID); err != nil {
			t.Errorf("%s should read the record: %v", c.Subject, err)
		}
	}
	for _, c := range []*auth.Claims{claims("t2", "terapeuta"), claims("p2", "paciente"), nil} {
		if _, err := svc.Get(ctx, c, e.ID); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
	}
	if _, err := svc.Get(ctx, claims("t1", "terapeuta"), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	d, err := svc.Detail(ctx, claims("t1", "terapeuta"), e.ID)
	if err != nil || d.Paciente == nil || d.Paciente.Nombre != "Ana" {
		t.Errorf("Detail = %+v, %v", d, err)
	}
}

func TestListFor(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	repo.items["a"] = &Expediente{ID: "a", PacienteUID: "p1", TerapeutaUID: "t1", FechaCreacion: base}
	repo.items["b"] = &Expediente{ID: "b", PacienteUID: "p1", TerapeutaUID: "t2", FechaCreacion: base.Add(time.Hour)}
	repo.items["c"] = &Expediente{ID: "c", PacienteUID: "p2", TerapeutaUID: "t1", FechaCreacion: base.Add(2 * time.Hour)}

	mine, _ := svc.ListFor(ctx, claims("t1", "terapeuta"))
	if len(mine) != 2 || mine[0].ID != "c" {
		t.Errorf("therapist list newest first, got %v", mine)
	}
	own, _ := svc.ListFor(ctx, claims("p1", "paciente"))
	if len(own) != 2 || own[0].ID != "a" {
		t.Errorf("patient list oldest first, got %v", own)
	}
	primary, err := svc.PrimaryForPatient(ctx, "p1")
	if err != nil || primary.ID != "a" {
		t.Errorf("PrimaryForPatient = %v, %v", primary, err)
	}
	if _, err := svc.PrimaryForPatient(ctx, "p9"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
	if _, err := svc.ListFor(ctx, claims("x", "")); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("roleless caller must be refused, got %v", err)
	}
}

func TestUpdateClinical(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	e, _ := svc.Create(ctx, claims("t1", "terapeuta"), CreateRequest{PacienteUID: "p1"})

	got, err := svc.UpdateClinical(ctx, claims("t1", "terapeuta"), e.ID, ClinicalUpdate{
		Diagnostico: optional.Some(" Tendinopatía rotuliana "),
		Objetivos:   optional.Some("Volver a correr"),
	})
	if err != nil {
		t.Fatalf("UpdateClinical: %v", err)
	}
	if optional.String(got.Diagnostico) != "Tendinopatía rotuliana" {
		t.Errorf("diagnostico = %q", optional.String(got.Diagnostico))
	}

	// Absent fields are kept, blank clears.
	got, _ = svc.UpdateClinical(ctx, claims("t1", "terapeuta"), e.ID, ClinicalUpdate{Objetivos: optional.Some("")})
	if got.Objetivos.IsSet() || !got.Diagnostico.IsSet() {
		t.Errorf("unexpected merge result %+v", got)
	}
	if stored := repo.items[e.ID]; stored.Objetivos.IsSet() {
		t.Error("cleared field still stored")
	}

	if _, err := svc.UpdateClinical(ctx, claims("t2", "terapeuta"), e.ID, ClinicalUpdate{Objetivos: optional.Some("x")}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("non-owner edit must be forbidden, got %v", err)
	}
	if _, err := svc.UpdateClinical(ctx, claims("t1", "terapeuta"), e.ID, ClinicalUpdate{}); !apperr.IsValidation(err) {
		t.Errorf("empty update must be rejected, got %v", err)
	}
}

func TestHandler_Routes(t *testing.T) {
	svc, _ := newTestService()
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

	do := func(method, path, caller, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-Test-Caller", caller)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(http.MethodPost, "/api/v1/expedientes", "p1:paciente", `{"pacienteUid":"p1"}`); rec.Code != http.StatusForbidden {
		t.Errorf("patient create: %d", rec.Code)
	}
	rec := do(http.MethodPost, "/api/v1/expedientes", "t1:terapeuta", `{"pacienteUid":"p1","descripcion":"Esguince de tobillo"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(http.MethodGet, "/api/v1/expedientes", "p1:paciente", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Esguince") {
		t.Errorf("patient list: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(http.MethodPatch, "/api/v1/expedientes/nope", "t1:terapeuta", `{"diagnostico":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("patch missing: %d", rec.Code)
	}
}
