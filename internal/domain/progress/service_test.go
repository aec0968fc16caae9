package progress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/record"
	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
	"github.com/fisiotrack/fisiotrack/internal/platform/querycache"
	"github.com/fisiotrack/fisiotrack/internal/platform/summarizer"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	items map[string]*Avance
}

func newMockRepo() *mockRepo { return &mockRepo{items: map[string]*Avance{}} }

func (m *mockRepo) Create(_ context.Context, a *Avance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Avance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrProgressNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) filter(keep func(*Avance) bool) []*Avance {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Avance
	for _, a := range m.items {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FechaRegistro.After(out[j].FechaRegistro) })
	return out
}

func (m *mockRepo) ListByPatient(_ context.Context, uid string) ([]*Avance, error) {
	return m.filter(func(a *Avance) bool { return a.PacienteUID == uid }), nil
}

func (m *mockRepo) ListByRecord(_ context.Context, id string) ([]*Avance, error) {
	return m.filter(func(a *Avance) bool { return a.ExpedienteID == id }), nil
}

func (m *mockRepo) ListByTherapist(_ context.Context, uid string) ([]*Avance, error) {
	return m.filter(func(a *Avance) bool { return a.TerapeutaUID == uid }), nil
}

type mockRecords map[string]*record.Expediente

func (m mockRecords) Load(_ context.Context, id string) (*record.Expediente, error) {
	if e, ok := m[id]; ok {
		return e, nil
	}
	return nil, record.ErrRecordNotFound
}

func (m mockRecords) PrimaryForPatient(_ context.Context, uid string) (*record.Expediente, error) {
	var found *record.Expediente
	for _, e := range m {
		if e.PacienteUID == uid && (found == nil || e.FechaCreacion.Before(found.FechaCreacion)) {
			found = e
		}
	}
	if found == nil {
		return nil, record.ErrRecordNotFound
	}
	return found, nil
}

type fakeSummarizer struct {
	got summarizer.Report
	sum *summarizer.Summary
	err error
}

func (f *fakeSummarizer) Summarize(_ context.Context, r summarizer.Report) (*summarizer.Summary, error) {
	f.got = r
	return f.sum, f.err
}

func claims(uid, rol string) *auth.Claims {
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}, Rol: rol}
}

func validPayload() Payload {
	return Payload{
		DolorInicial:         7,
		DolorFinal:           4,
		UbicacionDolor:       "Rodilla derecha",
		EjerciciosRealizados: "Sentadillas isométricas",
		DiasEjercicio:        5,
		MovilidadPercibida:   "Más flexible",
		Fatiga:               3,
		EstadoAnimo:          "bien",
		Motivacion:           8,
		ComentarioPaciente:   optional.Some("Me duele al subir escaleras"),
	}
}

func newTestService(summ Summarizer) (*Service, *mockRepo) {
	repo := newMockRepo()
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	records := mockRecords{
		"e-old": {ID: "e-old", PacienteUID: "p1", TerapeutaUID: "t1", FechaCreacion: base},
		"e-new": {ID: "e-new", PacienteUID: "p1", TerapeutaUID: "t2", FechaCreacion: base.Add(time.Hour)},
	}
	cache := querycache.New(querycache.NewMemoryStore(), time.Minute, zerolog.Nop())
	notifier := querycache.NewNotifier(cache, pubsub.NewMemoryBus(), zerolog.Nop())
	return NewService(repo, records, nil, summ, cache, notifier, nil, zerolog.Nop()), repo
}

func TestCreate_RoundTrip(t *testing.T) {
	svc, _ := newTestService(&fakeSummarizer{})
	ctx := context.Background()
	patient := claims("p1", "paciente")

	in := validPayload()
	a, err := svc.Create(ctx, patient, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ExpedienteID != "e-old" || a.TerapeutaUID != "t1" {
		t.Errorf("avance attached to %s/%s, want the first expediente", a.ExpedienteID, a.TerapeutaUID)
	}
	if a.TipoRegistro != TipoAuto || a.RegistradoPor != "p1" || a.FechaRegistro.IsZero() {
		t.Errorf("unexpected server fields %+v", a)
	}

	got, err := svc.Get(ctx, patient, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got.Payload, in) {
		t.Errorf("payload round trip mismatch:\n got %+v\nwant %+v", got.Payload, in)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, repo := newTestService(&fakeSummarizer{})
	ctx := context.Background()

	tests := []struct {
		name  string
		edit  func(p *Payload)
		field string
	}{
		{"dolor above 10", func(p *Payload) { p.DolorInicial = 11 }, "dolorInicial"},
		{"negative dolorFinal", func(p *Payload) { p.DolorFinal = -1 }, "dolorFinal"},
		{"eight days", func(p *Payload) { p.DiasEjercicio = 8 }, "diasEjercicio"},
		{"fatiga above 10", func(p *Payload) { p.Fatiga = 12 }, "fatiga"},
		{"motivacion below 0", func(p *Payload) { p.Motivacion = -2 }, "motivacion"},
		{"short ubicacion", func(p *Payload) { p.UbicacionDolor = " ab " }, "ubicacionDolor"},
		{"short ejercicios", func(p *Payload) { p.EjerciciosRealizados = "" }, "ejerciciosRealizados"},
		{"short movilidad", func(p *Payload) { p.MovilidadPercibida = "ok" }, "movilidadPercibida"},
		{"missing animo", func(p *Payload) { p.EstadoAnimo = "" }, "estadoAnimo"},
		{"unknown animo", func(p *Payload) { p.EstadoAnimo = "genial" }, "estadoAnimo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.edit(&p)
			_, err := svc.Create(ctx, claims("p1", "paciente"), p)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
	if len(repo.items) != 0 {
		t.Errorf("rejected payloads stored %d avances", len(repo.items))
	}
}

func TestCreate_Authorization(t *testing.T) {
	svc, _ := newTestService(&fakeSummarizer{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, claims("t1", "terapeuta"), validPayload()); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("therapist create: got %v", err)
	}
	if _, err := svc.Create(ctx, claims("p9", "paciente"), validPayload()); !apperr.IsValidation(err) {
		t.Errorf("patient without expediente: got %v", err)
	}
}

func TestListsAndVisibility(t *testing.T) {
	svc, _ := newTestService(&fakeSummarizer{})
	ctx := context.Background()
	a, _ := svc.Create(ctx, claims("p1", "paciente"), validPayload())

	if items, _ := svc.ListFor(ctx, claims("t1", "terapeuta")); len(items) != 1 {
		t.Errorf("therapist list = %d", len(items))
	}
	if items, _ := svc.ListFor(ctx, claims("t2", "terapeuta")); len(items) != 0 {
		t.Errorf("unrelated therapist list = %d", len(items))
	}
	if items, err := svc.ListByRecord(ctx, claims("t1", "terapeuta"), "e-old"); err != nil || len(items) != 1 {
		t.Errorf("ListByRecord = %v, %v", items, err)
	}
	if _, err := svc.Get(ctx, claims("t2", "terapeuta"), a.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("unrelated therapist Get: got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	fake := &fakeSummarizer{sum: &summarizer.Summary{Resumen: "Mejora", PuntosClave: []string{"a", "b", "c"}, Sugerencia: "Progresar carga"}}
	svc, _ := newTestService(fake)
	ctx := context.Background()
	a, _ := svc.Create(ctx, claims("p1", "paciente"), validPayload())

	sum, err := svc.Summarize(ctx, claims("t1", "terapeuta"), a.ID)
	if err != nil || sum.Resumen != "Mejora" {
		t.Fatalf("Summarize = %v, %v", sum, err)
	}
	if fake.got.UbicacionDolor != "Rodilla derecha" || fake.got.ComentarioPaciente != "Me duele al subir escaleras" {
		t.Errorf("summarizer received %+v", fake.got)
	}
	if _, err := svc.Summarize(ctx, claims("t2", "terapeuta"), a.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("unrelated therapist: got %v", err)
	}

	fake.err = summarizer.ErrDisabled
	if _, err := svc.Summarize(ctx, claims("t1", "terapeuta"), a.ID); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("disabled summarizer: got %v", err)
	}
}

func TestHandler_DisabledSummarizerIs503(t *testing.T) {
	svc, _ := newTestService(summarizer.New(summarizer.Config{}))
	e := echo.New()
	api := e.Group("/api/v1")
	api.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, rol, _ := strings.Cut(c.Request().Header.Get("X-Test-Caller"), ":")
			c.SetRequest(c.Request().WithContext(auth.WithClaims(c.Request().Context(), claims(uid, rol))))
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

	body := `{"dolorInicial":5,"dolorFinal":3,"ubicacionDolor":"Hombro","ejerciciosRealizados":"Péndulos",
		"diasEjercicio":4,"movilidadPercibida":"Mejor","fatiga":2,"estadoAnimo":"regular","motivacion":7}`
	if rec := do(http.MethodPost, "/api/v1/avances", "t1:terapeuta", body); rec.Code != http.StatusForbidden {
		t.Errorf("therapist create: %d", rec.Code)
	}
	rec := do(http.MethodPost, "/api/v1/avances", "p1:paciente", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	items, _ := svc.ListByPatient(context.Background(), "p1")
	if len(items) != 1 {
		t.Fatalf("stored %d avances", len(items))
	}
	if rec := do(http.MethodPost, "/api/v1/avances/"+items[0].ID+"/resumen", "t1:terapeuta", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("summary with no endpoint: %d", rec.Code)
	}
}
