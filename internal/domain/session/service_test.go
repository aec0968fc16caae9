package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/record"
	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
	"github.com/fisiotrack/fisiotrack/internal/platform/querycache"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	items map[string]*Sesion
}

func newMockRepo() *mockRepo { return &mockRepo{items: map[string]*Sesion{}} }

func (m *mockRepo) Create(_ context.Context, s *Sesion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Sesion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) filter(keep func(*Sesion) bool) []*Sesion {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Sesion
	for _, s := range m.items {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fecha.Before(out[j].Fecha) })
	return out
}

func (m *mockRepo) ListByRecord(_ context.Context, id string) ([]*Sesion, error) {
	return m.filter(func(s *Sesion) bool { return s.ExpedienteID == id }), nil
}

func (m *mockRepo) ListByTherapist(_ context.Context, uid, estado string) ([]*Sesion, error) {
	return m.filter(func(s *Sesion) bool { return s.TerapeutaUID == uid && (estado == "" || s.Estado == estado) }), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, uid string) ([]*Sesion, error) {
	return m.filter(func(s *Sesion) bool { return s.PacienteUID == uid }), nil
}

func (m *mockRepo) Transition(_ context.Context, s *Sesion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[s.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if cur.Estado != EstadoAgendada {
		return ErrTerminalState
	}
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

type mockRecords map[string]*record.Expediente

func (m mockRecords) Load(_ context.Context, id string) (*record.Expediente, error) {
	if e, ok := m[id]; ok {
		return e, nil
	}
	return nil, record.ErrRecordNotFound
}

type countingRecorder struct {
	mu sync.Mutex
	to map[string]int
}

func (r *countingRecorder) SessionTransition(to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to[to]++
}

// Fixed clock for the date guard.
var testNow = time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)

func claims(uid, rol string) *auth.Claims {
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}, Rol: rol}
}

func newTestService() (*Service, *mockRepo, *countingRecorder) {
	repo := newMockRepo()
	records := mockRecords{
		"e1": {ID: "e1", PacienteUID: "p1", TerapeutaUID: "t1", Descripcion: "Expediente inicial"},
		"e2": {ID: "e2", PacienteUID: "p2", TerapeutaUID: "t2", Descripcion: "Expediente inicial"},
	}
	cache := querycache.New(querycache.NewMemoryStore(), time.Minute, zerolog.Nop())
	notifier := querycache.NewNotifier(cache, pubsub.NewMemoryBus(), zerolog.Nop())
	rec := &countingRecorder{to: map[string]int{}}
	svc := NewService(repo, records, nil, cache, notifier, rec, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc, repo, rec
}

func virtualAt(t time.Time) ScheduleRequest {
	return ScheduleRequest{ExpedienteID: "e1", Fecha: t, Modalidad: ModalidadVirtual}
}

func validCompletion() CompleteRequest {
	return CompleteRequest{Notas: "Buena evolución", DolorInicial: optional.Some(6), DolorFinal: optional.Some(3)}
}

func TestSchedule_Validation(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	therapist := claims("t1", "terapeuta")

	tests := []struct {
		name  string
		req   ScheduleRequest
		field string
	}{
		{"missing expediente", ScheduleRequest{Fecha: testNow, Modalidad: ModalidadVirtual}, "expedienteId"},
		{"missing fecha", ScheduleRequest{ExpedienteID: "e1", Modalidad: ModalidadVirtual}, "fecha"},
		{"two days ago", virtualAt(testNow.AddDate(0, 0, -2)), "fecha"},
		{"missing modalidad", ScheduleRequest{ExpedienteID: "e1", Fecha: testNow}, "modalidad"},
		{"unknown modalidad", ScheduleRequest{ExpedienteID: "e1", Fecha: testNow, Modalidad: "telefono"}, "modalidad"},
		{"presencial without ubicacion", ScheduleRequest{ExpedienteID: "e1", Fecha: testNow, Modalidad: ModalidadPresencial}, "ubicacion"},
		{"presencial with blank ubicacion", ScheduleRequest{ExpedienteID: "e1", Fecha: testNow, Modalidad: ModalidadPresencial, Ubicacion: optional.Some("   ")}, "ubicacion"},
		{"unknown expediente", ScheduleRequest{ExpedienteID: "nope", Fecha: testNow, Modalidad: ModalidadVirtual}, "expedienteId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Schedule(ctx, therapist, tt.req)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
	if len(repo.items) != 0 {
		t.Errorf("rejected requests stored %d sessions", len(repo.items))
	}
}

func TestSchedule_DateGuard(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	yesterdayMorning := time.Date(2026, 5, 19, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Schedule(ctx, claims("t1", "terapeuta"), virtualAt(yesterdayMorning)); err != nil {
		t.Errorf("start of yesterday must be accepted: %v", err)
	}
	if _, err := svc.Schedule(ctx, claims("t1", "terapeuta"), virtualAt(yesterdayMorning.Add(-time.Second))); !apperr.IsValidation(err) {
		t.Errorf("before yesterday must be rejected, got %v", err)
	}
}

func TestSchedule_CopiesIdsAndAuthorizes(t *testing.T) {
	svc, _, rec := newTestService()
	ctx := context.Background()

	s, err := svc.Schedule(ctx, claims("t1", "terapeuta"), ScheduleRequest{
		ExpedienteID: "e1", Fecha: testNow.Add(24 * time.Hour), Modalidad: ModalidadPresencial, Ubicacion: optional.Some(" Consultorio 2 "),
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if s.PacienteUID != "p1" || s.TerapeutaUID != "t1" || s.Estado != EstadoAgendada {
		t.Errorf("unexpected session %+v", s)
	}
	if optional.String(s.Ubicacion) != "Consultorio 2" {
		t.Errorf("ubicacion = %q", optional.String(s.Ubicacion))
	}
	if rec.to[EstadoAgendada] != 1 {
		t.Errorf("scheduled count = %d", rec.to[EstadoAgendada])
	}

	if _, err := svc.Schedule(ctx, claims("t2", "terapeuta"), virtualAt(testNow)); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("other therapist's expediente: got %v", err)
	}
	if _, err := svc.Schedule(ctx, claims("p1", "paciente"), virtualAt(testNow)); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patient scheduling: got %v", err)
	}
}

func TestTransitions_TerminalStates(t *testing.T) {
	svc, _, rec := newTestService()
	ctx := context.Background()
	therapist := claims("t1", "terapeuta")

	a, _ := svc.Schedule(ctx, therapist, virtualAt(testNow))
	b, _ := svc.Schedule(ctx, therapist, virtualAt(testNow.Add(time.Hour)))

	done, err := svc.Complete(ctx, therapist, a.ID, validCompletion())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Estado != EstadoCompletada || optional.String(done.NotasTerapeuta) != "Buena evolución" {
		t.Errorf("unexpected completed session %+v", done)
	}
	if _, err := svc.Cancel(ctx, therapist, b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	for _, id := range []string{a.ID, b.ID} {
		if _, err := svc.Cancel(ctx, therapist, id); !errors.Is(err, ErrTerminalState) {
			t.Errorf("cancel terminal %s: got %v", id, err)
		}
		if _, err := svc.Complete(ctx, therapist, id, validCompletion()); !errors.Is(err, ErrTerminalState) {
			t.Errorf("complete terminal %s: got %v", id, err)
		}
	}
	if rec.to[EstadoCompletada] != 1 || rec.to[EstadoCancelada] != 1 {
		t.Errorf("transition counts = %v", rec.to)
	}
}

func TestTransitions_ConcurrentOnlyOneWins(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	therapist := claims("t1", "terapeuta")
	s, _ := svc.Schedule(ctx, therapist, virtualAt(testNow))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Complete(ctx, therapist, s.ID, validCompletion())
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Cancel(ctx, therapist, s.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, ErrTerminalState):
			t.Errorf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winning transition, got %d", wins)
	}
	if repo.items[s.ID].Estado == EstadoAgendada {
		t.Error("session still agendada")
	}
}

func TestComplete_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	therapist := claims("t1", "terapeuta")
	s, _ := svc.Schedule(ctx, therapist, virtualAt(testNow))

	tests := []struct {
		name  string
		edit  func(r *CompleteRequest)
		field string
	}{
		{"missing notas", func(r *CompleteRequest) { r.Notas = "  " }, "notas"},
		{"missing dolorInicial", func(r *CompleteRequest) { r.DolorInicial = optional.None[int]() }, "dolorInicial"},
		{"dolorFinal above 10", func(r *CompleteRequest) { r.DolorFinal = optional.Some(11) }, "dolorFinal"},
		{"negative dolorInicial", func(r *CompleteRequest) { r.DolorInicial = optional.Some(-1) }, "dolorInicial"},
		{"bad progreso", func(r *CompleteRequest) { r.ProgresoPercibido = optional.Some("mucho") }, "progresoPercibido"},
		{"bad animo", func(r *CompleteRequest) { r.EstadoAnimoObservado = optional.Some("feliz") }, "estadoAnimoObservado"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCompletion()
			tt.edit(&req)
			_, err := svc.Complete(ctx, therapist, s.ID, req)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}

	req := validCompletion()
	req.ProgresoPercibido = optional.Some("mejoria-leve")
	req.EstadoAnimoObservado = optional.Some("bien")
	if _, err := svc.Complete(ctx, therapist, s.ID, req); err != nil {
		t.Errorf("valid completion rejected: %v", err)
	}
}

func TestPatientsReadButNeverMutate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	s, _ := svc.Schedule(ctx, claims("t1", "terapeuta"), virtualAt(testNow))
	patient := claims("p1", "paciente")

	if _, err := svc.Get(ctx, patient, s.ID); err != nil {
		t.Errorf("patient Get: %v", err)
	}
	if _, err := svc.Get(ctx, claims("p2", "paciente"), s.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("stranger Get: got %v", err)
	}
	if _, err := svc.Cancel(ctx, patient, s.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patient Cancel: got %v", err)
	}
	if _, err := svc.Complete(ctx, patient, s.ID, validCompletion()); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patient Complete: got %v", err)
	}
	if _, err := svc.Cancel(ctx, claims("t2", "terapeuta"), s.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("other therapist Cancel: got %v", err)
	}
}

// Scenario D: schedule, complete, then the patient sees the finished session.
func TestScenarioD(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	therapist := claims("t1", "terapeuta")

	if _, err := svc.Schedule(ctx, therapist, ScheduleRequest{ExpedienteID: "e1", Fecha: testNow.Add(48 * time.Hour), Modalidad: ModalidadPresencial}); !apperr.IsValidation(err) {
		t.Fatalf("presencial without ubicacion must fail, got %v", err)
	}
	later, _ := svc.Schedule(ctx, therapist, virtualAt(testNow.Add(48*time.Hour)))
	sooner, _ := svc.Schedule(ctx, therapist, virtualAt(testNow.Add(2*time.Hour)))

	list, _ := svc.ListFor(ctx, therapist, EstadoAgendada)
	if len(list) != 2 || list[0].ID != sooner.ID {
		t.Fatalf("therapist agenda not sorted by fecha: %v", list)
	}
	if _, err := svc.Complete(ctx, therapist, sooner.ID, validCompletion()); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	agenda, _ := svc.ListFor(ctx, therapist, EstadoAgendada)
	if len(agenda) != 1 || agenda[0].ID != later.ID {
		t.Errorf("agenda after completion = %v", agenda)
	}
	own, _ := svc.ListFor(ctx, claims("p1", "paciente"), "")
	if len(own) != 2 || own[0].Estado != EstadoCompletada {
		t.Errorf("patient view = %v", own)
	}
	byRecord, err := svc.ListByRecord(ctx, claims("p1", "paciente"), "e1")
	if err != nil || len(byRecord) != 2 {
		t.Errorf("ListByRecord = %v, %v", byRecord, err)
	}
	if _, err := svc.ListByRecord(ctx, claims("p2", "paciente"), "e1"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("stranger ListByRecord: got %v", err)
	}
	if _, err := svc.ListFor(ctx, therapist, "pendiente"); !apperr.IsValidation(err) {
		t.Errorf("unknown estado filter: got %v", err)
	}
	if up := Upcoming(own, testNow); len(up) != 1 || up[0].ID != later.ID {
		t.Errorf("Upcoming = %v", up)
	}
}
