package profile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/identity"
	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
	"github.com/fisiotrack/fisiotrack/internal/platform/querycache"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

// -- Mock Repository --

type mockRepo struct {
	mu        sync.Mutex
	profiles  map[string]*UserProfile
	listCalls int
	getErr    error
}

func newMockRepo() *mockRepo {
	return &mockRepo{profiles: make(map[string]*UserProfile)}
}

func (m *mockRepo) Create(_ context.Context, p *UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UID]; ok {
		return ErrProfileExists
	}
	cp := *p
	m.profiles[p.UID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, uid string) (*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[uid]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) ListByRole(_ context.Context, rol string) ([]*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []*UserProfile
	for _, p := range m.profiles {
		if p.Rol == rol {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nombre < out[j].Nombre })
	return out, nil
}

func (m *mockRepo) Delete(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, uid)
	return nil
}

type mockClaims struct {
	stamped map[string]string
	err     error
}

func (m *mockClaims) SetClaims(_ context.Context, uid string, c identity.Claims) error {
	if m.err != nil {
		return m.err
	}
	m.stamped[uid] = c.Rol
	return nil
}

func newTestService() (*Service, *mockRepo, *mockClaims, *pubsub.MemoryBus) {
	repo := newMockRepo()
	claims := &mockClaims{stamped: map[string]string{}}
	bus := pubsub.NewMemoryBus()
	cache := querycache.New(querycache.NewMemoryStore(), time.Minute, zerolog.Nop())
	notifier := querycache.NewNotifier(cache, bus, zerolog.Nop())
	return NewService(repo, cache, notifier, claims, "ES", zerolog.Nop()), repo, claims, bus
}

func callerClaims(uid, email, rol string) *auth.Claims {
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}, Email: email, Rol: rol}
}

func TestPut_CreateOnly(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	p := &UserProfile{UID: "t1", Nombre: "Dra. Ruiz", Email: "r@x.com", Rol: "terapeuta"}
	if err := svc.Put(ctx, p); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if p.FechaRegistro.IsZero() {
		t.Error("expected registration timestamp")
	}
	again := &UserProfile{UID: "t1", Nombre: "Otro", Email: "o@x.com", Rol: "paciente"}
	if err := svc.Put(ctx, again); !errors.Is(err, ErrProfileExists) {
		t.Errorf("expected ErrProfileExists, got %v", err)
	}
	got, _ := svc.Get(ctx, "t1")
	if got.Rol != "terapeuta" {
		t.Error("role must not change after creation")
	}
}

func TestPut_RejectsUnknownRole(t *testing.T) {
	svc, repo, _, _ := newTestService()
	err := svc.Put(context.Background(), &UserProfile{UID: "x", Nombre: "Xavier", Email: "x@x.com", Rol: "admin"})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.profiles) != 0 {
		t.Error("no profile may be written with an unknown role")
	}
}

func TestListByRole_CachedAndInvalidated(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	svc.Put(ctx, &UserProfile{UID: "p1", Nombre: "Bea", Email: "b@x.com", Rol: "paciente"})
	first, err := svc.ListByRole(ctx, "paciente")
	if err != nil || len(first) != 1 {
		t.Fatalf("ListByRole = %v, %v", first, err)
	}
	svc.ListByRole(ctx, "paciente")
	if repo.listCalls != 1 {
		t.Errorf("expected second list served from cache, repo called %d times", repo.listCalls)
	}

	svc.Put(ctx, &UserProfile{UID: "p2", Nombre: "Ana", Email: "a@x.com", Rol: "paciente"})
	after, _ := svc.ListByRole(ctx, "paciente")
	if len(after) != 2 || after[0].Nombre != "Ana" {
		t.Errorf("expected fresh sorted list after write, got %v", after)
	}
	if repo.listCalls != 2 {
		t.Errorf("expected cache invalidated by write, repo called %d times", repo.listCalls)
	}

	if _, err := svc.ListByRole(ctx, "admin"); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for unknown role, got %v", err)
	}
}

func TestCompleteProfile_StampsMissingClaim(t *testing.T) {
	svc, repo, claims, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CompleteProfile(ctx, callerClaims("u1", "u1@x.com", ""), CompleteRequest{
		Nombre: "Ana",
		Rol:    "paciente",
		InformacionMedica: optional.Some(InformacionMedica{
			ContactoEmergencia: optional.Some(ContactoEmergencia{Nombre: "Luis", Telefono: "612345678"}),
		}),
	})
	if err != nil {
		t.Fatalf("CompleteProfile: %v", err)
	}
	if p.Email != "u1@x.com" || p.UID != "u1" {
		t.Errorf("profile must be keyed by the caller identity, got %+v", p)
	}
	if claims.stamped["u1"] != "paciente" {
		t.Errorf("expected claim stamped, got %v", claims.stamped)
	}
	if _, ok := repo.profiles["u1"]; !ok {
		t.Error("profile not written")
	}
}

func TestCompleteProfile_Rules(t *testing.T) {
	svc, repo, claims, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CompleteProfile(ctx, callerClaims("u1", "u1@x.com", ""), CompleteRequest{Nombre: "Ana", Rol: "paciente"})
	if fieldOf(err) != "contactoEmergenciaNombre" {
		t.Errorf("patient completion needs emergency contact, got %v", err)
	}

	_, err = svc.CompleteProfile(ctx, callerClaims("u2", "u2@x.com", "paciente"), CompleteRequest{Nombre: "Eva", Rol: "terapeuta"})
	if fieldOf(err) != "rol" {
		t.Errorf("stamped claim must win over requested role, got %v", err)
	}

	p, err := svc.CompleteProfile(ctx, callerClaims("u3", "u3@x.com", "terapeuta"), CompleteRequest{Nombre: "Dra. Ruiz", Rol: "terapeuta"})
	if err != nil || p.Rol != "terapeuta" {
		t.Fatalf("CompleteProfile: %v, %v", p, err)
	}
	if _, stamped := claims.stamped["u3"]; stamped {
		t.Error("existing claim must not be re-stamped")
	}

	_, err = svc.CompleteProfile(ctx, callerClaims("u3", "u3@x.com", "terapeuta"), CompleteRequest{Nombre: "Dra. Ruiz", Rol: "terapeuta"})
	if !errors.Is(err, ErrProfileExists) {
		t.Errorf("expected ErrProfileExists on second completion, got %v", err)
	}

	if _, err := svc.CompleteProfile(ctx, nil, CompleteRequest{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden without caller, got %v", err)
	}
	if len(repo.profiles) != 1 {
		t.Errorf("expected exactly one profile written, got %d", len(repo.profiles))
	}
}

func TestCompleteProfile_ClaimFailureWritesNothing(t *testing.T) {
	svc, repo, claims, _ := newTestService()
	claims.err = errors.New("identity store down")

	_, err := svc.CompleteProfile(context.Background(), callerClaims("u1", "u1@x.com", ""), CompleteRequest{Nombre: "Dra. Ruiz", Rol: "terapeuta"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(repo.profiles) != 0 {
		t.Error("profile must not be written when the claim cannot be stamped")
	}
}
