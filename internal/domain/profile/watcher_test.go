package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type snapshot struct {
	p   *UserProfile
	err error
}

func collect(w *Watcher, uid string) (<-chan snapshot, func()) {
	ch := make(chan snapshot, 16)
	cancel := w.Watch(context.Background(), uid, func(p *UserProfile, err error) {
		ch <- snapshot{p, err}
	})
	return ch, cancel
}

func next(t *testing.T, ch <-chan snapshot) snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
	return snapshot{}
}

func TestWatch_DeliversAbsentThenCreated(t *testing.T) {
	svc, repo, _, bus := newTestService()
	w := NewWatcher(repo, bus, zerolog.Nop())

	ch, cancel := collect(w, "u1")
	defer cancel()

	if s := next(t, ch); s.p != nil || s.err != nil {
		t.Fatalf("expected absent snapshot first, got %+v", s)
	}

	if err := svc.Put(context.Background(), &UserProfile{UID: "u1", Nombre: "Ana", Email: "a@x.com", Rol: "paciente"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s := next(t, ch)
	if s.p == nil || s.p.Rol != "paciente" {
		t.Fatalf("expected created profile, got %+v", s)
	}

	svc.Delete(context.Background(), "u1")
	if s := next(t, ch); s.p != nil {
		t.Fatalf("expected absent after delete, got %+v", s.p)
	}
}

func TestWatch_IgnoresOtherProfiles(t *testing.T) {
	svc, repo, _, bus := newTestService()
	w := NewWatcher(repo, bus, zerolog.Nop())

	ch, cancel := collect(w, "u1")
	defer cancel()
	next(t, ch)

	svc.Put(context.Background(), &UserProfile{UID: "u2", Nombre: "Eva", Email: "e@x.com", Rol: "paciente"})
	select {
	case s := <-ch:
		t.Fatalf("unexpected snapshot for another profile: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_ReportsReadErrors(t *testing.T) {
	_, repo, _, bus := newTestService()
	repo.getErr = errors.New("store unavailable")
	w := NewWatcher(repo, bus, zerolog.Nop())

	ch, cancel := collect(w, "u1")
	defer cancel()
	if s := next(t, ch); s.err == nil {
		t.Fatal("expected read error delivered")
	}
}

func TestWatch_CancelStopsDelivery(t *testing.T) {
	svc, repo, _, bus := newTestService()
	w := NewWatcher(repo, bus, zerolog.Nop())

	ch, cancel := collect(w, "u1")
	next(t, ch)
	cancel()
	cancel()

	if n := bus.TopicCount("usuarios/u1"); n != 0 {
		t.Fatalf("expected subscription released, %d left", n)
	}
	svc.Put(context.Background(), &UserProfile{UID: "u1", Nombre: "Ana", Email: "a@x.com", Rol: "paciente"})
	select {
	case s := <-ch:
		t.Fatalf("snapshot after cancel: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}
