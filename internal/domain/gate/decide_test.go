package gate

import (
	"testing"

	"github.com/fisiotrack/fisiotrack/internal/domain/profile"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		phase, path, want string
	}{
		{PhaseLoading, "/terapeuta", ""},
		{PhaseLoading, "/signup", ""},

		{PhaseUnauthenticated, "/", ""},
		{PhaseUnauthenticated, "/signup", ""},
		{PhaseUnauthenticated, "/terapeuta", "/"},
		{PhaseUnauthenticated, "/terapeuta/expedientes/abc", "/"},
		{PhaseUnauthenticated, "/paciente/registrar-avance", "/"},

		{PhaseNoProfile, "/", "/signup"},
		{PhaseNoProfile, "/paciente", "/signup"},
		{PhaseNoProfile, "/signup", ""},

		{PhaseTherapist, "/", "/terapeuta"},
		{PhaseTherapist, "/signup", "/terapeuta"},
		{PhaseTherapist, "/paciente", "/terapeuta"},
		{PhaseTherapist, "/terapeuta/galerias", ""},

		{PhasePatient, "/", "/paciente"},
		{PhasePatient, "/signup", "/paciente"},
		{PhasePatient, "/terapeuta", "/paciente"},
		{PhasePatient, "/terapeuta/pacientes/p2", "/paciente"},
		{PhasePatient, "/paciente/registrar-avance", ""},
	}
	for _, tt := range tests {
		if got := Decide(tt.phase, tt.path); got != tt.want {
			t.Errorf("Decide(%s, %s) = %q, want %q", tt.phase, tt.path, got, tt.want)
		}
	}
}

func TestDecide_RedirectIsStable(t *testing.T) {
	phases := []string{PhaseLoading, PhaseUnauthenticated, PhaseNoProfile, PhaseTherapist, PhasePatient}
	paths := []string{"/", "/signup", "/signup/x", "/terapeuta", "/terapeuta/a", "/paciente", "/paciente/b", "/otra"}
	for _, phase := range phases {
		for _, path := range paths {
			target := Decide(phase, path)
			if target == "" {
				continue
			}
			if again := Decide(phase, target); again != "" {
				t.Errorf("%s: %s -> %s -> %s", phase, path, target, again)
			}
		}
	}
}

func TestPhaseFor(t *testing.T) {
	tests := []struct {
		p    *profile.UserProfile
		want string
	}{
		{nil, PhaseNoProfile},
		{&profile.UserProfile{Rol: "terapeuta"}, PhaseTherapist},
		{&profile.UserProfile{Rol: "paciente"}, PhasePatient},
		{&profile.UserProfile{Rol: "admin"}, PhaseNoProfile},
		{&profile.UserProfile{}, PhaseNoProfile},
	}
	for _, tt := range tests {
		if got := PhaseFor(tt.p); got != tt.want {
			t.Errorf("PhaseFor(%+v) = %s, want %s", tt.p, got, tt.want)
		}
	}
}
