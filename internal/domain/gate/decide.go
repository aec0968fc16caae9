// Package gate turns identity and profile state into a navigable phase and
// the redirect a client must follow. One Gate runs per client connection.
package gate

import (
	"strings"

	"github.com/fisiotrack/fisiotrack/internal/domain/profile"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
)

// Phases.
const (
	PhaseLoading         = "loading"
	PhaseUnauthenticated = "unauthenticated"
	PhaseNoProfile       = "authenticated-no-profile"
	PhaseTherapist       = "authenticated-therapist"
	PhasePatient         = "authenticated-patient"
)

// Routes the gate redirects to.
const (
	PathPublic        = "/"
	PathSignup        = "/signup"
	PathTherapistHome = "/terapeuta"
	PathPatientHome   = "/paciente"
)

// PhaseFor maps a signed-in identity's profile to its phase. A missing
// profile, or one whose role is not a known role, has no usable profile.
func PhaseFor(p *profile.UserProfile) string {
	if p == nil {
		return PhaseNoProfile
	}
	switch p.Rol {
	case auth.RoleTherapist:
		return PhaseTherapist
	case auth.RolePatient:
		return PhasePatient
	}
	return PhaseNoProfile
}

// under reports whether path is zone or below it.
func under(path, zone string) bool {
	return path == zone || strings.HasPrefix(path, zone+"/")
}

func isAuthPage(path string) bool {
	return path == PathPublic || under(path, PathSignup)
}

// Decide returns where a client in phase viewing path must be sent, or ""
// to stay. Applying the returned path and deciding again always yields "".
func Decide(phase, path string) string {
	switch phase {
	case PhaseUnauthenticated:
		if under(path, PathTherapistHome) || under(path, PathPatientHome) {
			return PathPublic
		}
	case PhaseNoProfile:
		if path != PathSignup {
			return PathSignup
		}
	case PhaseTherapist:
		if isAuthPage(path) || under(path, PathPatientHome) {
			return PathTherapistHome
		}
	case PhasePatient:
		if isAuthPage(path) || under(path, PathTherapistHome) {
			return PathPatientHome
		}
	}
	return ""
}
