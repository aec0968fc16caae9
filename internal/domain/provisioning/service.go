// Package provisioning is the one trusted entry point that mints an identity
// together with its profile.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/identity"
	"github.com/fisiotrack/fisiotrack/internal/domain/profile"
	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

// Error codes returned to callers.
var (
	ErrInvalidArgument  = errors.New("INVALID_ARGUMENT")
	ErrPermissionDenied = errors.New("PERMISSION_DENIED")
	ErrEmailExists      = errors.New("EMAIL_EXISTS")
	ErrCreateFailed     = errors.New("CREATE_FAILED")
)

// Code returns the error code carried by err, CREATE_FAILED when none is.
func Code(err error) string {
	for _, code := range []error{ErrInvalidArgument, ErrPermissionDenied, ErrEmailExists} {
		if errors.Is(err, code) {
			return code.Error()
		}
	}
	return ErrCreateFailed.Error()
}

// Identities is the part of the identity store provisioning drives.
type Identities interface {
	CreateAccount(ctx context.Context, email string, password optional.Value[string], displayName string) (*identity.Account, error)
	SetClaims(ctx context.Context, uid string, claims identity.Claims) error
	DeleteAccount(ctx context.Context, uid string) error
	SendInvitation(ctx context.Context, a *identity.Account, invitedBy string) error
}

// Profiles is the part of the profile store provisioning drives.
type Profiles interface {
	Get(ctx context.Context, uid string) (*profile.UserProfile, error)
	Put(ctx context.Context, p *profile.UserProfile) error
	Rules(requireEmergencyContact bool) profile.Rules
}

// Recorder counts creation outcomes.
type Recorder interface {
	UserCreated(outcome string)
}

type Request struct {
	Email             string                                    `json:"email"`
	Nombre            string                                    `json:"nombre"`
	Rol               string                                    `json:"rol"`
	InformacionMedica optional.Value[profile.InformacionMedica] `json:"informacionMedica,omitzero"`
	Password          optional.Value[string]                    `json:"password,omitzero"`
}

type Service struct {
	identities Identities
	profiles   Profiles
	metrics    Recorder
	logger     zerolog.Logger
}

type nopRecorder struct{}

func (nopRecorder) UserCreated(string) {}

func NewService(identities Identities, profiles Profiles, metrics Recorder, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		identities: identities,
		profiles:   profiles,
		metrics:    metrics,
		logger:     logger.With().Str("component", "provisioning").Logger(),
	}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
}

// CreateUser creates an identity and its profile. With no caller this is
// self-registration and a password is mandatory. With a caller, only a
// therapist may create users; the new identity gets no password and is
// emailed a link to set one.
//
// Steps run in order: identity, role claim, profile. When the claim or the
// profile cannot be written the identity is deleted again so the email can
// be retried.
func (s *Service) CreateUser(ctx context.Context, caller *auth.Claims, req Request) (uid string, err error) {
	defer func() { s.metrics.UserCreated(outcomeOf(err)) }()

	req.Email = strings.TrimSpace(req.Email)
	req.Nombre = strings.TrimSpace(req.Nombre)
	req.Rol = strings.TrimSpace(req.Rol)
	switch {
	case req.Email == "":
		return "", invalid(apperr.Invalid("email", "is required"))
	case req.Nombre == "":
		return "", invalid(apperr.Invalid("nombre", "is required"))
	case !auth.ValidRole(req.Rol):
		return "", invalid(apperr.Invalid("rol", "must be %q or %q", auth.RoleTherapist, auth.RolePatient))
	}

	invitedBy := ""
	if caller != nil {
		invitedBy, err = s.authorize(ctx, caller)
		if err != nil {
			return "", err
		}
		req.Password = optional.None[string]()
	} else if pw, ok := req.Password.Get(); !ok || len(pw) < identity.MinPasswordLength {
		return "", invalid(apperr.Invalid("password", "must have at least %d characters", identity.MinPasswordLength))
	}

	p := &profile.UserProfile{
		Nombre:            req.Nombre,
		Email:             req.Email,
		Rol:               req.Rol,
		InformacionMedica: req.InformacionMedica,
	}
	selfRegisteredPatient := caller == nil && req.Rol == auth.RolePatient
	if err := profile.Normalize(p, s.profiles.Rules(selfRegisteredPatient)); err != nil {
		return "", invalid(err)
	}

	acct, err := s.identities.CreateAccount(ctx, p.Email, req.Password, p.Nombre)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailExists):
			return "", fmt.Errorf("%w: %s", ErrEmailExists, p.Email)
		case apperr.IsValidation(err):
			return "", invalid(err)
		}
		return "", fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	log := s.logger.With().Str("uid", acct.UID).Str("rol", p.Rol).Logger()

	if err := s.identities.SetClaims(ctx, acct.UID, identity.Claims{Rol: p.Rol}); err != nil {
		s.compensate(ctx, acct.UID, err)
		return "", fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	p.UID = acct.UID
	if err := s.profiles.Put(ctx, p); err != nil {
		s.compensate(ctx, acct.UID, err)
		return "", fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	if caller != nil {
		if err := s.identities.SendInvitation(ctx, acct, invitedBy); err != nil {
			// The account is usable; the user can still request a reset link.
			log.Warn().Err(err).Msg("invitation not delivered")
		}
	}
	log.Info().Bool("invited", caller != nil).Msg("user created")
	return acct.UID, nil
}

// authorize returns the caller's display name when the caller is a therapist.
// The stamped claim decides; the stored profile role is the fallback for
// identities whose claim has not been stamped.
func (s *Service) authorize(ctx context.Context, caller *auth.Claims) (string, error) {
	rol := caller.Rol
	name := caller.Email
	p, err := s.profiles.Get(ctx, caller.Subject)
	switch {
	case err == nil:
		name = p.Nombre
		if rol == "" {
			rol = p.Rol
		}
	case !errors.Is(err, profile.ErrProfileNotFound):
		return "", fmt.Errorf("%w: read caller profile: %w", ErrCreateFailed, err)
	}
	if rol != auth.RoleTherapist {
		return "", fmt.Errorf("%w: only a therapist may create users", ErrPermissionDenied)
	}
	return name, nil
}

func (s *Service) compensate(ctx context.Context, uid string, cause error) {
	s.logger.Error().Err(cause).Str("uid", uid).Msg("user creation failed after identity was created, deleting identity")
	if err := s.identities.DeleteAccount(context.WithoutCancel(ctx), uid); err != nil {
		s.logger.Error().Err(err).Str("uid", uid).Msg("compensating identity delete failed, orphan identity left")
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "created"
	}
	return strings.ToLower(Code(err))
}
