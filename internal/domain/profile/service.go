package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/identity"
	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
	"github.com/fisiotrack/fisiotrack/internal/platform/querycache"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

// ClaimStamper sets the role claim of an identity.
type ClaimStamper interface {
	SetClaims(ctx context.Context, uid string, claims identity.Claims) error
}

type Service struct {
	repo        Repository
	cache       *querycache.Cache
	notifier    *querycache.Notifier
	claims      ClaimStamper
	phoneRegion string
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, cache *querycache.Cache, notifier *querycache.Notifier,
	claims ClaimStamper, phoneRegion string, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		cache:       cache,
		notifier:    notifier,
		claims:      claims,
		phoneRegion: phoneRegion,
		logger:      logger.With().Str("component", "profile").Logger(),
		now:         time.Now,
	}
}

// Rules returns the validation rules for a new profile in this deployment.
func (s *Service) Rules(requireEmergencyContact bool) Rules {
	return Rules{RequireEmergencyContact: requireEmergencyContact, PhoneRegion: s.phoneRegion}
}

func (s *Service) Get(ctx context.Context, uid string) (*UserProfile, error) {
	return s.repo.GetByID(ctx, uid)
}

// Put creates the profile of p.UID. Profiles are never overwritten.
func (s *Service) Put(ctx context.Context, p *UserProfile) error {
	if p.UID == "" {
		return apperr.Invalid("uid", "is required")
	}
	if err := Normalize(p, s.Rules(false)); err != nil {
		return err
	}
	if p.FechaRegistro.IsZero() {
		p.FechaRegistro = s.now().UTC()
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrProfileExists) {
			return err
		}
		return fmt.Errorf("write profile: %w", err)
	}
	s.notifier.Changed(ctx, docstore.Usuarios, p.UID, pubsub.OpCreate)
	return nil
}

// ListByRole lists every profile with rol, sorted by name.
func (s *Service) ListByRole(ctx context.Context, rol string) ([]*UserProfile, error) {
	if !auth.ValidRole(rol) {
		return nil, apperr.Invalid("rol", "must be %q or %q", auth.RoleTherapist, auth.RolePatient)
	}
	return querycache.Query(ctx, s.cache, docstore.Usuarios, "rol="+rol, func(ctx context.Context) ([]*UserProfile, error) {
		return s.repo.ListByRole(ctx, rol)
	})
}

func (s *Service) Delete(ctx context.Context, uid string) error {
	if err := s.repo.Delete(ctx, uid); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	s.notifier.Changed(ctx, docstore.Usuarios, uid, pubsub.OpDelete)
	return nil
}

// CompleteRequest is the profile-completion form of an identity that has
// no profile yet.
type CompleteRequest struct {
	Nombre            string                            `json:"nombre"`
	Rol               string                            `json:"rol"`
	InformacionMedica optional.Value[InformacionMedica] `json:"informacionMedica,omitzero"`
}

// CompleteProfile writes the caller's missing profile under the same rules
// as self-registration. A role claim already stamped on the identity wins;
// a missing one is stamped before the profile is written.
func (s *Service) CompleteProfile(ctx context.Context, caller *auth.Claims, req CompleteRequest) (*UserProfile, error) {
	if caller == nil || caller.Subject == "" {
		return nil, fmt.Errorf("%w: sign in first", apperr.ErrForbidden)
	}
	if _, err := s.repo.GetByID(ctx, caller.Subject); err == nil {
		return nil, ErrProfileExists
	} else if !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if caller.Rol != "" && req.Rol != caller.Rol {
		return nil, apperr.Invalid("rol", "does not match the account role %q", caller.Rol)
	}

	p := &UserProfile{
		UID:               caller.Subject,
		Nombre:            req.Nombre,
		Email:             caller.Email,
		Rol:               req.Rol,
		InformacionMedica: req.InformacionMedica,
	}
	if err := Normalize(p, s.Rules(req.Rol == auth.RolePatient)); err != nil {
		return nil, err
	}

	if caller.Rol == "" {
		if err := s.claims.SetClaims(ctx, p.UID, identity.Claims{Rol: p.Rol}); err != nil {
			return nil, fmt.Errorf("stamp role claim: %w", err)
		}
	}
	if err := s.Put(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
