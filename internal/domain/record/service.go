package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/profile"
	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
	"github.com/fisiotrack/fisiotrack/internal/platform/querycache"
)

// ProfileReader reads user profiles.
type ProfileReader interface {
	Get(ctx context.Context, uid string) (*profile.UserProfile, error)
}

// Detail is a record with its patient's profile.
type Detail struct {
	Expediente *Expediente          `json:"expediente"`
	Paciente   *profile.UserProfile `json:"paciente,omitempty"`
}

type Service struct {
	repo     Repository
	profiles ProfileReader
	cache    *querycache.Cache
	notifier *querycache.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, profiles ProfileReader, cache *querycache.Cache, notifier *querycache.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		cache:    cache,
		notifier: notifier,
		logger:   logger.With().Str("component", "record").Logger(),
		now:      time.Now,
	}
}

func requireTherapist(c *auth.Claims) error {
	if c == nil || c.Rol != auth.RoleTherapist {
		return fmt.Errorf("%w: only a therapist may do this", apperr.ErrForbidden)
	}
	return nil
}

// Create opens a record owned by the calling therapist for an existing patient.
func (s *Service) Create(ctx context.Context, caller *auth.Claims, req CreateRequest) (*Expediente, error) {
	if err := requireTherapist(caller); err != nil {
		return nil, err
	}
	pacienteUID := strings.TrimSpace(req.PacienteUID)
	if pacienteUID == "" {
		return nil, apperr.Invalid("pacienteUid", "is required")
	}
	descripcion, err := normalizeDescripcion(req.Descripcion)
	if err != nil {
		return nil, err
	}

	p, err := s.profiles.Get(ctx, pacienteUID)
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
		return nil, apperr.Invalid("pacienteUid", "unknown patient")
	case err != nil:
		return nil, fmt.Errorf("read patient profile: %w", err)
	case !p.IsPatient():
		return nil, apperr.Invalid("pacienteUid", "user is not a patient")
	}

	e := &Expediente{
		ID:            uuid.NewString(),
		PacienteUID:   pacienteUID,
		TerapeutaUID:  caller.Subject,
		Descripcion:   descripcion,
		FechaCreacion: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, e); err != nil {
		if apperr.IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create expediente: %w", err)
	}
	s.notifier.Changed(ctx, docstore.Expedientes, e.ID, pubsub.OpCreate)
	s.logger.Info().Str("id", e.ID).Str("paciente", pacienteUID).Msg("expediente created")
	return e, nil
}

// Load reads a record without an access check, for services that authorize
// on their own.
func (s *Service) Load(ctx context.Context, id string) (*Expediente, error) {
	return s.repo.GetByID(ctx, id)
}

// Get returns the record to its therapist or its patient.
func (s *Service) Get(ctx context.Context, caller *auth.Claims, id string) (*Expediente, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.VisibleTo(caller) {
		return nil, fmt.Errorf("%w: not your expediente", apperr.ErrForbidden)
	}
	return e, nil
}

// Detail returns the record with the patient's profile. A missing profile is
// reported as absent rather than failing the read.
func (s *Service) Detail(ctx context.Context, caller *auth.Claims, id string) (*Detail, error) {
	e, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	d := &Detail{Expediente: e}
	p, err := s.profiles.Get(ctx, e.PacienteUID)
	switch {
	case err == nil:
		d.Paciente = p
	case errors.Is(err, profile.ErrProfileNotFound):
		s.logger.Warn().Str("id", id).Str("paciente", e.PacienteUID).Msg("expediente patient has no profile")
	default:
		return nil, fmt.Errorf("read patient profile: %w", err)
	}
	return d, nil
}

func (s *Service) ListByTherapist(ctx context.Context, terapeutaUID string) ([]*Expediente, error) {
	return querycache.Query(ctx, s.cache, docstore.Expedientes, "terapeutaUid="+terapeutaUID, func(ctx context.Context) ([]*Expediente, error) {
		return s.repo.ListByTherapist(ctx, terapeutaUID)
	})
}

func (s *Service) ListByPatient(ctx context.Context, pacienteUID string) ([]*Expediente, error) {
	return querycache.Query(ctx, s.cache, docstore.Expedientes, "pacienteUid="+pacienteUID, func(ctx context.Context) ([]*Expediente, error) {
		return s.repo.ListByPatient(ctx, pacienteUID)
	})
}

// PrimaryForPatient returns the patient's oldest record.
func (s *Service) PrimaryForPatient(ctx context.Context, pacienteUID string) (*Expediente, error) {
	items, err := s.ListByPatient(ctx, pacienteUID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrRecordNotFound
	}
	return items[0], nil
}

// ListFor lists the caller's records in the caller's role.
func (s *Service) ListFor(ctx context.Context, caller *auth.Claims) ([]*Expediente, error) {
	switch {
	case caller == nil:
		return nil, apperr.ErrForbidden
	case caller.Rol == auth.RoleTherapist:
		return s.ListByTherapist(ctx, caller.Subject)
	case caller.Rol == auth.RolePatient:
		return s.ListByPatient(ctx, caller.Subject)
	}
	return nil, fmt.Errorf("%w: no role", apperr.ErrForbidden)
}

// UpdateClinical edits diagnosis, objectives and plan. Only the owning
// therapist may edit; concurrent edits are last-write-wins.
func (s *Service) UpdateClinical(ctx context.Context, caller *auth.Claims, id string, upd ClinicalUpdate) (*Expediente, error) {
	if err := requireTherapist(caller); err != nil {
		return nil, err
	}
	if upd.empty() {
		return nil, apperr.Invalid("", "nothing to update")
	}
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.OwnedBy(caller.Subject) {
		return nil, fmt.Errorf("%w: not your expediente", apperr.ErrForbidden)
	}
	upd.apply(e)
	if err := s.repo.UpdateClinical(ctx, e); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update expediente: %w", err)
	}
	s.notifier.Changed(ctx, docstore.Expedientes, e.ID, pubsub.OpUpdate)
	return e, nil
}
