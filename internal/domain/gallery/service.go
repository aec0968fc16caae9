package gallery

import (
	"context"
	"errors"
	"fmt"
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

type ProfileReader interface {
	Get(ctx context.Context, uid string) (*profile.UserProfile, error)
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
		logger:   logger.With().Str("component", "gallery").Logger(),
		now:      time.Now,
	}
}

func requireTherapist(c *auth.Claims) error {
	if c == nil || c.Rol != auth.RoleTherapist {
		return fmt.Errorf("%w: only a therapist may manage galerias", apperr.ErrForbidden)
	}
	return nil
}

// checkPatients rejects uids that are not patient profiles.
func (s *Service) checkPatients(ctx context.Context, uids []string) error {
	for _, uid := range uids {
		p, err := s.profiles.Get(ctx, uid)
		switch {
		case errors.Is(err, profile.ErrProfileNotFound):
			return apperr.Invalid("pacientesAsignados", "unknown patient %s", uid)
		case err != nil:
			return fmt.Errorf("read profile %s: %w", uid, err)
		case !p.IsPatient():
			return apperr.Invalid("pacientesAsignados", "%s is not a patient", uid)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, caller *auth.Claims, req CreateRequest) (*Galeria, error) {
	if err := requireTherapist(caller); err != nil {
		return nil, err
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if err := s.checkPatients(ctx, req.PacientesAsignados); err != nil {
		return nil, err
	}
	g := &Galeria{
		ID:                 uuid.NewString(),
		Nombre:             req.Nombre,
		Descripcion:        req.Descripcion,
		Videos:             req.Videos,
		CreadaPor:          caller.Subject,
		PacientesAsignados: req.PacientesAsignados,
		FechaCreacion:      s.now().UTC(),
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create galeria: %w", err)
	}
	s.notifier.Changed(ctx, docstore.Galerias, g.ID, pubsub.OpCreate)
	s.logger.Info().Str("id", g.ID).Int("videos", len(g.Videos)).Int("pacientes", len(g.PacientesAsignados)).Msg("galeria created")
	return g, nil
}

// Get returns the galeria to its creator or an assigned patient.
func (s *Service) Get(ctx context.Context, caller *auth.Claims, id string) (*Galeria, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller == nil || !g.VisibleTo(caller.Subject) {
		return nil, fmt.Errorf("%w: galeria not shared with you", apperr.ErrForbidden)
	}
	return g, nil
}

func (s *Service) ListByCreator(ctx context.Context, terapeutaUID string) ([]*Galeria, error) {
	return querycache.Query(ctx, s.cache, docstore.Galerias, "creadaPor="+terapeutaUID, func(ctx context.Context) ([]*Galeria, error) {
		return s.repo.ListByCreator(ctx, terapeutaUID)
	})
}

func (s *Service) ListAssignedTo(ctx context.Context, pacienteUID string) ([]*Galeria, error) {
	return querycache.Query(ctx, s.cache, docstore.Galerias, "pacientesAsignados~"+pacienteUID, func(ctx context.Context) ([]*Galeria, error) {
		return s.repo.ListAssignedTo(ctx, pacienteUID)
	})
}

func (s *Service) ListFor(ctx context.Context, caller *auth.Claims) ([]*Galeria, error) {
	switch {
	case caller == nil:
		return nil, apperr.ErrForbidden
	case caller.Rol == auth.RoleTherapist:
		return s.ListByCreator(ctx, caller.Subject)
	case caller.Rol == auth.RolePatient:
		return s.ListAssignedTo(ctx, caller.Subject)
	}
	return nil, fmt.Errorf("%w: no role", apperr.ErrForbidden)
}

// UpdateAssignments replaces the assigned patients. Concurrent edits are
// last-write-wins.
func (s *Service) UpdateAssignments(ctx context.Context, caller *auth.Claims, id string, uids []string) (*Galeria, error) {
	if err := requireTherapist(caller); err != nil {
		return nil, err
	}
	pacientes, err := normalizeAssignments(uids)
	if err != nil {
		return nil, err
	}
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.CreadaPor != caller.Subject {
		return nil, fmt.Errorf("%w: not your galeria", apperr.ErrForbidden)
	}
	if err := s.checkPatients(ctx, pacientes); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAssignments(ctx, id, pacientes); err != nil {
		if errors.Is(err, ErrGalleryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update galeria: %w", err)
	}
	g.PacientesAsignados = pacientes
	s.notifier.Changed(ctx, docstore.Galerias, id, pubsub.OpUpdate)
	return g, nil
}
