package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/record"
	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/db"
	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
	"github.com/fisiotrack/fisiotrack/internal/platform/querycache"
	"github.com/fisiotrack/fisiotrack/internal/platform/summarizer"
)

// Records finds the expediente an avance belongs to.
type Records interface {
	Load(ctx context.Context, id string) (*record.Expediente, error)
	PrimaryForPatient(ctx context.Context, pacienteUID string) (*record.Expediente, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, r summarizer.Report) (*summarizer.Summary, error)
}

type Recorder interface {
	ProgressRecorded()
	Summary(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ProgressRecorded() {}
func (nopRecorder) Summary(string)    {}

type Service struct {
	repo       Repository
	records    Records
	tx         db.Transactor
	summarizer Summarizer
	cache      *querycache.Cache
	notifier   *querycache.Notifier
	metrics    Recorder
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, records Records, tx db.Transactor, summ Summarizer, cache *querycache.Cache, notifier *querycache.Notifier, metrics Recorder, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if tx == nil {
		tx = db.SequentialTransactor{}
	}
	return &Service{
		repo:       repo,
		records:    records,
		tx:         tx,
		summarizer: summ,
		cache:      cache,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger.With().Str("component", "progress").Logger(),
		now:        time.Now,
	}
}

// Create stores a self-report from the calling patient against the patient's
// first expediente.
func (s *Service) Create(ctx context.Context, caller *auth.Claims, p Payload) (*Avance, error) {
	if caller == nil || caller.Rol != auth.RolePatient {
		return nil, fmt.Errorf("%w: only patients record avances", apperr.ErrForbidden)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}

	var a *Avance
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.records.PrimaryForPatient(ctx, caller.Subject)
		if errors.Is(err, record.ErrRecordNotFound) {
			return apperr.Invalid("expedienteId", "no expediente is assigned to this patient")
		}
		if err != nil {
			return fmt.Errorf("find expediente: %w", err)
		}
		a = &Avance{
			ID:            uuid.NewString(),
			PacienteUID:   caller.Subject,
			TerapeutaUID:  e.TerapeutaUID,
			ExpedienteID:  e.ID,
			FechaRegistro: s.now().UTC(),
			RegistradoPor: caller.Subject,
			TipoRegistro:  TipoAuto,
			Payload:       p,
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ProgressRecorded()
	s.notifier.Changed(ctx, docstore.Avances, a.ID, pubsub.OpCreate)
	s.logger.Info().Str("id", a.ID).Str("expediente", a.ExpedienteID).Msg("avance recorded")
	return a, nil
}

// Get returns the avance to its patient or its therapist.
func (s *Service) Get(ctx context.Context, caller *auth.Claims, id string) (*Avance, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller == nil || (caller.Subject != a.PacienteUID && caller.Subject != a.TerapeutaUID) {
		return nil, fmt.Errorf("%w: not your avance", apperr.ErrForbidden)
	}
	return a, nil
}

func (s *Service) ListByPatient(ctx context.Context, pacienteUID string) ([]*Avance, error) {
	return querycache.Query(ctx, s.cache, docstore.Avances, "pacienteUid="+pacienteUID, func(ctx context.Context) ([]*Avance, error) {
		return s.repo.ListByPatient(ctx, pacienteUID)
	})
}

func (s *Service) ListByTherapist(ctx context.Context, terapeutaUID string) ([]*Avance, error) {
	return querycache.Query(ctx, s.cache, docstore.Avances, "terapeutaUid="+terapeutaUID, func(ctx context.Context) ([]*Avance, error) {
		return s.repo.ListByTherapist(ctx, terapeutaUID)
	})
}

// ListByRecord lists an expediente's avances for anyone who can see it.
func (s *Service) ListByRecord(ctx context.Context, caller *auth.Claims, expedienteID string) ([]*Avance, error) {
	e, err := s.records.Load(ctx, expedienteID)
	if err != nil {
		return nil, err
	}
	if !e.VisibleTo(caller) {
		return nil, fmt.Errorf("%w: not your expediente", apperr.ErrForbidden)
	}
	return querycache.Query(ctx, s.cache, docstore.Avances, "expedienteId="+expedienteID, func(ctx context.Context) ([]*Avance, error) {
		return s.repo.ListByRecord(ctx, expedienteID)
	})
}

func (s *Service) ListFor(ctx context.Context, caller *auth.Claims) ([]*Avance, error) {
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

// Summarize asks the summarizer for a therapist-facing digest of one avance.
func (s *Service) Summarize(ctx context.Context, caller *auth.Claims, id string) (*summarizer.Summary, error) {
	if caller == nil || caller.Rol != auth.RoleTherapist {
		return nil, fmt.Errorf("%w: only therapists request summaries", apperr.ErrForbidden)
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.TerapeutaUID != caller.Subject {
		return nil, fmt.Errorf("%w: not your patient", apperr.ErrForbidden)
	}

	sum, err := s.summarizer.Summarize(ctx, a.Report())
	switch {
	case err == nil:
		s.metrics.Summary("ok")
		return sum, nil
	case errors.Is(err, summarizer.ErrDisabled):
		s.metrics.Summary("disabled")
		return nil, fmt.Errorf("%w: %w", apperr.ErrUnavailable, err)
	default:
		s.metrics.Summary("error")
		s.logger.Error().Err(err).Str("id", id).Msg("summarize avance")
		return nil, fmt.Errorf("%w: summary failed: %w", apperr.ErrUnavailable, err)
	}
}
