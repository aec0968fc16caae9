package session

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
)

// RecordReader loads expedientes without an access check.
type RecordReader interface {
	Load(ctx context.Context, id string) (*record.Expediente, error)
}

// Recorder counts state transitions.
type Recorder interface {
	SessionTransition(to string)
}

type nopRecorder struct{}

func (nopRecorder) SessionTransition(string) {}

type Service struct {
	repo     Repository
	records  RecordReader
	tx       db.Transactor
	cache    *querycache.Cache
	notifier *querycache.Notifier
	metrics  Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, records RecordReader, tx db.Transactor, cache *querycache.Cache, notifier *querycache.Notifier, metrics Recorder, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if tx == nil {
		tx = db.SequentialTransactor{}
	}
	return &Service{
		repo:     repo,
		records:  records,
		tx:       tx,
		cache:    cache,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With().Str("component", "session").Logger(),
		now:      time.Now,
	}
}

func requireTherapist(c *auth.Claims) error {
	if c == nil || c.Rol != auth.RoleTherapist {
		return fmt.Errorf("%w: only a therapist may change sessions", apperr.ErrForbidden)
	}
	return nil
}

// Schedule books a session on an expediente owned by the caller. The patient
// and therapist ids are copied from the expediente in the same transaction.
func (s *Service) Schedule(ctx context.Context, caller *auth.Claims, req ScheduleRequest) (*Sesion, error) {
	if err := requireTherapist(caller); err != nil {
		return nil, err
	}
	now := s.now()
	if err := req.normalize(now); err != nil {
		return nil, err
	}

	var created *Sesion
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.records.Load(ctx, req.ExpedienteID)
		if errors.Is(err, record.ErrRecordNotFound) {
			return apperr.Invalid("expedienteId", "unknown expediente")
		}
		if err != nil {
			return fmt.Errorf("load expediente: %w", err)
		}
		if !e.OwnedBy(caller.Subject) {
			return fmt.Errorf("%w: not your expediente", apperr.ErrForbidden)
		}
		created = &Sesion{
			ID:           uuid.NewString(),
			ExpedienteID: e.ID,
			TerapeutaUID: e.TerapeutaUID,
			PacienteUID:  e.PacienteUID,
			Fecha:        req.Fecha.UTC(),
			Modalidad:    req.Modalidad,
			Ubicacion:    req.Ubicacion,
			Nota:         req.Nota,
			Estado:       EstadoAgendada,
			CreadaEn:     now.UTC(),
		}
		return s.repo.Create(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionTransition(EstadoAgendada)
	s.notifier.Changed(ctx, docstore.Sesiones, created.ID, pubsub.OpCreate)
	s.logger.Info().Str("id", created.ID).Str("expediente", created.ExpedienteID).Time("fecha", created.Fecha).Msg("sesion scheduled")
	return created, nil
}

// owned loads a session the caller may mutate.
func (s *Service) owned(ctx context.Context, caller *auth.Claims, id string) (*Sesion, error) {
	if err := requireTherapist(caller); err != nil {
		return nil, err
	}
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.TerapeutaUID != caller.Subject {
		return nil, fmt.Errorf("%w: not your sesion", apperr.ErrForbidden)
	}
	if sess.Estado != EstadoAgendada {
		return nil, ErrTerminalState
	}
	return sess, nil
}

func (s *Service) transition(ctx context.Context, sess *Sesion) error {
	if err := s.repo.Transition(ctx, sess); err != nil {
		return err
	}
	s.metrics.SessionTransition(sess.Estado)
	s.notifier.Changed(ctx, docstore.Sesiones, sess.ID, pubsub.OpUpdate)
	s.logger.Info().Str("id", sess.ID).Str("estado", sess.Estado).Msg("sesion transitioned")
	return nil
}

// Complete records the therapist's notes and closes the session.
func (s *Service) Complete(ctx context.Context, caller *auth.Claims, id string, req CompleteRequest) (*Sesion, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	sess, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	req.apply(sess)
	if err := s.transition(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) Cancel(ctx context.Context, caller *auth.Claims, id string) (*Sesion, error) {
	sess, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	sess.Estado = EstadoCancelada
	if err := s.transition(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session to its therapist or its patient.
func (s *Service) Get(ctx context.Context, caller *auth.Claims, id string) (*Sesion, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller == nil || !sess.VisibleTo(caller.Subject) {
		return nil, fmt.Errorf("%w: not your sesion", apperr.ErrForbidden)
	}
	return sess, nil
}

// ListByRecord lists an expediente's sessions for anyone who can see it.
func (s *Service) ListByRecord(ctx context.Context, caller *auth.Claims, expedienteID string) ([]*Sesion, error) {
	e, err := s.records.Load(ctx, expedienteID)
	if err != nil {
		return nil, err
	}
	if !e.VisibleTo(caller) {
		return nil, fmt.Errorf("%w: not your expediente", apperr.ErrForbidden)
	}
	return querycache.Query(ctx, s.cache, docstore.Sesiones, "expedienteId="+expedienteID, func(ctx context.Context) ([]*Sesion, error) {
		return s.repo.ListByRecord(ctx, expedienteID)
	})
}

func (s *Service) ListByTherapist(ctx context.Context, terapeutaUID, estado string) ([]*Sesion, error) {
	if err := validEstadoFilter(estado); err != nil {
		return nil, err
	}
	return querycache.Query(ctx, s.cache, docstore.Sesiones, "terapeutaUid="+terapeutaUID+"&estado="+estado, func(ctx context.Context) ([]*Sesion, error) {
		return s.repo.ListByTherapist(ctx, terapeutaUID, estado)
	})
}

func (s *Service) ListByPatient(ctx context.Context, pacienteUID string) ([]*Sesion, error) {
	return querycache.Query(ctx, s.cache, docstore.Sesiones, "pacienteUid="+pacienteUID, func(ctx context.Context) ([]*Sesion, error) {
		return s.repo.ListByPatient(ctx, pacienteUID)
	})
}

// ListFor lists the caller's sessions. The estado filter only applies to
// therapists.
func (s *Service) ListFor(ctx context.Context, caller *auth.Claims, estado string) ([]*Sesion, error) {
	switch {
	case caller == nil:
		return nil, apperr.ErrForbidden
	case caller.Rol == auth.RoleTherapist:
		return s.ListByTherapist(ctx, caller.Subject, estado)
	case caller.Rol == auth.RolePatient:
		return s.ListByPatient(ctx, caller.Subject)
	}
	return nil, fmt.Errorf("%w: no role", apperr.ErrForbidden)
}

// Upcoming filters items to agendada sessions not before from.
func Upcoming(items []*Sesion, from time.Time) []*Sesion {
	var out []*Sesion
	for _, s := range items {
		if s.Estado == EstadoAgendada && !s.Fecha.Before(from) {
			out = append(out, s)
		}
	}
	return out
}
