// Package dashboard assembles the therapist and patient home panels from the
// other domain services.
package dashboard

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fisiotrack/fisiotrack/internal/domain/gallery"
	"github.com/fisiotrack/fisiotrack/internal/domain/progress"
	"github.com/fisiotrack/fisiotrack/internal/domain/record"
	"github.com/fisiotrack/fisiotrack/internal/domain/session"
)

const recentLimit = 5

type Records interface {
	ListByTherapist(ctx context.Context, terapeutaUID string) ([]*record.Expediente, error)
	PrimaryForPatient(ctx context.Context, pacienteUID string) (*record.Expediente, error)
}

type Sessions interface {
	ListByTherapist(ctx context.Context, terapeutaUID, estado string) ([]*session.Sesion, error)
	ListByPatient(ctx context.Context, pacienteUID string) ([]*session.Sesion, error)
}

type Progress interface {
	ListByTherapist(ctx context.Context, terapeutaUID string) ([]*progress.Avance, error)
}

type Galleries interface {
	ListByCreator(ctx context.Context, terapeutaUID string) ([]*gallery.Galeria, error)
	ListAssignedTo(ctx context.Context, pacienteUID string) ([]*gallery.Galeria, error)
}

type TherapistPanel struct {
	Expedientes       int                `json:"expedientes"`
	Galerias          int                `json:"galerias"`
	SesionesAgendadas int                `json:"sesionesAgendadas"`
	ProximasSesiones  []*session.Sesion  `json:"proximasSesiones"`
	UltimosAvances    []*progress.Avance `json:"ultimosAvances"`
}

type PatientPanel struct {
	Expediente *record.Expediente `json:"expediente,omitempty"`
	Galerias   []*gallery.Galeria `json:"galerias"`
	Sesiones   []*session.Sesion  `json:"sesiones"`
}

type Service struct {
	records   Records
	sessions  Sessions
	progress  Progress
	galleries Galleries
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(records Records, sessions Sessions, progress Progress, galleries Galleries, logger zerolog.Logger) *Service {
	return &Service{
		records:   records,
		sessions:  sessions,
		progress:  progress,
		galleries: galleries,
		logger:    logger.With().Str("component", "dashboard").Logger(),
		now:       time.Now,
	}
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// Therapist loads the panel sections concurrently.
func (s *Service) Therapist(ctx context.Context, uid string) (*TherapistPanel, error) {
	panel := &TherapistPanel{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.records.ListByTherapist(ctx, uid)
		panel.Expedientes = len(items)
		return err
	})
	g.Go(func() error {
		items, err := s.galleries.ListByCreator(ctx, uid)
		panel.Galerias = len(items)
		return err
	})
	g.Go(func() error {
		items, err := s.sessions.ListByTherapist(ctx, uid, session.EstadoAgendada)
		if err != nil {
			return err
		}
		panel.SesionesAgendadas = len(items)
		panel.ProximasSesiones = firstN(session.Upcoming(items, s.now()), recentLimit)
		return nil
	})
	g.Go(func() error {
		items, err := s.progress.ListByTherapist(ctx, uid)
		panel.UltimosAvances = firstN(items, recentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return panel, nil
}

// Patient loads the patient's expediente, galerias and sessions. Sessions are
// ordered with upcoming agendada ones first, soonest first, then the rest
// newest first.
func (s *Service) Patient(ctx context.Context, uid string) (*PatientPanel, error) {
	panel := &PatientPanel{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := s.records.PrimaryForPatient(ctx, uid)
		if errors.Is(err, record.ErrRecordNotFound) {
			return nil
		}
		panel.Expediente = e
		return err
	})
	g.Go(func() error {
		items, err := s.galleries.ListAssignedTo(ctx, uid)
		panel.Galerias = items
		return err
	})
	g.Go(func() error {
		items, err := s.sessions.ListByPatient(ctx, uid)
		panel.Sesiones = orderForPatient(items, s.now())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return panel, nil
}

func orderForPatient(items []*session.Sesion, now time.Time) []*session.Sesion {
	out := append([]*session.Sesion(nil), items...)
	upcoming := func(x *session.Sesion) bool {
		return x.Estado == session.EstadoAgendada && !x.Fecha.Before(now)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ui, uj := upcoming(out[i]), upcoming(out[j])
		switch {
		case ui && uj:
			return out[i].Fecha.Before(out[j].Fecha)
		case ui != uj:
			return ui
		default:
			return out[i].Fecha.After(out[j].Fecha)
		}
	})
	return out
}
