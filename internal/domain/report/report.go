// Package report renders an expediente with its sessions and avances as a PDF.
package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/domain/progress"
	"github.com/fisiotrack/fisiotrack/internal/domain/record"
	"github.com/fisiotrack/fisiotrack/internal/domain/session"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

const dateLayout = "02-01-2006 15:04"

type Records interface {
	Detail(ctx context.Context, caller *auth.Claims, id string) (*record.Detail, error)
}

type Sessions interface {
	ListByRecord(ctx context.Context, caller *auth.Claims, expedienteID string) ([]*session.Sesion, error)
}

type Progress interface {
	ListByRecord(ctx context.Context, caller *auth.Claims, expedienteID string) ([]*progress.Avance, error)
}

// Data is everything printed in one report.
type Data struct {
	Detail      *record.Detail
	Sesiones    []*session.Sesion
	Avances     []*progress.Avance
	GeneratedAt time.Time
}

type Service struct {
	records  Records
	sessions Sessions
	progress Progress
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(records Records, sessions Sessions, progress Progress, logger zerolog.Logger) *Service {
	return &Service{
		records:  records,
		sessions: sessions,
		progress: progress,
		logger:   logger.With().Str("component", "report").Logger(),
		now:      time.Now,
	}
}

// Expediente builds the PDF for a record the caller can see.
func (s *Service) Expediente(ctx context.Context, caller *auth.Claims, id string) ([]byte, error) {
	d, err := s.records.Detail(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	sesiones, err := s.sessions.ListByRecord(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	avances, err := s.progress.ListByRecord(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	out, err := Render(Data{Detail: d, Sesiones: sesiones, Avances: avances, GeneratedAt: s.now()})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("expediente", id).Int("bytes", len(out)).Msg("report rendered")
	return out, nil
}

// Render lays out the report on A4 pages.
func Render(data Data) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("Página %d", pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	heading := func(text string) {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 14)
		pdf.Cell(0, 10, tr(text))
		pdf.Ln(10)
		pdf.SetFont("Arial", "", 11)
	}
	line := func(label, value string) {
		if value == "" {
			return
		}
		pdf.MultiCell(0, 6, tr(label+": "+value), "", "L", false)
	}

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 12, tr("Expediente clínico"))
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, tr("Generado: "+data.GeneratedAt.Format(dateLayout)))
	pdf.Ln(8)

	e := data.Detail.Expediente
	heading("Paciente")
	if p := data.Detail.Paciente; p != nil {
		line("Nombre", p.Nombre)
		line("Email", p.Email)
	} else {
		line("UID", e.PacienteUID)
	}

	heading("Expediente")
	line("Descripción", e.Descripcion)
	line("Fecha de creación", e.FechaCreacion.Format(dateLayout))
	line("Diagnóstico", optional.String(e.Diagnostico))
	line("Objetivos", optional.String(e.Objetivos))
	line("Plan de tratamiento", optional.String(e.PlanTratamiento))

	heading(fmt.Sprintf("Sesiones (%d)", len(data.Sesiones)))
	for i, s := range data.Sesiones {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 7, tr(fmt.Sprintf("#%d  %s  %s  (%s)", i+1, s.Fecha.Format(dateLayout), s.Modalidad, s.Estado)))
		pdf.Ln(7)
		pdf.SetFont("Arial", "", 11)
		line("Ubicación", optional.String(s.Ubicacion))
		line("Nota", optional.String(s.Nota))
		if ini, ok := s.DolorInicial.Get(); ok {
			line("Dolor inicial/final", fmt.Sprintf("%d/10 - %d/10", ini, s.DolorFinal.OrElse(0)))
		}
		line("Notas del terapeuta", optional.String(s.NotasTerapeuta))
		line("Progreso percibido", optional.String(s.ProgresoPercibido))
		line("Técnicas aplicadas", optional.String(s.TecnicasAplicadas))
		line("Plan próxima sesión", optional.String(s.PlanProximaSesion))
	}

	heading(fmt.Sprintf("Avances (%d)", len(data.Avances)))
	for _, a := range data.Avances {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 7, tr(a.FechaRegistro.Format(dateLayout)))
		pdf.Ln(7)
		pdf.SetFont("Arial", "", 11)
		line("Dolor inicial/final", fmt.Sprintf("%d/10 - %d/10 (%s)", a.DolorInicial, a.DolorFinal, a.UbicacionDolor))
		line("Ejercicio", fmt.Sprintf("%d/7 días: %s", a.DiasEjercicio, a.EjerciciosRealizados))
		line("Movilidad", a.MovilidadPercibida)
		line("Fatiga / Motivación", fmt.Sprintf("%d/10 - %d/10", a.Fatiga, a.Motivacion))
		line("Estado de ánimo", a.EstadoAnimo)
		line("Comentario", optional.String(a.ComentarioPaciente))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
