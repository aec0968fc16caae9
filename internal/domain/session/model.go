// Package session schedules therapy sessions against an expediente and moves
// them through agendada -> completada | cancelada.
package session

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

var (
	ErrSessionNotFound = fmt.Errorf("sesion %w", apperr.ErrNotFound)
	// ErrTerminalState rejects any transition out of completada or cancelada.
	ErrTerminalState = fmt.Errorf("%w: sesion is no longer agendada", apperr.ErrConflict)
)

const (
	EstadoAgendada   = "agendada"
	EstadoCompletada = "completada"
	EstadoCancelada  = "cancelada"

	ModalidadPresencial = "presencial"
	ModalidadVirtual    = "virtual"
)

var (
	estados     = []string{EstadoAgendada, EstadoCompletada, EstadoCancelada}
	modalidades = []string{ModalidadPresencial, ModalidadVirtual}

	ProgresoValues = []string{"mejoria-significativa", "mejoria-leve", "sin-cambios", "retroceso-leve", "retroceso-significativo"}
	AnimoValues    = []string{"muy-bien", "bien", "regular", "mal", "muy-mal"}
)

type Sesion struct {
	ID           string                 `json:"id"`
	ExpedienteID string                 `json:"expedienteId"`
	TerapeutaUID string                 `json:"terapeutaUid"`
	PacienteUID  string                 `json:"pacienteUid"`
	Fecha        time.Time              `json:"fecha"`
	Modalidad    string                 `json:"modalidad"`
	Ubicacion    optional.Value[string] `json:"ubicacion,omitzero"`
	Nota         optional.Value[string] `json:"nota,omitzero"`
	Estado       string                 `json:"estado"`
	CreadaEn     time.Time              `json:"creadaEn"`

	// Set on completion.
	NotasTerapeuta         optional.Value[string] `json:"notasTerapeuta,omitzero"`
	DolorInicial           optional.Value[int]    `json:"dolorInicial,omitzero"`
	DolorFinal             optional.Value[int]    `json:"dolorFinal,omitzero"`
	ProgresoPercibido      optional.Value[string] `json:"progresoPercibido,omitzero"`
	EstadoAnimoObservado   optional.Value[string] `json:"estadoAnimoObservado,omitzero"`
	ObservacionesObjetivas optional.Value[string] `json:"observacionesObjetivas,omitzero"`
	TecnicasAplicadas      optional.Value[string] `json:"tecnicasAplicadas,omitzero"`
	PlanProximaSesion      optional.Value[string] `json:"planProximaSesion,omitzero"`
}

// VisibleTo reports whether uid is the session's therapist or patient.
func (s *Sesion) VisibleTo(uid string) bool {
	return uid != "" && (s.TerapeutaUID == uid || s.PacienteUID == uid)
}

type ScheduleRequest struct {
	ExpedienteID string                 `json:"expedienteId"`
	Fecha        time.Time              `json:"fecha"`
	Modalidad    string                 `json:"modalidad"`
	Ubicacion    optional.Value[string] `json:"ubicacion,omitzero"`
	Nota         optional.Value[string] `json:"nota,omitzero"`
}

// startOfYesterday is the earliest accepted session date.
func startOfYesterday(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, now.Location())
}

func (r *ScheduleRequest) normalize(now time.Time) error {
	r.ExpedienteID = strings.TrimSpace(r.ExpedienteID)
	r.Modalidad = strings.TrimSpace(r.Modalidad)
	r.Ubicacion = optional.NonEmpty(strings.TrimSpace(optional.String(r.Ubicacion)))
	r.Nota = optional.NonEmpty(strings.TrimSpace(optional.String(r.Nota)))

	switch {
	case r.ExpedienteID == "":
		return apperr.Invalid("expedienteId", "is required")
	case r.Fecha.IsZero():
		return apperr.Invalid("fecha", "is required")
	case r.Fecha.Before(startOfYesterday(now)):
		return apperr.Invalid("fecha", "cannot be in the past")
	case r.Modalidad == "":
		return apperr.Invalid("modalidad", "is required")
	case !slices.Contains(modalidades, r.Modalidad):
		return apperr.Invalid("modalidad", "must be one of %s", strings.Join(modalidades, ", "))
	case r.Modalidad == ModalidadPresencial && !r.Ubicacion.IsSet():
		return apperr.Invalid("ubicacion", "is required for presencial sessions")
	}
	return nil
}

// CompleteRequest carries the therapist's session notes.
type CompleteRequest struct {
	Notas                  string                 `json:"notas"`
	DolorInicial           optional.Value[int]    `json:"dolorInicial,omitzero"`
	DolorFinal             optional.Value[int]    `json:"dolorFinal,omitzero"`
	ProgresoPercibido      optional.Value[string] `json:"progresoPercibido,omitzero"`
	EstadoAnimoObservado   optional.Value[string] `json:"estadoAnimoObservado,omitzero"`
	ObservacionesObjetivas optional.Value[string] `json:"observacionesObjetivas,omitzero"`
	TecnicasAplicadas      optional.Value[string] `json:"tecnicasAplicadas,omitzero"`
	PlanProximaSesion      optional.Value[string] `json:"planProximaSesion,omitzero"`
}

func checkPain(field string, v optional.Value[int]) error {
	n, ok := v.Get()
	if !ok {
		return apperr.Invalid(field, "is required")
	}
	if n < 0 || n > 10 {
		return apperr.Invalid(field, "must be between 0 and 10")
	}
	return nil
}

func checkEnum(field string, v optional.Value[string], allowed []string) error {
	if s, ok := v.Get(); ok && !slices.Contains(allowed, s) {
		return apperr.Invalid(field, "must be one of %s", strings.Join(allowed, ", "))
	}
	return nil
}

func (r *CompleteRequest) normalize() error {
	r.Notas = strings.TrimSpace(r.Notas)
	for _, v := range []*optional.Value[string]{&r.ProgresoPercibido, &r.EstadoAnimoObservado, &r.ObservacionesObjetivas, &r.TecnicasAplicadas, &r.PlanProximaSesion} {
		*v = optional.NonEmpty(strings.TrimSpace(optional.String(*v)))
	}
	if r.Notas == "" {
		return apperr.Invalid("notas", "is required")
	}
	if err := checkPain("dolorInicial", r.DolorInicial); err != nil {
		return err
	}
	if err := checkPain("dolorFinal", r.DolorFinal); err != nil {
		return err
	}
	if err := checkEnum("progresoPercibido", r.ProgresoPercibido, ProgresoValues); err != nil {
		return err
	}
	return checkEnum("estadoAnimoObservado", r.EstadoAnimoObservado, AnimoValues)
}

func (r CompleteRequest) apply(s *Sesion) {
	s.Estado = EstadoCompletada
	s.NotasTerapeuta = optional.Some(r.Notas)
	s.DolorInicial = r.DolorInicial
	s.DolorFinal = r.DolorFinal
	s.ProgresoPercibido = r.ProgresoPercibido
	s.EstadoAnimoObservado = r.EstadoAnimoObservado
	s.ObservacionesObjetivas = r.ObservacionesObjetivas
	s.TecnicasAplicadas = r.TecnicasAplicadas
	s.PlanProximaSesion = r.PlanProximaSesion
}

func validEstadoFilter(estado string) error {
	if estado != "" && !slices.Contains(estados, estado) {
		return apperr.Invalid("estado", "must be one of %s", strings.Join(estados, ", "))
	}
	return nil
}
