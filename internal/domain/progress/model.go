// Package progress stores avances: patient self-reports attached to the
// patient's expediente. Avances are immutable once written.
package progress

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/summarizer"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

var ErrProgressNotFound = fmt.Errorf("avance %w", apperr.ErrNotFound)

const (
	TipoAuto   = "auto"
	TipoSesion = "sesion"

	minText = 3
)

var AnimoValues = []string{"muy-bien", "bien", "regular", "mal", "muy-mal"}

// Payload is what the patient reports.
type Payload struct {
	DolorInicial            int                    `json:"dolorInicial"`
	DolorFinal              int                    `json:"dolorFinal"`
	UbicacionDolor          string                 `json:"ubicacionDolor"`
	EjerciciosRealizados    string                 `json:"ejerciciosRealizados"`
	DiasEjercicio           int                    `json:"diasEjercicio"`
	EjerciciosDificiles     optional.Value[string] `json:"ejerciciosDificiles,omitzero"`
	MovilidadPercibida      string                 `json:"movilidadPercibida"`
	Fatiga                  int                    `json:"fatiga"`
	LimitacionesFuncionales optional.Value[string] `json:"limitacionesFuncionales,omitzero"`
	EstadoAnimo             string                 `json:"estadoAnimo"`
	Motivacion              int                    `json:"motivacion"`
	ComentarioPaciente      optional.Value[string] `json:"comentarioPaciente,omitzero"`
}

type Avance struct {
	ID            string    `json:"id"`
	PacienteUID   string    `json:"pacienteUid"`
	TerapeutaUID  string    `json:"terapeutaUid"`
	ExpedienteID  string    `json:"expedienteId"`
	FechaRegistro time.Time `json:"fechaRegistro"`
	RegistradoPor string    `json:"registradoPor"`
	TipoRegistro  string    `json:"tipoRegistro"`
	Payload
}

func inRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return apperr.Invalid(field, "must be between %d and %d", lo, hi)
	}
	return nil
}

func minLen(field, v string) error {
	if len([]rune(v)) < minText {
		return apperr.Invalid(field, "must have at least %d characters", minText)
	}
	return nil
}

func (p *Payload) normalize() error {
	p.UbicacionDolor = strings.TrimSpace(p.UbicacionDolor)
	p.EjerciciosRealizados = strings.TrimSpace(p.EjerciciosRealizados)
	p.MovilidadPercibida = strings.TrimSpace(p.MovilidadPercibida)
	p.EstadoAnimo = strings.TrimSpace(p.EstadoAnimo)
	for _, v := range []*optional.Value[string]{&p.EjerciciosDificiles, &p.LimitacionesFuncionales, &p.ComentarioPaciente} {
		*v = optional.NonEmpty(strings.TrimSpace(optional.String(*v)))
	}

	checks := []error{
		inRange("dolorInicial", p.DolorInicial, 0, 10),
		inRange("dolorFinal", p.DolorFinal, 0, 10),
		minLen("ubicacionDolor", p.UbicacionDolor),
		minLen("ejerciciosRealizados", p.EjerciciosRealizados),
		inRange("diasEjercicio", p.DiasEjercicio, 0, 7),
		minLen("movilidadPercibida", p.MovilidadPercibida),
		inRange("fatiga", p.Fatiga, 0, 10),
		inRange("motivacion", p.Motivacion, 0, 10),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if !slices.Contains(AnimoValues, p.EstadoAnimo) {
		return apperr.Invalid("estadoAnimo", "must be one of %s", strings.Join(AnimoValues, ", "))
	}
	return nil
}

// Report converts the payload to summarizer input.
func (p Payload) Report() summarizer.Report {
	return summarizer.Report{
		DolorInicial:            p.DolorInicial,
		DolorFinal:              p.DolorFinal,
		UbicacionDolor:          p.UbicacionDolor,
		DiasEjercicio:           p.DiasEjercicio,
		EjerciciosRealizados:    p.EjerciciosRealizados,
		EjerciciosDificiles:     optional.String(p.EjerciciosDificiles),
		MovilidadPercibida:      p.MovilidadPercibida,
		Fatiga:                  p.Fatiga,
		LimitacionesFuncionales: optional.String(p.LimitacionesFuncionales),
		EstadoAnimo:             p.EstadoAnimo,
		Motivacion:              p.Motivacion,
		ComentarioPaciente:      optional.String(p.ComentarioPaciente),
	}
}
