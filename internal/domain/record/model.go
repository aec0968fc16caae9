// Package record owns the expedientes collection: one clinical record per
// patient and therapist pairing.
package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

var ErrRecordNotFound = fmt.Errorf("expediente %w", apperr.ErrNotFound)

const (
	DefaultDescripcion = "Expediente inicial"
	minDescripcion     = 5
)

type Expediente struct {
	ID              string                 `json:"id"`
	PacienteUID     string                 `json:"pacienteUid"`
	TerapeutaUID    string                 `json:"terapeutaUid"`
	Descripcion     string                 `json:"descripcion"`
	Diagnostico     optional.Value[string] `json:"diagnostico,omitzero"`
	Objetivos       optional.Value[string] `json:"objetivos,omitzero"`
	PlanTratamiento optional.Value[string] `json:"planTratamiento,omitzero"`
	FechaCreacion   time.Time              `json:"fechaCreacion"`
}

// OwnedBy reports whether uid is the record's therapist.
func (e *Expediente) OwnedBy(uid string) bool { return uid != "" && e.TerapeutaUID == uid }

// VisibleTo reports whether the caller is the record's therapist or patient.
func (e *Expediente) VisibleTo(c *auth.Claims) bool {
	return c != nil && (e.OwnedBy(c.Subject) || e.PacienteUID == c.Subject)
}

type CreateRequest struct {
	PacienteUID string                 `json:"pacienteUid"`
	Descripcion optional.Value[string] `json:"descripcion,omitzero"`
}

// ClinicalUpdate edits the therapist-owned clinical fields. Absent fields are
// kept; a blank value clears the field.
type ClinicalUpdate struct {
	Diagnostico     optional.Value[string] `json:"diagnostico,omitzero"`
	Objetivos       optional.Value[string] `json:"objetivos,omitzero"`
	PlanTratamiento optional.Value[string] `json:"planTratamiento,omitzero"`
}

func (u ClinicalUpdate) empty() bool {
	return !u.Diagnostico.IsSet() && !u.Objetivos.IsSet() && !u.PlanTratamiento.IsSet()
}

// apply merges u into e.
func (u ClinicalUpdate) apply(e *Expediente) {
	merge := func(dst *optional.Value[string], v optional.Value[string]) {
		if s, ok := v.Get(); ok {
			*dst = optional.NonEmpty(strings.TrimSpace(s))
		}
	}
	merge(&e.Diagnostico, u.Diagnostico)
	merge(&e.Objetivos, u.Objetivos)
	merge(&e.PlanTratamiento, u.PlanTratamiento)
}

func normalizeDescripcion(v optional.Value[string]) (string, error) {
	d, ok := v.Get()
	if !ok {
		return DefaultDescripcion, nil
	}
	d = strings.TrimSpace(d)
	if len([]rune(d)) < minDescripcion {
		return "", apperr.Invalid("descripcion", "must have at least %d characters", minDescripcion)
	}
	return d, nil
}
